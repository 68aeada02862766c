package flashvfs

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/flashvfs/internal/fdcache"
)

func TestBasicMetricsCollector(t *testing.T) {
	mc := &BasicMetricsCollector{}
	r, v := newTestVolume(t, VolumeConfig{}, WithMetricsCollector(mc))

	writeFile(t, v, "/f", []byte("hello"))
	assert.Equal(t, []byte("hello"), readFile(t, v, "/f"))

	_, err := v.Open("/missing", os.O_RDONLY, 0)
	require.Error(t, err)

	_, err = v.Write(99, []byte("x"))
	require.Error(t, err)

	require.NoError(t, r.Format("data"))

	stats := mc.GetStats()
	assert.Equal(t, int64(3), stats.OpenCount)
	assert.Equal(t, int64(1), stats.OpenErrors)
	assert.Equal(t, int64(2), stats.CloseCount)
	assert.Zero(t, stats.CloseErrors)
	assert.Equal(t, int64(5), stats.WriteBytes)
	assert.Equal(t, int64(2), stats.WriteCount)
	assert.Equal(t, int64(1), stats.WriteErrors)
	assert.Equal(t, int64(5), stats.ReadBytes)
	assert.Zero(t, stats.ReadErrors, "end of file is not an error")
	assert.Equal(t, int64(2), stats.MountCount)
	assert.Zero(t, stats.MountErrors)
	assert.Equal(t, int64(1), stats.FormatCount)
	assert.Zero(t, stats.OpenFiles)
	assert.Equal(t, int64(fdcache.MinSize), stats.DescriptorCap)
}

func TestBasicMetricsCollector_OpenAverage(t *testing.T) {
	mc := &BasicMetricsCollector{}
	assert.Zero(t, mc.GetStats().OpenAvgNanos)

	mc.RecordOpen("v", 10, nil)
	mc.RecordOpen("v", 30, nil)
	assert.Equal(t, int64(20), mc.GetStats().OpenAvgNanos)
}

func TestNoopMetricsCollector(t *testing.T) {
	var mc MetricsCollector = NoopMetricsCollector{}
	mc.RecordOpen("v", 0, nil)
	mc.RecordDescriptors("v", 1, 4)
}
