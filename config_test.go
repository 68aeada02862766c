package flashvfs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
maxVolumes: 2
chips:
  - name: ram
    type: memory
    size: 131072
    sectorSize: 4096
    pageSize: 256
  - name: image
    type: file
    path: %IMAGE%
    size: 65536
    sectorSize: 4096
    pageSize: 256
partitions:
  - label: data
    chip: ram
    size: 131072
  - label: logs
    chip: image
    size: 65536
volumes:
  - label: data
    basePath: /data
    formatIfMountFailed: true
    mtime: seconds
  - label: logs
    basePath: /logs
    formatIfMountFailed: true
    hashOnly: true
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	image := filepath.Join(dir, "flash.img")
	path := filepath.Join(dir, "flashvfs.yaml")
	body = strings.ReplaceAll(body, "%IMAGE%", image)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, testConfig))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxVolumes)
	require.Len(t, cfg.Chips, 2)
	assert.Equal(t, ChipFile, cfg.Chips[1].Type)
	assert.Equal(t, int64(4096), cfg.Chips[0].SectorSize)
	require.Len(t, cfg.Volumes, 2)
	assert.Equal(t, "/data", cfg.Volumes[0].BasePath)
	assert.Equal(t, MTimeSeconds, cfg.Volumes[0].MTime)
	assert.True(t, cfg.Volumes[1].HashOnly)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileUnreadable)

	_, err = LoadConfig(writeConfig(t, "chips: [unterminated"))
	assert.ErrorIs(t, err, ErrConfigFileUnmarshallable)
}

func TestConfig_Validate(t *testing.T) {
	ram := ChipConfig{Name: "ram", Type: ChipMemory}

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{"no chips", Config{}, ErrChipsMissing},
		{"duplicate chip", Config{Chips: []ChipConfig{ram, ram}}, ErrDuplicateChip},
		{"unknown type", Config{Chips: []ChipConfig{{Name: "x", Type: "eeprom"}}}, ErrUnknownChipType},
		{
			"unknown chip",
			Config{Chips: []ChipConfig{ram}, Partitions: []PartitionConfig{{Label: "p", Chip: "rom"}}},
			ErrUnknownChip,
		},
		{
			"duplicate partition",
			Config{Chips: []ChipConfig{ram}, Partitions: []PartitionConfig{{Label: "p", Chip: "ram"}, {Label: "p", Chip: "ram"}}},
			ErrDuplicatePartition,
		},
		{
			"volume without partition",
			Config{Chips: []ChipConfig{ram}, Volumes: []VolumeConfig{{Label: "v"}}},
			ErrVolumeWithoutPartition,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.want)
		})
	}
}

func TestOpen(t *testing.T) {
	path := writeConfig(t, testConfig)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	r, err := Open(t.Context(), cfg)
	require.NoError(t, err)
	assert.True(t, r.Mounted("data"))
	assert.True(t, r.Mounted("logs"))

	v, rel, err := r.Resolve("/logs/today")
	require.NoError(t, err)
	assert.Equal(t, "logs", v.Label())
	writeFile(t, v, rel, []byte("boot ok"))
	require.NoError(t, r.Close())

	// The file chip keeps its contents across registries.
	r, err = Open(t.Context(), cfg)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()

	v, err = r.Volume("logs")
	require.NoError(t, err)
	assert.Equal(t, []byte("boot ok"), readFile(t, v, "/today"))

	v, err = r.Volume("data")
	require.NoError(t, err)
	_, err = v.Stat("/today")
	assert.ErrorIs(t, err, os.ErrNotExist, "memory chips start blank")
}

func TestOpen_CapacityFromConfig(t *testing.T) {
	cfg := &Config{
		MaxVolumes: 1,
		Chips:      []ChipConfig{{Name: "ram", Type: ChipMemory, Size: 65536, SectorSize: 4096, PageSize: 256}},
		Partitions: []PartitionConfig{
			{Label: "a", Chip: "ram", Size: 32768},
			{Label: "b", Chip: "ram", Offset: 32768, Size: 32768},
		},
		Volumes: []VolumeConfig{
			{Label: "a", FormatIfMountFailed: true},
			{Label: "b", FormatIfMountFailed: true},
		},
	}

	_, err := Open(t.Context(), cfg)
	assert.ErrorIs(t, err, ErrCapacityExceeded)
}
