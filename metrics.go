package flashvfs

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    opens *prometheus.CounterVec
//	}
//
//	func (p *PrometheusCollector) RecordOpen(volume string, d time.Duration, err error) {
//	    p.opens.WithLabelValues(volume, status(err)).Inc()
//	}
type MetricsCollector interface {
	// RecordOpen is called after each open call.
	RecordOpen(volume string, duration time.Duration, err error)

	// RecordClose is called after each close call.
	RecordClose(volume string, err error)

	// RecordRead is called after each read with the number of bytes returned.
	RecordRead(volume string, bytes int, duration time.Duration, err error)

	// RecordWrite is called after each write with the number of bytes accepted.
	RecordWrite(volume string, bytes int, duration time.Duration, err error)

	// RecordMount is called after each mount attempt.
	RecordMount(volume string, duration time.Duration, err error)

	// RecordFormat is called after each format.
	RecordFormat(volume string, duration time.Duration, err error)

	// RecordDescriptors reports the descriptor table after it changed.
	RecordDescriptors(volume string, open, capacity int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordOpen(string, time.Duration, error)       {}
func (NoopMetricsCollector) RecordClose(string, error)                     {}
func (NoopMetricsCollector) RecordRead(string, int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordWrite(string, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordMount(string, time.Duration, error)      {}
func (NoopMetricsCollector) RecordFormat(string, time.Duration, error)     {}
func (NoopMetricsCollector) RecordDescriptors(string, int, int)            {}

// BasicMetricsCollector provides simple in-memory metrics collection across
// all volumes.
type BasicMetricsCollector struct {
	OpenCount      atomic.Int64
	OpenErrors     atomic.Int64
	OpenTotalNanos atomic.Int64
	CloseCount     atomic.Int64
	CloseErrors    atomic.Int64
	ReadCount      atomic.Int64
	ReadBytes      atomic.Int64
	ReadErrors     atomic.Int64
	WriteCount     atomic.Int64
	WriteBytes     atomic.Int64
	WriteErrors    atomic.Int64
	MountCount     atomic.Int64
	MountErrors    atomic.Int64
	FormatCount    atomic.Int64
	FormatErrors   atomic.Int64
	OpenFiles      atomic.Int64
	DescriptorCap  atomic.Int64
}

// RecordOpen implements MetricsCollector.
func (b *BasicMetricsCollector) RecordOpen(_ string, duration time.Duration, err error) {
	b.OpenCount.Add(1)
	b.OpenTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.OpenErrors.Add(1)
	}
}

// RecordClose implements MetricsCollector.
func (b *BasicMetricsCollector) RecordClose(_ string, err error) {
	b.CloseCount.Add(1)
	if err != nil {
		b.CloseErrors.Add(1)
	}
}

// RecordRead implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRead(_ string, bytes int, _ time.Duration, err error) {
	b.ReadCount.Add(1)
	b.ReadBytes.Add(int64(bytes))
	if err != nil {
		b.ReadErrors.Add(1)
	}
}

// RecordWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWrite(_ string, bytes int, _ time.Duration, err error) {
	b.WriteCount.Add(1)
	b.WriteBytes.Add(int64(bytes))
	if err != nil {
		b.WriteErrors.Add(1)
	}
}

// RecordMount implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMount(_ string, _ time.Duration, err error) {
	b.MountCount.Add(1)
	if err != nil {
		b.MountErrors.Add(1)
	}
}

// RecordFormat implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFormat(_ string, _ time.Duration, err error) {
	b.FormatCount.Add(1)
	if err != nil {
		b.FormatErrors.Add(1)
	}
}

// RecordDescriptors implements MetricsCollector. With several volumes the
// gauges hold the most recent report.
func (b *BasicMetricsCollector) RecordDescriptors(_ string, open, capacity int) {
	b.OpenFiles.Store(int64(open))
	b.DescriptorCap.Store(int64(capacity))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		OpenCount:     b.OpenCount.Load(),
		OpenErrors:    b.OpenErrors.Load(),
		OpenAvgNanos:  b.getAvgOpenNanos(),
		CloseCount:    b.CloseCount.Load(),
		CloseErrors:   b.CloseErrors.Load(),
		ReadCount:     b.ReadCount.Load(),
		ReadBytes:     b.ReadBytes.Load(),
		ReadErrors:    b.ReadErrors.Load(),
		WriteCount:    b.WriteCount.Load(),
		WriteBytes:    b.WriteBytes.Load(),
		WriteErrors:   b.WriteErrors.Load(),
		MountCount:    b.MountCount.Load(),
		MountErrors:   b.MountErrors.Load(),
		FormatCount:   b.FormatCount.Load(),
		FormatErrors:  b.FormatErrors.Load(),
		OpenFiles:     b.OpenFiles.Load(),
		DescriptorCap: b.DescriptorCap.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgOpenNanos() int64 {
	count := b.OpenCount.Load()
	if count == 0 {
		return 0
	}
	return b.OpenTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	OpenCount     int64
	OpenErrors    int64
	OpenAvgNanos  int64
	CloseCount    int64
	CloseErrors   int64
	ReadCount     int64
	ReadBytes     int64
	ReadErrors    int64
	WriteCount    int64
	WriteBytes    int64
	WriteErrors   int64
	MountCount    int64
	MountErrors   int64
	FormatCount   int64
	FormatErrors  int64
	OpenFiles     int64
	DescriptorCap int64
}
