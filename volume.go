package flashvfs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/internal/blockdev"
	"github.com/hupe1980/flashvfs/internal/cache"
	"github.com/hupe1980/flashvfs/internal/fdcache"
	"github.com/hupe1980/flashvfs/internal/resource"
)

// Geometry defaults applied to zero VolumeConfig fields.
const (
	DefaultReadSize      = 256
	DefaultProgSize      = 256
	DefaultCacheSize     = 512
	DefaultLookaheadSize = 128
	DefaultBlockCycles   = 512

	// defaultSectorSize is assumed for chips that do not report a geometry.
	defaultSectorSize = 4096
)

// VolumeConfig describes one volume. Zero values select the defaults above.
type VolumeConfig struct {
	// Label names the partition and identifies the volume in the registry.
	Label string `yaml:"label"`
	// BasePath is the mount path used by Registry.Resolve. It may be empty.
	BasePath string `yaml:"basePath"`

	// FormatIfMountFailed erases and formats the partition when it does not
	// hold a valid filesystem.
	FormatIfMountFailed bool `yaml:"formatIfMountFailed"`
	// DontMount registers the volume without mounting it.
	DontMount bool `yaml:"dontMount"`

	ReadSize      uint32 `yaml:"readSize"`
	ProgSize      uint32 `yaml:"progSize"`
	CacheSize     uint32 `yaml:"cacheSize"`
	LookaheadSize uint32 `yaml:"lookaheadSize"`
	// BlockCycles is the erase budget per block before relocation; -1
	// disables wear levelling.
	BlockCycles int32 `yaml:"blockCycles"`

	// HashOnly stores only path hashes for open files. Busy checks may then
	// report a path as open when another path with the same hash is.
	HashOnly bool `yaml:"hashOnly"`
	// MTime selects modification time tracking.
	MTime MTimeMode `yaml:"mtime"`
	// ReadCacheBytes enables an LRU cache of whole flash blocks.
	ReadCacheBytes int64 `yaml:"readCacheBytes"`
	// ShrinkDescriptors lets the descriptor table give back trailing slots.
	ShrinkDescriptors bool `yaml:"shrinkDescriptors"`
}

func (c VolumeConfig) withDefaults() VolumeConfig {
	if c.ReadSize == 0 {
		c.ReadSize = DefaultReadSize
	}
	if c.ProgSize == 0 {
		c.ProgSize = DefaultProgSize
	}
	if c.CacheSize == 0 {
		c.CacheSize = DefaultCacheSize
	}
	if c.LookaheadSize == 0 {
		c.LookaheadSize = DefaultLookaheadSize
	}
	if c.BlockCycles == 0 {
		c.BlockCycles = DefaultBlockCycles
	}
	if c.MTime == "" {
		c.MTime = MTimeOff
	}
	return c
}

// Volume is one filesystem on one partition. All methods are safe for
// concurrent use; each call holds the volume lock for its whole duration.
type Volume struct {
	mu sync.Mutex

	cfg     VolumeConfig
	part    flash.Partition
	geom    engine.Config
	dev     *blockdev.Device
	cache   *cache.LRUBlockCache
	fs      engine.FS
	fds     *fdcache.Table
	dirs    map[*Dir]struct{}
	mounted bool

	rc      *resource.Controller
	log     *Logger
	metrics MetricsCollector
	clock   func() time.Time
}

// newVolume validates cfg against its partition and wires the block device,
// engine and descriptor table. The volume is not mounted.
func newVolume(cfg VolumeConfig, part flash.Partition, rc *resource.Controller, o *options) (*Volume, error) {
	if cfg.Label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidArgument)
	}
	if !cfg.MTime.valid() {
		return nil, fmt.Errorf("%w: unknown mtime mode %q", ErrInvalidArgument, cfg.MTime)
	}
	if err := part.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	cfg = cfg.withDefaults()

	if page := flash.PageSize(part.Chip); page > 0 && int64(cfg.ProgSize)%page != 0 {
		return nil, fmt.Errorf("%w: prog size %d is not a multiple of page size %d",
			ErrInvalidArgument, cfg.ProgSize, page)
	}

	sector := flash.SectorSize(part.Chip, defaultSectorSize)
	blockSize := uint32(sector)
	blockCount := uint32(part.Size / sector)

	log := o.logger.WithVolume(cfg.Label)

	var lru *cache.LRUBlockCache
	bc := blockdev.Config{
		Name:       cfg.Label,
		Region:     part.Chip,
		Base:       part.Offset,
		BlockSize:  blockSize,
		BlockCount: blockCount,
		Resource:   rc,
		OnError: func(op string, block uint32, err error) {
			log.ErrorContext(context.Background(), "flash "+op+" failed", "block", block, "error", err)
		},
	}
	if cfg.ReadCacheBytes > 0 {
		lru = cache.NewLRUBlockCache(cfg.ReadCacheBytes, rc)
		bc.Cache = lru
	}
	dev, err := blockdev.New(bc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	geom := engine.Config{
		Device:        dev,
		ReadSize:      cfg.ReadSize,
		ProgSize:      cfg.ProgSize,
		BlockSize:     blockSize,
		BlockCount:    blockCount,
		CacheSize:     cfg.CacheSize,
		LookaheadSize: cfg.LookaheadSize,
		BlockCycles:   cfg.BlockCycles,
	}
	if err := geom.Validate(); err != nil {
		if lru != nil {
			_ = lru.Close()
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	return &Volume{
		cfg:   cfg,
		part:  part,
		geom:  geom,
		dev:   dev,
		cache: lru,
		fs:    o.engine(),
		fds: fdcache.New(
			fdcache.WithHashOnly(cfg.HashOnly),
			fdcache.WithShrink(cfg.ShrinkDescriptors),
			fdcache.WithResource(rc),
		),
		dirs:    make(map[*Dir]struct{}),
		rc:      rc,
		log:     log,
		metrics: o.metricsCollector,
		clock:   o.clock,
	}, nil
}

// Label returns the volume label.
func (v *Volume) Label() string { return v.cfg.Label }

// BasePath returns the mount path, which may be empty.
func (v *Volume) BasePath() string { return v.cfg.BasePath }

// Config returns the effective configuration with defaults applied.
func (v *Volume) Config() VolumeConfig { return v.cfg }

// Mounted reports whether the volume accepts calls.
func (v *Volume) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mounted
}

// DeviceStats returns the counters of the underlying block device.
func (v *Volume) DeviceStats() blockdev.Stats {
	return v.dev.Stats()
}

func (v *Volume) checkMountedLocked(op, path string) error {
	if !v.mounted {
		return translateError(op, path, ErrNotMounted)
	}
	return nil
}

func (v *Volume) reportDescriptorsLocked() {
	v.metrics.RecordDescriptors(v.cfg.Label, v.fds.Len(), v.fds.Cap())
}

// mountLocked mounts the engine. When formatIfFailed is set a failed mount
// is followed by erase, format and one more mount attempt.
func (v *Volume) mountLocked(ctx context.Context, formatIfFailed bool) error {
	start := time.Now()
	err := v.fs.Mount(v.geom)
	if err != nil && formatIfFailed {
		v.log.WarnContext(ctx, "mount failed, formatting", v.log.errorAttrs(err)...)
		if err = v.formatLocked(ctx); err == nil {
			err = v.fs.Mount(v.geom)
		}
	}
	if err == nil {
		if err = v.fds.Reset(fdcache.MinSize); err != nil {
			_ = v.fs.Unmount()
		}
	}

	v.metrics.RecordMount(v.cfg.Label, time.Since(start), err)
	v.log.LogMount(ctx, v.geom.BlockCount, err)
	if err != nil {
		return err
	}

	v.mounted = true
	v.reportDescriptorsLocked()
	return nil
}

// eraseLocked erases the whole partition while holding a background slot.
func (v *Volume) eraseLocked(ctx context.Context) error {
	if err := v.rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer v.rc.ReleaseBackground()

	v.dev.InvalidateAll()
	if err := v.part.EraseAll(ctx); err != nil {
		return fmt.Errorf("%w: erase %s: %w", ErrIO, v.cfg.Label, err)
	}
	return nil
}

func (v *Volume) formatLocked(ctx context.Context) error {
	if err := v.eraseLocked(ctx); err != nil {
		return err
	}
	return v.fs.Format(v.geom)
}

// unmountLocked closes every open file and directory, releases the
// descriptor table and unmounts the engine.
func (v *Volume) unmountLocked() error {
	if !v.mounted {
		return nil
	}

	var errs []error
	for d := range v.dirs {
		if err := d.closeLocked(); err != nil {
			errs = append(errs, fmt.Errorf("close dir %s: %w", d.path, err))
		}
	}
	for _, e := range v.fds.Drain() {
		if e.File == nil {
			continue
		}
		if err := e.File.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close fd %d: %w", e.FD(), err))
		}
	}
	if err := v.fs.Unmount(); err != nil {
		errs = append(errs, err)
	}
	v.mounted = false
	v.reportDescriptorsLocked()
	return errors.Join(errs...)
}

// reformat erases and formats the partition. A mounted volume is unmounted
// first and mounted again afterwards.
func (v *Volume) reformat(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	start := time.Now()
	wasMounted := v.mounted
	err := v.unmountLocked()
	if err != nil {
		v.log.WarnContext(ctx, "unmount before format", v.log.errorAttrs(err)...)
	}

	err = v.formatLocked(ctx)
	v.metrics.RecordFormat(v.cfg.Label, time.Since(start), err)
	v.log.LogFormat(ctx, err)
	if err != nil {
		return err
	}

	if wasMounted {
		if err := v.mountLocked(ctx, false); err != nil {
			return fmt.Errorf("remount after format: %w", err)
		}
	}
	return nil
}

// teardown unmounts the volume and releases its cache. The volume rejects
// every later call.
func (v *Volume) teardown() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	err := v.unmountLocked()
	if v.cache != nil {
		_ = v.cache.Close()
	}
	return err
}

// info returns the partition capacity and the bytes held by file data.
func (v *Volume) info() (total, used int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.mounted {
		return 0, 0, ErrNotMounted
	}
	blocks, err := v.fs.Size()
	if err != nil {
		return 0, 0, err
	}
	bs := int64(v.geom.BlockSize)
	return bs * int64(v.geom.BlockCount), bs * blocks, nil
}
