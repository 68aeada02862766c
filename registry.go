package flashvfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/flashvfs/flash"
	"github.com/hupe1980/flashvfs/internal/resource"
)

// Registry holds a fixed number of volume slots keyed by label. All methods
// are safe for concurrent use. The registry lock is always taken before a
// volume lock, never after.
type Registry struct {
	mu    sync.Mutex
	slots []*Volume

	opts    options
	rc      *resource.Controller
	closers []io.Closer
}

// New creates an empty registry.
func New(optFns ...Option) *Registry {
	o := applyOptions(optFns)
	if o.maxVolumes <= 0 {
		o.maxVolumes = DefaultMaxVolumes
	}
	return &Registry{
		slots: make([]*Volume, o.maxVolumes),
		opts:  o,
		rc: resource.NewController(resource.Config{
			MemoryLimitBytes:     o.memoryLimit,
			MaxBackgroundWorkers: o.maxErase,
			IOLimitBytesPerSec:   o.ioLimit,
		}),
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, created with default options on
// first use. Partitions are added to it with AddPartition.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = New()
	})
	return defaultRegistry
}

// AddPartition declares the flash range for the volume with the same label.
func (r *Registry) AddPartition(p flash.Partition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	WithPartition(p)(&r.opts)
}

// indexLocked returns the slot of label, or -1.
func (r *Registry) indexLocked(label string) int {
	for i, v := range r.slots {
		if v != nil && v.cfg.Label == label {
			return i
		}
	}
	return -1
}

// Register creates, and unless cfg.DontMount is set mounts, the volume
// described by cfg.
func (r *Registry) Register(cfg VolumeConfig) (*Volume, error) {
	return r.RegisterContext(context.Background(), cfg)
}

// RegisterContext is Register with a context bounding the wait for an erase
// slot when the partition has to be formatted.
func (r *Registry) RegisterContext(ctx context.Context, cfg VolumeConfig) (*Volume, error) {
	if cfg.Label == "" {
		return nil, fmt.Errorf("%w: empty label", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	free := -1
	for i, v := range r.slots {
		if v == nil {
			if free < 0 {
				free = i
			}
			continue
		}
		if v.cfg.Label == cfg.Label {
			return nil, fmt.Errorf("%w: label %q", ErrAlreadyMounted, cfg.Label)
		}
		if cfg.BasePath != "" && v.cfg.BasePath == cfg.BasePath {
			return nil, fmt.Errorf("%w: base path %q", ErrAlreadyMounted, cfg.BasePath)
		}
	}
	if free < 0 {
		return nil, fmt.Errorf("%w: %d volumes", ErrCapacityExceeded, len(r.slots))
	}

	part, ok := r.opts.partitions[cfg.Label]
	if !ok {
		return nil, fmt.Errorf("%w: partition %q", ErrNotFound, cfg.Label)
	}

	v, err := newVolume(cfg, part, r.rc, &r.opts)
	if err != nil {
		return nil, err
	}
	if !cfg.DontMount {
		v.mu.Lock()
		err = v.mountLocked(ctx, cfg.FormatIfMountFailed)
		v.mu.Unlock()
		if err != nil {
			_ = v.teardown()
			return nil, fmt.Errorf("mount %s: %w", cfg.Label, err)
		}
	}

	r.slots[free] = v
	return v, nil
}

// Lookup returns the slot index of label.
func (r *Registry) Lookup(label string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(label); i >= 0 {
		return i, nil
	}
	return -1, fmt.Errorf("%w: volume %q", ErrNotFound, label)
}

// Volume returns the registered volume with label.
func (r *Registry) Volume(label string) (*Volume, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(label); i >= 0 {
		return r.slots[i], nil
	}
	return nil, fmt.Errorf("%w: volume %q", ErrNotFound, label)
}

// Resolve maps an absolute path to the volume with the longest matching base
// path and the path relative to that volume's root.
func (r *Registry) Resolve(p string) (*Volume, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *Volume
	var rel string
	for _, v := range r.slots {
		if v == nil || v.cfg.BasePath == "" {
			continue
		}
		base := strings.TrimSuffix(v.cfg.BasePath, "/")
		var rest string
		switch {
		case p == base || base == "":
			rest = strings.TrimPrefix(p, base)
		case strings.HasPrefix(p, base+"/"):
			rest = p[len(base):]
		default:
			continue
		}
		if best == nil || len(base) > len(strings.TrimSuffix(best.cfg.BasePath, "/")) {
			best, rel = v, rest
		}
	}
	if best == nil {
		return nil, "", fmt.Errorf("%w: no volume for %q", ErrNotFound, p)
	}
	if rel == "" {
		rel = "/"
	}
	return best, rel, nil
}

// Unregister unmounts the volume with label and frees its slot. Open
// descriptors are closed.
func (r *Registry) Unregister(label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(label)
	if i < 0 {
		return fmt.Errorf("%w: volume %q", ErrNotMounted, label)
	}
	v := r.slots[i]
	r.slots[i] = nil

	err := v.teardown()
	v.log.LogUnregister(context.Background(), err)
	return err
}

// Close unregisters every volume. Volumes are torn down concurrently.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var g errgroup.Group
	for i, v := range r.slots {
		if v == nil {
			continue
		}
		r.slots[i] = nil
		g.Go(func() error {
			err := v.teardown()
			v.log.LogUnregister(context.Background(), err)
			if err != nil {
				return fmt.Errorf("%s: %w", v.cfg.Label, err)
			}
			return nil
		})
	}
	err := g.Wait()

	errs := []error{err}
	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Format erases and formats the partition of label. A registered volume
// that is mounted is unmounted first, losing its open descriptors, and
// mounted again afterwards. A label that is not registered is formatted
// through a temporary volume that is never mounted.
func (r *Registry) Format(label string) error {
	return r.FormatContext(context.Background(), label)
}

// FormatContext is Format with a context bounding the erase.
func (r *Registry) FormatContext(ctx context.Context, label string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(label); i >= 0 {
		return r.slots[i].reformat(ctx)
	}

	part, ok := r.opts.partitions[label]
	if !ok {
		return fmt.Errorf("%w: partition %q", ErrNotFound, label)
	}
	v, err := newVolume(VolumeConfig{Label: label}, part, r.rc, &r.opts)
	if err != nil {
		return err
	}
	defer func() { _ = v.teardown() }()

	start := time.Now()
	v.mu.Lock()
	err = v.formatLocked(ctx)
	v.mu.Unlock()
	r.opts.metricsCollector.RecordFormat(label, time.Since(start), err)
	v.log.LogFormat(ctx, err)
	return err
}

// Info returns the capacity of the volume and the bytes used by file data.
func (r *Registry) Info(label string) (total, used int64, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(label)
	if i < 0 {
		return 0, 0, fmt.Errorf("%w: volume %q", ErrNotFound, label)
	}
	return r.slots[i].info()
}

// Mounted reports whether label is registered and mounted.
func (r *Registry) Mounted(label string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(label)
	return i >= 0 && r.slots[i].Mounted()
}

// MemoryUsage returns the bytes charged to the registry's memory budget.
func (r *Registry) MemoryUsage() int64 {
	return r.rc.MemoryUsage()
}
