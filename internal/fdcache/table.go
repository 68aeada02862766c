package fdcache

import (
	"errors"
	"fmt"
	"math"
	"syscall"

	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/internal/hash"
	"github.com/hupe1980/flashvfs/internal/resource"
)

const (
	// MinSize is the capacity a freshly mounted volume starts with.
	MinSize = 4
	// GrowthFactor multiplies the capacity when the table is full.
	GrowthFactor = 2
	// Hysteresis is the slack kept when shrinking.
	Hysteresis = 4
	// MaxDescriptors bounds the capacity.
	MaxDescriptors = math.MaxUint16

	// slotBytes and recordBytes approximate the memory charged per slot and
	// per record (excluding the path).
	slotBytes   = 8
	recordBytes = 48
)

var (
	// ErrBadDescriptor is returned for descriptors outside the table or not in use.
	ErrBadDescriptor error = syscall.EBADF
	// ErrTooManyOpenFiles is returned when MaxDescriptors records are open.
	ErrTooManyOpenFiles error = syscall.ENFILE
	// ErrOutOfMemory is returned when the memory budget refuses an allocation.
	ErrOutOfMemory error = syscall.ENOMEM
	// ErrNotFound is returned by FindByPath when no record matches.
	ErrNotFound = errors.New("fdcache: no open descriptor for path")
)

// Entry is one open-file record.
type Entry struct {
	// File is the engine handle. It is nil between Allocate and a successful
	// engine open.
	File engine.File
	// Path is empty in hash-only mode.
	Path string
	Hash uint32

	fd   int
	next *Entry
}

// FD returns the descriptor bound to the entry.
func (e *Entry) FD() int { return e.fd }

// Table is the descriptor cache of one volume.
type Table struct {
	slots []*Entry
	head  *Entry
	count int

	hashOnly bool
	shrink   bool
	rc       *resource.Controller
	charged  int64
}

// Option configures a Table.
type Option func(*Table)

// WithHashOnly stores only path hashes. Lookups may then alias different
// paths that share a hash.
func WithHashOnly(enabled bool) Option {
	return func(t *Table) {
		t.hashOnly = enabled
	}
}

// WithShrink enables compaction of trailing free slots on Free.
func WithShrink(enabled bool) Option {
	return func(t *Table) {
		t.shrink = enabled
	}
}

// WithResource charges slot and record memory to rc.
func WithResource(rc *resource.Controller) Option {
	return func(t *Table) {
		t.rc = rc
	}
}

// New returns an empty table with zero capacity.
func New(opts ...Option) *Table {
	t := &Table{}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// HashOnly reports whether paths are stored as hashes only.
func (t *Table) HashOnly() bool { return t.hashOnly }

// Len returns the number of open descriptors.
func (t *Table) Len() int { return t.count }

// Cap returns the current capacity.
func (t *Table) Cap() int { return len(t.slots) }

func (t *Table) charge(n int64) error {
	if !t.rc.TryAcquireMemory(n) {
		return ErrOutOfMemory
	}
	t.charged += n
	return nil
}

func (t *Table) release(n int64) {
	t.rc.ReleaseMemory(n)
	t.charged -= n
}

func (t *Table) recordCost(path string) int64 {
	if t.hashOnly {
		return recordBytes
	}
	return recordBytes + int64(len(path))
}

// Reset sets the capacity of an empty table to size.
func (t *Table) Reset(size int) error {
	if t.count != 0 {
		return fmt.Errorf("fdcache: reset with %d open descriptors", t.count)
	}
	size = min(size, MaxDescriptors)
	delta := int64(size-len(t.slots)) * slotBytes
	if delta > 0 {
		if err := t.charge(delta); err != nil {
			return err
		}
	} else {
		t.release(-delta)
	}
	t.slots = make([]*Entry, size)
	t.head = nil
	return nil
}

// Allocate binds a new record for path to the lowest free descriptor. On
// failure the table is left exactly as it was.
func (t *Table) Allocate(path string) (int, *Entry, error) {
	newCap := len(t.slots)
	if t.count+1 > len(t.slots) {
		if len(t.slots) >= MaxDescriptors {
			return -1, nil, ErrTooManyOpenFiles
		}
		newCap = min(max(len(t.slots)*GrowthFactor, MinSize), MaxDescriptors)
	}

	growth := int64(newCap-len(t.slots)) * slotBytes
	if err := t.charge(growth); err != nil {
		return -1, nil, err
	}
	if err := t.charge(t.recordCost(path)); err != nil {
		t.release(growth)
		return -1, nil, err
	}

	if newCap > len(t.slots) {
		// Existing descriptors keep their slots; new slots are nil.
		slots := make([]*Entry, newCap)
		copy(slots, t.slots)
		t.slots = slots
	}

	e := &Entry{Hash: hash.DJB2(path), fd: -1}
	if !t.hashOnly {
		e.Path = path
	}
	e.next = t.head
	t.head = e

	for i, s := range t.slots {
		if s == nil {
			t.slots[i] = e
			e.fd = i
			break
		}
	}
	t.count++
	return e.fd, e, nil
}

// Get returns the record bound to fd.
func (t *Table) Get(fd int) (*Entry, error) {
	if fd < 0 || fd >= len(t.slots) {
		return nil, ErrBadDescriptor
	}
	e := t.slots[fd]
	if e == nil {
		return nil, ErrBadDescriptor
	}
	return e, nil
}

// Free unbinds fd and releases its record. It does not close the engine
// handle. A slot whose record is missing from the list means the table is
// corrupt and Free panics.
func (t *Table) Free(fd int) error {
	e, err := t.Get(fd)
	if err != nil {
		return err
	}

	if t.head == e {
		t.head = e.next
	} else {
		p := t.head
		for p != nil && p.next != e {
			p = p.next
		}
		if p == nil {
			panic(fmt.Sprintf("fdcache: descriptor %d has no list node", fd))
		}
		p.next = e.next
	}

	t.slots[fd] = nil
	t.count--
	e.next = nil
	t.release(t.recordCost(e.Path))

	if t.shrink {
		t.compact()
	}
	return nil
}

// compact halves the capacity (plus Hysteresis) once the trailing free slots
// cover everything that would be trimmed.
func (t *Table) compact() {
	size := len(t.slots)
	if size <= MinSize {
		return
	}
	half := size / GrowthFactor
	if half < MinSize {
		return
	}

	trailing := 0
	for trailing < size && t.slots[size-trailing-1] == nil {
		trailing++
	}
	if trailing < size-half {
		return
	}

	newSize := half + Hysteresis
	if newSize >= size {
		return
	}
	t.slots = append([]*Entry(nil), t.slots[:newSize]...)
	t.release(int64(size-newSize) * slotBytes)
}

// FindByPath returns the descriptor of an open record for path.
func (t *Table) FindByPath(path string) (int, error) {
	h := hash.DJB2(path)
	seen := 0
	for fd, e := range t.slots {
		if seen >= t.count {
			break
		}
		if e == nil {
			continue
		}
		seen++
		if e.Hash != h {
			continue
		}
		if t.hashOnly || e.Path == path {
			return fd, nil
		}
	}
	return -1, ErrNotFound
}

// Drain unbinds every record, newest first, and returns them so the caller
// can close their engine handles. The table ends with zero capacity.
func (t *Table) Drain() []*Entry {
	var out []*Entry
	for e := t.head; e != nil; {
		next := e.next
		e.next = nil
		out = append(out, e)
		e = next
	}

	t.slots = nil
	t.head = nil
	t.count = 0
	t.release(t.charged)
	return out
}

// Check verifies count == populated slots == list length and that every
// listed record sits in its own slot.
func (t *Table) Check() error {
	populated := 0
	for _, e := range t.slots {
		if e != nil {
			populated++
		}
	}

	listed := 0
	for e := t.head; e != nil; e = e.next {
		listed++
		if listed > len(t.slots) {
			return fmt.Errorf("fdcache: list longer than capacity %d", len(t.slots))
		}
		if e.fd < 0 || e.fd >= len(t.slots) || t.slots[e.fd] != e {
			return fmt.Errorf("fdcache: record for descriptor %d not in its slot", e.fd)
		}
	}

	if t.count != populated || t.count != listed {
		return fmt.Errorf("fdcache: count %d, populated slots %d, list length %d", t.count, populated, listed)
	}
	return nil
}
