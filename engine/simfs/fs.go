package simfs

import (
	"errors"
	"sort"
	"strings"

	"github.com/hupe1980/flashvfs/codec"
	"github.com/hupe1980/flashvfs/engine"
	"github.com/hupe1980/flashvfs/internal/hash"
)

const (
	// attrMax is the largest attribute value accepted by SetAttr.
	attrMax = 1022
	// fileMax is the largest supported file size.
	fileMax = 1<<31 - 1
)

// FS is a simfs instance. It is not safe for concurrent use.
type FS struct {
	opts options

	cfg     engine.Config
	mounted bool
	root    *node
	sb      *superblock
	active  int // index into superblockPair of sb
	alloc   *allocator
	files   map[*file]struct{}
}

var _ engine.FS = (*FS)(nil)

// New creates an unmounted filesystem.
func New(opts ...Option) *FS {
	return &FS{opts: applyOptions(opts)}
}

// Factory returns an engine.Factory producing FS instances with opts.
func Factory(opts ...Option) engine.Factory {
	return func() engine.FS {
		return New(opts...)
	}
}

func (fs *FS) checkConfig(cfg engine.Config) error {
	if err := cfg.Validate(); err != nil {
		return engine.ErrInval
	}
	if maxImageBlocks(cfg.BlockSize) < 1 {
		return engine.ErrInval
	}
	return nil
}

// ioErr collapses device failures into engine errors.
func ioErr(err error) error {
	var errno engine.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return engine.ErrIO
}

func (fs *FS) readBlock(b uint32, n int) ([]byte, error) {
	buf := make([]byte, roundUp(n, fs.cfg.ReadSize))
	if err := fs.cfg.Device.Read(b, 0, buf); err != nil {
		return nil, ioErr(err)
	}
	return buf[:n], nil
}

// writeBlock erases b and programs data at its start.
func (fs *FS) writeBlock(b uint32, data []byte) error {
	if err := fs.cfg.Device.Erase(b); err != nil {
		return ioErr(err)
	}
	buf := make([]byte, roundUp(len(data), fs.cfg.ProgSize))
	copy(buf, data)
	for i := len(data); i < len(buf); i++ {
		buf[i] = 0xFF
	}
	if err := fs.cfg.Device.Prog(b, 0, buf); err != nil {
		return ioErr(err)
	}
	return nil
}

func roundUp(n int, unit uint32) int {
	u := int(unit)
	return (n + u - 1) / u * u
}

// Format writes an empty filesystem. It leaves fs unmounted.
func (fs *FS) Format(cfg engine.Config) error {
	if fs.mounted {
		return engine.ErrInval
	}
	if err := fs.checkConfig(cfg); err != nil {
		return err
	}

	fs.cfg = cfg
	fs.root = newRoot()
	fs.sb = nil
	fs.alloc = newAllocator(cfg.BlockCount)
	defer fs.release()

	// Invalidate the second slot so a stale superblock can never win.
	if err := cfg.Device.Erase(superblockPair[1]); err != nil {
		return ioErr(err)
	}
	fs.active = 1
	return fs.commit()
}

// Mount loads the newest valid superblock and its metadata image.
func (fs *FS) Mount(cfg engine.Config) error {
	if fs.mounted {
		return engine.ErrInval
	}
	if err := fs.checkConfig(cfg); err != nil {
		return err
	}
	fs.cfg = cfg

	type candidate struct {
		slot int
		sb   *superblock
	}
	var (
		candidates []candidate
		sawIO      bool
	)
	for slot, b := range superblockPair {
		raw, err := fs.readBlock(b, int(cfg.BlockSize))
		if err != nil {
			sawIO = true
			continue
		}
		sb, err := unmarshalSuperblock(raw)
		if err != nil || sb.blockSize != cfg.BlockSize || sb.blockCount != cfg.BlockCount {
			continue
		}
		candidates = append(candidates, candidate{slot, sb})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sb.seq > candidates[j].sb.seq })

	for _, c := range candidates {
		root, err := fs.loadImage(c.sb)
		if err != nil {
			if errors.Is(err, engine.ErrIO) {
				sawIO = true
			}
			continue
		}

		fs.root = root
		fs.sb = c.sb
		fs.active = c.slot
		fs.alloc = newAllocator(cfg.BlockCount)
		fs.rebuildAlloc()
		fs.files = make(map[*file]struct{})
		fs.mounted = true
		return nil
	}

	fs.release()
	if sawIO {
		return engine.ErrIO
	}
	return engine.ErrCorrupt
}

func (fs *FS) loadImage(sb *superblock) (*node, error) {
	bs := int(fs.cfg.BlockSize)
	if int(sb.imageLen) > len(sb.image)*bs {
		return nil, engine.ErrCorrupt
	}

	payload := make([]byte, 0, len(sb.image)*bs)
	for _, b := range sb.image {
		if b >= fs.cfg.BlockCount {
			return nil, engine.ErrCorrupt
		}
		chunk, err := fs.readBlock(b, bs)
		if err != nil {
			return nil, err
		}
		payload = append(payload, chunk...)
	}
	payload = payload[:sb.imageLen]

	if hash.CRC32C(payload) != sb.imageCRC {
		return nil, engine.ErrCorrupt
	}
	raw, err := decompress(payload, sb.compression, sb.rawLen)
	if err != nil {
		return nil, engine.ErrCorrupt
	}
	c, ok := codec.ByName(sb.codec)
	if !ok {
		return nil, engine.ErrCorrupt
	}

	root := new(node)
	if err := c.Unmarshal(raw, root); err != nil || !root.Dir {
		return nil, engine.ErrCorrupt
	}
	return root, nil
}

// Unmount closes every open file and drops in-memory state.
func (fs *FS) Unmount() error {
	if !fs.mounted {
		return engine.ErrInval
	}

	var first error
	for f := range fs.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	fs.release()
	return first
}

func (fs *FS) release() {
	fs.mounted = false
	fs.root = nil
	fs.sb = nil
	fs.alloc = nil
	fs.files = nil
}

func (fs *FS) rebuildAlloc() {
	fs.alloc.reset()
	if fs.sb != nil {
		fs.alloc.mark(fs.sb.image)
	}
	fs.root.walk(func(n *node) {
		fs.alloc.mark(n.Blocks)
	})
}

// commit writes the current tree as a new image and flips the superblock.
func (fs *FS) commit() error {
	name := fs.opts.codec.Name()
	if len(name) > sbCodecMax {
		return engine.ErrInval
	}

	raw, err := fs.opts.codec.Marshal(fs.root)
	if err != nil {
		return engine.ErrInval
	}
	payload, comp, err := compress(raw, fs.opts.compression)
	if err != nil {
		return engine.ErrNoMem
	}

	bs := int(fs.cfg.BlockSize)
	n := (len(payload) + bs - 1) / bs
	if n > maxImageBlocks(fs.cfg.BlockSize) {
		return engine.ErrNoSpc
	}
	blocks, err := fs.alloc.alloc(n)
	if err != nil {
		return err
	}

	for i, b := range blocks {
		chunk := payload[i*bs : min(len(payload), (i+1)*bs)]
		if err := fs.writeBlock(b, chunk); err != nil {
			fs.alloc.free(blocks)
			return err
		}
	}

	var seq uint64 = 1
	if fs.sb != nil {
		seq = fs.sb.seq + 1
	}
	sb := &superblock{
		seq:         seq,
		compression: comp,
		codec:       name,
		imageLen:    uint32(len(payload)),
		rawLen:      uint32(len(raw)),
		imageCRC:    hash.CRC32C(payload),
		blockSize:   fs.cfg.BlockSize,
		blockCount:  fs.cfg.BlockCount,
		image:       blocks,
	}

	next := 1 - fs.active
	if err := fs.writeBlock(superblockPair[next], sb.marshal()); err != nil {
		fs.alloc.free(blocks)
		return err
	}
	if err := fs.cfg.Device.Sync(); err != nil {
		fs.alloc.free(blocks)
		return ioErr(err)
	}

	if fs.sb != nil {
		fs.alloc.free(fs.sb.image)
	}
	fs.sb = sb
	fs.active = next
	return nil
}

// update runs fn against the live tree and commits the result. fn returns
// the data blocks that become garbage once the commit is durable. Any
// failure restores the previous tree.
func (fs *FS) update(fn func() ([]uint32, error)) error {
	snapshot := fs.root.clone()

	garbage, err := fn()
	if err == nil {
		err = fs.commit()
	}
	if err != nil {
		fs.root = snapshot
		fs.rebuildAlloc()
		return err
	}

	fs.alloc.free(garbage)
	return nil
}

func (fs *FS) resolve(path string) (*node, []string, error) {
	if !fs.mounted {
		return nil, nil, engine.ErrInval
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, nil, err
	}
	n, err := lookup(fs.root, parts)
	return n, parts, err
}

// OpenFile implements engine.FS.
func (fs *FS) OpenFile(path string, flags engine.OpenFlag) (engine.File, error) {
	if !fs.mounted {
		return nil, engine.ErrInval
	}
	if flags&engine.OpenAccessMode == 0 {
		return nil, engine.ErrInval
	}

	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, engine.ErrIsDir
	}
	parent, name, err := lookupParent(fs.root, parts)
	if err != nil {
		return nil, err
	}

	n := parent.child(name)
	switch {
	case n != nil && n.Dir:
		return nil, engine.ErrIsDir
	case n != nil && flags&engine.OpenCreate != 0 && flags&engine.OpenExclusive != 0:
		return nil, engine.ErrExist
	case n == nil && flags&engine.OpenCreate == 0:
		return nil, engine.ErrNoEnt
	case n == nil:
		n = &node{Name: name}
		err := fs.update(func() ([]uint32, error) {
			parent.insert(n)
			return nil, nil
		})
		if err != nil {
			return nil, err
		}
	}

	f := &file{fs: fs, path: joinPath(parts), flags: flags}
	if flags&engine.OpenTruncate != 0 && flags.Writable() {
		f.dirty = n.Size > 0
	} else if f.data, err = fs.readData(n); err != nil {
		return nil, err
	}

	fs.files[f] = struct{}{}
	return f, nil
}

func (fs *FS) readData(n *node) ([]byte, error) {
	data := make([]byte, 0, n.Size)
	bs := int64(fs.cfg.BlockSize)
	for _, b := range n.Blocks {
		want := min(bs, n.Size-int64(len(data)))
		chunk, err := fs.readBlock(b, int(want))
		if err != nil {
			return nil, err
		}
		data = append(data, chunk...)
	}
	return data, nil
}

// flush writes the contents of f into fresh blocks and commits.
func (fs *FS) flush(f *file) error {
	parts, _ := splitPath(f.path)
	n, err := lookup(fs.root, parts)
	if err != nil || n.Dir {
		// Removed while open; the data has nowhere to go.
		return nil
	}

	bs := int(fs.cfg.BlockSize)
	blocks, err := fs.alloc.alloc((len(f.data) + bs - 1) / bs)
	if err != nil {
		return err
	}
	for i, b := range blocks {
		if err := fs.writeBlock(b, f.data[i*bs:min(len(f.data), (i+1)*bs)]); err != nil {
			fs.alloc.free(blocks)
			return err
		}
	}

	return fs.update(func() ([]uint32, error) {
		old := n.Blocks
		n.Blocks = blocks
		n.Size = int64(len(f.data))
		return old, nil
	})
}

// Stat implements engine.FS.
func (fs *FS) Stat(path string) (engine.Info, error) {
	n, _, err := fs.resolve(path)
	if err != nil {
		return engine.Info{}, err
	}
	return n.info(), nil
}

// GetAttr implements engine.FS.
func (fs *FS) GetAttr(path string, typ uint8, buf []byte) (int, error) {
	n, _, err := fs.resolve(path)
	if err != nil {
		return 0, err
	}
	v, ok := n.Attrs[typ]
	if !ok {
		return 0, engine.ErrNoAttr
	}
	copy(buf, v)
	return len(v), nil
}

// SetAttr implements engine.FS.
func (fs *FS) SetAttr(path string, typ uint8, buf []byte) error {
	if len(buf) > attrMax {
		return engine.ErrNoSpc
	}
	n, _, err := fs.resolve(path)
	if err != nil {
		return err
	}
	return fs.update(func() ([]uint32, error) {
		if n.Attrs == nil {
			n.Attrs = make(map[uint8][]byte)
		}
		n.Attrs[typ] = append([]byte(nil), buf...)
		return nil, nil
	})
}

// OpenDir implements engine.FS.
func (fs *FS) OpenDir(path string) (engine.Dir, error) {
	n, _, err := fs.resolve(path)
	if err != nil {
		return nil, err
	}
	if !n.Dir {
		return nil, engine.ErrNotDir
	}

	entries := make([]engine.Info, 0, len(n.Children)+2)
	entries = append(entries,
		engine.Info{Type: engine.TypeDir, Name: "."},
		engine.Info{Type: engine.TypeDir, Name: ".."},
	)
	for _, c := range n.Children {
		entries = append(entries, c.info())
	}
	return &dir{entries: entries}, nil
}

// Remove implements engine.FS.
func (fs *FS) Remove(path string) error {
	if !fs.mounted {
		return engine.ErrInval
	}
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	parent, name, err := lookupParent(fs.root, parts)
	if err != nil {
		return err
	}
	n := parent.child(name)
	if n == nil {
		return engine.ErrNoEnt
	}
	if n.Dir && len(n.Children) > 0 {
		return engine.ErrNotEmpty
	}

	return fs.update(func() ([]uint32, error) {
		parent.remove(name)
		return n.Blocks, nil
	})
}

// Rename implements engine.FS.
func (fs *FS) Rename(oldPath, newPath string) error {
	if !fs.mounted {
		return engine.ErrInval
	}
	op, err := splitPath(oldPath)
	if err != nil {
		return err
	}
	np, err := splitPath(newPath)
	if err != nil {
		return err
	}

	oldParent, oldName, err := lookupParent(fs.root, op)
	if err != nil {
		return err
	}
	n := oldParent.child(oldName)
	if n == nil {
		return engine.ErrNoEnt
	}
	newParent, newName, err := lookupParent(fs.root, np)
	if err != nil {
		return err
	}

	from, to := joinPath(op), joinPath(np)
	if from == to {
		return nil
	}
	if n.Dir && strings.HasPrefix(to, from+"/") {
		return engine.ErrInval
	}

	existing := newParent.child(newName)
	if existing != nil {
		switch {
		case n.Dir && !existing.Dir:
			return engine.ErrNotDir
		case !n.Dir && existing.Dir:
			return engine.ErrIsDir
		case existing.Dir && len(existing.Children) > 0:
			return engine.ErrNotEmpty
		}
	}

	err = fs.update(func() ([]uint32, error) {
		var garbage []uint32
		if existing != nil {
			newParent.remove(newName)
			garbage = existing.Blocks
		}
		oldParent.remove(oldName)
		n.Name = newName
		newParent.insert(n)
		return garbage, nil
	})
	if err != nil {
		return err
	}

	for f := range fs.files {
		switch {
		case f.path == from:
			f.path = to
		case strings.HasPrefix(f.path, from+"/"):
			f.path = to + strings.TrimPrefix(f.path, from)
		}
	}
	return nil
}

// Mkdir implements engine.FS.
func (fs *FS) Mkdir(path string) error {
	if !fs.mounted {
		return engine.ErrInval
	}
	parts, err := splitPath(path)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return engine.ErrExist
	}
	parent, name, err := lookupParent(fs.root, parts)
	if err != nil {
		return err
	}
	if parent.child(name) != nil {
		return engine.ErrExist
	}

	return fs.update(func() ([]uint32, error) {
		parent.insert(&node{Name: name, Dir: true})
		return nil, nil
	})
}

// Size implements engine.FS. Only blocks holding file data are counted.
func (fs *FS) Size() (int64, error) {
	if !fs.mounted {
		return 0, engine.ErrInval
	}
	var blocks int64
	fs.root.walk(func(n *node) {
		blocks += int64(len(n.Blocks))
	})
	return blocks, nil
}
