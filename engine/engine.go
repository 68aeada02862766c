package engine

import (
	"errors"
	"fmt"
)

// OpenFlag selects the access mode and behavior of FS.OpenFile.
type OpenFlag uint32

const (
	OpenReadOnly  OpenFlag = 0x1 // Open a file as read only
	OpenWriteOnly OpenFlag = 0x2 // Open a file as write only
	OpenReadWrite OpenFlag = 0x3 // Open a file as read and write
	OpenCreate    OpenFlag = 0x0100
	OpenExclusive OpenFlag = 0x0200
	OpenTruncate  OpenFlag = 0x0400
	OpenAppend    OpenFlag = 0x0800

	// OpenAccessMode masks the access mode bits.
	OpenAccessMode OpenFlag = 0x3
)

// Readable reports whether the access mode permits reading.
func (f OpenFlag) Readable() bool { return f&OpenReadOnly != 0 }

// Writable reports whether the access mode permits writing.
func (f OpenFlag) Writable() bool { return f&OpenWriteOnly != 0 }

// Type distinguishes regular files from directories.
type Type uint8

const (
	TypeReg Type = 1
	TypeDir Type = 2
)

// Info describes one directory entry.
type Info struct {
	Type Type
	Size int64
	Name string
}

// IsDir reports whether the entry is a directory.
func (i Info) IsDir() bool { return i.Type == TypeDir }

// BlockDevice is the raw storage an engine runs on. Offsets are relative to
// the start of block; every call stays inside one block.
type BlockDevice interface {
	Read(block, off uint32, p []byte) error
	Prog(block, off uint32, p []byte) error
	Erase(block uint32) error
	Sync() error
}

// Config carries the device geometry and tuning knobs handed to the engine.
type Config struct {
	Device BlockDevice

	ReadSize      uint32
	ProgSize      uint32
	BlockSize     uint32
	BlockCount    uint32
	CacheSize     uint32
	LookaheadSize uint32
	// BlockCycles is the erase-cycle budget before metadata is relocated;
	// -1 disables wear levelling.
	BlockCycles int32
}

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("engine: invalid config")

// Validate checks the geometry invariants every engine relies on.
func (c Config) Validate() error {
	switch {
	case c.Device == nil:
		return fmt.Errorf("%w: no block device", ErrInvalidConfig)
	case c.ReadSize == 0 || c.ProgSize == 0 || c.BlockSize == 0:
		return fmt.Errorf("%w: zero read/prog/block size", ErrInvalidConfig)
	case c.BlockSize%c.ReadSize != 0 || c.BlockSize%c.ProgSize != 0:
		return fmt.Errorf("%w: block size %d not a multiple of read %d / prog %d",
			ErrInvalidConfig, c.BlockSize, c.ReadSize, c.ProgSize)
	case c.BlockCount < 2:
		return fmt.Errorf("%w: need at least 2 blocks, have %d", ErrInvalidConfig, c.BlockCount)
	case c.CacheSize != 0 && (c.CacheSize%c.ReadSize != 0 || c.CacheSize%c.ProgSize != 0):
		return fmt.Errorf("%w: cache size %d not a multiple of read/prog size", ErrInvalidConfig, c.CacheSize)
	}
	return nil
}

// FS is one engine instance. Implementations are not required to be safe for
// concurrent use; flashvfs serializes every call per volume.
type FS interface {
	Format(cfg Config) error
	Mount(cfg Config) error
	Unmount() error

	OpenFile(path string, flags OpenFlag) (File, error)
	Stat(path string) (Info, error)
	// GetAttr copies the attribute into buf and returns its full length.
	GetAttr(path string, typ uint8, buf []byte) (int, error)
	SetAttr(path string, typ uint8, buf []byte) error

	OpenDir(path string) (Dir, error)
	Remove(path string) error
	Rename(oldPath, newPath string) error
	Mkdir(path string) error

	// Size returns the number of allocated blocks.
	Size() (int64, error)
}

// File is an open engine file.
type File interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Seek(off int64, whence int) (int64, error)
	Size() (int64, error)
	Sync() error
	Close() error
}

// Dir is an open engine directory. Engines yield "." and ".." like POSIX.
type Dir interface {
	// Read returns the next entry; ok is false at the end of the directory.
	Read() (info Info, ok bool, err error)
	Rewind() error
	Close() error
}

// Factory creates a fresh, unmounted engine instance.
type Factory func() FS
