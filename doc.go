// Package flashvfs exposes embedded flash filesystems through a POSIX-like
// call surface.
//
// A Registry holds a fixed number of volumes. Each volume runs one engine
// instance (engine/simfs by default) on one flash partition and hands out
// small integer descriptors for open files, much like a kernel file table.
//
// # Quick Start
//
//	part := flash.Partition{Label: "data", Chip: flash.NewMemoryChip(1<<20, 4096, 256), Size: 1 << 20}
//	reg := flashvfs.New(flashvfs.WithPartition(part))
//	defer reg.Close()
//
//	vol, _ := reg.Register(flashvfs.VolumeConfig{
//	    Label:               "data",
//	    BasePath:            "/data",
//	    FormatIfMountFailed: true,
//	})
//
//	fd, _ := vol.Open("/hello.txt", os.O_WRONLY|os.O_CREATE, 0)
//	vol.Write(fd, []byte("hello"))
//	vol.Close(fd)
//
// # Descriptors
//
// Descriptors are dense: the lowest free slot is reused first. A path that
// has an open descriptor cannot be unlinked or renamed (ErrBusy). With
// VolumeConfig.HashOnly only a 32-bit hash of each open path is kept, which
// saves memory but lets two different paths with the same hash look alike.
//
// # Errors
//
// Every call returns *fs.PathError (or *os.LinkError for Rename) wrapping a
// syscall.Errno, so errors.Is(err, fs.ErrNotExist) and friends work.
// Registry management calls return the sentinel errors of this package.
//
// # Formatting
//
// Registry.Format erases and formats a partition. Mounted volumes lose all
// open descriptors and are mounted again afterwards.
package flashvfs
