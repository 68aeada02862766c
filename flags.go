package flashvfs

import (
	"os"

	"github.com/hupe1980/flashvfs/engine"
)

// accessMode masks the access mode bits of os open flags.
const accessMode = os.O_RDONLY | os.O_WRONLY | os.O_RDWR

// engineFlags converts os open flags to engine flags. The access mode is
// compared as a whole; the remaining bits are tested one by one. An access
// mode that matches none of the three yields no access bits, which the engine
// rejects.
func engineFlags(flags int) engine.OpenFlag {
	var f engine.OpenFlag
	switch flags & accessMode {
	case os.O_RDONLY:
		f = engine.OpenReadOnly
	case os.O_WRONLY:
		f = engine.OpenWriteOnly
	case os.O_RDWR:
		f = engine.OpenReadWrite
	}

	if flags&os.O_APPEND != 0 {
		f |= engine.OpenAppend
	}
	if flags&os.O_EXCL != 0 {
		f |= engine.OpenExclusive
	}
	if flags&os.O_CREATE != 0 {
		f |= engine.OpenCreate
	}
	if flags&os.O_TRUNC != 0 {
		f |= engine.OpenTruncate
	}
	return f
}
