package flashvfs

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"time"
)

// MTimeMode selects how modification times are kept.
type MTimeMode string

const (
	// MTimeOff stores no modification times.
	MTimeOff MTimeMode = "off"
	// MTimeSeconds stores the wall clock in Unix seconds.
	MTimeSeconds MTimeMode = "seconds"
	// MTimeNonce stores a counter that changes on every modification. It
	// suits devices without a real-time clock.
	MTimeNonce MTimeMode = "nonce"
)

// mtimeAttr is the engine attribute id holding the modification time as a
// little-endian int64.
const mtimeAttr uint8 = 't'

func (m MTimeMode) valid() bool {
	switch m {
	case "", MTimeOff, MTimeSeconds, MTimeNonce:
		return true
	}
	return false
}

func (m MTimeMode) enabled() bool {
	return m == MTimeSeconds || m == MTimeNonce
}

// mtimeLocked returns the stored modification time of path. A missing or
// unreadable attribute reads as 0.
func (v *Volume) mtimeLocked(path string) int64 {
	var buf [8]byte
	n, err := v.fs.GetAttr(path, mtimeAttr, buf[:])
	if err != nil {
		v.log.InfoContext(context.Background(), "no mtime attribute", v.log.errorAttrs(err, "path", path)...)
		return 0
	}
	if n != len(buf) {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(buf[:]))
}

func (v *Volume) setMTimeLocked(path string, t int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(t))
	return v.fs.SetAttr(path, mtimeAttr, buf[:])
}

// nextMTimeLocked computes the value stamped on a modification.
func (v *Volume) nextMTimeLocked(path string) int64 {
	if v.cfg.MTime == MTimeSeconds {
		return v.clock().Unix()
	}

	t := v.mtimeLocked(path)
	if t == 0 {
		t = int64(rand.Uint32())
	} else {
		t++
	}
	if t == 0 {
		t = 1
	}
	return t
}

// Utime sets the modification time of path. A nil t stamps the current time
// in seconds mode and the next nonce in nonce mode.
func (v *Volume) Utime(path string, t *time.Time) error {
	path = cleanPath(path)
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkMountedLocked("utime", path); err != nil {
		return err
	}
	if !v.cfg.MTime.enabled() {
		return translateError("utime", path, fmt.Errorf("%w: mtime disabled on %s", ErrNotSupported, v.cfg.Label))
	}

	var value int64
	if t != nil {
		value = t.Unix()
	} else {
		value = v.nextMTimeLocked(path)
	}
	if err := v.setMTimeLocked(path, value); err != nil {
		v.log.LogIOError(context.Background(), "utime", path, err)
		return translateError("utime", path, err)
	}
	return nil
}
