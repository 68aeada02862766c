package simfs

import "github.com/hupe1980/flashvfs/engine"

// dir iterates a snapshot of a directory taken at open time.
type dir struct {
	entries []engine.Info
	pos     int
	closed  bool
}

func (d *dir) Read() (engine.Info, bool, error) {
	if d.closed {
		return engine.Info{}, false, engine.ErrBadF
	}
	if d.pos >= len(d.entries) {
		return engine.Info{}, false, nil
	}
	info := d.entries[d.pos]
	d.pos++
	return info, true, nil
}

func (d *dir) Rewind() error {
	if d.closed {
		return engine.ErrBadF
	}
	d.pos = 0
	return nil
}

func (d *dir) Close() error {
	if d.closed {
		return engine.ErrBadF
	}
	d.closed = true
	return nil
}
