package simfs

import (
	"sort"
	"strings"

	"github.com/hupe1980/flashvfs/engine"
)

// nameMax is the longest accepted entry name.
const nameMax = 255

// node is one entry of the metadata tree. Children are kept sorted by name.
type node struct {
	Name     string           `json:"n"`
	Dir      bool             `json:"d,omitempty"`
	Size     int64            `json:"s,omitempty"`
	Blocks   []uint32         `json:"b,omitempty"`
	Attrs    map[uint8][]byte `json:"a,omitempty"`
	Children []*node          `json:"c,omitempty"`
}

func newRoot() *node {
	return &node{Name: "/", Dir: true}
}

func (n *node) info() engine.Info {
	if n.Dir {
		return engine.Info{Type: engine.TypeDir, Name: n.Name}
	}
	return engine.Info{Type: engine.TypeReg, Size: n.Size, Name: n.Name}
}

func (n *node) find(name string) (int, bool) {
	i := sort.Search(len(n.Children), func(i int) bool { return n.Children[i].Name >= name })
	return i, i < len(n.Children) && n.Children[i].Name == name
}

func (n *node) child(name string) *node {
	if i, ok := n.find(name); ok {
		return n.Children[i]
	}
	return nil
}

func (n *node) insert(c *node) {
	i, _ := n.find(c.Name)
	n.Children = append(n.Children, nil)
	copy(n.Children[i+1:], n.Children[i:])
	n.Children[i] = c
}

func (n *node) remove(name string) {
	if i, ok := n.find(name); ok {
		n.Children = append(n.Children[:i], n.Children[i+1:]...)
	}
}

// clone deep-copies the subtree so a failed commit can be rolled back.
func (n *node) clone() *node {
	c := *n
	if n.Blocks != nil {
		c.Blocks = append([]uint32(nil), n.Blocks...)
	}
	if n.Attrs != nil {
		c.Attrs = make(map[uint8][]byte, len(n.Attrs))
		for k, v := range n.Attrs {
			c.Attrs[k] = append([]byte(nil), v...)
		}
	}
	if n.Children != nil {
		c.Children = make([]*node, len(n.Children))
		for i, ch := range n.Children {
			c.Children[i] = ch.clone()
		}
	}
	return &c
}

// walk visits every node of the subtree.
func (n *node) walk(fn func(*node)) {
	fn(n)
	for _, c := range n.Children {
		c.walk(fn)
	}
}

// splitPath cleans p into its components. "." is dropped and ".." pops,
// clamping at the root.
func splitPath(p string) ([]string, error) {
	var parts []string
	for _, s := range strings.Split(p, "/") {
		switch s {
		case "", ".":
		case "..":
			if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		default:
			if len(s) > nameMax {
				return nil, engine.ErrNameTooLong
			}
			parts = append(parts, s)
		}
	}
	return parts, nil
}

// lookup resolves parts starting at root.
func lookup(root *node, parts []string) (*node, error) {
	n := root
	for _, name := range parts {
		if !n.Dir {
			return nil, engine.ErrNotDir
		}
		if n = n.child(name); n == nil {
			return nil, engine.ErrNoEnt
		}
	}
	return n, nil
}

// lookupParent resolves the directory that holds the last component.
func lookupParent(root *node, parts []string) (*node, string, error) {
	if len(parts) == 0 {
		return nil, "", engine.ErrInval
	}
	dir, err := lookup(root, parts[:len(parts)-1])
	if err != nil {
		return nil, "", err
	}
	if !dir.Dir {
		return nil, "", engine.ErrNotDir
	}
	return dir, parts[len(parts)-1], nil
}

func joinPath(parts []string) string {
	return "/" + strings.Join(parts, "/")
}
