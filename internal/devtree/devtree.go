// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package devtree provides path, property, and register range lookup over a
// flattened device tree.
package devtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"

	"github.com/platinasystems/fdt"
)

const magic = 0xd00dfeed

var (
	ErrNotFound = errors.New("not found")
	ErrFormat   = errors.New("malformed")

	// ErrAmbiguous also matches ErrNotFound.
	ErrAmbiguous = fmt.Errorf("ambiguous, %w", ErrNotFound)
)

type Tree struct {
	fdt *fdt.Tree
}

// Node is a tree node along with the trail of ancestors used to reach it.
type Node struct {
	*fdt.Node
	tree   *Tree
	parent *Node
}

// Range is one (address, size) pair of a node's "reg" property translated to
// the root address space.
type Range struct {
	Addr uint64
	Size uint64
}

func (r Range) String() string {
	return fmt.Sprintf("%#x+%#x", r.Addr, r.Size)
}

// New wraps an already parsed or hand built tree.
func New(t *fdt.Tree) *Tree { return &Tree{t} }

// Parse a device tree blob with the given cell byte order.
func Parse(b []byte, littleEndian bool) (*Tree, error) {
	t := &fdt.Tree{Debug: false, IsLittleEndian: littleEndian}
	if len(b) < 40 {
		return nil, fmt.Errorf("devtree: %w: short header", ErrFormat)
	}
	if m := binary.BigEndian.Uint32(b); m != magic {
		return nil, fmt.Errorf("devtree: %w: bad magic %#x", ErrFormat, m)
	}
	if err := t.Parse(b); err != nil {
		return nil, fmt.Errorf("devtree: %w: %v", ErrFormat, err)
	}
	if t.RootNode == nil {
		return nil, fmt.Errorf("devtree: %w: no root", ErrFormat)
	}
	return New(t), nil
}

// Load parses the named device tree blob.
func Load(fn string, littleEndian bool) (*Tree, error) {
	b, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, err
	}
	t, err := Parse(b, littleEndian)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return t, nil
}

func (t *Tree) ByteOrder() binary.ByteOrder {
	if t.fdt.IsLittleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (t *Tree) Root() *Node {
	return &Node{Node: t.fdt.RootNode, tree: t}
}

// Node returns the node at the given absolute path. Path components match
// either the full node name or the name preceding its "@unit-address".
func (t *Tree) Node(path string) (*Node, error) {
	if t == nil || t.fdt == nil || t.fdt.RootNode == nil {
		return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	n := t.Root()
	for _, name := range strings.Split(path, "/") {
		if len(name) == 0 {
			continue
		}
		c, err := n.child(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		n = c
	}
	return n, nil
}

// child returns the exact match or else the only "name@unit" child.
func (n *Node) child(name string) (*Node, error) {
	if c, found := n.Children[name]; found {
		return &Node{Node: c, tree: n.tree, parent: n}, nil
	}
	var match []string
	for k := range n.Children {
		if i := strings.IndexByte(k, '@'); i > 0 && k[:i] == name {
			match = append(match, k)
		}
	}
	switch len(match) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &Node{Node: n.Children[match[0]], tree: n.tree, parent: n},
			nil
	}
	sort.Strings(match)
	return nil, fmt.Errorf("%s: %w: %s", name, ErrAmbiguous,
		strings.Join(match, ", "))
}

func (n *Node) Parent() *Node { return n.parent }

func (n *Node) Path() string {
	if n.parent == nil {
		return "/"
	}
	if n.parent.parent == nil {
		return "/" + n.Name
	}
	return n.parent.Path() + "/" + n.Name
}

func (n *Node) ByteOrder() binary.ByteOrder { return n.tree.ByteOrder() }

func (n *Node) Prop(name string) ([]byte, bool) {
	b, found := n.Properties[name]
	return b, found
}

func (n *Node) Uint32(name string) (uint32, bool) {
	b, found := n.Properties[name]
	if !found || len(b) < 4 {
		return 0, false
	}
	return n.tree.fdt.PropUint32(b), true
}

// Uint32s returns the property as a cell array; its length must be a
// multiple of 4.
func (n *Node) Uint32s(name string) ([]uint32, error) {
	b, found := n.Properties[name]
	if !found {
		return nil, fmt.Errorf("%s: %s: %w", n.Path(), name, ErrNotFound)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%s: %s: %w: length %d", n.Path(), name,
			ErrFormat, len(b))
	}
	return n.tree.fdt.PropUint32Slice(b), nil
}

func (n *Node) Strings(name string) []string {
	b, found := n.Properties[name]
	if !found || len(b) == 0 {
		return nil
	}
	return n.tree.fdt.PropStringSlice(bytes.TrimRight(b, "\x00"))
}

func (n *Node) cells(name string, dflt int) int {
	if v, found := n.Uint32(name); found {
		return int(v)
	}
	return dflt
}

func (n *Node) addressCells() int { return n.cells("#address-cells", 2) }
func (n *Node) sizeCells() int    { return n.cells("#size-cells", 1) }

func (n *Node) number(v []uint32) (x uint64) {
	for _, c := range v {
		x = x<<32 | uint64(c)
	}
	return
}

// Reg returns the i'th "reg" range of the node, translated through each
// ancestor's "ranges".
func (n *Node) Reg(i int) (Range, error) {
	if n.parent == nil {
		return Range{}, fmt.Errorf("/: reg: %w", ErrNotFound)
	}
	v, err := n.Uint32s("reg")
	if err != nil {
		return Range{}, err
	}
	ac, sc := n.parent.addressCells(), n.parent.sizeCells()
	stride := ac + sc
	if stride == 0 || len(v)%stride != 0 {
		return Range{}, fmt.Errorf("%s: reg: %w: %d cells", n.Path(),
			ErrFormat, len(v))
	}
	if i < 0 || i >= len(v)/stride {
		return Range{}, fmt.Errorf("%s: reg[%d]: %w", n.Path(), i,
			ErrNotFound)
	}
	e := v[i*stride : (i+1)*stride]
	r := Range{Addr: n.number(e[:ac]), Size: n.number(e[ac:])}
	for p := n.parent; p.parent != nil; p = p.parent {
		if r.Addr, err = p.translate(r.Addr); err != nil {
			return Range{}, err
		}
	}
	return r, nil
}

// translate a child bus address to the parent's address space. A missing or
// empty "ranges" is an identity mapping.
func (n *Node) translate(addr uint64) (uint64, error) {
	b, found := n.Properties["ranges"]
	if !found || len(b) == 0 {
		return addr, nil
	}
	v, err := n.Uint32s("ranges")
	if err != nil {
		return 0, err
	}
	cac, csc := n.addressCells(), n.sizeCells()
	pac := n.parent.addressCells()
	stride := cac + pac + csc
	if stride == 0 || len(v)%stride != 0 {
		return 0, fmt.Errorf("%s: ranges: %w: %d cells", n.Path(),
			ErrFormat, len(v))
	}
	for i := 0; i < len(v); i += stride {
		child := n.number(v[i : i+cac])
		parent := n.number(v[i+cac : i+cac+pac])
		size := n.number(v[i+cac+pac : i+stride])
		if addr >= child && addr-child < size {
			return parent + (addr - child), nil
		}
	}
	return 0, fmt.Errorf("%s: ranges: %#x: %w", n.Path(), addr, ErrNotFound)
}
