// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/pmgr/internal/devtree"
)

const (
	FlagVirtual = 0x10

	NameLen = 0x10

	// Record sizes of the "devices" and "ps-regs" properties.
	DomainSize = 0x30
	PSRegSize  = 12
)

// Byte offsets of a "devices" record.
const (
	offFlags      = 0
	offID1        = 3
	offParents    = 4
	offAddrOffset = 10
	offPSReg      = 11
	offID2        = 26
	offName       = 32
)

// IDWidth is the catalog wide domain id encoding.
type IDWidth int

const (
	Wide IDWidth = iota
	Narrow
)

func (w IDWidth) String() string {
	if w == Narrow {
		return "8-bit"
	}
	return "16-bit"
}

type Domain struct {
	Name    string
	ID      uint16
	Flags   uint8
	Parents [2]uint16
	// AddrOffset is in units of 8 bytes from the selected ps-reg.
	AddrOffset uint8
	PSReg      uint8
}

func (d *Domain) Virtual() bool { return d.Flags&FlagVirtual != 0 }

func (d *Domain) String() string { return d.Name }

// PSReg locates a block of domain control registers as a byte offset into
// the n'th "reg" range of the power manager node.
type PSReg struct {
	Reg    uint32 `yaml:"reg"`
	Offset uint32 `yaml:"offset"`
	Mask   uint32 `yaml:"mask"`
}

type Catalog struct {
	Width   IDWidth
	Domains []Domain
	PSRegs  []PSReg
}

// LoadCatalog decodes the "devices" property of the power manager node. If
// psregs is nil, those are also decoded from the node's "ps-regs".
func LoadCatalog(n *devtree.Node, psregs []PSReg) (*Catalog, error) {
	var err error
	if psregs == nil {
		if psregs, err = decodePSRegs(n); err != nil {
			return nil, err
		}
	}
	b, found := n.Prop("devices")
	if !found || len(b) == 0 {
		return nil, fmt.Errorf("%w: %s: devices: missing", ErrConfig,
			n.Path())
	}
	if len(b)%DomainSize != 0 {
		return nil, fmt.Errorf("%w: %s: devices: length %d",
			ErrConfig, n.Path(), len(b))
	}
	c := &Catalog{
		Width:   idWidth(b),
		Domains: make([]Domain, len(b)/DomainSize),
		PSRegs:  psregs,
	}
	order := n.ByteOrder()
	for i := range c.Domains {
		c.Domains[i] = c.decode(order, b[i*DomainSize:(i+1)*DomainSize])
	}
	return c, nil
}

func decodePSRegs(n *devtree.Node) ([]PSReg, error) {
	v, err := n.Uint32s("ps-regs")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if len(v) == 0 || len(v)%(PSRegSize/4) != 0 {
		return nil, fmt.Errorf("%w: %s: ps-regs: length %d", ErrConfig,
			n.Path(), 4*len(v))
	}
	psregs := make([]PSReg, 0, len(v)/3)
	for i := 0; i < len(v); i += 3 {
		psregs = append(psregs, PSReg{v[i], v[i+1], v[i+2]})
	}
	return psregs, nil
}

// idWidth guesses narrow ids if the first two records differ in their
// narrow id field; this misfires if those happen to collide.
func idWidth(b []byte) IDWidth {
	if len(b) >= 2*DomainSize && b[offID1] != b[DomainSize+offID1] {
		return Narrow
	}
	return Wide
}

func (c *Catalog) decode(order binary.ByteOrder, b []byte) Domain {
	d := Domain{
		Flags:      b[offFlags],
		AddrOffset: b[offAddrOffset],
		PSReg:      b[offPSReg],
	}
	name := b[offName : offName+NameLen]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	d.Name = string(name)
	p := b[offParents:]
	if c.Width == Narrow {
		d.ID = uint16(b[offID1])
		d.Parents = [2]uint16{uint16(p[0]), uint16(p[1])}
	} else {
		d.ID = order.Uint16(b[offID2:])
		d.Parents = [2]uint16{order.Uint16(p), order.Uint16(p[2:])}
	}
	return d
}

// ByID returns the first domain with the given id. Id 0 means "none" and is
// never found.
func (c *Catalog) ByID(id uint16) (*Domain, bool) {
	if c == nil || id == 0 {
		return nil, false
	}
	for i := range c.Domains {
		if c.Domains[i].ID == id {
			return &c.Domains[i], true
		}
	}
	return nil, false
}

// ByName matches at most NameLen bytes of name.
func (c *Catalog) ByName(name string) (*Domain, bool) {
	if c == nil {
		return nil, false
	}
	if len(name) > NameLen {
		name = name[:NameLen]
	}
	for i := range c.Domains {
		if c.Domains[i].Name == name {
			return &c.Domains[i], true
		}
	}
	return nil, false
}
