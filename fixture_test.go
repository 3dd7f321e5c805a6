// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"encoding/binary"
	"testing"

	"github.com/platinasystems/fdt"
	"github.com/platinasystems/pmgr/internal/devtree"
	"github.com/platinasystems/pmgr/internal/mmio"
	"github.com/stretchr/testify/require"
)

// Physical bases of the pmgr node's "reg" ranges.
const (
	reg0 = 0x23b700000
	reg1 = 0x23c000000
	reg2 = 0x23d000000
)

type dom struct {
	name    string
	id      uint16
	parents [2]uint16
	virtual bool
	psreg   uint8
	off     uint8
}

func le(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, c := range v {
		binary.LittleEndian.PutUint32(b[4*i:], c)
	}
	return b
}

func refs(v ...Ref) []byte {
	w := make([]uint32, len(v))
	for i, r := range v {
		w[i] = uint32(r)
	}
	return le(w...)
}

// devices encodes "devices" records; wide records leave the narrow id zero
// so the width heuristic picks 16-bit ids.
func devices(wide bool, doms ...dom) []byte {
	b := make([]byte, 0, len(doms)*DomainSize)
	for _, d := range doms {
		r := make([]byte, DomainSize)
		if d.virtual {
			r[offFlags] = FlagVirtual
		}
		if wide {
			binary.LittleEndian.PutUint16(r[offID2:], d.id)
			binary.LittleEndian.PutUint16(r[offParents:], d.parents[0])
			binary.LittleEndian.PutUint16(r[offParents+2:], d.parents[1])
		} else {
			r[offID1] = uint8(d.id)
			r[offParents] = uint8(d.parents[0])
			r[offParents+1] = uint8(d.parents[1])
		}
		r[offAddrOffset] = d.off
		r[offPSReg] = d.psreg
		copy(r[offName:offName+NameLen], d.name)
		b = append(b, r...)
	}
	return b
}

type fixture struct {
	root, armio, pmgr, usb *fdt.Node
}

func newFixture(devs []byte) *fixture {
	f := &fixture{}
	f.pmgr = &fdt.Node{
		Name: "pmgr",
		Properties: map[string][]byte{
			"reg": le(
				0x2, 0x3b700000, 0, 0x100000,
				0x2, 0x3c000000, 0, 0x100000,
				0x2, 0x3d000000, 0, 0x100000),
			"ps-regs": le(
				0, 0x000, 0xffffffff,
				0, 0x100, 0,
				1, 0x040, 0),
			"devices": devs,
		},
	}
	f.usb = &fdt.Node{
		Name:       "usb-drd0",
		Properties: map[string][]byte{},
	}
	f.armio = &fdt.Node{
		Name: "arm-io",
		Properties: map[string][]byte{
			"#address-cells": le(2),
			"#size-cells":    le(2),
			"compatible":     []byte("arm-io,t8103\x00arm-io\x00"),
		},
		Children: map[string]*fdt.Node{
			"pmgr":     f.pmgr,
			"usb-drd0": f.usb,
		},
	}
	f.root = &fdt.Node{
		Name: "/",
		Properties: map[string][]byte{
			"#address-cells": le(2),
			"#size-cells":    le(2),
		},
		Children: map[string]*fdt.Node{"arm-io": f.armio},
	}
	return f
}

func (f *fixture) tree() *devtree.Tree {
	return devtree.New(&fdt.Tree{IsLittleEndian: true, RootNode: f.root})
}

// follow latches writes with the actual state field tracking the target.
func follow(addr uint64, v uint32) uint32 {
	return v&^MaskPSActual | (v&MaskPSTarget)<<shiftPSActual
}

// stuck follows writes except at the given addresses, whose actual state
// never changes.
func stuck(addrs ...uint64) func(uint64, uint32) uint32 {
	return func(addr uint64, v uint32) uint32 {
		for _, a := range addrs {
			if a == addr {
				return v
			}
		}
		return follow(addr, v)
	}
}

var testConfig = Config{PollTries: 20, SkipBoot: true}

func (f *fixture) manager(t *testing.T, cfg Config) (*Manager, *mmio.Memory) {
	t.Helper()
	bus := mmio.NewMemory()
	bus.OnWrite = follow
	m, err := Init(f.tree(), bus, cfg)
	require.NoError(t, err)
	bus.Reset()
	return m, bus
}

// chain is the two level catalog A <- B plus unrelated C.
var chain = []dom{
	{name: "A", id: 1},
	{name: "B", id: 2, parents: [2]uint16{1, 0}, off: 1},
	{name: "C", id: 3, psreg: 1},
}

func addrs(m *mmio.Memory) []uint64 {
	v := make([]uint64, len(m.Writes))
	for i, a := range m.Writes {
		v[i] = a.Addr
	}
	return v
}
