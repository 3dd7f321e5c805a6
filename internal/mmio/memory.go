// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mmio

import "fmt"

// Access is one recorded register write.
type Access struct {
	Addr  uint64
	Value uint32
}

func (a Access) String() string {
	return fmt.Sprintf("%#x <- %#08x", a.Addr, a.Value)
}

// Memory is a sparse register file standing in for hardware in tests; no
// command builds one. Unwritten registers read as zero.
// OnWrite, if set, returns the value actually latched for a write, e.g. to
// model status fields that follow control fields.
type Memory struct {
	Regs    map[uint64]uint32
	OnWrite func(addr uint64, v uint32) uint32
	Writes  []Access
}

func NewMemory() *Memory {
	return &Memory{Regs: make(map[uint64]uint32)}
}

func (m *Memory) Read32(addr uint64) (uint32, error) {
	if err := aligned(addr); err != nil {
		return 0, err
	}
	return m.Regs[addr], nil
}

func (m *Memory) Write32(addr uint64, v uint32) error {
	if err := aligned(addr); err != nil {
		return err
	}
	m.Writes = append(m.Writes, Access{addr, v})
	if m.OnWrite != nil {
		v = m.OnWrite(addr, v)
	}
	m.Regs[addr] = v
	return nil
}

// WritesTo returns the recorded writes to addr in order.
func (m *Memory) WritesTo(addr uint64) []uint32 {
	var v []uint32
	for _, a := range m.Writes {
		if a.Addr == addr {
			v = append(v, a.Value)
		}
	}
	return v
}

func (m *Memory) Reset() {
	m.Writes = m.Writes[:0]
}
