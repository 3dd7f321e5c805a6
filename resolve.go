// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"fmt"

	"github.com/platinasystems/log"
)

// Addr returns the physical address of the domain's control register on the
// given die. Virtual domains have no register.
func (m *Manager) Addr(die uint8, d *Domain) (uint64, error) {
	if err := m.ready(); err != nil {
		return 0, err
	}
	if d.Virtual() {
		return 0, fmt.Errorf("%s: %w", d.Name, ErrVirtual)
	}
	return m.addr(die, d)
}

func (m *Manager) addr(die uint8, d *Domain) (uint64, error) {
	idx, off := d.PSReg, d.AddrOffset
	if m.variant != nil {
		o := m.variant.Lookup(d.Name)
		idx, off = o.PSReg, o.Offset
		log.Printf("debug", "pmgr: %s: %s override ps-reg %d offset %d",
			d.Name, m.variant.Name, idx, off)
	}
	base, err := m.psreg(idx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", d.Name, err)
	}
	return base + DieStride*uint64(die) + uint64(off)<<3, nil
}

func (m *Manager) psreg(idx uint8) (uint64, error) {
	if int(idx) >= len(m.cat.PSRegs) {
		log.Printf("err", "pmgr: ps-reg %d is out of range", idx)
		return 0, fmt.Errorf("%w: ps-reg %d out of range", ErrResolve, idx)
	}
	ps := m.cat.PSRegs[idx]
	r, err := m.node.Reg(int(ps.Reg))
	if err != nil {
		log.Print("err", "pmgr: ", err)
		return 0, fmt.Errorf("%w: %v", ErrResolve, err)
	}
	return r.Addr + uint64(ps.Offset), nil
}
