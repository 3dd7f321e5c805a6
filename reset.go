// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pmgr/internal/mmio"
)

const MaxDie = 16

// ResetDomain pulses the reset of an active domain with its device
// interface disabled. Inactive domains are refused without any write.
func (m *Manager) ResetDomain(die int, d *Domain) error {
	if err := m.ready(); err != nil {
		return err
	}
	if die < 0 || die > MaxDie {
		log.Printf("err", "pmgr: invalid die id %d for domain %s",
			die, d.Name)
		return fmt.Errorf("%s: %w: %d", d.Name, ErrDie, die)
	}
	addr, err := m.Addr(uint8(die), d)
	if err != nil {
		return err
	}
	v, err := m.bus.Read32(addr)
	if err != nil {
		return err
	}
	if Decode(v).Actual != PSActive {
		log.Printf("warn", "pmgr: will not reset disabled domain %d.%s",
			die, d.Name)
		return fmt.Errorf("%d.%s: %w", die, d.Name, ErrInactive)
	}
	log.Printf("info", "pmgr: resetting domain %d.%s", die, d.Name)
	for _, step := range []struct {
		op   func(mmio.Bus, uint64, uint32) (uint32, error)
		bits uint32
		hold bool
	}{
		{mmio.Set32, BitDevDisable, false},
		{mmio.Set32, BitReset, true},
		{mmio.Clear32, BitReset, false},
		{mmio.Clear32, BitDevDisable, false},
	} {
		if _, err = step.op(m.bus, addr, step.bits); err != nil {
			return err
		}
		if step.hold {
			time.Sleep(m.cfg.ResetHold)
		}
	}
	return nil
}

// Reset the named domain.
func (m *Manager) Reset(die int, name string) error {
	d, err := m.byName(name)
	if err != nil {
		return err
	}
	return m.ResetDomain(die, d)
}

// ResetAll resets every domain of the node's clock-gates list, continuing
// past failures.
func (m *Manager) ResetAll(path string) error {
	refs, err := m.ClockGates(path)
	if err != nil {
		return err
	}
	var errs []error
	for _, ref := range refs {
		d, found := m.cat.ByID(ref.ID())
		if !found {
			errs = append(errs, fmt.Errorf("%s: %v: %w", path, ref,
				ErrNoDomain))
			continue
		}
		if err = m.ResetDomain(int(ref.Die()), d); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
