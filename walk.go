// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"fmt"

	"github.com/platinasystems/log"
)

// maxDepth bounds the parent walk of malformed catalogs with dependency
// loops; real trees are a handful of levels deep.
const maxDepth = 32

// walk is one tagged dependency operation. Enabling visits parents before
// the domain itself; disabling visits the domain first and, when recurse is
// set, its parents after.
type walk struct {
	m       *Manager
	die     uint8
	state   State
	recurse bool
}

func (w *walk) do(id uint16, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w at domain %d", ErrLoop, id)
	}
	if id == 0 {
		return fmt.Errorf("%w: id 0", ErrNoDomain)
	}
	d, found := w.m.cat.ByID(id)
	if !found {
		return fmt.Errorf("%w: id %d", ErrNoDomain, id)
	}
	if w.state == PSPowerGate {
		if err := w.self(d); err != nil {
			return err
		}
	}
	if w.recurse {
		for _, parent := range d.Parents {
			if parent == 0 {
				continue
			}
			if err := w.do(parent, depth+1); err != nil {
				return err
			}
		}
	}
	if w.state != PSPowerGate {
		return w.self(d)
	}
	return nil
}

func (w *walk) self(d *Domain) error {
	if d.Virtual() {
		return nil
	}
	addr, err := w.m.addr(w.die, d)
	if err != nil {
		return err
	}
	if err = w.m.SetState(addr, w.state); err != nil {
		return fmt.Errorf("%d.%s: %w", w.die, d.Name, err)
	}
	return nil
}

func (m *Manager) setModeRecursive(die uint8, id uint16, state State,
	recurse bool) error {
	if err := m.ready(); err != nil {
		log.Print("err", "pmgr: domain operation before init")
		return err
	}
	w := walk{m: m, die: die, state: state, recurse: recurse}
	return w.do(id, 0)
}

// PowerEnable activates the referenced domain after its parents.
func (m *Manager) PowerEnable(ref Ref) error {
	return m.setModeRecursive(ref.Die(), ref.ID(), PSActive, true)
}

// PowerDisable power gates only the referenced domain.
func (m *Manager) PowerDisable(ref Ref) error {
	return m.setModeRecursive(ref.Die(), ref.ID(), PSPowerGate, false)
}

func (m *Manager) EnableByName(die uint8, name string) error {
	d, err := m.byName(name)
	if err != nil {
		return err
	}
	return m.setModeRecursive(die, d.ID, PSActive, true)
}

func (m *Manager) DisableByName(die uint8, name string) error {
	d, err := m.byName(name)
	if err != nil {
		return err
	}
	return m.setModeRecursive(die, d.ID, PSPowerGate, false)
}

func (m *Manager) byName(name string) (*Domain, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	d, found := m.cat.ByName(name)
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrNoDomain, name)
	}
	return d, nil
}
