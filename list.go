// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"errors"
	"fmt"

	"github.com/platinasystems/log"
)

// ClockGates returns the domain references of the "clock-gates" property of
// the node at path.
func (m *Manager) ClockGates(path string) ([]Ref, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}
	n, err := m.tree.Node(path)
	if err != nil {
		log.Print("err", "pmgr: ", err)
		return nil, fmt.Errorf("%w: %v", ErrNoList, err)
	}
	v, err := n.Uint32s("clock-gates")
	if err != nil || len(v) == 0 {
		log.Print("err", "pmgr: ", path, ": can't get clock-gates")
		return nil, fmt.Errorf("%w: %s", ErrNoList, path)
	}
	refs := make([]Ref, len(v))
	for i, x := range v {
		refs[i] = Ref(x)
	}
	return refs, nil
}

func (m *Manager) listSetMode(path string, state State, recurse bool) error {
	refs, err := m.ClockGates(path)
	if err != nil {
		return err
	}
	var errs []error
	for _, ref := range refs {
		err := m.setModeRecursive(ref.Die(), ref.ID(), state, recurse)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %v: %w", path, ref, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) indexSetMode(path string, i int, state State,
	recurse bool) error {
	refs, err := m.ClockGates(path)
	if err != nil {
		return err
	}
	if i < 0 || i >= len(refs) {
		return fmt.Errorf("%s: %w: %d of %d", path, ErrIndex, i, len(refs))
	}
	ref := refs[i]
	return m.setModeRecursive(ref.Die(), ref.ID(), state, recurse)
}

// EnableAll enables every domain of the node's clock-gates list. It
// continues past failures and returns all of them.
func (m *Manager) EnableAll(path string) error {
	return m.listSetMode(path, PSActive, true)
}

func (m *Manager) DisableAll(path string) error {
	return m.listSetMode(path, PSPowerGate, false)
}

func (m *Manager) EnableIndex(path string, i int) error {
	return m.indexSetMode(path, i, PSActive, true)
}

func (m *Manager) DisableIndex(path string, i int) error {
	return m.indexSetMode(path, i, PSPowerGate, false)
}
