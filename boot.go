// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import "github.com/platinasystems/log"

// reconcile activates the inactive parents of domains that earlier boot
// stages left on. Only immediate parents are repaired; grandparents are
// assumed on whenever a child was auto-enabled.
func (m *Manager) reconcile() {
	for die := uint32(0); die < m.dies; die++ {
		for i := range m.cat.Domains {
			d := &m.cat.Domains[i]
			if d.Virtual() {
				continue
			}
			s, ok := m.read(uint8(die), d)
			if !ok || !s.Active() {
				continue
			}
			for _, parent := range d.Parents {
				if parent != 0 {
					m.reconcileParent(uint8(die), d, parent)
				}
			}
		}
	}
}

func (m *Manager) reconcileParent(die uint8, child *Domain, id uint16) {
	p, found := m.cat.ByID(id)
	if !found {
		log.Printf("warn", "pmgr: failed to find parent #%d for %s",
			id, child.Name)
		return
	}
	if p.Virtual() {
		return
	}
	addr, err := m.addr(die, p)
	if err != nil {
		return
	}
	v, err := m.bus.Read32(addr)
	if err != nil || Decode(v).Active() {
		return
	}
	log.Printf("info", "pmgr: enabling %d.%s, parent of active domain %s",
		die, p.Name, child.Name)
	if err = m.SetState(addr, PSActive); err != nil {
		log.Print("err", "pmgr: ", err)
	}
}

func (m *Manager) read(die uint8, d *Domain) (Status, bool) {
	addr, err := m.addr(die, d)
	if err != nil {
		return Status{}, false
	}
	v, err := m.bus.Read32(addr)
	if err != nil {
		return Status{}, false
	}
	return Decode(v), true
}
