// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pmgr/internal/mmio"
)

// Control register fields.
const (
	BitReset       = 1 << 31
	BitAutoEnable  = 1 << 28
	BitParentOff   = 1 << 11
	BitDevDisable  = 1 << 10
	BitWasClkGated = 1 << 9
	BitWasPwrGated = 1 << 8
	MaskPSAuto     = 0xf << 24
	MaskPSActual   = 0xf << 4
	MaskPSTarget   = 0xf << 0
	shiftPSAuto    = 24
	shiftPSActual  = 4
	shiftPSTarget  = 0
)

type State uint8

const (
	PSPowerGate State = 0x0
	PSClockGate State = 0x4
	PSActive    State = 0xf
)

func (s State) String() string {
	switch s {
	case PSPowerGate:
		return "pwrgate"
	case PSClockGate:
		return "clkgate"
	case PSActive:
		return "active"
	}
	return fmt.Sprintf("%#x", uint8(s))
}

// Status is a decoded control register.
type Status struct {
	Raw    uint32
	Target State
	Actual State
	Auto   State

	Reset, AutoEnable, ParentOff, DevDisable bool
	WasClockGated, WasPowerGated             bool
}

func Decode(v uint32) Status {
	return Status{
		Raw:           v,
		Target:        State(v & MaskPSTarget >> shiftPSTarget),
		Actual:        State(v & MaskPSActual >> shiftPSActual),
		Auto:          State(v & MaskPSAuto >> shiftPSAuto),
		Reset:         v&BitReset != 0,
		AutoEnable:    v&BitAutoEnable != 0,
		ParentOff:     v&BitParentOff != 0,
		DevDisable:    v&BitDevDisable != 0,
		WasClockGated: v&BitWasClkGated != 0,
		WasPowerGated: v&BitWasPwrGated != 0,
	}
}

// Active reports whether something has asked for the domain to be on.
func (s Status) Active() bool {
	return s.AutoEnable || s.Target == PSActive
}

func (s Status) String() string {
	var flags []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{s.Reset, "reset"},
		{s.AutoEnable, "auto-enable"},
		{s.ParentOff, "parent-off"},
		{s.DevDisable, "dev-disable"},
		{s.WasClockGated, "was-clkgated"},
		{s.WasPowerGated, "was-pwrgated"},
	} {
		if f.set {
			flags = append(flags, f.name)
		}
	}
	s0 := fmt.Sprintf("%s/%s", s.Actual, s.Target)
	if len(flags) > 0 {
		s0 += " " + strings.Join(flags, ",")
	}
	return s0
}

// SetState writes the target state of the register at addr then waits for
// its actual state to follow.
func (m *Manager) SetState(addr uint64, state State) error {
	if err := m.ready(); err != nil {
		return err
	}
	if v, err := m.bus.Read32(addr); err == nil {
		log.Printf("debug", "pmgr: setting state %s at %#x: %#08x",
			state, addr, v)
	}
	_, err := mmio.Mask32(m.bus, addr, MaskPSTarget,
		uint32(state)<<shiftPSTarget)
	if err != nil {
		return err
	}
	v, err := mmio.Poll32(m.bus, addr, MaskPSActual,
		uint32(state)<<shiftPSActual,
		m.cfg.PollTries, m.cfg.PollInterval)
	if errors.Is(err, mmio.ErrTimeout) {
		log.Printf("err", "pmgr: timeout setting state %s at %#x: %#08x",
			state, addr, v)
		return fmt.Errorf("%w: %s at %#x: %#08x", ErrTimeout, state,
			addr, v)
	}
	return err
}

// Status reads and decodes the domain's control register.
func (m *Manager) Status(die uint8, d *Domain) (Status, error) {
	addr, err := m.Addr(die, d)
	if err != nil {
		return Status{}, err
	}
	v, err := m.bus.Read32(addr)
	if err != nil {
		return Status{}, err
	}
	return Decode(v), nil
}
