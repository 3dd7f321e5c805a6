// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pmgr manages the clock and power domains of a system-on-chip
// power manager described by a device tree.
//
// A Manager is created once with Init. It loads the domain catalog from the
// "/arm-io/pmgr" node, repairs the parent state of domains left active by
// earlier boot stages, then drives domains through power state transitions.
// Enabling a domain first enables its parents; disabling a domain leaves its
// parents alone since other active domains may share them.
package pmgr

import (
	"errors"
	"fmt"
	"time"

	"github.com/platinasystems/log"
	"github.com/platinasystems/pmgr/internal/devtree"
	"github.com/platinasystems/pmgr/internal/mmio"
)

const (
	ArmIOPath = "/arm-io"
	Path      = "/arm-io/pmgr"

	// DieStride separates the register files of successive dies.
	DieStride = 0x2000000000

	PollTries    = 10000
	PollInterval = time.Microsecond
	ResetHold    = 10 * time.Microsecond
)

var (
	ErrConfig   = errors.New("configuration error")
	ErrNotReady = errors.New("not initialized")
	ErrNoDomain = errors.New("no such domain")
	ErrNoList   = errors.New("no clock-gates")
	ErrIndex    = errors.New("index out of range")
	ErrResolve  = errors.New("can't resolve register")
	ErrVirtual  = errors.New("virtual domain")
	ErrTimeout  = errors.New("state transition timeout")
	ErrDie      = errors.New("invalid die")
	ErrInactive = errors.New("domain not active")
	ErrLoop     = errors.New("dependency loop")
)

// Config tunes the manager; the zero value has the firmware defaults.
type Config struct {
	// Variant names a register override table; empty selects one
	// from the "/arm-io" compatible list, if any match.
	Variant string

	PollTries    int
	PollInterval time.Duration
	ResetHold    time.Duration

	// SkipBoot omits the boot reconciliation pass.
	SkipBoot bool
}

type Manager struct {
	tree    *devtree.Tree
	node    *devtree.Node
	bus     mmio.Bus
	cat     *Catalog
	variant *Variant
	dies    uint32
	cfg     Config
}

// Init loads the catalog and reconciles boot state. It must succeed before
// any other operation; a nil Manager rejects every operation with
// ErrNotReady.
func Init(t *devtree.Tree, bus mmio.Bus, cfg Config) (*Manager, error) {
	log.Print("debug", "pmgr: init")
	if cfg.PollTries <= 0 {
		cfg.PollTries = PollTries
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = PollInterval
	}
	if cfg.ResetHold == 0 {
		cfg.ResetHold = ResetHold
	}
	m, err := load(t, bus, cfg)
	if err != nil {
		log.Print("err", "pmgr: ", err)
		return nil, err
	}
	if !cfg.SkipBoot {
		log.Print("debug", "pmgr: cleaning up domain states")
		m.reconcile()
	}
	log.Printf("info", "pmgr: initialized, %d domains on %d dies found",
		len(m.cat.Domains), m.dies)
	return m, nil
}

func load(t *devtree.Tree, bus mmio.Bus, cfg Config) (*Manager, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: no register bus", ErrConfig)
	}
	armio, err := t.Node(ArmIOPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	dies, found := armio.Uint32("die-count")
	if !found {
		dies = 1
	}
	if dies > MaxDie+1 {
		return nil, fmt.Errorf("%w: %s: die-count %d exceeds %d",
			ErrConfig, ArmIOPath, dies, MaxDie+1)
	}
	node, err := t.Node(Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	v, err := selectVariant(cfg.Variant, armio)
	if err != nil {
		return nil, err
	}
	var psregs []PSReg
	if v != nil {
		log.Print("info", "pmgr: using ", v.Name, " register overrides")
		psregs = v.PSRegs
	}
	cat, err := LoadCatalog(node, psregs)
	if err != nil {
		return nil, err
	}
	log.Printf("debug", "pmgr: node %s, dies %d, %s ids",
		node.Path(), dies, cat.Width)
	return &Manager{
		tree:    t,
		node:    node,
		bus:     bus,
		cat:     cat,
		variant: v,
		dies:    dies,
		cfg:     cfg,
	}, nil
}

func (m *Manager) ready() error {
	if m == nil || m.cat == nil {
		return ErrNotReady
	}
	return nil
}

// Catalog returns the loaded catalog or nil before Init.
func (m *Manager) Catalog() *Catalog {
	if m.ready() != nil {
		return nil
	}
	return m.cat
}

func (m *Manager) Dies() int {
	if m.ready() != nil {
		return 0
	}
	return int(m.dies)
}

// Variant returns the name of the active register override table, if any.
func (m *Manager) Variant() string {
	if m.ready() != nil || m.variant == nil {
		return ""
	}
	return m.variant.Name
}

// Feature returns an integer property of the power manager node or 0 if
// absent.
func Feature(t *devtree.Tree, name string) uint32 {
	n, err := t.Node(Path)
	if err != nil {
		return 0
	}
	v, _ := n.Uint32(name)
	return v
}

func (m *Manager) Feature(name string) uint32 {
	if m.ready() != nil {
		return 0
	}
	v, _ := m.node.Uint32(name)
	return v
}
