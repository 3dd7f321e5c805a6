// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import (
	"testing"

	"github.com/platinasystems/fdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usb = "/arm-io/usb-drd0"

func TestClockGates(t *testing.T) {
	f := newFixture(devices(false, chain...))
	f.usb.Properties["clock-gates"] = refs(MakeRef(0, 2), MakeRef(1, 3))
	m, _ := f.manager(t, testConfig)

	v, err := m.ClockGates(usb)
	require.NoError(t, err)
	assert.Equal(t, []Ref{MakeRef(0, 2), MakeRef(1, 3)}, v)

	f.armio.Children["usb-drd1@382280000"] = &fdt.Node{
		Name: "usb-drd1@382280000",
		Properties: map[string][]byte{
			"clock-gates": refs(MakeRef(0, 1)),
		},
	}
	v, err = m.ClockGates("/arm-io/usb-drd1")
	require.NoError(t, err, "unit addresses are optional")
	assert.Equal(t, []Ref{MakeRef(0, 1)}, v)
}

func TestEnableDisableAll(t *testing.T) {
	f := newFixture(devices(false, chain...))
	f.usb.Properties["clock-gates"] = refs(MakeRef(0, 2), MakeRef(1, 3))
	m, bus := f.manager(t, testConfig)

	require.NoError(t, m.EnableAll(usb))
	assert.Equal(t, []uint64{reg0, reg0 + 8, reg0 + 0x100 + DieStride},
		addrs(bus))

	bus.Reset()
	require.NoError(t, m.DisableAll(usb))
	assert.Equal(t, []uint64{reg0 + 8, reg0 + 0x100 + DieStride},
		addrs(bus))
}

func TestEnableAllContinues(t *testing.T) {
	f := newFixture(devices(false, chain...))
	f.usb.Properties["clock-gates"] = refs(
		MakeRef(0, 2), MakeRef(0, 9), MakeRef(0, 3))
	m, bus := f.manager(t, testConfig)
	bus.OnWrite = stuck(reg0)

	err := m.EnableAll(usb)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, ErrNoDomain)
	assert.Equal(t, []uint64{reg0, reg0 + 0x100}, addrs(bus))
}

func TestEnableIndex(t *testing.T) {
	f := newFixture(devices(false, chain...))
	f.usb.Properties["clock-gates"] = refs(MakeRef(0, 3), MakeRef(0, 2))
	m, bus := f.manager(t, testConfig)

	require.NoError(t, m.EnableIndex(usb, 1))
	assert.Equal(t, []uint64{reg0, reg0 + 8}, addrs(bus))

	bus.Reset()
	require.NoError(t, m.DisableIndex(usb, 0))
	assert.Equal(t, []uint64{reg0 + 0x100}, addrs(bus))

	bus.Reset()
	assert.ErrorIs(t, m.EnableIndex(usb, 2), ErrIndex)
	assert.ErrorIs(t, m.DisableIndex(usb, -1), ErrIndex)
	assert.Empty(t, bus.Writes)
}

func TestNoClockGates(t *testing.T) {
	f := newFixture(devices(false, chain...))
	m, bus := f.manager(t, testConfig)

	assert.ErrorIs(t, m.EnableAll(usb), ErrNoList)
	assert.ErrorIs(t, m.EnableAll("/arm-io/nope"), ErrNoList)
	assert.ErrorIs(t, m.EnableIndex("/arm-io/nope", 0), ErrNoList)

	f.usb.Properties["clock-gates"] = []byte{1, 2, 3}
	assert.ErrorIs(t, m.DisableAll(usb), ErrNoList)
	assert.Empty(t, bus.Writes)
}

func TestAmbiguousClockGates(t *testing.T) {
	f := newFixture(devices(false, chain...))
	for name, ref := range map[string]Ref{
		"dart@1": MakeRef(0, 1),
		"dart@2": MakeRef(0, 3),
	} {
		f.armio.Children[name] = &fdt.Node{
			Name:       name,
			Properties: map[string][]byte{"clock-gates": refs(ref)},
		}
	}
	m, bus := f.manager(t, testConfig)

	for i := 0; i < 50; i++ {
		_, err := m.ClockGates("/arm-io/dart")
		require.ErrorIs(t, err, ErrNoList)
	}
	assert.ErrorIs(t, m.EnableAll("/arm-io/dart"), ErrNoList)
	assert.ErrorIs(t, m.ResetAll("/arm-io/dart"), ErrNoList)
	assert.Empty(t, bus.Writes)

	v, err := m.ClockGates("/arm-io/dart@2")
	require.NoError(t, err)
	assert.Equal(t, []Ref{MakeRef(0, 3)}, v)
}
