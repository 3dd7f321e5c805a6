// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package pmgr

import "fmt"

// Ref is the composite domain reference used by "clock-gates" lists and
// callers: die in bits 31:28, domain id in bits 15:0.
type Ref uint32

const (
	refIDMask   = 0xffff
	refDieShift = 28
	refDieMask  = 0xf

	// RefMaxDie is the largest die a Ref can encode.
	RefMaxDie = refDieMask
)

// MakeRef packs a die and domain id. Only dies 0..RefMaxDie fit, larger
// dies keep just their low 4 bits; operations that take a die directly,
// like ResetDomain, reach die MaxDie.
func MakeRef(die uint8, id uint16) Ref {
	return Ref(uint32(die&refDieMask)<<refDieShift | uint32(id))
}

func (r Ref) Die() uint8 { return uint8(uint32(r) >> refDieShift & refDieMask) }
func (r Ref) ID() uint16 { return uint16(uint32(r) & refIDMask) }

func (r Ref) String() string { return fmt.Sprintf("%d:%d", r.Die(), r.ID()) }
