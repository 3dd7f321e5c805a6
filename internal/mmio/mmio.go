// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mmio provides 32-bit memory mapped register access by absolute
// physical address.
package mmio

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout   = errors.New("timeout")
	ErrAlignment = errors.New("unaligned")
)

// Bus reads and writes 32-bit registers at physical addresses.
type Bus interface {
	Read32(addr uint64) (uint32, error)
	Write32(addr uint64, v uint32) error
}

// Set32 sets the given bits and returns the written value.
func Set32(b Bus, addr uint64, set uint32) (uint32, error) {
	return Mask32(b, addr, 0, set)
}

// Clear32 clears the given bits and returns the written value.
func Clear32(b Bus, addr uint64, clear uint32) (uint32, error) {
	return Mask32(b, addr, clear, 0)
}

// Mask32 clears then sets bits with a read-modify-write.
func Mask32(b Bus, addr uint64, clear, set uint32) (uint32, error) {
	v, err := b.Read32(addr)
	if err != nil {
		return 0, err
	}
	v = (v &^ clear) | set
	return v, b.Write32(addr, v)
}

// Poll32 reads the register up to tries times, waiting interval between
// reads, until the masked value equals want. The last read value is returned
// with ErrTimeout if it never matched.
func Poll32(b Bus, addr uint64, mask, want uint32, tries int,
	interval time.Duration) (uint32, error) {
	var v uint32
	var err error
	for i := 0; i < tries; i++ {
		if v, err = b.Read32(addr); err != nil {
			return v, err
		}
		if v&mask == want {
			return v, nil
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}
	return v, fmt.Errorf("%#x: %w after %d reads", addr, ErrTimeout, tries)
}

func aligned(addr uint64) error {
	if addr&3 != 0 {
		return fmt.Errorf("%#x: %w", addr, ErrAlignment)
	}
	return nil
}
