// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mmio

import (
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

const DevMemFile = "/dev/mem"

// DevMem maps pages of physical memory on first access and keeps them mapped
// until Close.
type DevMem struct {
	f     *os.File
	psize uint64
	pages map[uint64][]byte
}

func OpenDevMem(name string) (*DevMem, error) {
	if len(name) == 0 {
		name = DevMemFile
	}
	f, err := os.OpenFile(name, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, err
	}
	return &DevMem{
		f:     f,
		psize: uint64(os.Getpagesize()),
		pages: make(map[uint64][]byte),
	}, nil
}

func (m *DevMem) Close() error {
	for k, b := range m.pages {
		syscall.Munmap(b)
		delete(m.pages, k)
	}
	return m.f.Close()
}

func (m *DevMem) reg(addr uint64) (*uint32, error) {
	if err := aligned(addr); err != nil {
		return nil, err
	}
	base := addr &^ (m.psize - 1)
	b, found := m.pages[base]
	if !found {
		var err error
		b, err = syscall.Mmap(int(m.f.Fd()), int64(base), int(m.psize),
			syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
		if err != nil {
			return nil, &os.PathError{
				Op:   "mmap",
				Path: m.f.Name(),
				Err:  err,
			}
		}
		m.pages[base] = b
	}
	return (*uint32)(unsafe.Pointer(&b[addr-base])), nil
}

func (m *DevMem) Read32(addr uint64) (uint32, error) {
	p, err := m.reg(addr)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

func (m *DevMem) Write32(addr uint64, v uint32) error {
	p, err := m.reg(addr)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, v)
	return nil
}
