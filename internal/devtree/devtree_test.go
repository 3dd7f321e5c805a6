// Copyright © 2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package devtree

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/platinasystems/fdt"
)

type prop struct {
	name  string
	value []byte
}

type node struct {
	name     string
	props    []prop
	children []node
}

func cells(v ...uint32) []byte {
	b := make([]byte, 4*len(v))
	for i, c := range v {
		binary.BigEndian.PutUint32(b[4*i:], c)
	}
	return b
}

// blob flattens n into a version 17 big endian device tree.
func blob(n node) []byte {
	var st, str bytes.Buffer
	cell := func(v uint32) { st.Write(cells(v)) }
	pad := func() {
		for st.Len()%4 != 0 {
			st.WriteByte(0)
		}
	}
	var walk func(n node)
	walk = func(n node) {
		cell(1)
		st.WriteString(n.name)
		st.WriteByte(0)
		pad()
		for _, p := range n.props {
			cell(3)
			cell(uint32(len(p.value)))
			cell(uint32(str.Len()))
			str.WriteString(p.name)
			str.WriteByte(0)
			st.Write(p.value)
			pad()
		}
		for _, c := range n.children {
			walk(c)
		}
		cell(2)
	}
	walk(n)
	cell(9)
	const hdr = 40
	h := cells(magic,
		uint32(hdr+st.Len()+str.Len()),
		hdr,
		uint32(hdr+st.Len()),
		0,
		17, 16, 0,
		uint32(str.Len()),
		uint32(st.Len()))
	return append(append(h, st.Bytes()...), str.Bytes()...)
}

var sample = node{
	props: []prop{
		{"#address-cells", cells(2)},
		{"#size-cells", cells(2)},
	},
	children: []node{
		{
			name: "arm-io",
			props: []prop{
				{"#address-cells", cells(2)},
				{"#size-cells", cells(2)},
				{"compatible", []byte("arm-io,t8103\x00arm-io\x00")},
				{"ranges", cells(0, 0, 2, 0, 1, 0)},
				{"die-count", cells(2)},
			},
			children: []node{
				{
					name: "pmgr@3b700000",
					props: []prop{
						{"reg", cells(
							0, 0x3b700000, 0, 0x4000,
							0, 0x3b000000, 0, 0x1000)},
					},
				},
			},
		},
	},
}

func TestParse(t *testing.T) {
	tr, err := Parse(blob(sample), false)
	if err != nil {
		t.Fatal(err)
	}
	n, err := tr.Node("/arm-io/pmgr")
	if err != nil {
		t.Fatal(err)
	}
	if s := n.Path(); s != "/arm-io/pmgr@3b700000" {
		t.Error("path:", s)
	}
	for i, want := range []uint64{0x23b700000, 0x23b000000} {
		r, err := n.Reg(i)
		if err != nil {
			t.Fatal(err)
		}
		if r.Addr != want {
			t.Errorf("reg[%d]: got %#x, want %#x", i, r.Addr, want)
		}
		if r.Size != 0x4000 && i == 0 {
			t.Errorf("reg[%d] size: %#x", i, r.Size)
		}
	}
	if _, err = n.Reg(2); !errors.Is(err, ErrNotFound) {
		t.Error("reg[2]:", err)
	}
	armio, _ := tr.Node("/arm-io")
	if v, found := armio.Uint32("die-count"); !found || v != 2 {
		t.Error("die-count:", v, found)
	}
	if s := armio.Strings("compatible"); len(s) != 2 ||
		s[0] != "arm-io,t8103" || s[1] != "arm-io" {
		t.Errorf("compatible: %q", s)
	}
}

func TestParseErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		b    []byte
	}{
		{"short", []byte{0xd0, 0x0d}},
		{"magic", make([]byte, 64)},
	} {
		if _, err := Parse(tc.b, false); !errors.Is(err, ErrFormat) {
			t.Errorf("%s: %v", tc.name, err)
		}
	}
}

func TestNodeNotFound(t *testing.T) {
	tr, err := Parse(blob(sample), false)
	if err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{"/arm-io/nope", "/nope", "/arm-io/pmgr/x"} {
		if _, err := tr.Node(path); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: %v", path, err)
		}
	}
	var empty *Tree
	if _, err := empty.Node("/"); !errors.Is(err, ErrNotFound) {
		t.Error("nil tree:", err)
	}
}

func TestUnitAddress(t *testing.T) {
	dart := func(name string) *fdt.Node {
		return &fdt.Node{Name: name, Properties: map[string][]byte{}}
	}
	armio := &fdt.Node{
		Name: "arm-io",
		Children: map[string]*fdt.Node{
			"dart@1":     dart("dart@1"),
			"dart@2":     dart("dart@2"),
			"dart":       dart("dart"),
			"pmgr@3b700": dart("pmgr@3b700"),
			"sio@1":      dart("sio@1"),
			"sio@2":      dart("sio@2"),
		},
	}
	root := &fdt.Node{
		Name:     "/",
		Children: map[string]*fdt.Node{"arm-io": armio},
	}
	tr := New(&fdt.Tree{RootNode: root})

	for path, expect := range map[string]string{
		"/arm-io/dart":   "dart",
		"/arm-io/dart@2": "dart@2",
		"/arm-io/pmgr":   "pmgr@3b700",
		"/arm-io/sio@1":  "sio@1",
	} {
		n, err := tr.Node(path)
		if err != nil {
			t.Errorf("%s: %v", path, err)
		} else if n.Name != expect {
			t.Errorf("%s: found %s", path, n.Name)
		}
	}
	for i := 0; i < 100; i++ {
		_, err := tr.Node("/arm-io/sio")
		if !errors.Is(err, ErrAmbiguous) || !errors.Is(err, ErrNotFound) {
			t.Fatalf("/arm-io/sio: %v", err)
		}
	}
}

func TestLittleEndianCells(t *testing.T) {
	le := func(v ...uint32) []byte {
		b := make([]byte, 4*len(v))
		for i, c := range v {
			binary.LittleEndian.PutUint32(b[4*i:], c)
		}
		return b
	}
	pmgr := &fdt.Node{
		Name: "pmgr",
		Properties: map[string][]byte{
			"reg":     le(0x1, 0x2, 0x100, 0),
			"ps-regs": le(1, 2, 3, 4),
			"odd":     {1, 2, 3},
		},
	}
	root := &fdt.Node{
		Name: "/",
		Properties: map[string][]byte{
			"#address-cells": le(2),
			"#size-cells":    le(2),
		},
		Children: map[string]*fdt.Node{"pmgr": pmgr},
	}
	tr := New(&fdt.Tree{IsLittleEndian: true, RootNode: root})
	n, err := tr.Node("/pmgr")
	if err != nil {
		t.Fatal(err)
	}
	if tr.ByteOrder() != binary.LittleEndian {
		t.Error("byte order")
	}
	r, err := n.Reg(0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Addr != 0x100000002 || r.Size != 0x10000000000 {
		t.Error("reg:", r)
	}
	v, err := n.Uint32s("ps-regs")
	if err != nil || len(v) != 4 || v[3] != 4 {
		t.Error("ps-regs:", v, err)
	}
	if _, err = n.Uint32s("odd"); !errors.Is(err, ErrFormat) {
		t.Error("odd:", err)
	}
}
