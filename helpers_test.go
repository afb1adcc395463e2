// This file is part of dyldsym.
//
// Copyright (C) 2024 dyldsym Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package dyldsym

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/stretchr/testify/require"
)

type testSym struct {
	name  string
	typ   types.NType
	sect  uint8
	desc  uint16
	value uint64
}

// testImage describes a synthetic image. Header and load commands are mapped at base,
// the __LINKEDIT contents at slide+linkeditAddr.
type testImage struct {
	base  uint64
	slide int64
	cpu   types.CPU

	linkeditAddr   uint64
	linkeditOffset uint64
	linkeditSize   uint64
	symOff         uint32
	strOff         uint32

	// before and after are the sizes of LC_UUID filler commands placed around the
	// two interesting commands.
	before []uint32
	after  []uint32

	noSymtab   bool
	noLinkedit bool
	// symtabFirst places LC_SYMTAB before the __LINKEDIT segment command.
	symtabFirst bool

	syms []testSym
}

// newTestImage uses slide 0x5000, __LINKEDIT at vmaddr 0x1000 / fileoff 0x2000, symoff 0x2100 and
// stroff 0x2200.
func newTestImage(syms ...testSym) *testImage {
	return &testImage{
		base:           0x100000000,
		slide:          0x5000,
		cpu:            types.CPUArm64,
		linkeditAddr:   0x1000,
		linkeditOffset: 0x2000,
		linkeditSize:   0x1000,
		symOff:         0x2100,
		strOff:         0x2200,
		syms:           syms,
	}
}

func (ti *testImage) stringTable() ([]byte, []uint32) {
	strtab := []byte{0}
	strx := make([]uint32, len(ti.syms))
	for i, s := range ti.syms {
		if s.name == "" {
			continue
		}
		strx[i] = uint32(len(strtab))
		strtab = append(strtab, s.name...)
		strtab = append(strtab, 0)
	}
	return strtab, strx
}

func (ti *testImage) symbolTable(strx []uint32) []byte {
	buf := new(bytes.Buffer)
	for i, s := range ti.syms {
		n := types.Nlist64{
			Nlist: types.Nlist{Name: strx[i], Type: s.typ, Sect: s.sect, Desc: types.NDescType(s.desc)},
			Value: s.value,
		}
		binary.Write(buf, binary.LittleEndian, &n)
	}
	return buf.Bytes()
}

func fillerCommand(size uint32) []byte {
	b := make([]byte, size)
	binary.LittleEndian.PutUint32(b[0:], uint32(types.LC_UUID))
	binary.LittleEndian.PutUint32(b[4:], size)
	return b
}

func linkeditCommand(addr, size, offset uint64) []byte {
	seg := types.Segment64{
		LoadCmd: types.LC_SEGMENT_64,
		Len:     segment64Size,
		Addr:    addr,
		Memsz:   size,
		Offset:  offset,
		Filesz:  size,
		Maxprot: 1,
		Prot:    1,
	}
	copy(seg.Name[:], segLinkedit)
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &seg)
	return buf.Bytes()
}

func symtabCommand(symoff, nsyms, stroff, strsize uint32) []byte {
	st := types.SymtabCmd{
		LoadCmd: types.LC_SYMTAB,
		Len:     symtabCommandSize,
		Symoff:  symoff,
		Nsyms:   nsyms,
		Stroff:  stroff,
		Strsize: strsize,
	}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &st)
	return buf.Bytes()
}

// commands returns the encoded load command list and the number of commands in it.
func (ti *testImage) commands(nsyms, strsize uint32) ([]byte, uint32) {
	var cmds [][]byte
	for _, sz := range ti.before {
		cmds = append(cmds, fillerCommand(sz))
	}
	var pair [][]byte
	if !ti.noLinkedit {
		pair = append(pair, linkeditCommand(ti.linkeditAddr, ti.linkeditSize, ti.linkeditOffset))
	}
	if !ti.noSymtab {
		st := symtabCommand(ti.symOff, nsyms, ti.strOff, strsize)
		if ti.symtabFirst {
			pair = append([][]byte{st}, pair...)
		} else {
			pair = append(pair, st)
		}
	}
	cmds = append(cmds, pair...)
	for _, sz := range ti.after {
		cmds = append(cmds, fillerCommand(sz))
	}
	return bytes.Join(cmds, nil), uint32(len(cmds))
}

// headerBytes encodes the mach header followed by the load commands.
func (ti *testImage) headerBytes(nsyms, strsize uint32) []byte {
	cmds, ncmds := ti.commands(nsyms, strsize)
	hdr := Header{FileHeader: types.FileHeader{
		Magic:        types.Magic64,
		CPU:          ti.cpu,
		Type:         types.MH_DYLIB,
		NCommands:    ncmds,
		SizeCommands: uint32(len(cmds)),
	}}
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &hdr)
	buf.Write(cmds)
	return buf.Bytes()
}

// linkeditBytes lays out the symbol and string tables at their file offsets relative
// to the start of __LINKEDIT.
func (ti *testImage) linkeditBytes() (data []byte, nsyms, strsize uint32) {
	strtab, strx := ti.stringTable()
	symtab := ti.symbolTable(strx)
	data = make([]byte, ti.linkeditSize)
	copy(data[uint64(ti.symOff)-ti.linkeditOffset:], symtab)
	copy(data[uint64(ti.strOff)-ti.linkeditOffset:], strtab)
	return data, uint32(len(ti.syms)), uint32(len(strtab))
}

// mapInto maps the image into mem.
func (ti *testImage) mapInto(t *testing.T, mem *SparseMemory) {
	t.Helper()
	linkedit, nsyms, strsize := ti.linkeditBytes()
	require.NoError(t, mem.Map(ti.base, ti.headerBytes(nsyms, strsize)))
	require.NoError(t, mem.Map(uint64(ti.slide)+ti.linkeditAddr, linkedit))
}

type mockImage struct {
	name  string
	base  uint64
	slide int64
}

// mockProcess is an ImageSource over a SparseMemory.
type mockProcess struct {
	SparseMemory
	images []mockImage
}

func (m *mockProcess) add(t *testing.T, name string, ti *testImage) {
	t.Helper()
	ti.mapInto(t, &m.SparseMemory)
	m.images = append(m.images, mockImage{name: name, base: ti.base, slide: ti.slide})
}

func (m *mockProcess) ImageCount() int { return len(m.images) }

func (m *mockProcess) ImageName(index int) string { return m.images[index].name }

func (m *mockProcess) ImageHeader(index int) uint64 { return m.images[index].base }

func (m *mockProcess) ImageSlide(index int) int64 { return m.images[index].slide }

func collect(t *testing.T, seq func(func(Symbol, error) bool)) []Symbol {
	t.Helper()
	var syms []Symbol
	for sym, err := range seq {
		require.NoError(t, err)
		syms = append(syms, sym)
	}
	return syms
}
