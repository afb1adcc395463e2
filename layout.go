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

	"github.com/blacktop/go-macho/types"
)

// Record sizes of the 64-bit Mach-O structures read out of memory.
const (
	headerSize        = types.FileHeaderSize64
	loadCommandSize   = 8
	segment64Size     = 72
	symtabCommandSize = 24
	nlist64Size       = 16
)

// n_desc bits.
const (
	descWeakRef uint16 = 0x0040
	descWeakDef uint16 = 0x0080
)

const (
	segLinkedit = "__LINKEDIT"
	// firstSection is the n_sect of the first section, normally __TEXT,__text.
	firstSection = 1
)

// Both supported darwin targets (amd64 and arm64) are little endian.
var byteOrder binary.ByteOrder = binary.LittleEndian

// Header is a mach_header_64.
type Header struct {
	types.FileHeader
}

// loadCommand is the prefix shared by every load command.
type loadCommand struct {
	Cmd types.LoadCmd
	Len uint32
}

func readRecord(mem Memory, addr uint64, v any) error {
	return binary.Read(&memReader{mem: mem, addr: addr}, byteOrder, v)
}

func readHeader(mem Memory, addr uint64) (*Header, error) {
	h := new(Header)
	if err := readRecord(mem, addr, h); err != nil {
		return nil, err
	}
	return h, nil
}

func readLoadCommand(mem Memory, addr uint64) (loadCommand, error) {
	var lc loadCommand
	err := readRecord(mem, addr, &lc)
	return lc, err
}

func readSegment64(mem Memory, addr uint64) (*types.Segment64, error) {
	seg := new(types.Segment64)
	if err := readRecord(mem, addr, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func readSymtabCommand(mem Memory, addr uint64) (*types.SymtabCmd, error) {
	st := new(types.SymtabCmd)
	if err := readRecord(mem, addr, st); err != nil {
		return nil, err
	}
	return st, nil
}

func readNlist64(mem Memory, addr uint64) (types.Nlist64, error) {
	var n types.Nlist64
	err := readRecord(mem, addr, &n)
	return n, err
}

// segmentName returns the fixed-length name with its NUL padding removed.
func segmentName(name [16]byte) string {
	return string(bytes.TrimRight(name[:], "\x00"))
}
