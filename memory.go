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
	"sort"
)

// Memory gives bounded read access to an address space.
type Memory interface {
	// ReadMemory fills p with the len(p) bytes starting at addr. A read that can't
	// be satisfied in full returns an error and leaves p undefined.
	ReadMemory(p []byte, addr uint64) error
}

// noMemory is an address space with nothing mapped.
type noMemory struct{}

func (noMemory) ReadMemory(p []byte, addr uint64) error {
	return &MemError{Addr: addr, Size: len(p)}
}

// memReader turns a Memory into a sequential io.Reader starting at Addr.
type memReader struct {
	mem  Memory
	addr uint64
}

func (m *memReader) Read(p []byte) (int, error) {
	if err := m.mem.ReadMemory(p, m.addr); err != nil {
		return 0, err
	}
	m.addr += uint64(len(p))
	return len(p), nil
}

const cstringChunk = 64

// readCString reads a NUL-terminated string at addr, looking at no more than limit
// bytes. found is false if no terminator was met within the limit.
func readCString(mem Memory, addr, limit uint64) (s []byte, found bool, err error) {
	buf := make([]byte, cstringChunk)
	var out []byte
	for read := uint64(0); read < limit; {
		n := uint64(cstringChunk)
		if limit-read < n {
			n = limit - read
		}
		chunk := buf[:n]
		if err := mem.ReadMemory(chunk, addr+read); err != nil {
			// The chunk may straddle the end of a mapping; retry byte by byte.
			chunk, err = readPartial(mem, addr+read, n)
			if len(chunk) == 0 {
				return nil, false, err
			}
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return append(out, chunk[:i]...), true, nil
		}
		out = append(out, chunk...)
		read += uint64(len(chunk))
		if uint64(len(chunk)) < n {
			return out, false, nil
		}
	}
	return out, false, nil
}

// readPartial reads up to n bytes at addr one at a time and stops at the first
// unreadable byte.
func readPartial(mem Memory, addr, n uint64) ([]byte, error) {
	out := make([]byte, 0, n)
	b := make([]byte, 1)
	for i := uint64(0); i < n; i++ {
		if err := mem.ReadMemory(b, addr+i); err != nil {
			return out, err
		}
		out = append(out, b[0])
	}
	return out, nil
}

// Region is one contiguous mapping of a SparseMemory.
type Region struct {
	Addr uint64
	Data []byte
}

// End is the first address past the region.
func (r *Region) End() uint64 {
	return r.Addr + uint64(len(r.Data))
}

// Contains reports whether addr falls inside the region.
func (r *Region) Contains(addr uint64) bool {
	return r.Addr <= addr && addr < r.End()
}

// SparseMemory is an address space made of independent byte regions. It is used to
// stand in for a live process when the images come from files or are synthesized.
type SparseMemory struct {
	regions []*Region
}

// Map copies data into a new region at addr.
func (m *SparseMemory) Map(addr uint64, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	return m.insert(&Region{Addr: addr, Data: buf})
}

// MapZeroed maps size zero bytes at addr and copies data to the start of it. It
// matches segments whose memory size exceeds their file size.
func (m *SparseMemory) MapZeroed(addr, size uint64, data []byte) error {
	return m.insert(zeroFilled(addr, size, data))
}

func zeroFilled(addr, size uint64, data []byte) *Region {
	buf := make([]byte, size)
	copy(buf, data)
	return &Region{Addr: addr, Data: buf}
}

// remove drops a region previously added by insert.
func (m *SparseMemory) remove(r *Region) {
	for i, x := range m.regions {
		if x == r {
			m.regions = append(m.regions[:i], m.regions[i+1:]...)
			return
		}
	}
}

func (m *SparseMemory) insert(r *Region) error {
	if len(r.Data) == 0 {
		return nil
	}
	i := sort.Search(len(m.regions), func(i int) bool {
		return m.regions[i].Addr >= r.Addr
	})
	if i > 0 && m.regions[i-1].End() > r.Addr {
		return ErrOverlappingRegion
	}
	if i < len(m.regions) && r.End() > m.regions[i].Addr {
		return ErrOverlappingRegion
	}
	m.regions = append(m.regions, nil)
	copy(m.regions[i+1:], m.regions[i:])
	m.regions[i] = r
	return nil
}

// Regions returns the mapped regions sorted by address.
func (m *SparseMemory) Regions() []*Region {
	return m.regions
}

func (m *SparseMemory) find(addr uint64) *Region {
	i := sort.Search(len(m.regions), func(i int) bool {
		return m.regions[i].End() > addr
	})
	if i < len(m.regions) && m.regions[i].Contains(addr) {
		return m.regions[i]
	}
	return nil
}

// RangeValid reports whether every byte in [addr, addr+size) is mapped.
func (m *SparseMemory) RangeValid(addr, size uint64) bool {
	end := addr + size
	if end < addr {
		return false
	}
	for addr < end {
		r := m.find(addr)
		if r == nil {
			return false
		}
		addr = r.End()
	}
	return true
}

// ReadMemory implements Memory. Reads may span adjacent regions.
func (m *SparseMemory) ReadMemory(p []byte, addr uint64) error {
	for len(p) > 0 {
		r := m.find(addr)
		if r == nil {
			return &MemError{Addr: addr, Size: len(p)}
		}
		n := copy(p, r.Data[addr-r.Addr:])
		p = p[n:]
		addr += uint64(n)
	}
	return nil
}
