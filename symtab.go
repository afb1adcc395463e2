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

import "fmt"

// SymbolTableLocation holds what LC_SYMTAB and the __LINKEDIT segment say about where
// an image keeps its symbol and string tables. Offsets are file offsets.
type SymbolTableLocation struct {
	// SymOff is the file offset of the nlist_64 array.
	SymOff uint32
	// NSyms is the number of entries in the symbol table.
	NSyms uint32
	// StrOff is the file offset of the string table.
	StrOff uint32
	// StrSize is the size of the string table in bytes.
	StrSize uint32
	// LinkeditBase is the runtime address of __LINKEDIT, slide included.
	LinkeditBase uint64
	// LinkeditOffset is the file offset of __LINKEDIT.
	LinkeditOffset uint64
	// LinkeditSize is the virtual size of __LINKEDIT.
	LinkeditSize uint64
	// CommandsSize is the number of bytes the walked load commands occupied.
	CommandsSize uint64
}

// ResolvedTable is a symbol table located in memory.
type ResolvedTable struct {
	SymbolsAddr uint64
	StringsAddr uint64
	Count       uint32
	StringsSize uint32
}

// runtimeAddr translates a file offset inside __LINKEDIT to its live address.
func (l *SymbolTableLocation) runtimeAddr(fileoff uint32) uint64 {
	return l.LinkeditBase + (uint64(fileoff) - l.LinkeditOffset)
}

// Resolve computes the runtime addresses of the symbol and string tables.
func (l *SymbolTableLocation) Resolve() ResolvedTable {
	return ResolvedTable{
		SymbolsAddr: l.runtimeAddr(l.SymOff),
		StringsAddr: l.runtimeAddr(l.StrOff),
		Count:       l.NSyms,
		StringsSize: l.StrSize,
	}
}

// Validate checks that both tables lie within the __LINKEDIT segment.
func (l *SymbolTableLocation) Validate() error {
	if err := l.within("symbol table", uint64(l.SymOff), uint64(l.NSyms)*nlist64Size); err != nil {
		return err
	}
	return l.within("string table", uint64(l.StrOff), uint64(l.StrSize))
}

func (l *SymbolTableLocation) within(what string, off, size uint64) error {
	if off < l.LinkeditOffset {
		return fmt.Errorf("%s at %#x starts before __LINKEDIT at %#x: %w", what, off, l.LinkeditOffset, ErrTableOutOfBounds)
	}
	rel := off - l.LinkeditOffset
	if rel > l.LinkeditSize || size > l.LinkeditSize-rel {
		return fmt.Errorf("%s [%#x, %#x) exceeds __LINKEDIT size %#x: %w", what, off, off+size, l.LinkeditSize, ErrTableOutOfBounds)
	}
	return nil
}
