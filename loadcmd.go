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
	"fmt"

	"github.com/blacktop/go-macho/types"
)

// LoadCommand is one entry of the command list that follows a Mach-O header.
type LoadCommand struct {
	// Addr is where the command starts in memory.
	Addr uint64
	// Cmd is the command id.
	Cmd types.LoadCmd
	// Size is the declared command size, including the 8 byte prefix.
	Size uint32
}

// WalkLoadCommands visits the ncmds load commands that follow the header at base and
// returns the number of bytes they occupy. The walk stops at the first error returned
// by fn.
func WalkLoadCommands(mem Memory, base uint64, ncmds uint32, fn func(LoadCommand) error) (uint64, error) {
	addr := base + headerSize
	for i := uint32(0); i < ncmds; i++ {
		lc, err := readLoadCommand(mem, addr)
		if err != nil {
			return addr - base - headerSize, fmt.Errorf("failed to read load command %d: %w", i, err)
		}
		if lc.Len < loadCommandSize {
			return addr - base - headerSize, fmt.Errorf("load command %d (%#x) has size %d: %w", i, uint32(lc.Cmd), lc.Len, ErrMalformedLoadCommand)
		}
		if err = fn(LoadCommand{Addr: addr, Cmd: lc.Cmd, Size: lc.Len}); err != nil {
			return addr - base - headerSize, err
		}
		addr += uint64(lc.Len)
	}
	return addr - base - headerSize, nil
}

// LocateSymbolTable walks the load commands of the image whose header is at base and
// pairs its LC_SYMTAB command with the __LINKEDIT segment. Both must be present.
func LocateSymbolTable(mem Memory, base uint64, slide int64) (*SymbolTableLocation, error) {
	hdr, err := readHeader(mem, base)
	if err != nil {
		return nil, fmt.Errorf("failed to read mach header: %w", err)
	}
	return locate(mem, base, slide, hdr)
}

func locate(mem Memory, base uint64, slide int64, hdr *Header) (*SymbolTableLocation, error) {
	var symtab *types.SymtabCmd
	var linkedit *types.Segment64

	consumed, err := WalkLoadCommands(mem, base, hdr.NCommands, func(lc LoadCommand) error {
		switch lc.Cmd {
		case types.LC_SYMTAB:
			st, err := readSymtabCommand(mem, lc.Addr)
			if err != nil {
				return fmt.Errorf("failed to read LC_SYMTAB: %w", err)
			}
			symtab = st
		case types.LC_SEGMENT_64:
			seg, err := readSegment64(mem, lc.Addr)
			if err != nil {
				return fmt.Errorf("failed to read LC_SEGMENT_64: %w", err)
			}
			if segmentName(seg.Name) == segLinkedit {
				linkedit = seg
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if symtab == nil || linkedit == nil {
		return nil, ErrRequiredCommandsNotFound
	}

	return &SymbolTableLocation{
		SymOff:         symtab.Symoff,
		NSyms:          symtab.Nsyms,
		StrOff:         symtab.Stroff,
		StrSize:        symtab.Strsize,
		LinkeditBase:   uint64(slide) + linkedit.Addr,
		LinkeditOffset: linkedit.Offset,
		LinkeditSize:   linkedit.Memsz,
		CommandsSize:   consumed,
	}, nil
}
