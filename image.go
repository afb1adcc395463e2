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
	"iter"

	"github.com/apex/log"
	"github.com/blacktop/go-macho/types"
)

// SymbolFilter decides whether a raw entry is yielded. It runs before the name is
// read, so it can only look at the entry's fields.
type SymbolFilter func(Symbol) bool

var (
	// DefinedInFirstSection keeps named symbols defined in section 1, normally
	// __TEXT,__text. It is the default filter.
	DefinedInFirstSection SymbolFilter = func(s Symbol) bool {
		return s.Type&types.N_TYPE == types.N_SECT && s.Section == firstSection && s.StrIndex != 0
	}
	// DefinedNamed keeps every named symbol defined in any section.
	DefinedNamed SymbolFilter = func(s Symbol) bool {
		return s.Type&types.N_TYPE == types.N_SECT && !s.IsDebug() && s.StrIndex != 0
	}
	// ExternalOnly keeps named external definitions.
	ExternalOnly SymbolFilter = func(s Symbol) bool {
		return DefinedNamed(s) && s.Type&types.N_EXT != 0
	}
	// AnySymbol keeps every entry. Passed to SymbolsMatching it still drops unnamed
	// entries; AllSymbols keeps those too.
	AnySymbol SymbolFilter = func(Symbol) bool { return true }
)

// Image is one loaded Mach-O image as reported by the image source. It is a view on
// process memory and holds no decoded state: every call reads memory again.
type Image struct {
	// Index is the position of the image in the loader's list.
	Index int
	// Name is the path the loader reported for the image.
	Name string
	// Base is the address of the image's mach header.
	Base uint64
	// Slide is the offset applied to the image's file addresses when it was loaded.
	Slide int64

	mem Memory
	cfg *Config
}

// memory returns the image's address space; an Image built by hand without one reads
// nothing.
func (i *Image) memory() Memory {
	if i.mem == nil {
		return noMemory{}
	}
	return i.mem
}

func (i *Image) logger() log.Interface {
	return i.cfg.logger().WithFields(log.Fields{"image": i.Name, "index": i.Index})
}

// Header reads the image's mach header.
func (i *Image) Header() (*Header, error) {
	hdr, err := readHeader(i.memory(), i.Base)
	if err != nil {
		return nil, fmt.Errorf("failed to read mach header of %s: %w", i.Name, err)
	}
	if i.cfg.strict() && hdr.Magic != types.Magic64 {
		return nil, fmt.Errorf("%s has magic %#x: %w", i.Name, uint32(hdr.Magic), ErrBadMagic)
	}
	return hdr, nil
}

// Locate walks the load commands and returns where the symbol table lives.
func (i *Image) Locate() (*SymbolTableLocation, error) {
	hdr, err := i.Header()
	if err != nil {
		return nil, err
	}
	loc, err := locate(i.memory(), i.Base, i.Slide, hdr)
	if err != nil {
		return nil, fmt.Errorf("failed to locate symbol table of %s: %w", i.Name, err)
	}
	if i.cfg.strict() {
		if loc.CommandsSize != uint64(hdr.SizeCommands) {
			return nil, fmt.Errorf("%s: walked %d bytes, header declares %d: %w", i.Name, loc.CommandsSize, hdr.SizeCommands, ErrCommandsSizeMismatch)
		}
		if err = loc.Validate(); err != nil {
			return nil, fmt.Errorf("%s: %w", i.Name, err)
		}
	}
	i.logger().WithFields(log.Fields{
		"symoff": fmt.Sprintf("%#x", loc.SymOff),
		"nsyms":  loc.NSyms,
		"stroff": fmt.Sprintf("%#x", loc.StrOff),
	}).Debug("located symbol table")
	return loc, nil
}

// Table locates and resolves the image's symbol table.
func (i *Image) Table() (ResolvedTable, error) {
	loc, err := i.Locate()
	if err != nil {
		return ResolvedTable{}, err
	}
	return loc.Resolve(), nil
}

// Symbols yields the symbols accepted by the configured filter.
func (i *Image) Symbols() iter.Seq2[Symbol, error] {
	return i.SymbolsMatching(i.cfg.filter())
}

// AllSymbols yields every entry of the symbol table, including unnamed ones.
func (i *Image) AllSymbols() iter.Seq2[Symbol, error] {
	return i.symbols(AnySymbol, false)
}

// SymbolsMatching yields the named symbols accepted by keep. Each iteration walks the
// load commands again, so the sequence can be restarted, but nothing guards against
// the image being unloaded while it runs. A structural error is yielded once and ends
// the sequence.
func (i *Image) SymbolsMatching(keep SymbolFilter) iter.Seq2[Symbol, error] {
	return i.symbols(keep, true)
}

func (i *Image) symbols(keep SymbolFilter, requireName bool) iter.Seq2[Symbol, error] {
	return func(yield func(Symbol, error) bool) {
		tab, err := i.Table()
		if err != nil {
			yield(Symbol{}, err)
			return
		}
		for idx := uint32(0); idx < tab.Count; idx++ {
			n, err := readNlist64(i.memory(), tab.SymbolsAddr+uint64(idx)*nlist64Size)
			if err != nil {
				yield(Symbol{}, fmt.Errorf("failed to read symbol %d of %s: %w", idx, i.Name, err))
				return
			}
			sym := newSymbol(idx, n)
			if !keep(sym) {
				continue
			}
			name, ok := symbolName(i.memory(), tab, sym.StrIndex)
			if !ok && requireName {
				continue
			}
			sym.Name = name
			if !yield(sym, nil) {
				return
			}
		}
	}
}

// CollectSymbols gathers Symbols into a slice.
func (i *Image) CollectSymbols() ([]Symbol, error) {
	var syms []Symbol
	for sym, err := range i.Symbols() {
		if err != nil {
			return nil, err
		}
		syms = append(syms, sym)
	}
	return syms, nil
}

// FindSymbol returns the first named definition called name.
func (i *Image) FindSymbol(name string) (Symbol, error) {
	for sym, err := range i.SymbolsMatching(DefinedNamed) {
		if err != nil {
			return Symbol{}, err
		}
		if sym.Name == name {
			return sym, nil
		}
	}
	return Symbol{}, ErrSymbolNotFound
}

// String returns a one line summary of the image.
func (i *Image) String() string {
	return fmt.Sprintf("[%d] %s base=%#x slide=%#x", i.Index, i.Name, i.Base, i.Slide)
}
