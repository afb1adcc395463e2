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
	"strings"

	"github.com/blacktop/go-macho/types"
)

// Kind is what the N_TYPE bits of a symbol say about its definition.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUndefined
	KindCommon
	KindAbsolute
	KindDefined
	KindIndirect
)

var kindNames = [...]string{
	KindUnknown:   "unknown",
	KindUndefined: "undefined",
	KindCommon:    "common",
	KindAbsolute:  "absolute",
	KindDefined:   "defined",
	KindIndirect:  "indirect",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// Binding tells whether a symbol is visible outside its image.
type Binding uint8

const (
	BindingLocal Binding = iota
	BindingExternal
)

func (b Binding) String() string {
	if b == BindingExternal {
		return "external"
	}
	return "local"
}

// Scope is the weak/strong attribute carried in n_desc.
type Scope uint8

const (
	ScopeStrong Scope = iota
	ScopeWeakDef
	ScopeWeakRef
)

func (s Scope) String() string {
	switch s {
	case ScopeWeakDef:
		return "weak-def"
	case ScopeWeakRef:
		return "weak-ref"
	default:
		return "strong"
	}
}

// ClassifyKind maps the type byte of an entry to its Kind. An undefined entry with a
// non-zero value is a common (zero-filled) symbol whose value is its size.
func ClassifyKind(t types.NType, value uint64) Kind {
	switch t & types.N_TYPE {
	case types.N_UNDF:
		if value == 0 {
			return KindUndefined
		}
		return KindCommon
	case types.N_ABS:
		return KindAbsolute
	case types.N_SECT:
		return KindDefined
	case types.N_INDR:
		return KindIndirect
	default:
		return KindUnknown
	}
}

// ClassifyBinding reports BindingExternal iff N_EXT is set.
func ClassifyBinding(t types.NType) Binding {
	if t&types.N_EXT != 0 {
		return BindingExternal
	}
	return BindingLocal
}

// ClassifyScope reads the weak bits of n_desc. A weak definition wins over a weak
// reference.
func ClassifyScope(desc uint16) Scope {
	switch {
	case desc&descWeakDef != 0:
		return ScopeWeakDef
	case desc&descWeakRef != 0:
		return ScopeWeakRef
	default:
		return ScopeStrong
	}
}

// Symbol is one decoded nlist_64 entry.
type Symbol struct {
	// Name is read from the string table, invalid UTF-8 replaced.
	Name string `json:"name"`
	// Address is the raw n_value. It does not include the image slide.
	Address uint64 `json:"address"`
	// Type is the raw n_type byte.
	Type types.NType `json:"type"`
	// Section is the 1-based section number for section-defined symbols.
	Section uint8 `json:"section"`
	// Desc is the raw n_desc halfword.
	Desc uint16 `json:"desc"`
	// Index is the position of the entry in the symbol table.
	Index uint32 `json:"index"`
	// StrIndex is the entry's offset into the string table.
	StrIndex uint32 `json:"strx"`
}

func (s Symbol) Kind() Kind {
	return ClassifyKind(s.Type, s.Address)
}

func (s Symbol) Binding() Binding {
	return ClassifyBinding(s.Type)
}

func (s Symbol) Scope() Scope {
	return ClassifyScope(s.Desc)
}

// IsDebug reports a stab (debugger) entry.
func (s Symbol) IsDebug() bool {
	return s.Type&types.N_STAB != 0
}

// IsPrivateExternal reports a symbol that was external before static linking.
func (s Symbol) IsPrivateExternal() bool {
	return s.Type&types.N_PEXT != 0
}

// RuntimeAddress returns the live address of the symbol in an image loaded with slide.
func (s Symbol) RuntimeAddress(slide int64) uint64 {
	return s.Address + uint64(slide)
}

// String returns a short summary of the symbol.
func (s Symbol) String() string {
	return fmt.Sprintf("<Symbol %s (%s:%s)>", s.Name, s.Kind(), s.Binding())
}

func newSymbol(index uint32, n types.Nlist64) Symbol {
	return Symbol{
		Address:  n.Value,
		Type:     n.Type,
		Section:  n.Sect,
		Desc:     uint16(n.Desc),
		Index:    index,
		StrIndex: n.Name,
	}
}

// symbolName reads the name of an entry from the string table. ok is false when the
// entry has no name: a zero index, an index past the table, a missing terminator or an
// empty string.
func symbolName(mem Memory, tab ResolvedTable, strx uint32) (string, bool) {
	if strx == 0 || strx >= tab.StringsSize {
		return "", false
	}
	raw, found, err := readCString(mem, tab.StringsAddr+uint64(strx), uint64(tab.StringsSize-strx))
	if err != nil || !found || len(raw) == 0 {
		return "", false
	}
	return strings.ToValidUTF8(string(raw), "�"), true
}
