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
	"strings"

	"github.com/blacktop/go-macho/pkg/swift"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/ianlancetaylor/demangle"
)

// Demangler turns compiler-mangled names into readable ones.
type Demangler interface {
	// Demangle returns the readable form of name, or false if name could not be
	// decoded.
	Demangle(name string) (string, bool)
}

// DefaultDemangleCacheSize is the number of names a SymbolDemangler remembers.
const DefaultDemangleCacheSize = 4096

// SymbolDemangler decodes Swift, Itanium C++ and Rust names. Mach-O prefixes C-level
// names with an underscore, which is removed before C++ decoding.
type SymbolDemangler struct {
	cache *lru.Cache[string, string]
	opts  []demangle.Option
	swift func(string) (string, error)
}

// NewSymbolDemangler returns a demangler that caches up to size results.
func NewSymbolDemangler(size int, opts ...demangle.Option) (*SymbolDemangler, error) {
	if size <= 0 {
		size = DefaultDemangleCacheSize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &SymbolDemangler{cache: cache, opts: opts, swift: swift.Demangle}, nil
}

func (d *SymbolDemangler) Demangle(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if out, ok := d.cache.Get(name); ok {
		return out, out != ""
	}
	out := d.decode(name)
	d.cache.Add(name, out)
	return out, out != ""
}

func isSwiftName(name string) bool {
	return strings.HasPrefix(name, "_$s") || strings.HasPrefix(name, "$s")
}

func (d *SymbolDemangler) decode(name string) string {
	if isSwiftName(name) {
		out, err := d.swift(name)
		if err == nil && out != "" && out != name {
			return out
		}
		return ""
	}
	candidates := []string{name}
	if stripped, ok := strings.CutPrefix(name, "_"); ok && stripped != "" {
		candidates = []string{stripped, name}
	}
	for _, c := range candidates {
		out, err := demangle.ToString(c, d.opts...)
		if err == nil && out != c {
			return out
		}
	}
	return ""
}

// DisplayName returns the demangled name of sym when d can decode it, otherwise the
// raw name. A nil d returns the raw name.
func DisplayName(sym Symbol, d Demangler) string {
	if d == nil {
		return sym.Name
	}
	if out, ok := d.Demangle(sym.Name); ok {
		return out
	}
	return sym.Name
}
