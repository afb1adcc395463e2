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
	"errors"
	"testing"

	"github.com/blacktop/go-macho/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeImages maps two readable images around one that lacks LC_SYMTAB.
func threeImages(t *testing.T) *mockProcess {
	t.Helper()
	p := new(mockProcess)

	first := newTestImage(
		testSym{name: "_main", typ: types.N_SECT | types.N_EXT, sect: 1, value: 0x100003f00},
		testSym{name: "_helper", typ: types.N_SECT, sect: 1, value: 0x100003f40},
	)
	p.add(t, "/usr/bin/tool", first)

	broken := newTestImage(testSym{name: "_lost", typ: types.N_SECT, sect: 1})
	broken.base = 0x200000000
	broken.slide = 0x10000
	broken.noSymtab = true
	p.add(t, "/usr/lib/libbroken.dylib", broken)

	last := newTestImage(testSym{name: "_strlen", typ: types.N_SECT | types.N_EXT, sect: 1, value: 0x1800})
	last.base = 0x300000000
	last.slide = 0x20000
	p.add(t, "/usr/lib/system/libsystem_c.dylib", last)
	return p
}

func TestCatalogImages(t *testing.T) {
	assert := assert.New(t)
	c := NewProcessCatalog(threeImages(t), &Config{Logger: quietLogger})

	assert.Equal(3, c.Count())
	var got []string
	for img := range c.Images() {
		got = append(got, img.Name)
	}
	assert.Equal([]string{"/usr/bin/tool", "/usr/lib/libbroken.dylib", "/usr/lib/system/libsystem_c.dylib"}, got)

	img, err := c.Image(2)
	require.NoError(t, err)
	assert.Equal(uint64(0x300000000), img.Base)
	assert.Equal(int64(0x20000), img.Slide)
	assert.Equal(2, img.Index)

	_, err = c.Image(3)
	assert.ErrorIs(err, ErrImageNotFound)
	_, err = c.Image(-1)
	assert.ErrorIs(err, ErrImageNotFound)
}

func TestCatalogSkipsImagesWithoutHeader(t *testing.T) {
	p := threeImages(t)
	p.images[1].base = 0
	c := NewProcessCatalog(p, &Config{Logger: quietLogger})

	_, err := c.Image(1)
	assert.ErrorIs(t, err, ErrImageNotFound)

	var got []int
	for img := range c.Images() {
		got = append(got, img.Index)
	}
	assert.Equal(t, []int{0, 2}, got)
}

func TestCatalogImageByName(t *testing.T) {
	c := NewProcessCatalog(threeImages(t), &Config{Logger: quietLogger})

	img, err := c.ImageByName("libsystem_c.dylib")
	require.NoError(t, err)
	assert.Equal(t, 2, img.Index)

	img, err = c.ImageByName("/usr/bin/tool")
	require.NoError(t, err)
	assert.Equal(t, 0, img.Index)

	_, err = c.ImageByName("libnothere.dylib")
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestCatalogEachSymbol(t *testing.T) {
	c := NewProcessCatalog(threeImages(t), &Config{Logger: quietLogger})

	type hit struct {
		image int
		name  string
	}
	var hits []hit
	err := c.EachSymbol(func(img *Image, sym Symbol) error {
		hits = append(hits, hit{img.Index, sym.Name})
		return nil
	})
	assert.ErrorIs(t, err, ErrRequiredCommandsNotFound)
	assert.Equal(t, []hit{{0, "_main"}, {0, "_helper"}, {2, "_strlen"}}, hits)
}

func TestCatalogEachSymbolStops(t *testing.T) {
	c := NewProcessCatalog(threeImages(t), &Config{Logger: quietLogger})
	stop := errors.New("stop")

	calls := 0
	err := c.EachSymbol(func(*Image, Symbol) error {
		calls++
		return stop
	})
	assert.Equal(t, stop, err)
	assert.Equal(t, 1, calls)
}

func TestCatalogDefaults(t *testing.T) {
	var cfg *Config
	assert.NotNil(t, cfg.logger())
	assert.NotNil(t, cfg.filter())

	c := NewCatalog(threeImages(t), nil, nil)
	assert.NotNil(t, c.cfg)
}
