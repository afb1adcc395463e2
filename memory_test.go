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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSparseMemory(t *testing.T) {
	t.Run("read_across_adjacent_regions", func(t *testing.T) {
		assert := assert.New(t)
		require := require.New(t)
		var mem SparseMemory
		require.NoError(mem.Map(0x1000, []byte{1, 2, 3, 4}))
		require.NoError(mem.Map(0x1004, []byte{5, 6}))

		buf := make([]byte, 4)
		require.NoError(mem.ReadMemory(buf, 0x1002))
		assert.Equal([]byte{3, 4, 5, 6}, buf)
		assert.True(mem.RangeValid(0x1000, 6))
	})

	t.Run("unmapped_reports_failing_address", func(t *testing.T) {
		assert := assert.New(t)
		var mem SparseMemory
		require.NoError(t, mem.Map(0x1000, []byte{1, 2, 3, 4}))

		err := mem.ReadMemory(make([]byte, 8), 0x1002)
		var merr *MemError
		if assert.ErrorAs(err, &merr) {
			assert.Equal(uint64(0x1004), merr.Addr)
			assert.Equal(6, merr.Size)
		}
		assert.False(mem.RangeValid(0x1002, 8))
		assert.False(mem.RangeValid(0x0fff, 1))
	})

	t.Run("overlap_rejected", func(t *testing.T) {
		assert := assert.New(t)
		var mem SparseMemory
		require.NoError(t, mem.Map(0x1000, make([]byte, 0x10)))
		assert.ErrorIs(mem.Map(0x1008, make([]byte, 0x10)), ErrOverlappingRegion)
		assert.ErrorIs(mem.Map(0x0ff8, make([]byte, 0x10)), ErrOverlappingRegion)
		assert.NoError(mem.Map(0x0ff0, make([]byte, 0x10)))
		assert.NoError(mem.Map(0x2000, nil))
		assert.Len(mem.Regions(), 2)
		assert.Equal(uint64(0x0ff0), mem.Regions()[0].Addr)
	})

	t.Run("range_wraps_address_space", func(t *testing.T) {
		var mem SparseMemory
		require.NoError(t, mem.Map(0xffffffffffffe000, make([]byte, 0x1000)))
		assert.True(t, mem.RangeValid(0xffffffffffffe000, 0x1000))
		// addr+size wraps past zero.
		assert.False(t, mem.RangeValid(0xffffffffffffe000, 0x3000))
		assert.False(t, mem.RangeValid(0xffffffffffffe800, ^uint64(0)))
	})

	t.Run("zero_fill", func(t *testing.T) {
		var mem SparseMemory
		require.NoError(t, mem.MapZeroed(0x4000, 8, []byte{0xaa, 0xbb}))
		buf := make([]byte, 8)
		require.NoError(t, mem.ReadMemory(buf, 0x4000))
		assert.Equal(t, []byte{0xaa, 0xbb, 0, 0, 0, 0, 0, 0}, buf)
	})

	t.Run("map_copies_data", func(t *testing.T) {
		var mem SparseMemory
		data := []byte{1}
		require.NoError(t, mem.Map(0x10, data))
		data[0] = 9
		buf := make([]byte, 1)
		require.NoError(t, mem.ReadMemory(buf, 0x10))
		assert.Equal(t, byte(1), buf[0])
	})
}

func TestReadCString(t *testing.T) {
	var mem SparseMemory
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'a'
	}
	require.NoError(t, mem.Map(0x1000, append([]byte("hello\x00world"), long...)))

	tests := []struct {
		name  string
		addr  uint64
		limit uint64
		want  string
		found bool
	}{
		{"terminated", 0x1000, 64, "hello", true},
		{"limit_before_terminator", 0x1000, 3, "hel", false},
		{"runs_off_mapping", 0x1006, 512, "world" + string(long), false},
		{"empty", 0x1005, 8, "", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)
			s, found, err := readCString(&mem, test.addr, test.limit)
			assert.NoError(err)
			assert.Equal(test.want, string(s))
			assert.Equal(test.found, found)
		})
	}

	t.Run("unmapped", func(t *testing.T) {
		_, found, err := readCString(&mem, 0x9000, 16)
		assert.Error(t, err)
		assert.False(t, found)
	})
}

func TestReadPartialKeepsZeroBytes(t *testing.T) {
	var mem SparseMemory
	require.NoError(t, mem.Map(0x1000, []byte{0x90, 0x00, 0xc3}))
	b, err := readPartial(&mem, 0x1000, 15)
	assert.Error(t, err)
	assert.Equal(t, []byte{0x90, 0x00, 0xc3}, b)
}
