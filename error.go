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
	"fmt"
)

var (
	// ErrRequiredCommandsNotFound is returned when an image lacks either the LC_SYMTAB
	// command or the __LINKEDIT segment.
	ErrRequiredCommandsNotFound = errors.New("required load commands not found")
	// ErrMalformedLoadCommand is returned when a load command declares a size smaller
	// than the command prefix.
	ErrMalformedLoadCommand = errors.New("malformed load command")
	// ErrSymbolNotFound is returned when a named symbol does not exist in an image.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrImageNotFound is returned when no loaded image matches the lookup.
	ErrImageNotFound = errors.New("image not found")
	// ErrUnsupportedFile is returned if the file is not a 64-bit Mach-O.
	ErrUnsupportedFile = errors.New("unsupported file")
	// ErrNoHeaderSegment is returned when no segment maps the Mach-O header.
	ErrNoHeaderSegment = errors.New("no segment maps the header")
	// ErrNoHostLoader is returned when the host dynamic linker can't be queried.
	ErrNoHostLoader = errors.New("host dynamic linker not available")
	// ErrTableOutOfBounds is returned in strict mode when the symbol or string table
	// extends past the __LINKEDIT segment.
	ErrTableOutOfBounds = errors.New("table out of link-edit bounds")
	// ErrBadMagic is returned in strict mode when the header is not MH_MAGIC_64.
	ErrBadMagic = errors.New("bad mach header magic")
	// ErrCommandsSizeMismatch is returned in strict mode when the walked commands do
	// not add up to sizeofcmds.
	ErrCommandsSizeMismatch = errors.New("load commands size mismatch")
	// ErrUnsupportedArch is returned when instructions can't be decoded for the
	// image's CPU type.
	ErrUnsupportedArch = errors.New("unsupported architecture")
	// ErrOverlappingRegion is returned when a mapping overlaps an existing one.
	ErrOverlappingRegion = errors.New("region overlaps existing mapping")
)

// MemError is returned when a read touches memory that is not mapped.
type MemError struct {
	Addr uint64
	Size int
}

func (e *MemError) Error() string {
	return fmt.Sprintf("unmapped read at %#x(%d)", e.Addr, e.Size)
}
