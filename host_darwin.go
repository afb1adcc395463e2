//go:build darwin && cgo

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

/*
#include <stdint.h>
#include <mach-o/dyld.h>
*/
import "C"

import "unsafe"

// hostProcess reads the dyld image list and the memory of the running process.
type hostProcess struct{}

// Host returns the current process as seen by dyld.
func Host() (Process, error) {
	return hostProcess{}, nil
}

func (hostProcess) ImageCount() int {
	return int(C._dyld_image_count())
}

func (hostProcess) ImageName(index int) string {
	name := C._dyld_get_image_name(C.uint32_t(index))
	if name == nil {
		return ""
	}
	return C.GoString(name)
}

func (hostProcess) ImageHeader(index int) uint64 {
	return uint64(uintptr(unsafe.Pointer(C._dyld_get_image_header(C.uint32_t(index)))))
}

func (hostProcess) ImageSlide(index int) int64 {
	return int64(C._dyld_get_image_vmaddr_slide(C.uint32_t(index)))
}

// ReadMemory copies directly out of the address space. Unmapped addresses fault; only
// a null address is rejected up front.
func (hostProcess) ReadMemory(p []byte, addr uint64) error {
	if len(p) == 0 {
		return nil
	}
	if addr == 0 {
		return &MemError{Addr: addr, Size: len(p)}
	}
	src := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(p))
	copy(p, src)
	return nil
}
