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
	"io"
	"os"

	"github.com/blacktop/go-macho"
	"github.com/blacktop/go-macho/types"
)

var _ Process = (*MappedProcess)(nil)

// MappedProcess is a simulated address space holding Mach-O files mapped the way dyld
// would map them: every segment at its vmaddr plus the slide. It lets the catalog run
// against binaries on disk, on any host.
type MappedProcess struct {
	SparseMemory
	images  []mappedImage
	readers []io.ReaderAt
}

type mappedImage struct {
	name  string
	base  uint64
	slide int64
}

// NewMappedProcess returns an empty process.
func NewMappedProcess() *MappedProcess {
	return new(MappedProcess)
}

// MapFile opens the Mach-O at path and maps it with the given slide.
func (p *MappedProcess) MapFile(path string, slide int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	if err = p.MapReader(path, f, slide); err != nil {
		f.Close()
		return err
	}
	return nil
}

// MapReader maps the Mach-O read from r under name. The segments are copied, but r is
// kept so Close can release it if it is an io.Closer.
func (p *MappedProcess) MapReader(name string, r io.ReaderAt, slide int64) error {
	f, err := macho.NewFile(r)
	if err != nil {
		return fmt.Errorf("error when parsing the Mach-O file: %w", err)
	}
	if f.Magic != types.Magic64 {
		return fmt.Errorf("%s has magic %#x: %w", name, uint32(f.Magic), ErrUnsupportedFile)
	}

	var base uint64
	var haveHeader bool
	// Segments are mapped all or nothing.
	var mapped []*Region
	rollback := func() {
		for _, region := range mapped {
			p.remove(region)
		}
	}
	for _, seg := range f.Segments() {
		if seg.Memsz == 0 || seg.Prot == 0 {
			// __PAGEZERO and friends reserve address space only.
			continue
		}
		data, err := seg.Data()
		if err != nil {
			rollback()
			return fmt.Errorf("failed to read segment %s of %s: %w", seg.Name, name, err)
		}
		addr := seg.Addr + uint64(slide)
		region := zeroFilled(addr, seg.Memsz, data)
		if err = p.insert(region); err != nil {
			rollback()
			return fmt.Errorf("failed to map segment %s of %s at %#x: %w", seg.Name, name, addr, err)
		}
		mapped = append(mapped, region)
		if seg.Offset == 0 && seg.Filesz > 0 {
			base = addr
			haveHeader = true
		}
	}
	if !haveHeader {
		rollback()
		return fmt.Errorf("%s: %w", name, ErrNoHeaderSegment)
	}

	p.images = append(p.images, mappedImage{name: name, base: base, slide: slide})
	p.readers = append(p.readers, r)
	return nil
}

func (p *MappedProcess) ImageCount() int {
	return len(p.images)
}

func (p *MappedProcess) ImageName(index int) string {
	if index < 0 || index >= len(p.images) {
		return ""
	}
	return p.images[index].name
}

func (p *MappedProcess) ImageHeader(index int) uint64 {
	if index < 0 || index >= len(p.images) {
		return 0
	}
	return p.images[index].base
}

func (p *MappedProcess) ImageSlide(index int) int64 {
	if index < 0 || index >= len(p.images) {
		return 0
	}
	return p.images[index].slide
}

// Close releases the readers the images were mapped from.
func (p *MappedProcess) Close() error {
	var errs []error
	for _, r := range p.readers {
		errs = append(errs, tryClose(r))
	}
	p.readers = nil
	return errors.Join(errs...)
}
