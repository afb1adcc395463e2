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
	"iter"
	"path/filepath"

	"github.com/apex/log"
)

// ImageSource is the dynamic linker's list of loaded images.
type ImageSource interface {
	// ImageCount returns the number of loaded images.
	ImageCount() int
	// ImageName returns the path of the image at index.
	ImageName(index int) string
	// ImageHeader returns the address of the image's mach header, or 0 if index is
	// out of range.
	ImageHeader(index int) uint64
	// ImageSlide returns the image's load slide.
	ImageSlide(index int) int64
}

// Process is an image source whose memory can be read.
type Process interface {
	ImageSource
	Memory
}

// Config controls how a Catalog decodes images.
type Config struct {
	// Filter selects the symbols Image.Symbols yields. Nil means DefinedInFirstSection.
	Filter SymbolFilter
	// Strict enables header magic, command size and table bounds checks.
	Strict bool
	// Logger receives debug and warning messages. Nil means log.Log.
	Logger log.Interface
}

func (c *Config) filter() SymbolFilter {
	if c == nil || c.Filter == nil {
		return DefinedInFirstSection
	}
	return c.Filter
}

func (c *Config) strict() bool {
	return c != nil && c.Strict
}

func (c *Config) logger() log.Interface {
	if c == nil || c.Logger == nil {
		return log.Log
	}
	return c.Logger
}

// Catalog enumerates the images of a process.
type Catalog struct {
	src ImageSource
	mem Memory
	cfg *Config
}

// NewCatalog returns a catalog over src whose images are read through mem. A nil cfg
// uses the defaults.
func NewCatalog(src ImageSource, mem Memory, cfg *Config) *Catalog {
	if cfg == nil {
		cfg = new(Config)
	}
	return &Catalog{src: src, mem: mem, cfg: cfg}
}

// NewProcessCatalog returns a catalog over a Process.
func NewProcessCatalog(p Process, cfg *Config) *Catalog {
	return NewCatalog(p, p, cfg)
}

// Open returns a catalog over the current process.
func Open(cfg *Config) (*Catalog, error) {
	p, err := Host()
	if err != nil {
		return nil, err
	}
	return NewProcessCatalog(p, cfg), nil
}

// Count returns the number of images the source currently reports.
func (c *Catalog) Count() int {
	return c.src.ImageCount()
}

// Image returns the image at index.
func (c *Catalog) Image(index int) (*Image, error) {
	if index < 0 || index >= c.src.ImageCount() {
		return nil, fmt.Errorf("no image at index %d: %w", index, ErrImageNotFound)
	}
	base := c.src.ImageHeader(index)
	if base == 0 {
		return nil, fmt.Errorf("no header for image %d: %w", index, ErrImageNotFound)
	}
	return &Image{
		Index: index,
		Name:  c.src.ImageName(index),
		Base:  base,
		Slide: c.src.ImageSlide(index),
		mem:   c.mem,
		cfg:   c.cfg,
	}, nil
}

// Images yields a fresh view of every loaded image. Images that disappear while the
// sequence runs are skipped.
func (c *Catalog) Images() iter.Seq[*Image] {
	return func(yield func(*Image) bool) {
		n := c.src.ImageCount()
		for i := 0; i < n; i++ {
			img, err := c.Image(i)
			if err != nil {
				c.cfg.logger().WithError(err).Debug("skipping image")
				continue
			}
			if !yield(img) {
				return
			}
		}
	}
}

// ImageByName returns the first image whose path or base name equals name.
func (c *Catalog) ImageByName(name string) (*Image, error) {
	for img := range c.Images() {
		if img.Name == name || filepath.Base(img.Name) == name {
			return img, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", name, ErrImageNotFound)
}

// EachSymbol calls fn for every symbol of every image. An image whose symbol table
// can't be read is logged and skipped; its error is part of the joined error returned
// once all images have been walked. An error from fn stops the walk immediately.
func (c *Catalog) EachSymbol(fn func(*Image, Symbol) error) error {
	var errs []error
	for img := range c.Images() {
		for sym, err := range img.Symbols() {
			if err != nil {
				img.logger().WithError(err).Warn("skipping image")
				errs = append(errs, err)
				break
			}
			if err = fn(img, sym); err != nil {
				return err
			}
		}
	}
	return errors.Join(errs...)
}
