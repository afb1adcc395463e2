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
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

const (
	ArchAMD64 = "amd64"
	ArchARM64 = "arm64"
)

// x86 instructions are at most 15 bytes long.
const maxX86InstLen = 15

// Instruction is one decoded machine instruction.
type Instruction struct {
	Addr uint64
	Len  int
	Text string
}

// Arch returns the architecture named by the image's CPU type.
func (i *Image) Arch() (string, error) {
	hdr, err := i.Header()
	if err != nil {
		return "", err
	}
	switch hdr.CPU {
	case types.CPUAmd64:
		return ArchAMD64, nil
	case types.CPUArm64:
		return ArchARM64, nil
	default:
		return "", fmt.Errorf("cpu type %#x: %w", uint32(hdr.CPU), ErrUnsupportedArch)
	}
}

// Disassemble decodes up to n instructions at the symbol's runtime address. Decoding
// stops early at the first byte sequence that is not a valid instruction.
func (i *Image) Disassemble(sym Symbol, n int) ([]Instruction, error) {
	arch, err := i.Arch()
	if err != nil {
		return nil, err
	}
	pc := sym.RuntimeAddress(i.Slide)
	var insts []Instruction
	for len(insts) < n {
		var inst Instruction
		switch arch {
		case ArchARM64:
			inst, err = decodeARM64(i.memory(), pc)
		default:
			inst, err = decodeAMD64(i.memory(), pc)
		}
		if err != nil {
			if len(insts) == 0 {
				return nil, err
			}
			break
		}
		insts = append(insts, inst)
		pc += uint64(inst.Len)
	}
	return insts, nil
}

func decodeARM64(mem Memory, pc uint64) (Instruction, error) {
	buf := make([]byte, 4)
	if err := mem.ReadMemory(buf, pc); err != nil {
		return Instruction{}, err
	}
	inst, err := arm64asm.Decode(buf)
	if err != nil {
		return Instruction{}, fmt.Errorf("failed to decode instruction at %#x: %w", pc, err)
	}
	// GNUSyntax pads operand-less instructions with a trailing space.
	return Instruction{Addr: pc, Len: 4, Text: strings.TrimSpace(arm64asm.GNUSyntax(inst))}, nil
}

func decodeAMD64(mem Memory, pc uint64) (Instruction, error) {
	buf := make([]byte, maxX86InstLen)
	if err := mem.ReadMemory(buf, pc); err != nil {
		// Near the end of a mapping; decode from what is readable.
		buf, err = readPartial(mem, pc, maxX86InstLen)
		if len(buf) == 0 {
			return Instruction{}, err
		}
	}
	inst, err := x86asm.Decode(buf, 64)
	if err != nil {
		return Instruction{}, fmt.Errorf("failed to decode instruction at %#x: %w", pc, err)
	}
	return Instruction{Addr: pc, Len: inst.Len, Text: x86asm.IntelSyntax(inst, pc, nil)}, nil
}
