package aobgen

import (
	"debug/pe"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Instruction is a decoded instruction at a match site.
type Instruction struct {
	Text string
	Len  int

	// Reference is the address a PC-relative operand of the instruction
	// points to (branch targets, RIP-relative memory operands, ADR/ADRP).
	// It is zero when the instruction has no such operand.
	Reference uint64
}

// Decode decodes the instruction starting at offset within the given
// section. Addresses are relative to the section address, so they live in
// the same space as resolved signature addresses. x86, x86-64 and ARM64
// images are supported.
func (img *Image) Decode(section, offset int) (Instruction, error) {
	if section < 0 || section >= len(img.Sections) {
		return Instruction{}, fmt.Errorf("section index %d out of range", section)
	}
	sec := img.Sections[section]
	if offset < 0 || offset >= len(sec.Data) {
		return Instruction{}, fmt.Errorf("offset %#x outside section %s", offset, sec.Name)
	}
	code := sec.Data[offset:]
	pc := sec.Addr + uint64(offset)

	switch img.Machine {
	case pe.IMAGE_FILE_MACHINE_AMD64:
		return decodeX86(code, pc, 64)
	case pe.IMAGE_FILE_MACHINE_I386:
		return decodeX86(code, pc, 32)
	case pe.IMAGE_FILE_MACHINE_ARM64:
		return decodeARM64(code, pc)
	default:
		return Instruction{}, fmt.Errorf("unsupported machine %#x", img.Machine)
	}
}

// Disassemble is like Decode but only returns the instruction text.
func (img *Image) Disassemble(section, offset int) (string, error) {
	inst, err := img.Decode(section, offset)
	if err != nil {
		return "", err
	}
	return inst.Text, nil
}

func decodeX86(code []byte, pc uint64, mode int) (Instruction, error) {
	// x86asm does not know the CET markers.
	if len(code) >= 4 && code[0] == 0xf3 && code[1] == 0x0f && code[2] == 0x1e {
		switch code[3] {
		case 0xfa:
			return Instruction{Text: "endbr64", Len: 4}, nil
		case 0xfb:
			return Instruction{Text: "endbr32", Len: 4}, nil
		}
	}

	inst, err := x86asm.Decode(code, mode)
	if err != nil {
		return Instruction{}, fmt.Errorf("failed to decode instruction at %#x: %w", pc, err)
	}

	out := Instruction{
		Text: x86asm.IntelSyntax(inst, pc, nil),
		Len:  inst.Len,
	}
	next := pc + uint64(inst.Len)
	for _, arg := range inst.Args {
		if arg == nil {
			break
		}
		switch a := arg.(type) {
		case x86asm.Rel:
			out.Reference = next + uint64(int64(a))
		case x86asm.Mem:
			if a.Base == x86asm.RIP && a.Index == 0 {
				out.Reference = next + uint64(a.Disp)
			}
		}
		if out.Reference != 0 {
			break
		}
	}
	return out, nil
}

func decodeARM64(code []byte, pc uint64) (Instruction, error) {
	const insnLen = 4

	if len(code) < insnLen {
		return Instruction{}, fmt.Errorf("truncated instruction at %#x", pc)
	}
	inst, err := arm64asm.Decode(code[:insnLen])
	if err != nil {
		return Instruction{}, fmt.Errorf("failed to decode instruction at %#x: %w", pc, err)
	}

	out := Instruction{
		Text: strings.TrimSpace(arm64asm.GNUSyntax(inst)),
		Len:  insnLen,
	}
	for _, arg := range inst.Args {
		rel, ok := arg.(arm64asm.PCRel)
		if !ok {
			continue
		}
		base := pc
		if inst.Op == arm64asm.ADRP {
			base &^= 0xfff
		}
		out.Reference = base + uint64(int64(rel))
		break
	}
	return out, nil
}
