package aobgen

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// StrategyKind selects how a pattern match is turned into an address.
type StrategyKind string

// Supported resolution strategies.
const (
	// StrategyDirect yields the address of the match itself.
	StrategyDirect StrategyKind = "direct"
	// StrategyIndirect yields the 32-bit value stored at a fixed offset from
	// the match, taken as an already module-relative address.
	StrategyIndirect StrategyKind = "indirect"
	// StrategyIndirectTwice treats the stored 32-bit value as a displacement
	// from the match position, as in RIP-relative operands.
	StrategyIndirectTwice StrategyKind = "indirect-twice"
)

// Strategy is an address-resolution strategy together with its parameters.
// Only the fields relevant to Kind are meaningful.
type Strategy struct {
	Kind StrategyKind `json:"kind"`

	// ReadOffset is the operand position relative to the match (indirect).
	ReadOffset int `json:"read_offset,omitempty"`

	// OffsetFromPattern is the displacement position relative to the match
	// and OffsetFromOffset is added to the final address (indirect-twice).
	OffsetFromPattern int `json:"offset_from_pattern,omitempty"`
	OffsetFromOffset  int `json:"offset_from_offset,omitempty"`
}

// Direct returns the direct strategy.
func Direct() Strategy {
	return Strategy{Kind: StrategyDirect}
}

// Indirect returns the indirect strategy reading its operand at readOffset
// bytes past the match.
func Indirect(readOffset int) Strategy {
	return Strategy{Kind: StrategyIndirect, ReadOffset: readOffset}
}

// IndirectTwice returns the indirect-twice strategy.
func IndirectTwice(offsetFromPattern, offsetFromOffset int) Strategy {
	return Strategy{
		Kind:              StrategyIndirectTwice,
		OffsetFromPattern: offsetFromPattern,
		OffsetFromOffset:  offsetFromOffset,
	}
}

// ParseStrategyKind parses the textual name of a strategy.
func ParseStrategyKind(s string) (StrategyKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct":
		return StrategyDirect, nil
	case "indirect":
		return StrategyIndirect, nil
	case "indirect-twice", "indirect_twice":
		return StrategyIndirectTwice, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

func (s Strategy) String() string {
	switch s.Kind {
	case StrategyIndirect:
		return fmt.Sprintf("indirect(%#x)", s.ReadOffset)
	case StrategyIndirectTwice:
		return fmt.Sprintf("indirect-twice(%#x, %#x)", s.OffsetFromPattern, s.OffsetFromOffset)
	default:
		return string(s.Kind)
	}
}

// OperandRangeError reports a match whose operand window lies outside the
// bytes of the section it was found in.
type OperandRangeError struct {
	Signature string
	Section   string
	Offset    int
}

func (e *OperandRangeError) Error() string {
	return fmt.Sprintf("signature %s: operand at offset %#x lies outside section %s", e.Signature, e.Offset, e.Section)
}

// resolve computes the address for a match at off within sec.
func (s Strategy) resolve(name string, sec Section, off int) (uint64, error) {
	switch s.Kind {
	case StrategyDirect:
		return sec.Addr + uint64(off), nil

	case StrategyIndirect:
		v, err := readUint32(name, sec, off, s.ReadOffset)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil

	case StrategyIndirectTwice:
		v, err := readUint32(name, sec, off, s.OffsetFromPattern)
		if err != nil {
			return 0, err
		}
		return sec.Addr + uint64(off) + uint64(v) + uint64(int64(s.OffsetFromOffset)), nil

	default:
		return 0, fmt.Errorf("signature %s: unsupported strategy %q", name, s.Kind)
	}
}

// readUint32 reads the little-endian operand at off+delta. off is a match
// position inside sec, so the bounds are checked on delta alone and the sum
// is only formed once it is known to be in range.
func readUint32(name string, sec Section, off, delta int) (uint32, error) {
	if delta < -off || delta > len(sec.Data)-4-off {
		return 0, &OperandRangeError{Signature: name, Section: sec.Name, Offset: off + delta}
	}
	pos := off + delta
	return binary.LittleEndian.Uint32(sec.Data[pos : pos+4]), nil
}
