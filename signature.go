package aobgen

import (
	"errors"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Signature is a named set of fallback patterns plus the strategy used to
// turn a match into an address.
type Signature struct {
	Name     string
	Patterns []string
	Strategy Strategy

	// Versions optionally restricts the signature to the image versions for
	// which the boolean expression holds, e.g. "Major == 1 && Minor >= 14".
	// The expression sees the Major, Minor and Patch fields of Version.
	Versions string

	needles []Needle
	filter  *vm.Program
}

// Resolution describes where a signature was found and the address it
// resolved to.
type Resolution struct {
	Address uint64 `json:"address"`

	// Pattern is the index of the candidate pattern that matched.
	Pattern int `json:"pattern"`

	SectionIndex int    `json:"section_index"`
	Section      string `json:"section"`

	// Offset is the position of the match within the section bytes.
	Offset int `json:"offset"`

	// Instruction is the disassembled instruction at the match and
	// Reference the address its PC-relative operand points to, when the
	// image's machine is supported.
	Instruction string `json:"instruction,omitempty"`
	Reference   uint64 `json:"reference,omitempty"`
}

// NewSignature builds a signature and compiles all of its patterns.
func NewSignature(name string, strategy Strategy, patterns ...string) (Signature, error) {
	sig := Signature{Name: name, Patterns: patterns, Strategy: strategy}
	if err := sig.compile(); err != nil {
		return Signature{}, err
	}
	return sig, nil
}

// WithVersions returns a copy of s restricted to the versions matching the
// given expression. See Signature.Versions.
func (s Signature) WithVersions(expression string) (Signature, error) {
	s.Versions = expression
	s.filter = nil
	if err := s.compile(); err != nil {
		return Signature{}, err
	}
	return s, nil
}

// MustSignature is like NewSignature but panics on error. It is meant for
// package-level signature tables.
func MustSignature(name string, strategy Strategy, patterns ...string) Signature {
	sig, err := NewSignature(name, strategy, patterns...)
	if err != nil {
		panic(err)
	}
	return sig
}

func (s *Signature) compile() error {
	if s.Name == "" {
		return errors.New("signature has no name")
	}
	if len(s.Patterns) == 0 {
		return fmt.Errorf("signature %s: no patterns", s.Name)
	}
	switch s.Strategy.Kind {
	case StrategyDirect, StrategyIndirect, StrategyIndirectTwice:
	default:
		return fmt.Errorf("signature %s: unsupported strategy %q", s.Name, s.Strategy.Kind)
	}

	if len(s.needles) != len(s.Patterns) {
		needles := make([]Needle, len(s.Patterns))
		for i, p := range s.Patterns {
			n, err := ParseNeedle(p)
			if err != nil {
				return fmt.Errorf("signature %s: %w", s.Name, err)
			}
			needles[i] = n
		}
		s.needles = needles
	}

	if s.Versions != "" && s.filter == nil {
		program, err := expr.Compile(s.Versions, expr.Env(Version{}), expr.AsBool())
		if err != nil {
			return fmt.Errorf("signature %s: invalid versions expression: %w", s.Name, err)
		}
		s.filter = program
	}
	return nil
}

// AppliesTo reports whether the signature should be searched for in images
// of version v. Signatures without a Versions expression apply to all.
func (s *Signature) AppliesTo(v Version) (bool, error) {
	if err := s.compile(); err != nil {
		return false, err
	}
	if s.filter == nil {
		return true, nil
	}
	out, err := expr.Run(s.filter, v)
	if err != nil {
		return false, fmt.Errorf("signature %s: failed to evaluate versions expression: %w", s.Name, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// Resolve searches img for the signature. Candidate patterns are tried in
// order and, for each, the image's sections in order; the first match wins.
// A nil Resolution with a nil error means the signature is not present.
func (s *Signature) Resolve(img *Image) (*Resolution, error) {
	if err := s.compile(); err != nil {
		return nil, err
	}

	for pi, needle := range s.needles {
		for si, sec := range img.Sections {
			off := needle.Index(sec.Data)
			if off < 0 {
				continue
			}
			addr, err := s.Strategy.resolve(s.Name, sec, off)
			if err != nil {
				return nil, err
			}
			return &Resolution{
				Address:      addr,
				Pattern:      pi,
				SectionIndex: si,
				Section:      sec.Name,
				Offset:       off,
			}, nil
		}
	}

	return nil, nil
}
