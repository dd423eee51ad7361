package aobgen

import (
	"fmt"
	"strconv"
	"strings"
)

// NeedleByte is a single slot of a compiled pattern: either a concrete byte
// value or a wildcard that matches any byte.
type NeedleByte struct {
	Value    byte
	Wildcard bool
}

// Needle is a compiled byte pattern. It holds exactly one slot per token of
// the pattern text it was compiled from.
type Needle []NeedleByte

// PatternError reports a malformed pattern token.
type PatternError struct {
	Pattern string
	Token   string
	Index   int
}

func (e *PatternError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("invalid pattern %q: no tokens", e.Pattern)
	}
	return fmt.Sprintf("invalid pattern %q: token %d (%q) is neither a hex byte nor a wildcard", e.Pattern, e.Index, e.Token)
}

// ParseNeedle compiles a textual pattern such as "48 8B 05 ?? ?? ?? ??" into
// a Needle. Tokens are separated by whitespace; each one is either two hex
// digits (case-insensitive) or one of the wildcard markers "?" and "??".
func ParseNeedle(pattern string) (Needle, error) {
	tokens := strings.Fields(pattern)
	if len(tokens) == 0 {
		return nil, &PatternError{Pattern: pattern}
	}

	needle := make(Needle, len(tokens))
	for i, tok := range tokens {
		if tok == "?" || tok == "??" {
			needle[i] = NeedleByte{Wildcard: true}
			continue
		}
		if len(tok) != 2 {
			return nil, &PatternError{Pattern: pattern, Token: tok, Index: i}
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return nil, &PatternError{Pattern: pattern, Token: tok, Index: i}
		}
		needle[i] = NeedleByte{Value: byte(v)}
	}

	return needle, nil
}

// Index returns the lowest offset in haystack at which every non-wildcard
// slot of n matches, or -1 if there is none.
func (n Needle) Index(haystack []byte) int {
	if len(n) == 0 || len(n) > len(haystack) {
		return -1
	}

	last := len(haystack) - len(n)
	for i := 0; i <= last; i++ {
		if n.matchAt(haystack[i : i+len(n)]) {
			return i
		}
	}
	return -1
}

// matchAt reports whether window, which must be len(n) bytes, satisfies n.
func (n Needle) matchAt(window []byte) bool {
	for j, slot := range n {
		if !slot.Wildcard && window[j] != slot.Value {
			return false
		}
	}
	return true
}

// String renders the needle in canonical form, upper-case hex with "??" for
// wildcards.
func (n Needle) String() string {
	var sb strings.Builder
	for i, slot := range n {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if slot.Wildcard {
			sb.WriteString("??")
			continue
		}
		fmt.Fprintf(&sb, "%02X", slot.Value)
	}
	return sb.String()
}
