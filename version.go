package aobgen

import (
	"cmp"
	"fmt"
)

// Version is the product version embedded in an executable image.
type Version struct {
	Major uint32 `json:"major" yaml:"major"`
	Minor uint32 `json:"minor" yaml:"minor"`
	Patch uint32 `json:"patch" yaml:"patch"`
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to
// or after w.
func (v Version) Compare(w Version) int {
	if c := cmp.Compare(v.Major, w.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, w.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, w.Patch)
}

// String renders the version the way the product displays it, with the
// minor component padded to two digits (e.g. "1.02.3").
func (v Version) String() string {
	return fmt.Sprintf("%d.%02d.%d", v.Major, v.Minor, v.Patch)
}

// Ident renders the version as an identifier fragment (e.g. "1_02_3").
func (v Version) Ident() string {
	return fmt.Sprintf("%d_%02d_%d", v.Major, v.Minor, v.Patch)
}
