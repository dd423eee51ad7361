// Package aobgen locates array-of-bytes signatures inside the releases of a
// program and turns them into a version-keyed table of module-relative
// addresses, emitted as Go source.
//
// # Signatures
//
// A [Signature] is a name, one or more candidate patterns and a [Strategy].
// Patterns are written as space-separated hex bytes where "??" (or "?")
// matches any byte:
//
//	48 8B 0D ?? ?? ?? ?? 48 85 C9
//
// Candidates are tried in order; for each candidate the image sections are
// searched in header order and the first match wins. The strategy then turns
// the match into an address:
//   - Direct: the section base plus the match offset.
//   - Indirect: the little-endian uint32 stored at the match plus ReadOffset.
//   - IndirectTwice: the match address plus the uint32 displacement stored at
//     OffsetFromPattern, adjusted by OffsetFromOffset. This is how RIP-relative
//     operands are followed.
//
// # Images
//
// [OpenImage] reads a PE file into an [Image]: its sections with their
// relative virtual addresses and the product version from the RT_VERSION
// resource. Matches can be disassembled with [Image.Disassemble] for
// diagnostics.
//
// # Scanning and generation
//
// [Scanner.Scan] runs every signature against a list of candidate files,
// keeping only the first image seen for each version, and returns one
// [VersionTable] per version in ascending order. [Generate] and [WriteFile]
// render the tables as a Go file declaring a BaseAddresses struct, one value
// per version and a Version enum to select them at run time.
package aobgen
