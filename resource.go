package aobgen

import (
	"debug/pe"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

// ErrNoVersion is returned for images without a version resource.
var ErrNoVersion = errors.New("no version resource")

const (
	rtVersion = 16

	resourceDirSize   = 16
	resourceEntrySize = 8
	resourceDataSize  = 16
	subdirFlag        = 0x80000000

	fixedFileInfoSize      = 52
	fixedFileInfoSignature = 0xFEEF04BD
	versionInfoKey         = "VS_VERSION_INFO"
)

type resourceEntry struct {
	id     uint32
	offset uint32
}

func (e resourceEntry) named() bool  { return e.id&subdirFlag != 0 }
func (e resourceEntry) subdir() bool { return e.offset&subdirFlag != 0 }
func (e resourceEntry) target() uint32 {
	return e.offset &^ subdirFlag
}

// resourceDirectory returns the resource data directory of f, if present.
func resourceDirectory(f *pe.File) (pe.DataDirectory, bool) {
	var (
		dirs [16]pe.DataDirectory
		n    uint32
	)
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs, n = oh.DataDirectory, oh.NumberOfRvaAndSizes
	case *pe.OptionalHeader64:
		dirs, n = oh.DataDirectory, oh.NumberOfRvaAndSizes
	default:
		return pe.DataDirectory{}, false
	}
	if n <= pe.IMAGE_DIRECTORY_ENTRY_RESOURCE {
		return pe.DataDirectory{}, false
	}
	dd := dirs[pe.IMAGE_DIRECTORY_ENTRY_RESOURCE]
	if dd.VirtualAddress == 0 || dd.Size == 0 {
		return pe.DataDirectory{}, false
	}
	return dd, true
}

// productVersion walks the resource tree (type, name, language) down to the
// first RT_VERSION leaf and reads the product version out of its
// VS_FIXEDFILEINFO.
func productVersion(sections []Section, dir pe.DataDirectory) (Version, error) {
	rsrc, ok := sliceRVA(sections, dir.VirtualAddress, dir.Size)
	if !ok {
		return Version{}, fmt.Errorf("resource directory at %#x is outside the image sections", dir.VirtualAddress)
	}

	entries, err := readResourceDir(rsrc, 0)
	if err != nil {
		return Version{}, err
	}
	var typeEntry *resourceEntry
	for i := range entries {
		if !entries[i].named() && entries[i].id == rtVersion {
			typeEntry = &entries[i]
			break
		}
	}
	if typeEntry == nil {
		return Version{}, ErrNoVersion
	}

	// Below the type level, any name and any language will do.
	entry := *typeEntry
	for depth := 0; depth < 2; depth++ {
		if !entry.subdir() {
			return Version{}, fmt.Errorf("malformed version resource: leaf at depth %d", depth+1)
		}
		children, err := readResourceDir(rsrc, entry.target())
		if err != nil {
			return Version{}, err
		}
		if len(children) == 0 {
			return Version{}, ErrNoVersion
		}
		entry = children[0]
	}
	if entry.subdir() {
		return Version{}, errors.New("malformed version resource: directory where data was expected")
	}

	off := entry.target()
	if uint64(off)+resourceDataSize > uint64(len(rsrc)) {
		return Version{}, fmt.Errorf("malformed version resource: data entry at %#x out of range", off)
	}
	rva := binary.LittleEndian.Uint32(rsrc[off:])
	size := binary.LittleEndian.Uint32(rsrc[off+4:])
	blob, ok := sliceRVA(sections, rva, size)
	if !ok {
		return Version{}, fmt.Errorf("version resource at %#x is outside the image sections", rva)
	}

	return parseVersionInfo(blob)
}

func readResourceDir(rsrc []byte, off uint32) ([]resourceEntry, error) {
	if uint64(off)+resourceDirSize > uint64(len(rsrc)) {
		return nil, fmt.Errorf("malformed resource directory at %#x", off)
	}
	named := binary.LittleEndian.Uint16(rsrc[off+12:])
	ids := binary.LittleEndian.Uint16(rsrc[off+14:])
	count := int(named) + int(ids)

	start := uint64(off) + resourceDirSize
	if start+uint64(count)*resourceEntrySize > uint64(len(rsrc)) {
		return nil, fmt.Errorf("malformed resource directory at %#x: %d entries out of range", off, count)
	}

	entries := make([]resourceEntry, count)
	for i := range entries {
		p := start + uint64(i)*resourceEntrySize
		entries[i] = resourceEntry{
			id:     binary.LittleEndian.Uint32(rsrc[p:]),
			offset: binary.LittleEndian.Uint32(rsrc[p+4:]),
		}
	}
	return entries, nil
}

// parseVersionInfo decodes the fixed part of a VS_VERSIONINFO block:
// wLength, wValueLength, wType, the UTF-16 key, padding to a 32-bit boundary
// and then VS_FIXEDFILEINFO.
func parseVersionInfo(blob []byte) (Version, error) {
	if len(blob) < 6 {
		return Version{}, errors.New("version resource too short")
	}
	valueLen := binary.LittleEndian.Uint16(blob[2:])
	if valueLen < fixedFileInfoSize {
		return Version{}, ErrNoVersion
	}

	var key []uint16
	pos := 6
	for {
		if pos+2 > len(blob) {
			return Version{}, errors.New("version resource key is not terminated")
		}
		c := binary.LittleEndian.Uint16(blob[pos:])
		pos += 2
		if c == 0 {
			break
		}
		key = append(key, c)
	}
	if k := string(utf16.Decode(key)); k != versionInfoKey {
		return Version{}, fmt.Errorf("unexpected version resource key %q", k)
	}

	pos = (pos + 3) &^ 3
	if pos+fixedFileInfoSize > len(blob) {
		return Version{}, errors.New("version resource too short for VS_FIXEDFILEINFO")
	}
	fixed := blob[pos : pos+fixedFileInfoSize]
	if sig := binary.LittleEndian.Uint32(fixed); sig != fixedFileInfoSignature {
		return Version{}, fmt.Errorf("bad VS_FIXEDFILEINFO signature %#x", sig)
	}

	ms := binary.LittleEndian.Uint32(fixed[16:])
	ls := binary.LittleEndian.Uint32(fixed[20:])
	return Version{
		Major: ms >> 16,
		Minor: ms & 0xffff,
		Patch: ls >> 16,
	}, nil
}
