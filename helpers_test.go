package aobgen_test

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"unicode/utf16"

	"github.com/maxgio92/aobgen"
)

const (
	textRVA   = 0x1000
	fileAlign = 0x200
	sectAlign = 0x1000
)

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}

func sectionName(s string) (n [8]uint8) {
	copy(n[:], s)
	return n
}

// buildPE assembles a minimal x86-64 PE image with a .text section holding
// text at RVA 0x1000 and, when version is non-nil, a .rsrc section carrying
// a VS_VERSIONINFO resource whose product version is *version. The file
// version is deliberately different so that tests catch a mix-up.
func buildPE(t *testing.T, text []byte, version *[3]uint16) []byte {
	t.Helper()
	le := binary.LittleEndian

	textSize := alignUp(max(len(text), 1), fileAlign)
	rsrcRVA := uint32(textRVA + alignUp(textSize, sectAlign))

	var rsrc []byte
	if version != nil {
		rsrc = versionResource(rsrcRVA, *version)
	}

	nsec := 1
	if rsrc != nil {
		nsec = 2
	}

	var buf bytes.Buffer
	dos := make([]byte, 0x40)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3c:], 0x40)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_AMD64,
		NumberOfSections:     uint16(nsec),
		SizeOfOptionalHeader: uint16(binary.Size(pe.OptionalHeader64{})),
		Characteristics:      0x0022,
	}
	oh := pe.OptionalHeader64{
		Magic:               0x20b,
		ImageBase:           0x140000000,
		SectionAlignment:    sectAlign,
		FileAlignment:       fileAlign,
		SizeOfImage:         rsrcRVA + sectAlign,
		SizeOfHeaders:       fileAlign,
		Subsystem:           3,
		NumberOfRvaAndSizes: 16,
	}
	if rsrc != nil {
		oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_RESOURCE] = pe.DataDirectory{
			VirtualAddress: rsrcRVA,
			Size:           uint32(len(rsrc)),
		}
	}

	headers := []pe.SectionHeader32{{
		Name:             sectionName(".text"),
		VirtualSize:      uint32(len(text)),
		VirtualAddress:   textRVA,
		SizeOfRawData:    uint32(textSize),
		PointerToRawData: fileAlign,
		Characteristics:  0x60000020,
	}}
	if rsrc != nil {
		headers = append(headers, pe.SectionHeader32{
			Name:             sectionName(".rsrc"),
			VirtualSize:      uint32(len(rsrc)),
			VirtualAddress:   rsrcRVA,
			SizeOfRawData:    uint32(alignUp(len(rsrc), fileAlign)),
			PointerToRawData: uint32(fileAlign + textSize),
			Characteristics:  0x40000040,
		})
	}

	for _, v := range []any{fh, oh, headers} {
		if err := binary.Write(&buf, le, v); err != nil {
			t.Fatalf("failed to encode PE headers: %v", err)
		}
	}
	if buf.Len() > fileAlign {
		t.Fatalf("PE headers overflow: %d bytes", buf.Len())
	}

	pad := func(n int) {
		buf.Write(make([]byte, n-buf.Len()))
	}
	pad(fileAlign)
	buf.Write(text)
	pad(fileAlign + textSize)
	if rsrc != nil {
		buf.Write(rsrc)
		pad(fileAlign + textSize + alignUp(len(rsrc), fileAlign))
	}

	return buf.Bytes()
}

// versionResource lays out a resource tree RT_VERSION/1/0x409 followed by
// the VS_VERSIONINFO blob.
func versionResource(rva uint32, v [3]uint16) []byte {
	le := binary.LittleEndian
	b := make([]byte, 0x60)

	le.PutUint16(b[0x0e:], 1)
	le.PutUint32(b[0x10:], 16)
	le.PutUint32(b[0x14:], 0x80000000|0x18)

	le.PutUint16(b[0x18+0x0e:], 1)
	le.PutUint32(b[0x28:], 1)
	le.PutUint32(b[0x2c:], 0x80000000|0x30)

	le.PutUint16(b[0x30+0x0e:], 1)
	le.PutUint32(b[0x40:], 0x409)
	le.PutUint32(b[0x44:], 0x48)

	info := versionInfo(v)
	le.PutUint32(b[0x48:], rva+0x60)
	le.PutUint32(b[0x4c:], uint32(len(info)))

	return append(b, info...)
}

func versionInfo(v [3]uint16) []byte {
	le := binary.LittleEndian
	var b bytes.Buffer

	binary.Write(&b, le, [3]uint16{0, 52, 0})
	binary.Write(&b, le, utf16.Encode([]rune("VS_VERSION_INFO\x00")))
	for b.Len()%4 != 0 {
		b.WriteByte(0)
	}
	binary.Write(&b, le, [13]uint32{
		0xFEEF04BD,
		0x00010000,
		9<<16 | 9, 9 << 16,
		uint32(v[0])<<16 | uint32(v[1]), uint32(v[2]) << 16,
	})

	out := b.Bytes()
	le.PutUint16(out, uint16(len(out)))
	return out
}

// writePE writes a synthetic PE image to dir/name and returns its path.
func writePE(t *testing.T, dir, name string, text []byte, version [3]uint16) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buildPE(t, text, &version), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// code returns size bytes of int3 padding with pattern copied in at off.
func code(size, off int, pattern ...byte) []byte {
	b := bytes.Repeat([]byte{0xCC}, size)
	copy(b[off:], pattern)
	return b
}

// textImage returns an in-memory image with a single .text section.
func textImage(v aobgen.Version, addr uint64, data []byte) *aobgen.Image {
	return &aobgen.Image{
		Machine:  pe.IMAGE_FILE_MACHINE_AMD64,
		Version:  v,
		Sections: []aobgen.Section{{Name: ".text", Addr: addr, Data: data}},
	}
}
