package aobgen

import (
	"debug/pe"
	"fmt"
	"io"
	"os"
)

// Section is a contiguous region of an image: its module-relative base
// address and raw bytes.
type Section struct {
	Name string
	Addr uint64
	Data []byte
}

// Image is a read-only view of an executable file: its sections in header
// order and the product version embedded in its resources.
type Image struct {
	Path     string
	Machine  uint16
	Version  Version
	Sections []Section

	closer io.Closer
}

// ImageOpenError reports a candidate image that exists but cannot be used,
// either because it does not parse or because it carries no usable version.
type ImageOpenError struct {
	Path string
	Err  error
}

func (e *ImageOpenError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("failed to open image: %v", e.Err)
	}
	return fmt.Sprintf("failed to open image %s: %v", e.Path, e.Err)
}

func (e *ImageOpenError) Unwrap() error { return e.Err }

// OpenImage opens the PE file at path. The returned image must be closed by
// the caller.
func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ImageOpenError{Path: path, Err: err}
	}

	img, err := newImage(f)
	if err != nil {
		f.Close()
		return nil, &ImageOpenError{Path: path, Err: err}
	}
	img.Path = path
	img.closer = f

	return img, nil
}

// NewImage parses a PE image from r.
func NewImage(r io.ReaderAt) (*Image, error) {
	img, err := newImage(r)
	if err != nil {
		return nil, &ImageOpenError{Err: err}
	}
	return img, nil
}

func newImage(r io.ReaderAt) (*Image, error) {
	f, err := pe.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PE file: %w", err)
	}
	defer f.Close()

	img := &Image{
		Machine:  f.FileHeader.Machine,
		Sections: make([]Section, 0, len(f.Sections)),
	}
	for _, s := range f.Sections {
		data, err := s.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", s.Name, err)
		}
		img.Sections = append(img.Sections, Section{
			Name: s.Name,
			Addr: uint64(s.VirtualAddress),
			Data: data,
		})
	}

	dir, ok := resourceDirectory(f)
	if !ok {
		return nil, ErrNoVersion
	}
	img.Version, err = productVersion(img.Sections, dir)
	if err != nil {
		return nil, err
	}

	return img, nil
}

// Close releases the underlying file, if any.
func (img *Image) Close() error {
	img.Sections = nil
	if img.closer == nil {
		return nil
	}
	err := img.closer.Close()
	img.closer = nil
	return err
}

// sliceRVA returns size bytes of section data starting at the relative
// virtual address rva, provided they live inside a single section.
func sliceRVA(sections []Section, rva, size uint32) ([]byte, bool) {
	for _, s := range sections {
		if uint64(rva) < s.Addr {
			continue
		}
		start := uint64(rva) - s.Addr
		if start+uint64(size) > uint64(len(s.Data)) {
			continue
		}
		return s.Data[start : start+uint64(size)], true
	}
	return nil, false
}
