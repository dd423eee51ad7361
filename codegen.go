package aobgen

import (
	"bytes"
	"fmt"
	"go/format"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"slices"
	"text/template"
)

// DefaultPackage is the package name used for generated code when none is
// given.
const DefaultPackage = "offsets"

// Method names on the generated BaseAddresses type; no field may use them.
var reservedFields = []string{"WithModuleBaseAddr"}

// GenerateOptions controls code generation.
type GenerateOptions struct {
	// Package is the package clause of the generated file.
	Package string
}

// SignatureNames returns the names of sigs in declaration order.
func SignatureNames(sigs []Signature) []string {
	names := make([]string, len(sigs))
	for i, s := range sigs {
		names[i] = s.Name
	}
	return names
}

type genField struct {
	Name    string
	Value   string
	Comment string
}

type genVersion struct {
	Const   string
	Var     string
	Display string
	Triple  string
	Fields  []genField
}

type genData struct {
	Package  string
	Fields   []string
	Versions []genVersion
}

var codeTemplate = template.Must(template.New("base_addresses").Parse(`// Code generated by aobgen. DO NOT EDIT.

package {{.Package}}

import "fmt"

// BaseAddresses holds the module-relative address of every signature.
// A zero field means the signature was not found in that version, or does
// not apply to it. A signature that genuinely resolves to 0 is
// indistinguishable from an absent one and is not rebased either.
type BaseAddresses struct {
{{- range .Fields}}
	{{.}} uint64
{{- end}}
}

// WithModuleBaseAddr returns a copy of b with every known address rebased
// onto a module loaded at base. Zero fields stay zero.
func (b BaseAddresses) WithModuleBaseAddr(base uint64) BaseAddresses {
{{- if .Fields}}
	rebase := func(addr uint64) uint64 {
		if addr == 0 {
			return 0
		}
		return addr + base
	}
{{- end}}
	return BaseAddresses{
{{- range .Fields}}
		{{.}}: rebase(b.{{.}}),
{{- end}}
	}
}

// Version identifies a profiled release.
type Version int

const (
{{- range $i, $v := .Versions}}
	{{$v.Const}}{{if eq $i 0}} Version = iota{{end}}
{{- end}}
)

// VersionFromTriple returns the Version matching a (major, minor, patch)
// triple. It panics for any triple that was not profiled when this file was
// generated.
func VersionFromTriple(major, minor, patch uint32) Version {
	switch [3]uint32{major, minor, patch} {
{{- range .Versions}}
	case [3]uint32{ {{- .Triple -}} }:
		return {{.Const}}
{{- end}}
	}
	panic(fmt.Sprintf("unrecognized version %d.%02d.%d", major, minor, patch))
}

// Triple returns the (major, minor, patch) components of v.
func (v Version) Triple() (major, minor, patch uint32) {
	switch v {
{{- range .Versions}}
	case {{.Const}}:
		return {{.Triple}}
{{- end}}
	}
	panic(fmt.Sprintf("unknown version %d", int(v)))
}

func (v Version) String() string {
	major, minor, patch := v.Triple()
	return fmt.Sprintf("%d.%02d.%d", major, minor, patch)
}

// BaseAddresses returns the addresses profiled for v.
func (v Version) BaseAddresses() BaseAddresses {
	switch v {
{{- range .Versions}}
	case {{.Const}}:
		return {{.Var}}
{{- end}}
	}
	panic(fmt.Sprintf("unknown version %d", int(v)))
}
{{range .Versions}}
// {{.Var}} holds the addresses profiled from version {{.Display}}.
var {{.Var}} = BaseAddresses{
{{- range .Fields}}
	{{.Name}}: {{.Value}},{{with .Comment}} // {{.}}{{end}}
{{- end}}
}
{{end -}}
`))

// Generate renders Go source declaring the BaseAddresses record, its
// rebasing method, one BaseAddresses value per version and the Version enum
// with its conversions. names gives the field order; tables are emitted in
// ascending version order regardless of their order in the slice.
func Generate(w io.Writer, names []string, tables []VersionTable, opts GenerateOptions) error {
	src, err := render(names, tables, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(src)
	return err
}

// WriteFile renders the generated code and writes it to path. The file is
// replaced atomically: on any error the previous content, if any, is left
// untouched.
func WriteFile(path string, names []string, tables []VersionTable, opts GenerateOptions) error {
	src, err := render(names, tables, opts)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".aobgen-*.go")
	if err != nil {
		return fmt.Errorf("failed to create temporary output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(src); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write generated code: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write generated code: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func render(names []string, tables []VersionTable, opts GenerateOptions) ([]byte, error) {
	pkg := opts.Package
	if pkg == "" {
		pkg = DefaultPackage
	}
	if !token.IsIdentifier(pkg) {
		return nil, fmt.Errorf("invalid package name %q", pkg)
	}

	fields, err := fieldNames(names)
	if err != nil {
		return nil, err
	}
	for _, f := range fields {
		if slices.Contains(reservedFields, f) {
			return nil, fmt.Errorf("signature field name %s is reserved", f)
		}
	}

	sorted := slices.Clone(tables)
	slices.SortStableFunc(sorted, func(a, b VersionTable) int {
		return a.Version.Compare(b.Version)
	})

	data := genData{Package: pkg, Fields: fields}
	for i, t := range sorted {
		if i > 0 && sorted[i-1].Version == t.Version {
			return nil, fmt.Errorf("duplicate table for version %s", t.Version)
		}
		gv, err := renderVersion(names, fields, t)
		if err != nil {
			return nil, err
		}
		data.Versions = append(data.Versions, gv)
	}

	var buf bytes.Buffer
	if err := codeTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render generated code: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format generated code: %w", err)
	}
	return src, nil
}

func renderVersion(names, fields []string, t VersionTable) (genVersion, error) {
	byName := make(map[string]Entry, len(t.Entries))
	for _, e := range t.Entries {
		if !slices.Contains(names, e.Name) {
			return genVersion{}, fmt.Errorf("version %s: unknown signature %q", t.Version, e.Name)
		}
		byName[e.Name] = e
	}

	v := t.Version
	gv := genVersion{
		Const:   "V" + v.Ident(),
		Var:     "BaseAddressesV" + v.Ident(),
		Display: v.String(),
		Triple:  fmt.Sprintf("%d, %d, %d", v.Major, v.Minor, v.Patch),
		Fields:  make([]genField, len(names)),
	}
	for i, n := range names {
		e, ok := byName[n]
		f := genField{
			Name:  fields[i],
			Value: fmt.Sprintf("%#x", e.Address()),
		}
		switch {
		case e.Skipped:
			f.Comment = "not applicable"
		case !ok || !e.Found():
			f.Comment = "not found"
		}
		gv.Fields[i] = f
	}
	return gv, nil
}
