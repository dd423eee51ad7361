package aobgen

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
)

// Entry is the outcome of one signature against one image. Resolution is
// nil when the signature was not found, or was not searched for because its
// version filter excludes the image (Skipped).
type Entry struct {
	Name       string      `json:"name"`
	Resolution *Resolution `json:"resolution,omitempty"`
	Skipped    bool        `json:"skipped,omitempty"`
}

// Found reports whether the signature was located.
func (e Entry) Found() bool { return e.Resolution != nil }

// Address returns the resolved address, or 0 if the signature was not found.
func (e Entry) Address() uint64 {
	if e.Resolution == nil {
		return 0
	}
	return e.Resolution.Address
}

// VersionTable holds the addresses discovered in the first image seen for a
// given version, one entry per signature in declaration order.
type VersionTable struct {
	Version Version `json:"version"`
	Path    string  `json:"path"`
	Entries []Entry `json:"entries"`
}

// Missing returns the names of the signatures that were searched for but
// not found.
func (t VersionTable) Missing() []string {
	var names []string
	for _, e := range t.Entries {
		if !e.Found() && !e.Skipped {
			names = append(names, e.Name)
		}
	}
	return names
}

// Cache stores scan results keyed by image and signature set fingerprints.
// Lookup returns nil and no error on a miss.
type Cache interface {
	Lookup(key string) (*VersionTable, error)
	Store(key string, table VersionTable) error
}

// Scanner runs a set of signatures against candidate images. The zero value
// opens PE files with OpenImage, caches nothing and logs to slog.Default().
type Scanner struct {
	// Open opens a candidate image. It is only called for paths that exist.
	Open func(path string) (*Image, error)

	// Cache, if set, is consulted before opening an image and filled after
	// scanning it.
	Cache Cache

	Logger *slog.Logger
}

// scanRun is the state of a single Scan call.
type scanRun struct {
	sigs      []Signature
	sigsKey   string
	processed map[Version]struct{}
}

// Scan runs sigs against the images at paths using a zero Scanner.
func Scan(paths []string, sigs []Signature) ([]VersionTable, error) {
	var s Scanner
	return s.Scan(paths, sigs)
}

// Scan processes paths in order. Paths that do not exist are skipped. The
// first image seen for a version wins; later images reporting the same
// version are ignored. Any image that exists but cannot be opened, and any
// resolution error, aborts the whole run. The returned tables are sorted by
// version.
func (s *Scanner) Scan(paths []string, sigs []Signature) ([]VersionTable, error) {
	compiled, err := compileSignatures(sigs)
	if err != nil {
		return nil, err
	}

	run := &scanRun{
		sigs:      compiled,
		processed: make(map[Version]struct{}),
	}
	if s.Cache != nil {
		if run.sigsKey, err = SignaturesFingerprint(compiled); err != nil {
			return nil, err
		}
	}

	var tables []VersionTable
	for _, path := range paths {
		table, ok, err := s.scanOne(path, run)
		if err != nil {
			return nil, err
		}
		if ok {
			tables = append(tables, table)
		}
	}

	slices.SortFunc(tables, func(a, b VersionTable) int {
		return a.Version.Compare(b.Version)
	})

	return tables, nil
}

// scanOne handles a single candidate. The image is closed before returning.
func (s *Scanner) scanOne(path string, run *scanRun) (VersionTable, bool, error) {
	log := s.logger()

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug("skipping missing image", "path", path)
			return VersionTable{}, false, nil
		}
		return VersionTable{}, false, &ImageOpenError{Path: path, Err: err}
	}

	var key string
	if s.Cache != nil {
		fp, err := FileFingerprint(path)
		if err != nil {
			return VersionTable{}, false, &ImageOpenError{Path: path, Err: err}
		}
		key = fp + "/" + run.sigsKey

		cached, err := s.Cache.Lookup(key)
		if err != nil {
			return VersionTable{}, false, fmt.Errorf("failed to read scan cache: %w", err)
		}
		if cached != nil {
			if _, seen := run.processed[cached.Version]; seen {
				log.Debug("skipping image with already processed version", "path", path, "version", cached.Version.String())
				return VersionTable{}, false, nil
			}
			log.Info("using cached scan", "version", cached.Version.String(), "path", path)
			table := *cached
			table.Path = path
			run.processed[table.Version] = struct{}{}
			return table, true, nil
		}
	}

	img, err := s.open(path)
	if err != nil {
		var ioe *ImageOpenError
		if !errors.As(err, &ioe) {
			err = &ImageOpenError{Path: path, Err: err}
		}
		return VersionTable{}, false, err
	}
	defer img.Close()

	if _, seen := run.processed[img.Version]; seen {
		log.Debug("skipping image with already processed version", "path", path, "version", img.Version.String())
		return VersionTable{}, false, nil
	}

	log.Info("scanning image", "version", img.Version.String(), "path", path)

	table := VersionTable{
		Version: img.Version,
		Path:    path,
		Entries: make([]Entry, 0, len(run.sigs)),
	}
	for i := range run.sigs {
		sig := &run.sigs[i]
		applies, err := sig.AppliesTo(img.Version)
		if err != nil {
			return VersionTable{}, false, err
		}
		if !applies {
			log.Debug("signature does not apply to version", "signature", sig.Name, "version", img.Version.String())
			table.Entries = append(table.Entries, Entry{Name: sig.Name, Skipped: true})
			continue
		}

		res, err := sig.Resolve(img)
		if err != nil {
			return VersionTable{}, false, fmt.Errorf("failed to resolve %s in %s: %w", sig.Name, path, err)
		}
		table.Entries = append(table.Entries, Entry{Name: sig.Name, Resolution: res})

		if res == nil {
			log.Warn("signature not found", "signature", sig.Name, "version", img.Version.String())
			continue
		}
		if inst, err := img.Decode(res.SectionIndex, res.Offset); err == nil {
			res.Instruction = inst.Text
			res.Reference = inst.Reference
		}
		log.Debug("signature resolved",
			"signature", sig.Name,
			"address", fmt.Sprintf("%#x", res.Address),
			"section", res.Section,
			"match", fmt.Sprintf("%#x", res.Offset),
			"pattern", res.Pattern,
			"instruction", res.Instruction,
			"reference", fmt.Sprintf("%#x", res.Reference),
		)
	}

	if s.Cache != nil {
		if err := s.Cache.Store(key, table); err != nil {
			return VersionTable{}, false, fmt.Errorf("failed to write scan cache: %w", err)
		}
	}
	run.processed[img.Version] = struct{}{}
	return table, true, nil
}

func (s *Scanner) open(path string) (*Image, error) {
	if s.Open != nil {
		return s.Open(path)
	}
	return OpenImage(path)
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// compileSignatures validates sigs and returns compiled copies, so that every
// pattern error surfaces before any image is opened.
func compileSignatures(sigs []Signature) ([]Signature, error) {
	seen := make(map[string]struct{}, len(sigs))
	compiled := make([]Signature, len(sigs))
	for i, sig := range sigs {
		if err := sig.compile(); err != nil {
			return nil, err
		}
		if _, dup := seen[sig.Name]; dup {
			return nil, fmt.Errorf("duplicate signature name %q", sig.Name)
		}
		seen[sig.Name] = struct{}{}
		compiled[i] = sig
	}
	return compiled, nil
}
