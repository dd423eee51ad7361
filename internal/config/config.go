// Package config loads aobgen definition files: the signatures to look for,
// the candidate images to scan and where to write the generated code.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/maxgio92/aobgen"
)

// Defaults applied to fields left empty in the definition file.
const (
	DefaultOutput = "base_addresses.go"
)

// Signature is the YAML form of an aobgen.Signature. An empty strategy means
// direct. Strategy parameters are pointers so that a missing required
// parameter can be told apart from zero.
type Signature struct {
	Name              string   `yaml:"name"`
	Patterns          []string `yaml:"patterns"`
	Strategy          string   `yaml:"strategy"`
	ReadOffset        *int     `yaml:"read_offset,omitempty"`
	OffsetFromPattern *int     `yaml:"offset_from_pattern,omitempty"`
	OffsetFromOffset  *int     `yaml:"offset_from_offset,omitempty"`
	Versions          string   `yaml:"versions,omitempty"`
}

// Config is a definition file.
type Config struct {
	Package    string      `yaml:"package"`
	Output     string      `yaml:"output"`
	RequireAll bool        `yaml:"require_all"`
	Images     []string    `yaml:"images"`
	Signatures []Signature `yaml:"signatures"`

	// Cache is the scan cache file. Empty disables caching.
	Cache string `yaml:"cache"`

	// dir is the directory relative paths are resolved against.
	dir string
}

// Load reads and validates the definition file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes a definition file. Unknown keys are rejected. Relative paths
// are resolved against the working directory.
func Parse(data []byte) (*Config, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse definition file: %w", err)
	}
	if cfg.Package == "" {
		cfg.Package = aobgen.DefaultPackage
	}
	if cfg.Output == "" {
		cfg.Output = DefaultOutput
	}
	if len(cfg.Signatures) == 0 {
		return nil, errors.New("no signatures defined")
	}
	if _, err := cfg.CompileSignatures(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// CompileSignatures converts the definitions into compiled signatures, in
// file order.
func (c *Config) CompileSignatures() ([]aobgen.Signature, error) {
	sigs := make([]aobgen.Signature, 0, len(c.Signatures))
	for i, s := range c.Signatures {
		strategy, err := s.strategy()
		if err != nil {
			return nil, fmt.Errorf("signature %d (%s): %w", i, s.Name, err)
		}
		sig, err := aobgen.NewSignature(s.Name, strategy, s.Patterns...)
		if err != nil {
			return nil, err
		}
		if s.Versions != "" {
			if sig, err = sig.WithVersions(s.Versions); err != nil {
				return nil, err
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs, nil
}

func (s Signature) strategy() (aobgen.Strategy, error) {
	if s.Strategy == "" {
		return aobgen.Direct(), nil
	}
	kind, err := aobgen.ParseStrategyKind(s.Strategy)
	if err != nil {
		return aobgen.Strategy{}, err
	}

	switch kind {
	case aobgen.StrategyIndirect:
		if s.ReadOffset == nil {
			return aobgen.Strategy{}, errors.New("indirect strategy requires read_offset")
		}
		return aobgen.Indirect(*s.ReadOffset), nil
	case aobgen.StrategyIndirectTwice:
		if s.OffsetFromPattern == nil || s.OffsetFromOffset == nil {
			return aobgen.Strategy{}, errors.New("indirect-twice strategy requires offset_from_pattern and offset_from_offset")
		}
		return aobgen.IndirectTwice(*s.OffsetFromPattern, *s.OffsetFromOffset), nil
	default:
		return aobgen.Direct(), nil
	}
}

// OutputPath returns the output path resolved against the file's directory.
func (c *Config) OutputPath() string {
	return c.resolve(c.Output)
}

// CachePath returns the cache path resolved against the file's directory, or
// "" when caching is disabled.
func (c *Config) CachePath() string {
	if c.Cache == "" {
		return ""
	}
	return c.resolve(c.Cache)
}

// ImagePaths returns the candidate image paths in file order. Entries
// containing glob metacharacters expand to their matches in lexical order;
// a glob matching nothing contributes nothing.
func (c *Config) ImagePaths() ([]string, error) {
	var paths []string
	for _, p := range c.Images {
		p = c.resolve(p)
		if !strings.ContainsAny(p, "*?[") {
			paths = append(paths, p)
			continue
		}
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid image pattern %q: %w", p, err)
		}
		paths = append(paths, matches...)
	}
	return paths, nil
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.dir == "" {
		return p
	}
	return filepath.Join(c.dir, p)
}
