package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/maxgio92/aobgen"
	"github.com/maxgio92/aobgen/internal/config"
)

const sample = `
package: d2offsets
require_all: true
images:
  - releases/game-1.13.exe
  - /opt/game/game.exe
signatures:
  - name: unit_table
    patterns:
      - "48 8D 0D ?? ?? ?? ?? 48 C1 E0 0A"
    strategy: indirect-twice
    offset_from_pattern: 3
    offset_from_offset: 7
  - name: game_info
    patterns:
      - "48 8B 05 ?? ?? ?? ??"
      - "48 8B 0D ?? ?? ?? ??"
    strategy: indirect
    read_offset: 3
  - name: nop_slide
    patterns: ["90 90 90 ?? 90"]
    versions: "Major == 1 && Minor >= 14"
`

func TestParse(t *testing.T) {
	cfg, err := config.Parse([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Package != "d2offsets" {
		t.Errorf("expected package d2offsets, got %s", cfg.Package)
	}
	if cfg.Output != config.DefaultOutput {
		t.Errorf("expected default output %s, got %s", config.DefaultOutput, cfg.Output)
	}
	if !cfg.RequireAll {
		t.Error("expected require_all to be set")
	}

	sigs, err := cfg.CompileSignatures()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []aobgen.Strategy{
		aobgen.IndirectTwice(3, 7),
		aobgen.Indirect(3),
		aobgen.Direct(),
	}
	if len(sigs) != len(want) {
		t.Fatalf("expected %d signatures, got %d", len(want), len(sigs))
	}
	for i, s := range sigs {
		if s.Strategy != want[i] {
			t.Errorf("signature %s: expected strategy %s, got %s", s.Name, want[i], s.Strategy)
		}
	}
	if got := aobgen.SignatureNames(sigs); !slices.Equal(got, []string{"unit_table", "game_info", "nop_slide"}) {
		t.Errorf("expected declaration order, got %v", got)
	}
	if len(sigs[1].Patterns) != 2 {
		t.Errorf("expected 2 candidate patterns, got %d", len(sigs[1].Patterns))
	}

	for _, tt := range []struct {
		v    aobgen.Version
		want bool
	}{
		{v: aobgen.Version{Major: 1, Minor: 13}, want: false},
		{v: aobgen.Version{Major: 1, Minor: 14, Patch: 3}, want: true},
	} {
		got, err := sigs[2].AppliesTo(tt.v)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("version %s: expected applies=%v, got %v", tt.v, tt.want, got)
		}
	}
	if cfg.CachePath() != "" {
		t.Errorf("expected caching to be disabled, got %s", cfg.CachePath())
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := config.Parse([]byte("signatures:\n  - name: nop\n    patterns: [\"90\"]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Package != aobgen.DefaultPackage {
		t.Errorf("expected package %s, got %s", aobgen.DefaultPackage, cfg.Package)
	}
	if cfg.RequireAll {
		t.Error("expected require_all to default to false")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
		wantPat bool
	}{
		{
			name:    "no-signatures",
			data:    "package: offsets\n",
			wantErr: "no signatures",
		},
		{
			name:    "unknown-key",
			data:    "signatures:\n  - name: nop\n    patterns: [\"90\"]\n    offset: 3\n",
			wantErr: "offset",
		},
		{
			name:    "missing-read-offset",
			data:    "signatures:\n  - name: g\n    patterns: [\"48\"]\n    strategy: indirect\n",
			wantErr: "read_offset",
		},
		{
			name:    "missing-offset-from-offset",
			data:    "signatures:\n  - name: g\n    patterns: [\"48\"]\n    strategy: indirect-twice\n    offset_from_pattern: 3\n",
			wantErr: "offset_from_offset",
		},
		{
			name:    "unknown-strategy",
			data:    "signatures:\n  - name: g\n    patterns: [\"48\"]\n    strategy: relative\n",
			wantErr: "relative",
		},
		{
			name:    "bad-versions-expression",
			data:    "signatures:\n  - name: g\n    patterns: [\"48\"]\n    versions: \"Major >=\"\n",
			wantErr: "versions expression",
		},
		{
			name:    "non-boolean-versions-expression",
			data:    "signatures:\n  - name: g\n    patterns: [\"48\"]\n    versions: \"Major + 1\"\n",
			wantErr: "versions expression",
		},
		{
			name:    "bad-pattern",
			data:    "signatures:\n  - name: g\n    patterns: [\"48 8\"]\n",
			wantPat: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Parse([]byte(tt.data))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
			var perr *aobgen.PatternError
			if got := errors.As(err, &perr); got != tt.wantPat {
				t.Errorf("expected PatternError=%v, got %v (%v)", tt.wantPat, got, err)
			}
		})
	}
}

func TestLoad_Paths(t *testing.T) {
	dir := t.TempDir()
	releases := filepath.Join(dir, "releases")
	if err := os.MkdirAll(releases, 0o755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	for _, name := range []string{"game-1.14.exe", "game-1.13.exe", "readme.txt"} {
		if err := os.WriteFile(filepath.Join(releases, name), nil, 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	data := `output: gen/offsets.go
cache: .cache/scan.db
images:
  - first.exe
  - releases/*.exe
  - nothing/*.exe
  - /abs/game.exe
signatures:
  - name: nop
    patterns: ["90"]
`
	path := filepath.Join(dir, "aobgen.yaml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := cfg.OutputPath(), filepath.Join(dir, "gen", "offsets.go"); got != want {
		t.Errorf("expected output %s, got %s", want, got)
	}

	if got, want := cfg.CachePath(), filepath.Join(dir, ".cache", "scan.db"); got != want {
		t.Errorf("expected cache %s, got %s", want, got)
	}

	paths, err := cfg.ImagePaths()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "first.exe"),
		filepath.Join(releases, "game-1.13.exe"),
		filepath.Join(releases, "game-1.14.exe"),
		"/abs/game.exe",
	}
	if !slices.Equal(paths, want) {
		t.Errorf("expected paths %v, got %v", want, paths)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist, got %v", err)
	}
}
