package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maxgio92/aobgen"
	"github.com/maxgio92/aobgen/internal/cache"
	"github.com/maxgio92/aobgen/internal/config"
	"github.com/maxgio92/aobgen/internal/logging"
)

var (
	debugMode  bool
	configPath string
	cachePath  string
	noCache    bool
)

var rootCmd = &cobra.Command{
	Use:   "aobgen",
	Short: "Generate version-keyed address tables from byte signatures",
	Long: `aobgen locates byte-pattern signatures inside every release of a program,
resolves each match to a module-relative address and generates Go code mapping
(signature, version) to address.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(cmd.Root().Name(), debugMode)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aobgen.yaml", "Path to the definition file")
	rootCmd.PersistentFlags().StringVar(&cachePath, "cache", "", "Scan cache file (overrides the definition file)")
	rootCmd.PersistentFlags().BoolVar(&noCache, "no-cache", false, "Disable the scan cache")
}

// loadDefinitions reads the definition file and compiles its signatures.
func loadDefinitions() (*config.Config, []aobgen.Signature, []string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load definitions: %w", err)
	}
	sigs, err := cfg.CompileSignatures()
	if err != nil {
		return nil, nil, nil, err
	}
	paths, err := cfg.ImagePaths()
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, sigs, paths, nil
}

// newScanner returns a scanner using the scan cache selected by the flags
// and the definition file. The returned function releases the cache.
func newScanner(cfg *config.Config) (*aobgen.Scanner, func(), error) {
	path := cacheFile(cfg)
	if path == "" {
		return &aobgen.Scanner{}, func() {}, nil
	}

	db, err := cache.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return &aobgen.Scanner{Cache: db}, func() { db.Close() }, nil
}

// cacheFile returns the scan cache in use, or "" if caching is disabled.
func cacheFile(cfg *config.Config) string {
	if noCache {
		return ""
	}
	if cachePath != "" {
		return cachePath
	}
	return cfg.CachePath()
}

// scanResult is the outcome of one pass over the candidate images.
type scanResult struct {
	cfg    *config.Config
	sigs   []aobgen.Signature
	paths  []string
	tables []aobgen.VersionTable
}

// scan loads the definitions and runs them against the candidate images.
func scan() (*scanResult, error) {
	cfg, sigs, paths, err := loadDefinitions()
	if err != nil {
		return nil, err
	}
	scanner, release, err := newScanner(cfg)
	if err != nil {
		return nil, err
	}
	defer release()

	tables, err := scanner.Scan(paths, sigs)
	if err != nil {
		return nil, err
	}
	return &scanResult{cfg: cfg, sigs: sigs, paths: paths, tables: tables}, nil
}
