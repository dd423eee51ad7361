package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maxgio92/aobgen/internal/cache"
	"github.com/maxgio92/aobgen/internal/config"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the scan cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of cached scans",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, path, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.Len()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d cached scans\n", path, n)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop every cached scan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, path, err := openCache()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.Clear(); err != nil {
			return fmt.Errorf("failed to clear cache %s: %w", path, err)
		}
		slog.Info("scan cache cleared", "path", path)
		return nil
	},
}

// openCache opens the cache selected by the flags and the definition file.
func openCache() (*cache.DB, string, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load definitions: %w", err)
	}
	path := cacheFile(cfg)
	if path == "" {
		return nil, "", errors.New("no scan cache configured")
	}
	db, err := cache.Open(path)
	if err != nil {
		return nil, "", err
	}
	return db, path, nil
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
