package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maxgio92/aobgen"
)

var (
	outputPath  string
	packageName string
	requireAll  bool
	watchMode   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Scan the candidate images and write the generated address table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gen, err := generate()
		if err != nil || !watchMode {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return watch(ctx, gen, generate)
	},
}

// generation records what a generate pass read and wrote.
type generation struct {
	paths  []string
	output string
	cache  string
}

func generate() (generation, error) {
	res, err := scan()
	if err != nil {
		return generation{}, err
	}
	gen := generation{paths: res.paths, output: res.cfg.OutputPath(), cache: cacheFile(res.cfg)}
	if outputPath != "" {
		gen.output = outputPath
	}

	if len(res.tables) == 0 {
		return gen, errors.New("none of the candidate images exist")
	}
	if requireAll || res.cfg.RequireAll {
		if err := checkComplete(res.tables); err != nil {
			return gen, err
		}
	}

	pkg := res.cfg.Package
	if packageName != "" {
		pkg = packageName
	}

	err = aobgen.WriteFile(gen.output, aobgen.SignatureNames(res.sigs), res.tables, aobgen.GenerateOptions{Package: pkg})
	if err != nil {
		return gen, err
	}
	slog.Info("address table generated", "path", gen.output, "versions", len(res.tables), "signatures", len(res.sigs))
	return gen, nil
}

// checkComplete fails if any applicable signature is missing from any
// version.
func checkComplete(tables []aobgen.VersionTable) error {
	var missing []string
	for _, t := range tables {
		for _, name := range t.Missing() {
			missing = append(missing, fmt.Sprintf("%s@%s", name, t.Version))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("signatures not found: %s", strings.Join(missing, ", "))
	}
	return nil
}

func init() {
	generateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (overrides the definition file)")
	generateCmd.Flags().StringVar(&packageName, "package", "", "Package name of the generated file (overrides the definition file)")
	generateCmd.Flags().BoolVar(&requireAll, "require-all", false, "Fail if a signature is missing from any version")
	generateCmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Regenerate whenever the definition file or a candidate image changes")
	rootCmd.AddCommand(generateCmd)
}
