package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maxgio92/aobgen"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect IMAGE...",
	Short: "Print the embedded version and the sections of executable images",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for i, path := range args {
			img, err := aobgen.OpenImage(path)
			if err != nil {
				return err
			}

			if i > 0 {
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "%s: version %s, machine %#x\n", path, img.Version, img.Machine)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SECTION\tADDRESS\tSIZE")
			for _, s := range img.Sections {
				fmt.Fprintf(w, "%s\t%#x\t%#x\n", s.Name, s.Addr, len(s.Data))
			}
			err = w.Flush()
			img.Close()
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
