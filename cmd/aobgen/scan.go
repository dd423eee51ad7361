package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/maxgio92/aobgen"
)

var scanJSON bool

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the candidate images and print where every signature resolved",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := scan()
		if err != nil {
			return err
		}

		if scanJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res.tables)
		}
		return printReport(cmd.OutOrStdout(), res.tables)
	},
}

func printReport(out io.Writer, tables []aobgen.VersionTable) error {
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "VERSION %s: %s\n", t.Version, t.Path)

		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SIGNATURE\tADDRESS\tSECTION\tMATCH\tPATTERN\tINSTRUCTION\tREFERENCE")
		for _, e := range t.Entries {
			r := e.Resolution
			switch {
			case e.Skipped:
				fmt.Fprintf(w, "%s\t-\t-\t-\t-\tnot applicable\t-\n", e.Name)
				continue
			case r == nil:
				fmt.Fprintf(w, "%s\t-\t-\t-\t-\tnot found\t-\n", e.Name)
				continue
			}
			ref := "-"
			if r.Reference != 0 {
				ref = fmt.Sprintf("%#x", r.Reference)
			}
			fmt.Fprintf(w, "%s\t%#x\t%s\t%#x\t%d\t%s\t%s\n", e.Name, r.Address, r.Section, r.Offset, r.Pattern, r.Instruction, ref)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the tables as JSON")
	rootCmd.AddCommand(scanCmd)
}
