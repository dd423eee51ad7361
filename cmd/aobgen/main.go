// Command aobgen scans releases of a program for byte signatures and
// generates a version-keyed Go address table.
package main

import "github.com/spf13/cobra"

func main() {
	cobra.CheckErr(rootCmd.Execute())
}
