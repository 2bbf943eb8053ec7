package main

import (
	"github.com/spf13/cobra"
)

var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Build and inspect daily Merkle rollups",
}

func init() {
	rootCmd.AddCommand(rollupCmd)
}
