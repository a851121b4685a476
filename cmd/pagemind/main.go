package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var root = &cobra.Command{Use: "pagemind", SilenceUsage: true}
	root.AddCommand(serveCMD(), migrateCMD(), workerCMD(), reindexCMD())
	return root
}
