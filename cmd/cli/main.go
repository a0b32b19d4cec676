package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	rootCmd := &cobra.Command{
		Use:           "microgive",
		Short:         "MicroGive settlement engine operator tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "environment file to load")

	rootCmd.AddCommand(actionCmd(&envFile))
	rootCmd.AddCommand(seedNeedCmd(&envFile))
	rootCmd.AddCommand(migrateCmd(&envFile))
	return rootCmd
}
