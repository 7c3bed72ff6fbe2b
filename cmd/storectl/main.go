package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "storectl",
		Short:         "storectl moves tool/skill catalogs between a directory and a Redis store",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newBootstrapCmd(), newPullCmd(), newDiffCmd(), newListCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newBootstrapCmd() *cobra.Command {
	var opts bootstrapOpts
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Push a directory of tool/skill files into a Redis catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Directory of .yaml tool descriptors / .lua skill sources")
	cmd.Flags().StringVar(&opts.target, "target", "", "Redis connection URL")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Redis hash key the catalog lives under")
	cmd.Flags().StringVar(&opts.kind, "type", "", "Restrict to \"skills\" or \"tools\" (default: both)")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Delete the prefix's existing entries before pushing")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("prefix")
	return cmd
}

func newPullCmd() *cobra.Command {
	var opts pullOpts
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Write a Redis catalog's entries back out to a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPull(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "", "Redis connection URL")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Redis hash key the catalog lives under")
	cmd.Flags().StringVar(&opts.dest, "dest", "", "Directory to write .yaml/.lua files into")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("prefix")
	cmd.MarkFlagRequired("dest")
	return cmd
}

func newDiffCmd() *cobra.Command {
	var opts diffOpts
	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare a local directory against a Redis catalog by content hash",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.source, "source", "", "Directory of .yaml tool descriptors / .lua skill sources")
	cmd.Flags().StringVar(&opts.target, "target", "", "Redis connection URL")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Redis hash key the catalog lives under")
	cmd.MarkFlagRequired("source")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("prefix")
	return cmd
}

func newListCmd() *cobra.Command {
	var opts listOpts
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a Redis catalog's entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.target, "target", "", "Redis connection URL")
	cmd.Flags().StringVar(&opts.prefix, "prefix", "", "Redis hash key the catalog lives under")
	cmd.Flags().StringVar(&opts.kind, "type", "", "Restrict to \"skills\" or \"tools\" (default: both)")
	cmd.MarkFlagRequired("target")
	cmd.MarkFlagRequired("prefix")
	return cmd
}
