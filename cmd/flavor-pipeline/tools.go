// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/pipeline/pkg/archive"
	"github.com/provide-io/flavor/go/pipeline/pkg/builder"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
	"github.com/provide-io/flavor/go/pipeline/pkg/pipeline"
)

func newDigestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest FILE...",
		Short: "Print the sha256 of files",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w: %w", errInvalidArgs, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				sum, err := integrity.Digest(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", sum, path)
			}
			return nil
		},
	}
}

func newVerifyCmd() *cobra.Command {
	var outputDir string
	cmd := &cobra.Command{
		Use:   "verify PACKAGE",
		Short: "Check that a package's binary matches its manifest digest",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := pipeline.VerifyPackage(args[0], outputDir, newLogger())
			if err != nil {
				return err
			}
			okColor.Fprintf(os.Stderr, "✓ %s matches %s\n", report.Binary, report.Actual)
			return nil
		},
	}
	cmd.Flags().StringVar(&outputDir, "output-dir", builder.DefaultOutputDir, "Build output directory the package was built with")
	return cmd
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract ARCHIVE DEST",
		Short: "Safely extract a package, replacing DEST",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := archive.Extract(args[0], args[1], newLogger())
			if err != nil {
				return err
			}
			okColor.Fprintf(os.Stderr, "📦 Extracted to %s\n", root)
			return nil
		},
	}
}

func newPackCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pack DIR ARCHIVE",
		Short: "Pack a directory into a deterministic zip",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := archive.Pack(args[0], args[1], newLogger()); err != nil {
				return err
			}
			okColor.Fprintf(os.Stderr, "📦 Packed %s\n", args[1])
			return nil
		},
	}
}
