// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/provide-io/flavor/go/pipeline/internal/workenv"
	"github.com/provide-io/flavor/go/pipeline/pkg/builder"
	"github.com/provide-io/flavor/go/pipeline/pkg/pipeline"
	"github.com/provide-io/flavor/go/pipeline/pkg/toolchain"
)

type runFlags struct {
	workDir         string
	output          string
	execute         bool
	strictIntegrity bool
	outputPrefix    string

	command      string
	toolchainDir string
	downloadDir  string
	fetchTimeout time.Duration

	buildFlags   string
	buildTimeout time.Duration
	outputDir    string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run ARCHIVE",
		Short: "Extract, build, verify, re-manifest, repackage and run a package",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, f, args[0])
		},
	}

	tc := toolchain.DefaultConfig()
	fl := cmd.Flags()
	fl.StringVarP(&f.workDir, "workdir", "w", workenv.DefaultRoot(), "Working directory (env FLAVOR_WORKDIR)")
	fl.StringVarP(&f.output, "output", "o", "", "Outbound package path (default <workdir>/package.zip)")
	fl.BoolVarP(&f.execute, "execute", "x", true, "Run the built binary after repackaging")
	fl.BoolVar(&f.strictIntegrity, "strict-integrity", false, "Fail when the built binary does not match the manifest digest")
	fl.StringVar(&f.outputPrefix, "output-prefix", "", "Prefix each line the executed binary prints")
	fl.StringVar(&f.command, "go", tc.Command, "Toolchain command to probe and build with")
	fl.StringVar(&f.toolchainDir, "toolchain-dir", tc.InstallRoot, "Where toolchains are installed (env FLAVOR_TOOLCHAIN_DIR)")
	fl.StringVar(&f.downloadDir, "download-dir", tc.DownloadDir, "Where toolchain archives are downloaded")
	fl.DurationVar(&f.fetchTimeout, "fetch-timeout", tc.FetchTimeout, "Toolchain download timeout")
	fl.StringVar(&f.buildFlags, "build-flags", "", `Extra build flags, e.g. "-trimpath -ldflags '-s -w'"`)
	fl.DurationVar(&f.buildTimeout, "build-timeout", builder.DefaultTimeout, "Build timeout")
	fl.StringVar(&f.outputDir, "output-dir", builder.DefaultOutputDir, "Build output directory inside the project")
	return cmd
}

func runPipeline(cmd *cobra.Command, f *runFlags, archivePath string) error {
	logger := newLogger()

	flags, err := builder.ParseFlags(f.buildFlags)
	if err != nil {
		return fmt.Errorf("%w: --build-flags: %w", errInvalidArgs, err)
	}
	clock, err := pipeline.ClockFromEnv()
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgs, err)
	}

	buildOpts := builder.DefaultOptions()
	buildOpts.Command = f.command
	buildOpts.Flags = flags
	buildOpts.Timeout = f.buildTimeout
	buildOpts.OutputDir = f.outputDir

	o, err := pipeline.New(pipeline.Options{
		ArchivePath:     archivePath,
		WorkDir:         f.workDir,
		OutputPath:      f.output,
		Execute:         f.execute,
		StrictIntegrity: f.strictIntegrity,
		Toolchain: toolchain.Config{
			Command:      f.command,
			InstallRoot:  f.toolchainDir,
			DownloadDir:  f.downloadDir,
			FetchTimeout: f.fetchTimeout,
		},
		Build:        buildOpts,
		Clock:        clock,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		OutputPrefix: f.outputPrefix,
	}, logger)
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidArgs, err)
	}

	res, err := o.Run(cmd.Context())
	if err != nil {
		return err
	}

	if w := res.IntegrityWarning; w != nil {
		warnColor.Fprintf(os.Stderr, "⚠️  %s did not match the manifest digest; manifest now records %s\n", w.Binary, w.Actual)
	}
	okColor.Fprintf(os.Stderr, "✅ Packaged %s (sha256 %s)\n", res.PackagePath, res.Digest)
	if f.execute && res.ExitCode != 0 {
		warnColor.Fprintf(os.Stderr, "⏹️  %s exited with code %d\n", res.Binary, res.ExitCode)
	}
	return nil
}
