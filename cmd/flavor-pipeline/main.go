// SPDX-License-Identifier: Apache-2.0
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/logging"
)

const version = "0.1.0"

var (
	logLevel    string
	versionFlag bool
	rootCmd     *cobra.Command

	errInvalidArgs = errors.New("invalid arguments")

	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
)

func getBuildTimestamp() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.time" {
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					return t.UTC().Format(time.RFC3339)
				}
			}
		}
	}
	if exePath, err := os.Executable(); err == nil {
		if stat, err := os.Stat(exePath); err == nil {
			return stat.ModTime().UTC().Format(time.RFC3339)
		}
	}
	return time.Now().UTC().Format(time.RFC3339)
}

func init() {
	rootCmd = &cobra.Command{
		Use:           "flavor-pipeline",
		Short:         "Build, verify and repackage manifest-driven Go packages",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if versionFlag {
				printVersion()
				return nil
			}
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, json[:level])")
	rootCmd.Flags().BoolVarP(&versionFlag, "version", "V", false, "Show version information")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", errInvalidArgs, err)
	})

	rootCmd.AddCommand(newRunCmd(), newDigestCmd(), newVerifyCmd(), newExtractCmd(), newPackCmd())
}

func printVersion() {
	fmt.Printf("flavor-pipeline %s\n", version)
	fmt.Printf("Built: %s\n", getBuildTimestamp())
}

func newLogger() hclog.Logger {
	return logging.NewLogger("flavor-pipeline", logging.ResolveLevel(logLevel), nil)
}

// exactArgs is cobra.ExactArgs with the error classified as a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %w", errInvalidArgs, err)
		}
		return nil
	}
}

func exitCode(err error) int {
	if errors.Is(err, errInvalidArgs) {
		return perrors.ExitInvalidArgs
	}
	return perrors.ExitCode(err)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n", r)
			debug.PrintStack()
			os.Exit(perrors.ExitPanic)
		}
	}()

	if len(os.Args) > 1 && (os.Args[1] == "--version" || os.Args[1] == "-V") {
		printVersion()
		os.Exit(perrors.ExitSuccess)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		failColor.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(exitCode(err))
	}
}

// 🌶️📦🖥️🪄
