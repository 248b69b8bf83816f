// SPDX-License-Identifier: Apache-2.0
// Package builder compiles the extracted project into its output binary.
package builder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/toolchain"
)

const (
	DefaultOutputDir = "bin"
	DefaultTimeout   = 30 * time.Minute
)

// WaitDelay bounds how long a killed compiler's children may keep the
// captured output pipes open.
var WaitDelay = 5 * time.Second

// Options describe the compiler invocation.
type Options struct {
	Command   string
	Args      []string
	Flags     []string
	OutputDir string
	Timeout   time.Duration
}

// DefaultOptions runs "go build" into bin/.
func DefaultOptions() Options {
	return Options{
		Command:   toolchain.DefaultCommand,
		Args:      []string{"build"},
		OutputDir: DefaultOutputDir,
		Timeout:   DefaultTimeout,
	}
}

// BinaryPath is the absolute, cleaned location of a built binary. Every
// stage after the build refers to the binary through this one value.
type BinaryPath string

// String returns the path.
func (b BinaryPath) String() string {
	return string(b)
}

// Rel returns the slash-separated path of b relative to root.
func (b BinaryPath) Rel(root string) (string, error) {
	rel, err := filepath.Rel(root, string(b))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Builder runs the compiler.
type Builder struct {
	opts   Options
	logger hclog.Logger
}

// New returns a builder; zero Options fields take their defaults.
func New(opts Options, logger hclog.Logger) *Builder {
	def := DefaultOptions()
	if opts.Command == "" {
		opts.Command = def.Command
	}
	if opts.Args == nil {
		opts.Args = def.Args
	}
	if opts.OutputDir == "" {
		opts.OutputDir = def.OutputDir
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	return &Builder{opts: opts, logger: logger.Named("builder")}
}

// Build compiles entryPoint inside projectDir into <OutputDir>/<outputName>.
// Compiler output is captured and returned in a *errors.BuildError when the
// compiler fails.
func (b *Builder) Build(ctx context.Context, projectDir, entryPoint, outputName string, env toolchain.Env) (BinaryPath, error) {
	root, err := filepath.Abs(projectDir)
	if err != nil {
		return "", perrors.IO("resolve", projectDir, err)
	}
	outDir := filepath.Join(root, b.opts.OutputDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", perrors.IO("mkdir", outDir, err)
	}
	output := BinaryPath(filepath.Clean(filepath.Join(outDir, outputName)))

	bin, err := env.LookPath(b.opts.Command)
	if err != nil {
		return "", &perrors.BuildError{ExitCode: -1, Err: errors.Join(perrors.ErrToolchainAbsent, err)}
	}

	args := append([]string(nil), b.opts.Args...)
	args = append(args, b.opts.Flags...)
	args = append(args, "-o", output.String(), entryPoint)

	ctx, cancel := context.WithTimeout(ctx, b.opts.Timeout)
	defer cancel()

	var captured bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = root
	cmd.Env = env
	cmd.Stdout = &captured
	cmd.Stderr = &captured
	cmd.WaitDelay = WaitDelay

	b.logger.Info("🔨 Building", "dir", root, "command", CommandLine(append([]string{b.opts.Command}, args...)))
	env.LogTrace(b.logger)

	start := time.Now()
	err = cmd.Run()
	diagnostics := strings.TrimSpace(captured.String())
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", perrors.Timeout("build", b.opts.Timeout)
	}
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		b.logger.Error("❌ Build failed", "exit_code", code, "output", diagnostics)
		return "", &perrors.BuildError{ExitCode: code, Output: diagnostics, Err: err}
	}
	if diagnostics != "" {
		b.logger.Debug("🔨 Compiler output", "output", diagnostics)
	}

	info, err := os.Stat(output.String())
	if err != nil || info.IsDir() {
		return "", &perrors.BuildError{ExitCode: -1, Output: diagnostics,
			Err: perrors.IO("stat", output.String(), errors.New("compiler reported success but produced no binary"))}
	}

	b.logger.Info("✅ Build complete", "binary", output, "size", info.Size(), "duration", time.Since(start).Round(time.Millisecond))
	return output, nil
}
