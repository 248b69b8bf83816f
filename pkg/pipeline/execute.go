// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os/exec"

	"github.com/provide-io/flavor/go/pipeline/pkg/builder"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/logging"
)

// spawn runs the built binary with no arguments and waits for it. A non-zero
// exit is reported through the returned code, not as an error; only failing
// to start the process is an error.
func (o *Orchestrator) spawn(ctx context.Context, bin builder.BinaryPath, dir string) (int, error) {
	stdout, stderr := o.opts.Stdout, o.opts.Stderr
	var flushers []*logging.PrefixWriter
	if o.opts.OutputPrefix != "" {
		out := logging.NewPrefixWriter(o.opts.OutputPrefix, stdout)
		errOut := logging.NewPrefixWriter(o.opts.OutputPrefix, stderr)
		flushers = append(flushers, out, errOut)
		stdout, stderr = out, errOut
	}
	defer func() {
		for _, f := range flushers {
			_ = f.Flush()
		}
	}()

	cmd := exec.CommandContext(ctx, bin.String())
	cmd.Dir = dir
	cmd.Env = o.env
	cmd.Stdin = o.opts.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	o.logger.Info("🚀 Executing binary", "path", bin)

	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("%w: failed to start %s: %w", perrors.ErrExecution, bin, err)
	}
	if err := cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			o.logger.Warn("⏹️ Process exited", "code", exitErr.ExitCode())
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("%w: %s: %w", perrors.ErrExecution, bin, err)
	}

	o.logger.Info("✅ Process completed successfully")
	return 0, nil
}
