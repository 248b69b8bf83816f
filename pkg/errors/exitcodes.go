// SPDX-License-Identifier: Apache-2.0
package errors

import "errors"

// Process exit codes used by flavor-pipeline.
const (
	ExitSuccess        = 0
	ExitFailure        = 1
	ExitPanic          = 101
	ExitArchiveError   = 102
	ExitManifestError  = 103
	ExitToolchainError = 104
	ExitSecurityError  = 105
	ExitBuildError     = 106
	ExitIOError        = 107
	ExitTimedOut       = 108
	ExitLocked         = 109
	ExitExecutionError = 110
	ExitInvalidArgs    = 111
	ExitIntegrityError = 112
)

// ExitCode maps an error to the process exit code that reports it.
// Timeouts take precedence so a slow fetch is not reported as an I/O error.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrTimedOut):
		return ExitTimedOut
	case errors.Is(err, ErrSecurity):
		return ExitSecurityError
	case errors.Is(err, ErrArchive):
		return ExitArchiveError
	case errors.Is(err, ErrManifest):
		return ExitManifestError
	case errors.Is(err, ErrToolchainAbsent):
		return ExitToolchainError
	case errors.Is(err, ErrBuild):
		return ExitBuildError
	case errors.Is(err, ErrIntegrity):
		return ExitIntegrityError
	case errors.Is(err, ErrLocked):
		return ExitLocked
	case errors.Is(err, ErrExecution):
		return ExitExecutionError
	case errors.Is(err, ErrIO):
		return ExitIOError
	default:
		return ExitFailure
	}
}
