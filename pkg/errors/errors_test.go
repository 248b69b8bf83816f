package errors

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTypedErrorsUnwrapToSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		code     int
	}{
		{"archive", &ArchiveError{Archive: "a.zip", Entry: "../x", Err: ErrPathTraversal}, ErrArchive, ExitArchiveError},
		{"manifest", &ManifestError{Field: "sha256", Reason: "required"}, ErrManifest, ExitManifestError},
		{"security", &SecurityError{Artifact: "go.tgz", Expected: "aa", Actual: "bb"}, ErrSecurity, ExitSecurityError},
		{"build", &BuildError{ExitCode: 2, Output: "syntax error"}, ErrBuild, ExitBuildError},
		{"integrity", &IntegrityWarning{Binary: "bin/app"}, ErrIntegrity, ExitIntegrityError},
		{"io", IO("open", "/nope", os.ErrNotExist), ErrIO, ExitIOError},
		{"timeout", Timeout("fetch", time.Second), ErrTimedOut, ExitTimedOut},
		{"wrapped timeout", fmt.Errorf("stage: %w", Timeout("build", time.Minute)), ErrTimedOut, ExitTimedOut},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.err, tt.sentinel)
			require.Equal(t, tt.code, ExitCode(tt.err))
		})
	}
}

func TestArchiveErrorKeepsCause(t *testing.T) {
	err := &ArchiveError{Archive: "a.zip", Err: os.ErrNotExist}
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorIs(t, err, ErrArchive)

	var ae *ArchiveError
	require.True(t, errors.As(fmt.Errorf("extract: %w", err), &ae))
	require.Equal(t, "a.zip", ae.Archive)
}

func TestManifestErrorNamesField(t *testing.T) {
	err := &ManifestError{Path: "manifest.hcl", Field: "dependencies[0].source", Reason: "required"}
	require.Contains(t, err.Error(), `"dependencies[0].source"`)
	require.Contains(t, err.Error(), "manifest.hcl")
}

func TestBuildErrorIncludesDiagnostics(t *testing.T) {
	err := &BuildError{ExitCode: 1, Output: "./entry.go:3:1: undefined: x"}
	require.Contains(t, err.Error(), "code 1")
	require.Contains(t, err.Error(), "undefined: x")
}

func TestExitCodeDefaults(t *testing.T) {
	require.Equal(t, ExitSuccess, ExitCode(nil))
	require.Equal(t, ExitFailure, ExitCode(errors.New("something else")))
}
