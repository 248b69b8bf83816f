// SPDX-License-Identifier: Apache-2.0
// Package errors defines the failure taxonomy shared by every pipeline stage.
//
// Each class has a sentinel so callers can test with errors.Is, and the
// classes that carry detail (manifest field, compiler output, digests) have a
// typed error that unwraps to its sentinel.
package errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Archive errors 📦
	ErrArchive       = errors.New("❌ archive error")
	ErrPathTraversal = errors.New("❌ archive entry escapes destination")

	// Manifest errors 📜
	ErrManifest = errors.New("❌ manifest error")

	// Toolchain errors 🔧
	ErrToolchainAbsent = errors.New("toolchain not installed")

	// Security errors 🔒
	ErrSecurity = errors.New("❌ digest mismatch, refusing unverified artifact")

	// Build errors 🔨
	ErrBuild     = errors.New("❌ build failed")
	ErrIntegrity = errors.New("⚠️ binary digest does not match manifest")

	// Runtime errors 🚀
	ErrIO        = errors.New("❌ i/o error")
	ErrTimedOut  = errors.New("❌ timed out")
	ErrLocked    = errors.New("❌ working directory locked by another run")
	ErrExecution = errors.New("❌ execution failed")
)

// ArchiveError reports a missing, corrupt or unsafe archive.
type ArchiveError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ArchiveError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("archive %s: entry %q: %v", e.Archive, e.Entry, e.Err)
	}
	return fmt.Sprintf("archive %s: %v", e.Archive, e.Err)
}

func (e *ArchiveError) Unwrap() []error {
	return []error{ErrArchive, e.Err}
}

// ManifestError names the manifest field that is absent or malformed.
type ManifestError struct {
	Path   string
	Field  string
	Reason string
}

func (e *ManifestError) Error() string {
	loc := "manifest"
	if e.Path != "" {
		loc = e.Path
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", loc, e.Reason)
	}
	return fmt.Sprintf("%s: field %q: %s", loc, e.Field, e.Reason)
}

func (e *ManifestError) Unwrap() error {
	return ErrManifest
}

// SecurityError is returned when a downloaded artifact does not match its
// declared digest. The artifact has already been deleted when this is seen.
type SecurityError struct {
	Artifact string
	Expected string
	Actual   string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("%s: expected sha256 %s, got %s", e.Artifact, e.Expected, e.Actual)
}

func (e *SecurityError) Unwrap() error {
	return ErrSecurity
}

// BuildError carries the compiler diagnostics of a failed build.
type BuildError struct {
	ExitCode int
	Output   string
	Err      error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build exited with code %d", e.ExitCode)
	if e.Err != nil && e.ExitCode < 0 {
		msg = e.Err.Error()
	}
	if e.Output != "" {
		msg += "\n" + e.Output
	}
	return msg
}

func (e *BuildError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrBuild}
	}
	return []error{ErrBuild, e.Err}
}

// IntegrityWarning describes a built binary whose digest differs from the
// one recorded in the manifest. It is a warning unless strict integrity is on.
type IntegrityWarning struct {
	Binary   string
	Expected string
	Actual   string
}

func (e *IntegrityWarning) Error() string {
	return fmt.Sprintf("%s: manifest sha256 %q, built %s", e.Binary, e.Expected, e.Actual)
}

func (e *IntegrityWarning) Unwrap() error {
	return ErrIntegrity
}

// IO wraps a filesystem failure with the operation and path involved.
func IO(op, path string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIO, op, path, err)
}

// Timeout reports that what did not finish within d.
func Timeout(what string, d time.Duration) error {
	return fmt.Errorf("%w: %s after %s", ErrTimedOut, what, d)
}
