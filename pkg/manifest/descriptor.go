// SPDX-License-Identifier: Apache-2.0
// Package manifest reads and writes the HCL manifest that describes how a
// package is built.
//
// A manifest looks like:
//
//	name          = "my-go-app"
//	version       = "1.0.0"
//	entry_point   = "entry.go"
//	date          = "2025-03-10T12:34:56+00:00"
//	output_binary = "app"
//	sha256        = "9f86d0…"
//
//	supported_os            = ["linux"]
//	supported_architectures = ["amd64"]
//
//	dependencies = [
//	  { name = "go", version = "1.22.5", source = "https://go.dev/dl/go1.22.5.linux-amd64.tar.gz", sha256 = "904b92…" }
//	]
package manifest

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/mod/semver"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
)

// FileName is the manifest's fixed location relative to the project root.
const FileName = "manifest.hcl"

// Descriptor is the in-memory form of a manifest.
type Descriptor struct {
	Name                   string
	Version                string
	EntryPoint             string
	Date                   time.Time
	OutputBinary           string
	SHA256                 string
	SupportedOS            []string
	SupportedArchitectures []string
	Dependencies           []Dependency
}

// Dependency is the toolchain a package needs in order to build.
type Dependency struct {
	Name    string
	Version string
	Source  string
	SHA256  string
}

// Validate checks the invariants that do not depend on the manifest syntax.
// The returned error is a *errors.ManifestError naming the first bad field.
func (d *Descriptor) Validate() error {
	if d.Version != "" && !semver.IsValid("v"+strings.TrimPrefix(d.Version, "v")) {
		return fieldError("version", "must be a semantic version, got %q", d.Version)
	}
	if d.EntryPoint == "" {
		return fieldError("entry_point", "must not be empty")
	}
	if strings.HasPrefix(d.EntryPoint, "-") {
		return fieldError("entry_point", "must not start with '-', got %q", d.EntryPoint)
	}
	if !filepath.IsLocal(filepath.FromSlash(d.EntryPoint)) {
		return fieldError("entry_point", "must be a path inside the project, got %q", d.EntryPoint)
	}
	if !isBareName(d.OutputBinary) {
		return fieldError("output_binary", "must be a plain file name, got %q", d.OutputBinary)
	}
	for i, dep := range d.Dependencies {
		if err := dep.validate(i); err != nil {
			return err
		}
	}
	return nil
}

func (dep Dependency) validate(i int) error {
	for _, f := range []struct{ key, value string }{
		{"name", dep.Name},
		{"version", dep.Version},
		{"source", dep.Source},
		{"sha256", dep.SHA256},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fieldError(depField(i, f.key), "must not be empty")
		}
	}
	if !isBareName(dep.Name) {
		return fieldError(depField(i, "name"), "must be a plain directory name, got %q", dep.Name)
	}
	if !integrity.ValidHex(dep.SHA256) {
		return fieldError(depField(i, "sha256"), "must be a lowercase sha256 hex digest")
	}
	return nil
}

func isBareName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

func fieldError(field, format string, args ...any) error {
	return &perrors.ManifestError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
