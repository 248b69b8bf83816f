// SPDX-License-Identifier: Apache-2.0
// Package workenv manages the working directory a pipeline run operates in.
package workenv

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirPerms is the mode of directories the pipeline creates.
const DirPerms = 0o755

const (
	extractedDir   = "extracted"
	lockFile       = ".pipeline.lock"
	completeFile   = ".pipeline.complete"
	incompleteFile = ".pipeline.incomplete"
	packageFile    = "package.zip"
)

// Layout names the files and directories inside a working directory.
type Layout struct {
	Root string
}

// DefaultRoot is $FLAVOR_WORKDIR, else the current directory.
func DefaultRoot() string {
	if dir := os.Getenv("FLAVOR_WORKDIR"); dir != "" {
		return dir
	}
	return "."
}

// New returns the layout rooted at root, made absolute.
func New(root string) (Layout, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolving working directory %s: %w", root, err)
	}
	return Layout{Root: abs}, nil
}

// Prepare creates the working directory if needed.
func (l Layout) Prepare() error {
	if err := os.MkdirAll(l.Root, DirPerms); err != nil {
		return fmt.Errorf("failed to create working directory: %w", err)
	}
	return nil
}

// Extracted is the extraction root, reset on every run.
func (l Layout) Extracted() string { return filepath.Join(l.Root, extractedDir) }

// LockFile holds the pid of the run that owns the directory.
func (l Layout) LockFile() string { return filepath.Join(l.Root, lockFile) }

// CompleteFile marks a successful run.
func (l Layout) CompleteFile() string { return filepath.Join(l.Root, completeFile) }

// IncompleteFile records the stage and reason of a failed run.
func (l Layout) IncompleteFile() string { return filepath.Join(l.Root, incompleteFile) }

// DefaultPackage is where the outbound archive goes unless told otherwise.
func (l Layout) DefaultPackage() string { return filepath.Join(l.Root, packageFile) }
