// SPDX-License-Identifier: Apache-2.0
package pipeline

import (
	"errors"
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/pipeline/pkg/archive"
	"github.com/provide-io/flavor/go/pipeline/pkg/builder"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/manifest"
)

// PackageReport is the outcome of checking an outbound package.
type PackageReport struct {
	Archive    string
	Descriptor *manifest.Descriptor
	Binary     string
	Expected   string
	Actual     string
}

// OK reports whether the packaged binary matches its manifest.
func (r *PackageReport) OK() bool {
	return r.Expected == r.Actual
}

// VerifyPackage opens a package produced by the pipeline, reads its manifest
// and digests the packaged binary in place. outputDir is the build output
// directory relative to the project root (builder.DefaultOutputDir when
// empty). A mismatch returns the report together with a
// *errors.IntegrityWarning.
func VerifyPackage(archivePath, outputDir string, logger hclog.Logger) (*PackageReport, error) {
	logger.Info("🔍 Verifying package", "archive", archivePath, "output_dir", outputDir)

	binDir, err := archiveDir(archivePath, outputDir)
	if err != nil {
		return nil, err
	}

	prefix, err := manifestPrefix(archivePath)
	if err != nil {
		return nil, err
	}
	src, err := archive.ReadFile(archivePath, prefix+manifest.FileName)
	if err != nil {
		return nil, err
	}
	d, err := manifest.Parse(src, archivePath+"!"+prefix+manifest.FileName)
	if err != nil {
		return nil, err
	}
	logger.Info("✓ Manifest valid", "name", d.Name, "version", d.Version)

	report := &PackageReport{
		Archive:    archivePath,
		Descriptor: d,
		Binary:     prefix + path.Join(binDir, d.OutputBinary),
		Expected:   d.SHA256,
	}
	report.Actual, err = archive.DigestEntry(archivePath, report.Binary)
	if err != nil {
		return report, err
	}

	if !report.OK() {
		logger.Error("✗ Binary digest mismatch", "binary", report.Binary,
			"expected", report.Expected, "actual", report.Actual)
		return report, &perrors.IntegrityWarning{Binary: report.Binary, Expected: report.Expected, Actual: report.Actual}
	}
	logger.Info("✓ Binary digest valid", "binary", report.Binary, "sha256", report.Actual)
	return report, nil
}

// archiveDir turns a build output directory into its slash-separated form
// inside a package.
func archiveDir(archivePath, outputDir string) (string, error) {
	if outputDir == "" {
		return builder.DefaultOutputDir, nil
	}
	clean, err := archive.CleanEntryName(filepath.ToSlash(outputDir))
	if err != nil {
		return "", &perrors.ArchiveError{Archive: archivePath, Entry: outputDir, Err: err}
	}
	return clean, nil
}

// manifestPrefix locates the manifest at the archive root or inside a single
// top-level directory, mirroring how a run finds its project root.
func manifestPrefix(archivePath string) (string, error) {
	entries, err := archive.Entries(archivePath)
	if err != nil {
		return "", err
	}
	var nested []string
	for _, name := range entries {
		if name == manifest.FileName {
			return "", nil
		}
		dir, file := path.Split(name)
		if file == manifest.FileName && strings.Count(dir, "/") == 1 {
			nested = append(nested, dir)
		}
	}
	if len(nested) == 1 {
		return nested[0], nil
	}
	return "", &perrors.ArchiveError{
		Archive: archivePath,
		Entry:   manifest.FileName,
		Err:     errors.Join(perrors.ErrManifest, fs.ErrNotExist),
	}
}
