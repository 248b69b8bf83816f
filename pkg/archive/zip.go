// SPDX-License-Identifier: Apache-2.0
// Package archive moves projects in and out of zip packages.
//
// Extraction is a destructive reset of the destination: whatever was there
// before is removed, so artifacts from an earlier run can never leak into the
// next one. Packing is deterministic: entries are sorted and carry a fixed
// timestamp, so identical trees produce byte-identical archives.
package archive

import (
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/renameio"
	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zip"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
)

const (
	DirPerms     = 0o755
	FilePerms    = 0o644
	ArchivePerms = 0o644
)

// PackEpoch is the modification time stamped on every packed entry.
var PackEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

type extraction struct {
	file   *zip.File
	target string
}

// Extract resets destDir and unpacks every entry of archivePath into it,
// preserving relative paths and permission bits. Every entry name is checked
// before anything is written, so a hostile archive leaves no files behind.
// It returns the absolute extraction root.
func Extract(archivePath, destDir string, logger hclog.Logger) (string, error) {
	root, err := filepath.Abs(destDir)
	if err != nil {
		return "", perrors.IO("resolve", destDir, err)
	}

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return "", &perrors.ArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	plan := make([]extraction, 0, len(zr.File))
	for _, f := range zr.File {
		if f.Mode()&fs.ModeSymlink != 0 {
			return "", &perrors.ArchiveError{
				Archive: archivePath,
				Entry:   f.Name,
				Err:     fmt.Errorf("%w: symbolic link entries are not extracted", perrors.ErrPathTraversal),
			}
		}
		target, err := SafeJoin(root, f.Name)
		if err != nil {
			return "", &perrors.ArchiveError{Archive: archivePath, Entry: f.Name, Err: err}
		}
		if target == root {
			continue
		}
		plan = append(plan, extraction{file: f, target: target})
	}

	logger.Debug("🧹 Resetting extraction root", "dir", root)
	if err := os.RemoveAll(root); err != nil {
		return "", perrors.IO("remove", root, err)
	}
	if err := os.MkdirAll(root, DirPerms); err != nil {
		return "", perrors.IO("mkdir", root, err)
	}

	for _, p := range plan {
		if p.file.FileInfo().IsDir() {
			if err := os.MkdirAll(p.target, p.file.Mode().Perm()|0o700); err != nil {
				return "", perrors.IO("mkdir", p.target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p.target), DirPerms); err != nil {
			return "", perrors.IO("mkdir", filepath.Dir(p.target), err)
		}
		if err := extractFile(p.file, p.target); err != nil {
			return "", &perrors.ArchiveError{Archive: archivePath, Entry: p.file.Name, Err: err}
		}
		logger.Trace("📄 Extracted", "entry", p.file.Name, "size", p.file.UncompressedSize64)
	}

	logger.Info("📦 Archive extracted", "archive", archivePath, "dir", root, "entries", len(plan))
	return root, nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = FilePerms
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

type packEntry struct {
	name string
	path string
	mode fs.FileMode
}

// Pack writes every regular file below sourceDir into a new zip archive at
// archivePath. Entry names are slash-separated paths relative to sourceDir in
// lexicographic order. The archive replaces archivePath atomically; an
// archive that lives inside sourceDir is never packed into itself.
func Pack(sourceDir, archivePath string, logger hclog.Logger) error {
	root, err := filepath.Abs(sourceDir)
	if err != nil {
		return perrors.IO("resolve", sourceDir, err)
	}
	dest, err := filepath.Abs(archivePath)
	if err != nil {
		return perrors.IO("resolve", archivePath, err)
	}

	entries, err := collect(root, dest)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dest), DirPerms); err != nil {
		return perrors.IO("mkdir", filepath.Dir(dest), err)
	}
	pending, err := renameio.TempFile(filepath.Dir(dest), dest)
	if err != nil {
		return perrors.IO("create", dest, err)
	}
	defer pending.Cleanup()

	zw := zip.NewWriter(pending)
	for _, e := range entries {
		if err := addFile(zw, e); err != nil {
			return perrors.IO("pack", e.path, err)
		}
	}
	if err := zw.Close(); err != nil {
		return perrors.IO("finish", dest, err)
	}
	if err := pending.Chmod(ArchivePerms); err != nil {
		return perrors.IO("chmod", dest, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return perrors.IO("rename", dest, err)
	}

	logger.Info("🗜️ Package written", "archive", dest, "entries", len(entries))
	return nil
}

func collect(root, exclude string) ([]packEntry, error) {
	var entries []packEntry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || path == exclude {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entries = append(entries, packEntry{
			name: filepath.ToSlash(rel),
			path: path,
			mode: info.Mode().Perm(),
		})
		return nil
	})
	if err != nil {
		return nil, perrors.IO("walk", root, err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })
	return entries, nil
}

func addFile(zw *zip.Writer, e packEntry) error {
	hdr := &zip.FileHeader{
		Name:     e.name,
		Method:   zip.Deflate,
		Modified: PackEpoch,
	}
	hdr.SetMode(e.mode)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	f, err := os.Open(e.path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = io.Copy(w, f)
	return err
}

// Entries lists the entry names of an archive in stored order.
func Entries(archivePath string) ([]string, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, &perrors.ArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	return names, nil
}

// UncompressedSize sums the declared sizes of every entry.
func UncompressedSize(archivePath string) (int64, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, &perrors.ArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	var total uint64
	for _, f := range zr.File {
		total += f.UncompressedSize64
	}
	if total > math.MaxInt64 {
		return math.MaxInt64, nil
	}
	return int64(total), nil
}

// ReadFile returns the content of a single entry.
func ReadFile(archivePath, name string) ([]byte, error) {
	var data []byte
	err := withEntry(archivePath, name, func(r io.Reader) error {
		var err error
		data, err = io.ReadAll(r)
		return err
	})
	return data, err
}

// DigestEntry streams a single entry through the integrity digester.
func DigestEntry(archivePath, name string) (string, error) {
	var sum string
	err := withEntry(archivePath, name, func(r io.Reader) error {
		var err error
		sum, err = integrity.DigestReader(r)
		return err
	})
	return sum, err
}

func withEntry(archivePath, name string, fn func(io.Reader) error) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return &perrors.ArchiveError{Archive: archivePath, Err: err}
	}
	defer zr.Close()

	var entry *zip.File
	for _, f := range zr.File {
		if f.Name == name {
			entry = f
			break
		}
	}
	if entry == nil {
		return &perrors.ArchiveError{Archive: archivePath, Entry: name, Err: fs.ErrNotExist}
	}

	rc, err := entry.Open()
	if err != nil {
		return &perrors.ArchiveError{Archive: archivePath, Entry: name, Err: err}
	}
	defer rc.Close()

	if err := fn(rc); err != nil {
		return &perrors.ArchiveError{Archive: archivePath, Entry: name, Err: err}
	}
	return nil
}
