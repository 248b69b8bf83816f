// SPDX-License-Identifier: Apache-2.0
// Package bundle unpacks and writes tar streams for toolchain installs.
package bundle

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/pipeline/pkg/archive"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

// Extract unpacks a tar stream into dest, which must already exist. Entry
// names and link targets must stay inside dest.
func Extract(input io.Reader, dest string, logger hclog.Logger) (int, error) {
	root, err := filepath.Abs(dest)
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(input)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("reading tar header: %w", err)
		}

		target, err := archive.SafeJoin(root, hdr.Name)
		if err != nil {
			return count, fmt.Errorf("entry %q: %w", hdr.Name, err)
		}
		if target == root {
			continue
		}
		if err := checkNoSymlinks(root, target); err != nil {
			return count, fmt.Errorf("entry %q: %w", hdr.Name, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode).Perm()|0o700); err != nil {
				return count, err
			}
		case tar.TypeReg:
			if err := writeFile(tr, target, fs.FileMode(hdr.Mode).Perm()); err != nil {
				return count, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
		case tar.TypeSymlink:
			if err := symlink(root, target, hdr.Linkname); err != nil {
				return count, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
		case tar.TypeLink:
			source, err := archive.SafeJoin(root, hdr.Linkname)
			if err == nil {
				err = checkNoSymlinks(root, source)
			}
			if err != nil {
				return count, fmt.Errorf("entry %q: %w", hdr.Name, err)
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return count, err
			}
			if err := os.Link(source, target); err != nil {
				return count, err
			}
		default:
			logger.Debug("⏭️ Skipping unsupported tar entry", "name", hdr.Name, "type", hdr.Typeflag)
			continue
		}
		count++
	}
	return count, nil
}

func writeFile(r io.Reader, target string, mode fs.FileMode) error {
	if mode == 0 {
		mode = 0o644
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func symlink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: absolute symlink %q", perrors.ErrPathTraversal, linkname)
	}
	if err := resolveInside(root, filepath.Dir(target), linkname); err != nil {
		return fmt.Errorf("symlink %q: %w", linkname, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.Symlink(linkname, target)
}

// maxLinkHops bounds symlink expansion in resolveInside.
const maxLinkHops = 40

// checkNoSymlinks fails when target or any directory between root and
// target is an already extracted symlink. Writing through one would land
// wherever the link points.
func checkNoSymlinks(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return err
	}
	cur := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s passes through symlink %s", perrors.ErrPathTraversal, rel, cur)
		}
	}
	return nil
}

// resolveInside walks name from dir one component at a time, expanding
// symlinks that already exist under root, and fails as soon as the walk
// leaves root.
func resolveInside(root, dir, name string) error {
	hops := 0
	var walk func(cur, name string) (string, error)
	walk = func(cur, name string) (string, error) {
		for _, part := range strings.Split(filepath.ToSlash(name), "/") {
			switch part {
			case "", ".":
				continue
			case "..":
				cur = filepath.Dir(cur)
				if !within(root, cur) {
					return "", fmt.Errorf("%w: points outside %s", perrors.ErrPathTraversal, root)
				}
				continue
			}

			next := filepath.Join(cur, part)
			info, err := os.Lstat(next)
			if err != nil || info.Mode()&fs.ModeSymlink == 0 {
				cur = next
				continue
			}
			if hops++; hops > maxLinkHops {
				return "", fmt.Errorf("%w: too many levels of symlinks", perrors.ErrPathTraversal)
			}
			link, err := os.Readlink(next)
			if err != nil {
				return "", err
			}
			if filepath.IsAbs(link) {
				return "", fmt.Errorf("%w: absolute symlink %q", perrors.ErrPathTraversal, link)
			}
			if cur, err = walk(cur, link); err != nil {
				return "", err
			}
		}
		return cur, nil
	}
	_, err := walk(dir, name)
	return err
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Write emits every regular file and directory under srcDir as a tar
// stream, sorted by path and with zeroed timestamps and ownership.
func Write(output io.Writer, srcDir string) error {
	root, err := filepath.Abs(srcDir)
	if err != nil {
		return err
	}

	var paths []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != root && (d.IsDir() || d.Type().IsRegular()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(paths)

	tw := tar.NewWriter(output)
	for _, path := range paths {
		if err := writeEntry(tw, root, path); err != nil {
			tw.Close()
			return err
		}
	}
	return tw.Close()
}

func writeEntry(tw *tar.Writer, root, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}

	hdr := &tar.Header{
		Name:   filepath.ToSlash(rel),
		Mode:   int64(info.Mode().Perm()),
		Format: tar.FormatPAX,
	}
	if info.IsDir() {
		hdr.Typeflag = tar.TypeDir
		hdr.Name += "/"
		return tw.WriteHeader(hdr)
	}
	hdr.Typeflag = tar.TypeReg
	hdr.Size = info.Size()
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
