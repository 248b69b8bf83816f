package bundle

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
)

func TestWriteThenExtract(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "go", "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "go", "bin", "go"), []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "go", "VERSION"), []byte("go1.22.5"), 0o644))

	var stream bytes.Buffer
	require.NoError(t, Write(&stream, src))

	var again bytes.Buffer
	require.NoError(t, Write(&again, src))
	require.Equal(t, stream.Bytes(), again.Bytes(), "tar output must be deterministic")

	dest := t.TempDir()
	n, err := Extract(&stream, dest, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Equal(t, 4, n) // go/, go/bin/, go/bin/go, go/VERSION

	data, err := os.ReadFile(filepath.Join(dest, "go", "VERSION"))
	require.NoError(t, err)
	require.Equal(t, "go1.22.5", string(data))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(filepath.Join(dest, "go", "bin", "go"))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	}
}

func hostileTar(t *testing.T, hdr *tar.Header, body string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	hdr.Size = int64(len(body))
	require.NoError(t, tw.WriteHeader(hdr))
	_, err := tw.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	return &buf
}

func TestExtractRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	dest := filepath.Join(base, "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))

	stream := hostileTar(t, &tar.Header{Name: "../evil", Typeflag: tar.TypeReg, Mode: 0o644}, "pwned")
	_, err := Extract(stream, dest, hclog.NewNullLogger())
	require.ErrorIs(t, err, perrors.ErrPathTraversal)
	require.NoFileExists(t, filepath.Join(base, "evil"))
}

func TestExtractRejectsEscapingSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dest := t.TempDir()

	stream := hostileTar(t, &tar.Header{Name: "link", Typeflag: tar.TypeSymlink, Linkname: "../../etc/passwd"}, "")
	_, err := Extract(stream, dest, hclog.NewNullLogger())
	require.ErrorIs(t, err, perrors.ErrPathTraversal)

	stream = hostileTar(t, &tar.Header{Name: "abs", Typeflag: tar.TypeSymlink, Linkname: "/etc/passwd"}, "")
	_, err = Extract(stream, dest, hclog.NewNullLogger())
	require.ErrorIs(t, err, perrors.ErrPathTraversal)
}

func tarOf(t *testing.T, entries ...tar.Header) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for i := range entries {
		hdr := entries[i]
		body := ""
		if hdr.Typeflag == tar.TypeReg {
			body = "pwned"
			hdr.Size = int64(len(body))
		}
		require.NoError(t, tw.WriteHeader(&hdr))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	return &buf
}

func TestExtractRejectsSymlinkChains(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	tests := []struct {
		name    string
		entries []tar.Header
	}{
		{
			name: "link below a link",
			entries: []tar.Header{
				{Name: "s", Typeflag: tar.TypeSymlink, Linkname: "."},
				{Name: "s/t", Typeflag: tar.TypeSymlink, Linkname: "../"},
				{Name: "t/evil", Typeflag: tar.TypeReg, Mode: 0o644},
			},
		},
		{
			name: "dotdot through a link",
			entries: []tar.Header{
				{Name: "a", Typeflag: tar.TypeSymlink, Linkname: "."},
				{Name: "b", Typeflag: tar.TypeSymlink, Linkname: "a/.."},
				{Name: "b/evil", Typeflag: tar.TypeReg, Mode: 0o644},
			},
		},
		{
			name: "file written through a link",
			entries: []tar.Header{
				{Name: "up", Typeflag: tar.TypeSymlink, Linkname: "sub/.."},
				{Name: "up/evil", Typeflag: tar.TypeReg, Mode: 0o644},
			},
		},
		{
			name: "hardlink through a link",
			entries: []tar.Header{
				{Name: "d", Typeflag: tar.TypeSymlink, Linkname: "."},
				{Name: "h", Typeflag: tar.TypeLink, Linkname: "d/x"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			dest := filepath.Join(base, "dest")
			require.NoError(t, os.MkdirAll(dest, 0o755))

			_, err := Extract(tarOf(t, tt.entries...), dest, hclog.NewNullLogger())
			require.ErrorIs(t, err, perrors.ErrPathTraversal)
			require.NoFileExists(t, filepath.Join(base, "evil"))
			require.NoFileExists(t, filepath.Join(dest, "evil"))
		})
	}
}

func TestExtractKeepsInternalSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dest := t.TempDir()

	stream := tarOf(t,
		tar.Header{Name: "lib64/", Typeflag: tar.TypeDir, Mode: 0o755},
		tar.Header{Name: "lib", Typeflag: tar.TypeSymlink, Linkname: "lib64"},
		tar.Header{Name: "bin/", Typeflag: tar.TypeDir, Mode: 0o755},
		tar.Header{Name: "bin/libc", Typeflag: tar.TypeSymlink, Linkname: "../lib/libc.so"},
	)
	n, err := Extract(stream, dest, hclog.NewNullLogger())
	require.NoError(t, err)
	require.Equal(t, 4, n)

	link, err := os.Readlink(filepath.Join(dest, "bin", "libc"))
	require.NoError(t, err)
	require.Equal(t, "../lib/libc.so", link)
}
