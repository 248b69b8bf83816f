package pipeline

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
)

func packageManifest(sha string) string {
	return `name = "app"
version = "1.0.0"
entry_point = "entry.go"
output_binary = "app"
sha256 = "` + sha + `"
dependencies = []
`
}

func TestVerifyPackage(t *testing.T) {
	binary := "\x7fELF pretend binary"
	sum, err := integrity.DigestReader(strings.NewReader(binary))
	require.NoError(t, err)

	tests := []struct {
		name    string
		entries map[string]string
		ok      bool
		binary  string
	}{
		{"matching", map[string]string{"manifest.hcl": packageManifest(sum), "bin/app": binary}, true, "bin/app"},
		{"nested", map[string]string{"pkg/manifest.hcl": packageManifest(sum), "pkg/bin/app": binary}, true, "pkg/bin/app"},
		{"tampered", map[string]string{"manifest.hcl": packageManifest(sum), "bin/app": binary + "!"}, false, "bin/app"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "package.zip")
			z := newRawZip(t, path)
			for name, content := range tt.entries {
				z.add(name, content)
			}
			z.close()

			report, err := VerifyPackage(path, "", testLogger())
			require.NotNil(t, report)
			require.Equal(t, tt.ok, report.OK())
			require.Equal(t, tt.binary, report.Binary)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, perrors.ErrIntegrity)
			}
		})
	}
}

func TestVerifyPackageOutputDir(t *testing.T) {
	binary := "\x7fELF pretend binary"
	sum, err := integrity.DigestReader(strings.NewReader(binary))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "package.zip")
	z := newRawZip(t, path)
	z.add("manifest.hcl", packageManifest(sum))
	z.add("out/release/app", binary)
	z.close()

	report, err := VerifyPackage(path, filepath.Join("out", "release"), testLogger())
	require.NoError(t, err)
	require.Equal(t, "out/release/app", report.Binary)
	require.True(t, report.OK())

	_, err = VerifyPackage(path, "../out", testLogger())
	require.ErrorIs(t, err, perrors.ErrArchive)
	require.ErrorIs(t, err, perrors.ErrPathTraversal)
}

func TestVerifyPackageWithoutManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.zip")
	z := newRawZip(t, path)
	z.add("bin/app", "x")
	z.close()

	_, err := VerifyPackage(path, "", testLogger())
	require.ErrorIs(t, err, perrors.ErrManifest)
	require.ErrorIs(t, err, perrors.ErrArchive)
}

func TestVerifyPackageMissingBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "package.zip")
	z := newRawZip(t, path)
	z.add("manifest.hcl", packageManifest(strings.Repeat("a", 64)))
	z.close()

	_, err := VerifyPackage(path, "", testLogger())
	require.ErrorIs(t, err, perrors.ErrArchive)
}
