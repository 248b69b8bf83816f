// SPDX-License-Identifier: Apache-2.0
// Package testutil builds fake toolchains for tests that must not depend on
// a real Go installation or network access.
package testutil

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
	"github.com/provide-io/flavor/go/pipeline/pkg/operations/bundle"
	_ "github.com/provide-io/flavor/go/pipeline/pkg/operations/compress"
)

// FakeGo answers "go version" and turns "go build -o <out> ..." into a shell
// script at <out> that prints "ok". Any FAKE_GO_FAIL in the environment makes
// builds fail with compiler-like output.
const FakeGo = `#!/bin/sh
case "$1" in
version)
  echo "go version go1.22.5 fake/amd64"
  ;;
build)
  shift
  if [ -n "$FAKE_GO_FAIL" ]; then
    echo "./entry.go:3:1: syntax error: unexpected }" >&2
    exit 1
  fi
  out=""
  while [ $# -gt 0 ]; do
    case "$1" in
      -o) out="$2"; shift 2 ;;
      *) shift ;;
    esac
  done
  printf '#!/bin/sh\necho ok\n' > "$out"
  /bin/chmod 755 "$out"
  ;;
*)
  exit 2
  ;;
esac
`

// SkipWithoutShell skips tests that execute FakeGo.
func SkipWithoutShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain is a POSIX shell script")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh")
	}
}

// WriteToolchain lays out <dir>/go/bin/go and returns <dir>/go.
func WriteToolchain(t testing.TB, dir string) string {
	t.Helper()
	home := filepath.Join(dir, "go")
	require.NoError(t, os.MkdirAll(filepath.Join(home, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "bin", "go"), []byte(FakeGo), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(home, "VERSION"), []byte("go1.22.5\n"), 0o644))
	return home
}

// ToolchainArchive packs a fake toolchain in the format implied by name
// (for example "go.tar.gz") and returns the bytes and their sha256.
func ToolchainArchive(t testing.TB, name string) ([]byte, string) {
	t.Helper()
	src := t.TempDir()
	WriteToolchain(t, src)
	return TarArchive(t, src, name)
}

// TarArchive packs srcDir as a tar stream compressed according to name.
func TarArchive(t testing.TB, srcDir, name string) ([]byte, string) {
	t.Helper()
	ops, err := operations.ChainForFilename(name)
	require.NoError(t, err)
	require.NotEmpty(t, ops)
	require.Equal(t, uint8(operations.OP_TAR), ops[0])

	var tarball bytes.Buffer
	require.NoError(t, bundle.Write(&tarball, srcDir))
	data := tarball.Bytes()
	for _, id := range ops[1:] {
		op, err := operations.Get(id)
		require.NoError(t, err)
		var out bytes.Buffer
		require.NoError(t, op.ApplyStream(bytes.NewReader(data), &out))
		data = out.Bytes()
	}

	sum, err := integrity.DigestReader(bytes.NewReader(data))
	require.NoError(t, err)
	return data, sum
}
