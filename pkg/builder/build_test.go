package builder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/provide-io/flavor/go/pipeline/internal/testutil"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/toolchain"
)

func testLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:  "builder_test",
		Level: hclog.Trace,
	})
}

func fakeEnv(t *testing.T) toolchain.Env {
	home := testutil.WriteToolchain(t, t.TempDir())
	return toolchain.Env{"PATH=/usr/bin:/bin"}.PrependPath(filepath.Join(home, "bin"))
}

func TestBuildWithFakeCompiler(t *testing.T) {
	testutil.SkipWithoutShell(t)
	project := t.TempDir()

	b := New(Options{Flags: []string{"-trimpath"}}, testLogger())
	bin, err := b.Build(context.Background(), project, "entry.go", "app", fakeEnv(t))
	require.NoError(t, err)

	require.True(t, filepath.IsAbs(bin.String()))
	require.Equal(t, filepath.Join(project, "bin", "app"), bin.String())
	require.FileExists(t, bin.String())

	rel, err := bin.Rel(project)
	require.NoError(t, err)
	require.Equal(t, "bin/app", rel)

	// The output directory already existing is fine.
	_, err = b.Build(context.Background(), project, "entry.go", "app", fakeEnv(t))
	require.NoError(t, err)
}

func TestBuildFailureCarriesDiagnostics(t *testing.T) {
	testutil.SkipWithoutShell(t)
	env := fakeEnv(t).With("FAKE_GO_FAIL", "1")

	_, err := New(Options{}, testLogger()).Build(context.Background(), t.TempDir(), "entry.go", "app", env)
	require.ErrorIs(t, err, perrors.ErrBuild)

	var be *perrors.BuildError
	require.ErrorAs(t, err, &be)
	require.Equal(t, 1, be.ExitCode)
	require.Contains(t, be.Output, "syntax error")
}

func TestBuildWithoutCompiler(t *testing.T) {
	env := toolchain.Env{"PATH=" + t.TempDir()}
	_, err := New(Options{}, testLogger()).Build(context.Background(), t.TempDir(), "entry.go", "app", env)
	require.ErrorIs(t, err, perrors.ErrBuild)
	require.ErrorIs(t, err, perrors.ErrToolchainAbsent)
}

func TestBuildMissingOutput(t *testing.T) {
	testutil.SkipWithoutShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go"), []byte("#!/bin/sh\nexit 0\n"), 0o755))

	_, err := New(Options{}, testLogger()).Build(context.Background(), t.TempDir(), "entry.go", "app",
		toolchain.Env{"PATH=" + dir})
	require.ErrorIs(t, err, perrors.ErrBuild)
}

func TestBuildTimeout(t *testing.T) {
	testutil.SkipWithoutShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go"), []byte("#!/bin/sh\nexec sleep 5\n"), 0o755))

	b := New(Options{Timeout: 100 * time.Millisecond}, testLogger())
	_, err := b.Build(context.Background(), t.TempDir(), "entry.go", "app", toolchain.Env{"PATH=" + dir + ":/bin:/usr/bin"})
	require.ErrorIs(t, err, perrors.ErrTimedOut)
}

func TestBuildTimeoutWithLingeringChild(t *testing.T) {
	testutil.SkipWithoutShell(t)
	dir := t.TempDir()
	script := "#!/bin/sh\nsleep 30 &\nsleep 30\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go"), []byte(script), 0o755))

	orig := WaitDelay
	WaitDelay = 200 * time.Millisecond
	t.Cleanup(func() { WaitDelay = orig })

	start := time.Now()
	b := New(Options{Timeout: 100 * time.Millisecond}, testLogger())
	_, err := b.Build(context.Background(), t.TempDir(), "entry.go", "app", toolchain.Env{"PATH=" + dir + ":/bin:/usr/bin"})
	require.ErrorIs(t, err, perrors.ErrTimedOut)
	require.Less(t, time.Since(start), 10*time.Second, "build must not wait for the orphaned child")
}

func TestBuildRealProgram(t *testing.T) {
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not on PATH")
	}
	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, "entry.go"),
		[]byte("package main\n\nimport \"fmt\"\n\nfunc main() { fmt.Println(\"ok\") }\n"), 0o644))

	env := toolchain.CurrentEnv().PrependPath(filepath.Dir(goBin)).With("GO111MODULE", "off")
	bin, err := New(Options{}, testLogger()).Build(context.Background(), project, "entry.go", "app", env)
	require.NoError(t, err)

	out, err := exec.Command(bin.String()).Output()
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(out))
}
