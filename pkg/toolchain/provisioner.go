// SPDX-License-Identifier: Apache-2.0
// Package toolchain makes sure the compiler a package needs is available,
// downloading and installing it from the manifest's dependency record when
// it is not.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/pipeline/pkg/archive"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
	"github.com/provide-io/flavor/go/pipeline/pkg/manifest"
	"github.com/provide-io/flavor/go/pipeline/pkg/operations"
	"github.com/provide-io/flavor/go/pipeline/pkg/operations/bundle"
	_ "github.com/provide-io/flavor/go/pipeline/pkg/operations/compress"
)

const (
	DefaultCommand      = "go"
	DefaultFetchTimeout = 10 * time.Minute
	DefaultProbeTimeout = 30 * time.Second

	// probeWaitDelay bounds how long a killed probe's children may hold
	// its output pipe.
	probeWaitDelay = 2 * time.Second

	dirPerms = 0o755
)

// Config controls where toolchains come from and where they are installed.
type Config struct {
	// Command is the executable the toolchain provides.
	Command string
	// VersionArgs make Command report its version; success means installed.
	VersionArgs []string
	// InstallRoot holds one directory per installed toolchain.
	InstallRoot string
	// DownloadDir receives archives while they are fetched and verified.
	DownloadDir string

	FetchTimeout time.Duration
	ProbeTimeout time.Duration
	HTTPClient   *http.Client
}

// DefaultInstallRoot is $FLAVOR_TOOLCHAIN_DIR, else the XDG data directory.
func DefaultInstallRoot() string {
	if dir := os.Getenv("FLAVOR_TOOLCHAIN_DIR"); dir != "" {
		return dir
	}
	return filepath.Join(xdg.DataHome, "flavor", "toolchains")
}

// DefaultConfig returns the configuration used by the CLI.
func DefaultConfig() Config {
	return Config{
		Command:      DefaultCommand,
		VersionArgs:  []string{"version"},
		InstallRoot:  DefaultInstallRoot(),
		DownloadDir:  os.TempDir(),
		FetchTimeout: DefaultFetchTimeout,
		ProbeTimeout: DefaultProbeTimeout,
		HTTPClient:   http.DefaultClient,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Command == "" {
		c.Command = def.Command
	}
	if c.VersionArgs == nil {
		c.VersionArgs = def.VersionArgs
	}
	if c.InstallRoot == "" {
		c.InstallRoot = def.InstallRoot
	}
	if c.DownloadDir == "" {
		c.DownloadDir = def.DownloadDir
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = def.FetchTimeout
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = def.ProbeTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = def.HTTPClient
	}
	return c
}

// Provisioner detects and installs a toolchain.
type Provisioner struct {
	cfg    Config
	logger hclog.Logger
}

// New returns a provisioner; zero Config fields take their defaults.
func New(cfg Config, logger hclog.Logger) *Provisioner {
	return &Provisioner{cfg: cfg.withDefaults(), logger: logger.Named("toolchain")}
}

// Config returns the effective configuration.
func (p *Provisioner) Config() Config {
	return p.cfg
}

// IsInstalled runs the version command under env. Any failure counts as not
// installed and is only logged.
func (p *Provisioner) IsInstalled(ctx context.Context, env Env) bool {
	bin, err := env.LookPath(p.cfg.Command)
	if err != nil {
		p.logger.Debug("🔍 Toolchain command not on PATH", "command", p.cfg.Command)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, p.cfg.VersionArgs...)
	cmd.Env = env
	cmd.WaitDelay = probeWaitDelay
	out, err := cmd.CombinedOutput()
	if err != nil {
		p.logger.Debug("🔍 Toolchain probe failed", "command", bin, "error", err,
			"output", strings.TrimSpace(string(out)))
		return false
	}
	p.logger.Info("🔧 Toolchain available", "command", bin, "version", firstLine(out))
	return true
}

// Ensure converges on an installed toolchain: env is returned unchanged when
// the command already works, otherwise the dependency named after the command
// (or the first one) is installed and the extended env returned.
func (p *Provisioner) Ensure(ctx context.Context, deps []manifest.Dependency, env Env) (Env, error) {
	if p.IsInstalled(ctx, env) {
		return env, nil
	}
	if len(deps) == 0 {
		return nil, &perrors.ManifestError{
			Field:  "dependencies",
			Reason: fmt.Sprintf("%s is not installed and no dependency declares how to fetch it", p.cfg.Command),
		}
	}

	dep := deps[0]
	for _, d := range deps {
		if d.Name == p.cfg.Command {
			dep = d
			break
		}
	}

	newEnv, err := p.Install(ctx, dep, env)
	if err != nil {
		return nil, err
	}
	if !p.IsInstalled(ctx, newEnv) {
		return nil, fmt.Errorf("%w: %s %s installed but %q does not run",
			perrors.ErrToolchainAbsent, dep.Name, dep.Version, p.cfg.Command)
	}
	return newEnv, nil
}

// Install fetches dep.Source, verifies it against dep.SHA256 and unpacks it
// under the install root, replacing any earlier installation of the same
// name. A digest mismatch deletes the download and leaves the install root
// untouched.
func (p *Provisioner) Install(ctx context.Context, dep manifest.Dependency, env Env) (Env, error) {
	if _, err := p.installDir(dep); err != nil {
		return nil, err
	}
	p.logger.Info("⬇️ Fetching toolchain", "name", dep.Name, "version", dep.Version, "source", dep.Source)

	download, err := p.fetch(ctx, dep.Source)
	if err != nil {
		return nil, err
	}
	defer os.Remove(download)

	actual, err := integrity.Digest(download)
	if err != nil {
		return nil, err
	}
	expected, normErr := integrity.Normalize(dep.SHA256)
	if normErr != nil || actual != expected {
		os.Remove(download)
		p.logger.Error("🚨 Toolchain digest mismatch, download discarded",
			"source", dep.Source, "expected", dep.SHA256, "actual", actual)
		return nil, &perrors.SecurityError{Artifact: dep.Source, Expected: dep.SHA256, Actual: actual}
	}
	p.logger.Debug("✅ Toolchain digest verified", "sha256", actual)

	home, err := p.unpack(download, dep)
	if err != nil {
		return nil, err
	}
	p.logger.Info("🔧 Toolchain installed", "name", dep.Name, "home", home)
	return env.PrependPath(filepath.Join(home, "bin")), nil
}

// fetch copies source to a temporary file in DownloadDir and returns its path.
func (p *Provisioner) fetch(ctx context.Context, source string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()

	if err := os.MkdirAll(p.cfg.DownloadDir, dirPerms); err != nil {
		return "", perrors.IO("mkdir", p.cfg.DownloadDir, err)
	}
	out, err := os.CreateTemp(p.cfg.DownloadDir, "flavor-toolchain-*")
	if err != nil {
		return "", perrors.IO("create", p.cfg.DownloadDir, err)
	}

	n, err := p.copySource(ctx, source, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = perrors.IO("close", out.Name(), cerr)
	}
	if err != nil {
		os.Remove(out.Name())
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", perrors.Timeout("fetching "+source, p.cfg.FetchTimeout)
		}
		return "", err
	}
	p.logger.Debug("📥 Downloaded", "source", source, "bytes", n, "file", out.Name())
	return out.Name(), nil
}

func (p *Provisioner) copySource(ctx context.Context, source string, out io.Writer) (int64, error) {
	u, err := url.Parse(source)
	if err != nil || len(u.Scheme) <= 1 {
		// Plain path, including Windows drive letters.
		return copyFile(ctx, source, out)
	}

	switch u.Scheme {
	case "file":
		return copyFile(ctx, filepath.FromSlash(u.Path), out)
	case "http", "https":
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return 0, perrors.IO("fetch", source, err)
		}
		resp, err := p.cfg.HTTPClient.Do(req)
		if err != nil {
			return 0, perrors.IO("fetch", source, err)
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return 0, perrors.IO("fetch", source, fmt.Errorf("unexpected status %s", resp.Status))
		}
		n, err := io.Copy(out, resp.Body)
		if err != nil {
			return n, perrors.IO("fetch", source, err)
		}
		return n, nil
	default:
		return 0, perrors.IO("fetch", source, fmt.Errorf("unsupported scheme %q", u.Scheme))
	}
}

func copyFile(ctx context.Context, path string, out io.Writer) (int64, error) {
	in, err := os.Open(path)
	if err != nil {
		return 0, perrors.IO("open", path, err)
	}
	defer in.Close()
	n, err := io.Copy(out, ctxReader{ctx: ctx, r: in})
	if err != nil {
		return n, perrors.IO("copy", path, err)
	}
	return n, nil
}

// ctxReader stops a local copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// unpack extracts a verified archive into a staging directory and promotes
// it to InstallRoot/<name>. A single top-level directory (go/ in the
// official Go tarballs) becomes the toolchain home itself.
func (p *Provisioner) unpack(archivePath string, dep manifest.Dependency) (string, error) {
	target, err := p.installDir(dep)
	if err != nil {
		return "", err
	}
	ops, err := operations.ChainForFilename(sourceName(dep.Source))
	if err != nil {
		return "", &perrors.ArchiveError{Archive: dep.Source, Err: err}
	}

	if err := os.MkdirAll(p.cfg.InstallRoot, dirPerms); err != nil {
		return "", perrors.IO("mkdir", p.cfg.InstallRoot, err)
	}
	staging, err := os.MkdirTemp(p.cfg.InstallRoot, "."+dep.Name+"-staging-")
	if err != nil {
		return "", perrors.IO("mkdir", p.cfg.InstallRoot, err)
	}
	defer os.RemoveAll(staging)

	if err := p.extract(archivePath, dep.Source, ops, staging); err != nil {
		return "", err
	}

	src := staging
	if top, ok := singleDir(staging); ok {
		src = top
	}

	p.logger.Debug("🧹 Removing previous installation", "dir", target)
	if err := os.RemoveAll(target); err != nil {
		return "", perrors.IO("remove", target, err)
	}
	if err := os.Rename(src, target); err != nil {
		return "", perrors.IO("rename", src, err)
	}
	return target, nil
}

// installDir is the directory dep installs into. The name must be a single
// local path element so the replace step never touches anything outside
// its own directory under InstallRoot.
func (p *Provisioner) installDir(dep manifest.Dependency) (string, error) {
	name := dep.Name
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || !filepath.IsLocal(name) {
		return "", &perrors.ManifestError{Field: "dependencies.name",
			Reason: fmt.Sprintf("must be a plain directory name, got %q", name)}
	}
	return filepath.Join(p.cfg.InstallRoot, name), nil
}

func (p *Provisioner) extract(archivePath, source string, ops []uint8, dest string) error {
	if len(ops) == 1 && ops[0] == operations.OP_ZIP {
		_, err := archive.Extract(archivePath, dest, p.logger)
		return err
	}
	if len(ops) == 0 || ops[0] != operations.OP_TAR {
		return &perrors.ArchiveError{Archive: source,
			Err: fmt.Errorf("%s is not a toolchain archive format", operations.Format(ops))}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return perrors.IO("open", archivePath, err)
	}
	defer f.Close()

	rc, err := operations.OpenChain(f, ops)
	if err != nil {
		return &perrors.ArchiveError{Archive: source, Err: err}
	}
	defer rc.Close()

	n, err := bundle.Extract(rc, dest, p.logger)
	if err != nil {
		return &perrors.ArchiveError{Archive: source, Err: err}
	}
	p.logger.Debug("📦 Toolchain unpacked", "format", operations.Format(ops), "entries", n)
	return nil
}

// sourceName is the part of a source used to detect its archive format.
func sourceName(source string) string {
	if u, err := url.Parse(source); err == nil && len(u.Scheme) > 1 {
		return path.Base(u.Path)
	}
	return filepath.Base(source)
}

func singleDir(dir string) (string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 1 || !entries[0].IsDir() {
		return "", false
	}
	return filepath.Join(dir, entries[0].Name()), true
}

func firstLine(b []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(b), []byte("\n"))
	return string(line)
}
