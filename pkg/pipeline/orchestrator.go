// SPDX-License-Identifier: Apache-2.0
// Package pipeline drives a package from inbound archive to rebuilt,
// re-manifested and repackaged output.
//
// A run moves strictly forward:
//
//	Start → Extracted → ManifestLoaded → ToolchainReady → Built → Verified
//	      → ManifestUpdated → Repackaged → Executed
//
// Any error moves it to Failed and no later stage is attempted. The only
// recoverable condition is a built binary whose digest differs from the one
// the manifest recorded; that is logged as a warning unless StrictIntegrity
// is set.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/provide-io/flavor/go/pipeline/internal/workenv"
	"github.com/provide-io/flavor/go/pipeline/pkg/archive"
	"github.com/provide-io/flavor/go/pipeline/pkg/builder"
	perrors "github.com/provide-io/flavor/go/pipeline/pkg/errors"
	"github.com/provide-io/flavor/go/pipeline/pkg/integrity"
	"github.com/provide-io/flavor/go/pipeline/pkg/manifest"
	"github.com/provide-io/flavor/go/pipeline/pkg/toolchain"
)

// Options configure a run.
type Options struct {
	// ArchivePath is the inbound package.
	ArchivePath string
	// WorkDir holds the extraction root, run lock and markers.
	WorkDir string
	// OutputPath is the outbound package; defaults to WorkDir/package.zip.
	OutputPath string
	// Execute runs the built binary after repackaging.
	Execute bool
	// StrictIntegrity turns a binary digest mismatch into a failure.
	StrictIntegrity bool

	Toolchain toolchain.Config
	Build     builder.Options

	// Env is the base environment for child processes; nil means the
	// process environment.
	Env toolchain.Env
	// Clock stamps the regenerated manifest; nil means time.Now.
	Clock func() time.Time

	// Stdin, Stdout and Stderr are wired to the executed binary.
	Stdin          io.Reader
	Stdout, Stderr io.Writer
	// OutputPrefix, when set, prefixes each line the binary prints.
	OutputPrefix string
}

// Result describes a finished run, successful or not.
type Result struct {
	State            State
	ProjectDir       string
	Binary           builder.BinaryPath
	Descriptor       *manifest.Descriptor
	ManifestPath     string
	PackagePath      string
	Digest           string
	IntegrityWarning *perrors.IntegrityWarning
	ExitCode         int
	Transitions      []Transition
}

// Orchestrator runs the pipeline once.
type Orchestrator struct {
	opts        Options
	logger      hclog.Logger
	layout      workenv.Layout
	provisioner *toolchain.Provisioner
	builder     *builder.Builder

	state  State
	env    toolchain.Env
	result Result
}

type step struct {
	to  State
	run func(context.Context) error
}

// New validates opts and prepares an orchestrator.
func New(opts Options, logger hclog.Logger) (*Orchestrator, error) {
	if opts.ArchivePath == "" {
		return nil, errors.New("archive path is required")
	}
	if opts.WorkDir == "" {
		opts.WorkDir = workenv.DefaultRoot()
	}
	layout, err := workenv.New(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	if opts.OutputPath == "" {
		opts.OutputPath = layout.DefaultPackage()
	}
	if opts.OutputPath, err = filepath.Abs(opts.OutputPath); err != nil {
		return nil, fmt.Errorf("resolving output path: %w", err)
	}
	if opts.Env == nil {
		opts.Env = toolchain.CurrentEnv()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	logger = logger.Named("pipeline")
	return &Orchestrator{
		opts:        opts,
		logger:      logger,
		layout:      layout,
		provisioner: toolchain.New(opts.Toolchain, logger),
		builder:     builder.New(opts.Build, logger),
		state:       Start,
		env:         opts.Env,
		result:      Result{State: Start, PackagePath: opts.OutputPath, ExitCode: -1},
	}, nil
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

// Run executes every stage in order. On failure the returned error is a
// *StageError and the result reflects how far the run got.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	if o.state != Start {
		return nil, fmt.Errorf("pipeline already ran (state %s)", o.state)
	}
	o.logger.Info("🚀 Starting pipeline", "archive", o.opts.ArchivePath, "workdir", o.layout.Root)

	lock, err := workenv.Acquire(o.layout, o.logger)
	if err != nil {
		// Another run owns the directory; leave its markers alone.
		o.state, o.result.State = Failed, Failed
		return &o.result, &StageError{Stage: Start, Err: err}
	}
	defer lock.Release()

	if err := o.reset(); err != nil {
		return o.fail(Start, err)
	}

	steps := []step{
		{Extracted, o.extract},
		{ManifestLoaded, o.loadManifest},
		{ToolchainReady, o.ensureToolchain},
		{Built, o.build},
		{Verified, o.verify},
		{ManifestUpdated, o.updateManifest},
		{Repackaged, o.repackage},
	}
	if o.opts.Execute {
		steps = append(steps, step{Executed, o.execute})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return o.fail(s.to, err)
		}
		if err := s.run(ctx); err != nil {
			return o.fail(s.to, err)
		}
		o.transition(s.to)
	}

	marker := workenv.RunMarker{
		Timestamp: o.opts.Clock(),
		Package:   o.result.Descriptor.Name,
		Version:   o.result.Descriptor.Version,
		SHA256:    o.result.Digest,
		Archive:   o.result.PackagePath,
	}
	if o.opts.Execute {
		code := o.result.ExitCode
		marker.ExitCode = &code
	}
	if err := workenv.MarkComplete(o.layout, marker); err != nil {
		o.logger.Warn("⚠️ Failed to write completion marker", "error", err)
	}

	o.logger.Info("🎉 Pipeline complete", "package", o.result.PackagePath, "sha256", o.result.Digest)
	return &o.result, nil
}

// reset clears anything that could make a failed run look successful.
func (o *Orchestrator) reset() error {
	if err := workenv.ClearComplete(o.layout); err != nil {
		return err
	}
	if err := os.Remove(o.opts.OutputPath); err == nil {
		o.logger.Debug("🧹 Removed stale package", "path", o.opts.OutputPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return perrors.IO("remove", o.opts.OutputPath, err)
	}
	return nil
}

func (o *Orchestrator) transition(to State) {
	t := Transition{From: o.state, To: to, At: time.Now()}
	o.result.Transitions = append(o.result.Transitions, t)
	o.logger.Debug("➡️ Transition", "from", t.From, "to", t.To)
	o.state, o.result.State = to, to
}

func (o *Orchestrator) fail(stage State, err error) (*Result, error) {
	o.logger.Error("❌ Pipeline failed", "stage", stage, "error", err)
	o.transition(Failed)

	marker := workenv.RunMarker{
		Timestamp: o.opts.Clock(),
		Stage:     stage.String(),
		Reason:    err.Error(),
	}
	if d := o.result.Descriptor; d != nil {
		marker.Package, marker.Version = d.Name, d.Version
	}
	if merr := workenv.MarkIncomplete(o.layout, marker); merr != nil {
		o.logger.Warn("⚠️ Failed to write incomplete marker", "error", merr)
	}
	return &o.result, &StageError{Stage: stage, Err: err}
}

func (o *Orchestrator) extract(context.Context) error {
	size, err := archive.UncompressedSize(o.opts.ArchivePath)
	if err != nil {
		return err
	}
	if err := workenv.CheckDiskSpace(o.layout, size, o.logger); err != nil {
		return err
	}
	root, err := archive.Extract(o.opts.ArchivePath, o.layout.Extracted(), o.logger)
	if err != nil {
		return err
	}
	project := projectRoot(root)
	if project != root {
		o.logger.Debug("📁 Using nested project root", "dir", project)
	}
	o.result.ProjectDir = project
	o.result.ManifestPath = filepath.Join(project, manifest.FileName)
	return nil
}

func (o *Orchestrator) loadManifest(context.Context) error {
	d, err := manifest.Load(o.result.ManifestPath)
	if err != nil {
		return err
	}
	o.result.Descriptor = d
	o.logger.Info("📜 Manifest loaded", "name", d.Name, "version", d.Version,
		"entry_point", d.EntryPoint, "output_binary", d.OutputBinary, "dependencies", len(d.Dependencies))
	return nil
}

func (o *Orchestrator) ensureToolchain(ctx context.Context) error {
	env, err := o.provisioner.Ensure(ctx, o.result.Descriptor.Dependencies, o.env)
	if err != nil {
		return err
	}
	o.env = env
	return nil
}

func (o *Orchestrator) build(ctx context.Context) error {
	d := o.result.Descriptor
	bin, err := o.builder.Build(ctx, o.result.ProjectDir, d.EntryPoint, d.OutputBinary, o.env)
	if err != nil {
		return err
	}
	o.result.Binary = bin
	return nil
}

func (o *Orchestrator) verify(context.Context) error {
	actual, err := integrity.Digest(o.result.Binary.String())
	if err != nil {
		return err
	}
	o.result.Digest = actual

	expected := o.result.Descriptor.SHA256
	if actual == expected {
		o.logger.Info("✅ Binary digest matches manifest", "sha256", actual)
		return nil
	}

	rel, _ := o.result.Binary.Rel(o.result.ProjectDir)
	warning := &perrors.IntegrityWarning{Binary: rel, Expected: expected, Actual: actual}
	if o.opts.StrictIntegrity {
		return warning
	}
	o.result.IntegrityWarning = warning
	o.logger.Warn("⚠️ Binary digest differs from manifest, recording the new digest",
		"binary", rel, "expected", expected, "actual", actual)
	return nil
}

func (o *Orchestrator) updateManifest(context.Context) error {
	d := o.result.Descriptor
	d.SHA256 = o.result.Digest
	if err := manifest.Save(o.result.ManifestPath, d, o.opts.Clock()); err != nil {
		return err
	}
	o.logger.Info("📝 Manifest updated", "path", o.result.ManifestPath,
		"sha256", d.SHA256, "date", manifest.FormatDate(d.Date))
	return nil
}

func (o *Orchestrator) repackage(context.Context) error {
	return archive.Pack(o.result.ProjectDir, o.opts.OutputPath, o.logger)
}

func (o *Orchestrator) execute(ctx context.Context) error {
	code, err := o.spawn(ctx, o.result.Binary, o.result.ProjectDir)
	if err != nil {
		return err
	}
	o.result.ExitCode = code
	return nil
}

// projectRoot finds the directory holding the manifest: the extraction
// root itself, or its only top-level directory. When neither has one the
// extraction root is returned and loading the manifest reports it missing.
func projectRoot(root string) string {
	if fileExists(filepath.Join(root, manifest.FileName)) {
		return root
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return root
	}
	var dirs []string
	for _, e := range entries {
		if e.Name() == "__MACOSX" {
			continue
		}
		if !e.IsDir() {
			return root
		}
		dirs = append(dirs, e.Name())
	}
	if len(dirs) == 1 {
		nested := filepath.Join(root, dirs[0])
		if fileExists(filepath.Join(nested, manifest.FileName)) {
			return nested
		}
	}
	return root
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// ClockFromEnv honours SOURCE_DATE_EPOCH so rebuilt manifests can carry a
// reproducible date.
func ClockFromEnv() (func() time.Time, error) {
	epoch := os.Getenv("SOURCE_DATE_EPOCH")
	if epoch == "" {
		return time.Now, nil
	}
	secs, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_DATE_EPOCH %q: %w", epoch, err)
	}
	fixed := time.Unix(secs, 0).UTC()
	return func() time.Time { return fixed }, nil
}
