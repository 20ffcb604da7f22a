package rust

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// DisableEnv is the environment variable that turns off the cargo-cli
// detector when set to a true value.
const DisableEnv = "DisableRustCliScan"

// DefaultTTL is how long cached cargo metadata output stays valid.
const DefaultTTL = 24 * time.Hour

const cacheKeyType = "cargo-metadata"

// CommandRunner runs an external command and returns its standard output.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes name in dir. A non-zero exit returns an error carrying the
// command's standard error.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

// CLIDetector registers crates from the resolve graph `cargo metadata`
// reports for a Cargo.toml.
//
// Output is memoized in Cache under a key derived from the manifest path and
// the Cargo.toml and Cargo.lock contents. When the workspace has more than
// one local package, crates are attributed to every member manifest that
// depends on them.
//
// Prepare runs cargo metadata for every Cargo.toml of a scan up front,
// shallowest first, and records the runs in Workspace. A Cargo.toml inside a
// workspace that was already resolved is then skipped by Execute.
type CLIDetector struct {
	Runner    CommandRunner
	Cache     cache.Cache
	Keyer     cache.Keyer
	TTL       time.Duration
	Disabled  bool
	Workspace *Workspace

	logger *log.Logger
}

// NewCLIDetector creates a cargo-cli detector backed by os/exec and no
// cache. It is disabled when DisableRustCliScan is true in the environment.
func NewCLIDetector(logger *log.Logger) *CLIDetector {
	return &CLIDetector{
		Runner:    ExecRunner{},
		Cache:     cache.NewNullCache(),
		Keyer:     cache.NewDefaultKeyer(),
		TTL:       DefaultTTL,
		Disabled:  DisabledByEnv(),
		Workspace: NewWorkspace(),
		logger:    orDiscard(logger),
	}
}

// DisabledByEnv reports whether DisableRustCliScan is set to a true value.
func DisabledByEnv() bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(DisableEnv)))
	return err == nil && v
}

func (d *CLIDetector) ID() string                       { return "cargo-cli" }
func (d *CLIDetector) SearchPatterns() []string         { return []string{"Cargo.toml"} }
func (d *CLIDetector) SupportedTypes() []component.Type { return []component.Type{component.TypeCargo} }

// Prepare resets Workspace and runs cargo metadata for the Cargo.toml files
// among files, ordered by depth and then location. A manifest whose
// directory an earlier run covered is not run. Failed runs are recorded and
// returned by Execute for that manifest; only cancellation stops Prepare.
func (d *CLIDetector) Prepare(ctx context.Context, files []detector.File) error {
	if d.Disabled || d.Workspace == nil {
		return nil
	}
	d.Workspace.reset()

	var manifests []detector.File
	for _, f := range files {
		if path.Base(f.Location) == "Cargo.toml" && f.Path != "" {
			manifests = append(manifests, f)
		}
	}
	slices.SortFunc(manifests, func(a, b detector.File) int {
		if c := cmp.Compare(strings.Count(a.Location, "/"), strings.Count(b.Location, "/")); c != 0 {
			return c
		}
		return strings.Compare(a.Location, b.Location)
	})

	for _, f := range manifests {
		if by, ok := d.Workspace.CoveredBy(f.Location); ok {
			d.logger.Debug("manifest covered by workspace", "location", f.Location, "workspace", by)
			continue
		}
		manifest, err := os.ReadFile(f.Path)
		if err != nil {
			d.Workspace.record(f.Location, nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "read %s", f.Location))
			continue
		}
		run, err := d.resolve(ctx, f.Location, f.Path, manifest)
		if errors.Is(err, errors.ErrCodeCanceled) {
			return err
		}
		d.Workspace.record(f.Location, run, err)
	}
	return nil
}

// Execute walks the resolve graph of the manifest, using the run Prepare
// recorded when there is one. It returns an UNSUPPORTED error when the
// detector is disabled, the stream has no filesystem path, the manifest is
// covered by another workspace manifest, or cargo is not installed.
func (d *CLIDetector) Execute(ctx context.Context, req detector.Request) error {
	if d.Disabled {
		return errors.New(errors.ErrCodeUnsupported, "cargo metadata disabled by %s", DisableEnv)
	}
	if err := req.Validate(); err != nil {
		return err
	}
	if req.Stream.Path == "" {
		return errors.New(errors.ErrCodeUnsupported, "cargo metadata needs a file on disk for %s", req.Stream.Location)
	}
	location := req.Stream.Location
	if by, ok := d.Workspace.CoveredBy(location); ok {
		return errors.New(errors.ErrCodeUnsupported, "%s is resolved by the cargo metadata run for %s", location, by)
	}

	var run *metadataRun
	if p, ok := d.Workspace.prepared(location); ok {
		if p.err != nil {
			return p.err
		}
		run = p.run
	} else {
		manifest, err := req.ReadAll(ctx)
		if err != nil {
			return err
		}
		if run, err = d.resolve(ctx, location, req.Stream.Path, manifest); err != nil {
			return err
		}
	}
	if run.lock {
		req.Recorder.AddAdditionalRelatedFile(path.Join(path.Dir(location), "Cargo.lock"))
	}

	attr := &traverse.Attributor{
		Parent:   req.Recorder.Parent(),
		Owners:   run.md.ownership(ownerLocation(run.dir, location)),
		Fallback: req.Recorder,
	}
	if err := walkMetadata(ctx, run.md, attr, req.Recorder, d.logger); err != nil {
		return err
	}
	d.logger.Debug("walked cargo metadata", "location", location, "members", len(run.memberDirs(location)))
	return nil
}

// resolve reads the Cargo.lock next to the manifest at p and returns the
// cargo metadata for the manifest.
func (d *CLIDetector) resolve(ctx context.Context, location, p string, manifest []byte) (*metadataRun, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", p)
	}
	run := &metadataRun{dir: filepath.Dir(abs)}

	lock, err := os.ReadFile(filepath.Join(run.dir, "Cargo.lock"))
	switch {
	case err == nil:
		run.lock = true
	case stderrors.Is(err, fs.ErrNotExist):
		lock = nil
	default:
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read Cargo.lock next to %s", location)
	}

	args := []string{"metadata", "--manifest-path", abs, "--format-version=1", "--locked"}
	if run.md, err = d.metadata(ctx, run.dir, location, args, manifest, lock); err != nil {
		return nil, err
	}
	return run, nil
}

// metadata returns the decoded cargo metadata for args, from the cache when
// possible. Output is cached only after it decodes.
func (d *CLIDetector) metadata(ctx context.Context, dir, location string, args []string, inputs ...[]byte) (cargoMetadata, error) {
	var md cargoMetadata
	key := d.Keyer.CommandKey("cargo", args, inputs...)

	data, ok, err := d.Cache.Get(ctx, key)
	switch {
	case err != nil:
		d.logger.Warn("cache read failed", "location", location, "err", err)
	case ok:
		if err := json.Unmarshal(data, &md); err == nil {
			observability.Cache().OnCacheHit(ctx, cacheKeyType)
			d.logger.Debug("cargo metadata cache hit", "location", location)
			return md, nil
		}
		d.logger.Warn("discarding corrupt cache entry", "location", location)
		md = cargoMetadata{}
	}
	observability.Cache().OnCacheMiss(ctx, cacheKeyType)

	out, err := d.Runner.Run(ctx, dir, "cargo", args...)
	if err != nil {
		if stderrors.Is(err, exec.ErrNotFound) {
			return md, errors.Wrap(errors.ErrCodeUnsupported, err, "cargo is not installed")
		}
		if ctx.Err() != nil {
			return md, errors.Wrap(errors.ErrCodeCanceled, ctx.Err(), "cargo metadata for %s", location)
		}
		return md, errors.Wrap(errors.ErrCodeCommandFailed, err, "cargo metadata for %s", location)
	}
	if err := json.Unmarshal(out, &md); err != nil {
		return md, errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode cargo metadata for %s", location)
	}

	if err := d.Cache.Set(ctx, key, out, d.TTL); err != nil {
		d.logger.Warn("cache write failed", "location", location, "err", err)
	} else {
		observability.Cache().OnCacheSet(ctx, cacheKeyType, len(out))
	}
	return md, nil
}

// ownerLocation maps an absolute member manifest path to a recorder location
// relative to the scanned manifest's location.
func ownerLocation(dir, location string) func(string) string {
	base := path.Dir(location)
	return func(manifestPath string) string {
		rel, err := filepath.Rel(dir, manifestPath)
		if err != nil {
			return filepath.ToSlash(manifestPath)
		}
		return path.Join(base, filepath.ToSlash(rel))
	}
}
