package rust

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// depStringRE matches a Cargo.lock dependency string: name[ version][ (source)].
var depStringRE = regexp.MustCompile(`^(?P<name>[^ ]+)(?: (?P<version>[^ ]+))?(?: \((?P<source>[^()]*)\))?$`)

type cargoLock struct {
	Version  int           `toml:"version"`
	Packages []lockPackage `toml:"package"`
}

type lockPackage struct {
	Name         string   `toml:"name"`
	Version      string   `toml:"version"`
	Source       string   `toml:"source"`
	Checksum     string   `toml:"checksum"`
	Dependencies []string `toml:"dependencies"`
}

func (p lockPackage) ref() traverse.PackageRef {
	return traverse.PackageRef{Name: p.Name, Version: p.Version, Source: p.Source}
}

// info is the description recorded when one of the package's dependency
// strings cannot be resolved.
func (p lockPackage) info() string {
	return fmt.Sprintf("%s, %s, %s", p.Name, p.Version, p.Source)
}

// lockEntry pairs a package with its registered component. Local packages
// have a zero component.
type lockEntry struct {
	pkg  lockPackage
	comp component.Component
	seen bool
}

// CargoLockDetector registers the crates listed in Cargo.lock files.
//
// A Cargo.lock in a directory that a cargo metadata run in Workspace covered
// is skipped, since that run already registered the same crates.
type CargoLockDetector struct {
	Workspace *Workspace

	logger *log.Logger
}

// NewCargoLockDetector creates a Cargo.lock detector. A nil logger discards output.
func NewCargoLockDetector(logger *log.Logger) *CargoLockDetector {
	return &CargoLockDetector{logger: orDiscard(logger)}
}

func (d *CargoLockDetector) ID() string                       { return "cargo-lock" }
func (d *CargoLockDetector) SearchPatterns() []string         { return []string{"Cargo.lock"} }
func (d *CargoLockDetector) SupportedTypes() []component.Type { return []component.Type{component.TypeCargo} }

// Execute decodes the lockfile and registers its packages in three passes:
// every sourced package is registered, dependency strings become edges (or
// explicit roots when the parent is local), and sourced packages no other
// package depends on are marked explicit.
func (d *CargoLockDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if by, ok := d.Workspace.CoveredBy(req.Stream.Location); ok {
		return errors.New(errors.ErrCodeUnsupported, "%s is resolved by the cargo metadata run for %s", req.Stream.Location, by)
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var lock cargoLock
	if err := toml.Unmarshal(data, &lock); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	d.logger.Debug("parsed Cargo.lock", "location", req.Stream.Location, "version", lock.Version, "packages", len(lock.Packages))

	return d.process(ctx, lock, req.Recorder)
}

func (d *CargoLockDetector) process(ctx context.Context, lock cargoLock, rec *recorder.SingleFileComponentRecorder) error {
	entries := d.register(lock.Packages, rec)

	refs := make([]traverse.PackageRef, len(entries))
	for i, e := range entries {
		refs[i] = e.pkg.ref()
	}

	for _, parent := range entries {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", rec.Location())
		}
		for _, dep := range parent.pkg.Dependencies {
			d.link(parent, dep, entries, refs, rec)
		}
	}

	for _, e := range entries {
		if !e.comp.IsZero() && !e.seen {
			rec.RegisterUsage(e.comp, recorder.Explicit(true))
		}
	}
	if marked := traverse.CompleteRoots(rec); len(marked) > 0 {
		d.logger.Debug("marked unreachable packages as roots", "location", rec.Location(), "packages", marked)
	}
	return nil
}

// register creates a node for every sourced package. Duplicate entries with
// the same name, version and source are collapsed.
func (d *CargoLockDetector) register(pkgs []lockPackage, rec *recorder.SingleFileComponentRecorder) []*lockEntry {
	entries := make([]*lockEntry, 0, len(pkgs))
	dupes := traverse.NewVisited()
	for _, p := range pkgs {
		if !dupes.Add(p.Name, p.Version, p.Source) {
			continue
		}
		e := &lockEntry{pkg: p}
		if p.Source != "" {
			c, err := component.NewCargo(p.Name, p.Version, p.Source)
			if err != nil {
				d.logger.Warn("skipping package", "package", p.info(), "err", err)
				rec.RegisterPackageParseFailure(p.info())
				continue
			}
			c.Hash = p.Checksum
			rec.RegisterUsage(c)
			e.comp = c
		}
		entries = append(entries, e)
	}
	return entries
}

// link resolves one dependency string of parent and records it. Failures are
// recorded against the parent and do not stop the walk.
func (d *CargoLockDetector) link(parent *lockEntry, dep string, entries []*lockEntry, refs []traverse.PackageRef, rec *recorder.SingleFileComponentRecorder) {
	spec, ok := parseDependencyString(dep)
	if !ok {
		d.logger.Warn("malformed dependency string", "dependency", dep, "package", parent.pkg.info())
		rec.RegisterPackageParseFailure(parent.pkg.info())
		return
	}
	idx, err := traverse.ResolveDependency(spec, refs)
	if err != nil {
		d.logger.Warn("unresolved dependency", "package", parent.pkg.info(), "err", err)
		rec.RegisterPackageParseFailure(parent.pkg.info())
		return
	}

	child := entries[idx]
	if child.comp.IsZero() {
		return
	}
	child.seen = true

	if parent.comp.IsZero() {
		rec.RegisterUsage(child.comp, recorder.Explicit(true))
		return
	}
	rec.RegisterUsage(child.comp, recorder.Parent(parent.comp.ID()))
}

// parseDependencyString splits a Cargo.lock dependency string. A blank
// source is treated as absent.
func parseDependencyString(s string) (traverse.DependencySpec, bool) {
	m := depStringRE.FindStringSubmatch(s)
	if m == nil {
		return traverse.DependencySpec{}, false
	}
	spec := traverse.DependencySpec{
		Name:    m[depStringRE.SubexpIndex("name")],
		Version: m[depStringRE.SubexpIndex("version")],
		Source:  strings.TrimSpace(m[depStringRE.SubexpIndex("source")]),
	}
	return spec, true
}

func orDiscard(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.NewWithOptions(io.Discard, log.Options{})
}
