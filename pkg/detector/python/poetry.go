package python

import (
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

type lockFile struct {
	Packages []lockPackage `toml:"package"`
}

type lockPackage struct {
	Name         string         `toml:"name"`
	Version      string         `toml:"version"`
	Category     string         `toml:"category"`
	Groups       []string       `toml:"groups"`
	Dependencies map[string]any `toml:"dependencies"`
}

// dev reports whether the package is only installed for development. Lock
// files before Poetry 1.5 state a category, later ones list groups.
func (p lockPackage) dev() bool {
	if len(p.Groups) > 0 {
		return !slices.Contains(p.Groups, "main")
	}
	return p.Category == "dev"
}

type pyproject struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// declared returns the normalized names of the project's direct
// dependencies.
func (p pyproject) declared() map[string]struct{} {
	names := make(map[string]struct{})
	add := func(name string) {
		if n := normalize(name); n != "" && n != "python" {
			names[n] = struct{}{}
		}
	}
	for _, spec := range p.Project.Dependencies {
		add(depNameRE.FindString(strings.TrimSpace(spec)))
	}
	poetry := p.Tool.Poetry
	for name := range poetry.Dependencies {
		add(name)
	}
	for name := range poetry.DevDependencies {
		add(name)
	}
	for _, g := range poetry.Group {
		for name := range g.Dependencies {
			add(name)
		}
	}
	return names
}

// PoetryLockDetector registers the packages of poetry.lock files.
type PoetryLockDetector struct {
	logger *log.Logger
}

// NewPoetryLockDetector creates a poetry.lock detector. A nil logger
// discards output.
func NewPoetryLockDetector(logger *log.Logger) *PoetryLockDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &PoetryLockDetector{logger: logger}
}

func (d *PoetryLockDetector) ID() string               { return "poetry-lock" }
func (d *PoetryLockDetector) SearchPatterns() []string { return []string{"poetry.lock"} }
func (d *PoetryLockDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypePip}
}

// Execute registers every locked package, links each to the packages it
// depends on and marks the roots.
func (d *PoetryLockDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var lock lockFile
	if err := toml.Unmarshal(data, &lock); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	declared, err := d.loadDeclared(req)
	if err != nil {
		return err
	}

	rec := req.Recorder
	comps := make(map[string]component.Component, len(lock.Packages))
	devs := make(map[string]bool, len(lock.Packages))
	for _, p := range lock.Packages {
		name := normalize(p.Name)
		c, err := component.NewPip(name, p.Version)
		if err != nil {
			d.logger.Warn("skipping package", "package", p.Name, "err", err)
			rec.RegisterPackageParseFailure(p.Name + " " + p.Version)
			continue
		}
		comps[name] = c
		devs[name] = p.dev()
		rec.RegisterUsage(c, recorder.Dev(p.dev()))
	}

	seen := make(map[string]bool, len(comps))
	for _, p := range lock.Packages {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		parent, ok := comps[normalize(p.Name)]
		if !ok {
			continue
		}
		for _, dep := range slices.Sorted(maps.Keys(p.Dependencies)) {
			name := normalize(dep)
			child, ok := comps[name]
			if !ok {
				d.logger.Debug("dependency not locked", "dependency", dep, "package", p.Name, "location", rec.Location())
				continue
			}
			seen[name] = true
			rec.RegisterUsage(child, recorder.Parent(parent.ID()), recorder.Dev(devs[name]))
		}
	}

	for _, name := range slices.Sorted(maps.Keys(comps)) {
		_, direct := declared[name]
		if direct || !seen[name] {
			rec.RegisterUsage(comps[name], recorder.Explicit(true), recorder.Dev(devs[name]))
		}
	}
	traverse.CompleteRoots(rec)
	return nil
}

// loadDeclared reads the pyproject.toml next to the lock file. A missing
// or undecodable pyproject.toml yields no declared dependencies.
func (d *PoetryLockDetector) loadDeclared(req detector.Request) (map[string]struct{}, error) {
	if req.Stream.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(req.Stream.Path), "pyproject.toml"))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "read pyproject.toml for %s", req.Stream.Location)
	}
	var pp pyproject
	if err := toml.Unmarshal(data, &pp); err != nil {
		d.logger.Warn("ignoring pyproject.toml", "location", req.Stream.Location, "err", err)
		return nil, nil
	}
	req.Recorder.AddAdditionalRelatedFile(path.Join(path.Dir(req.Stream.Location), "pyproject.toml"))
	return pp.declared(), nil
}
