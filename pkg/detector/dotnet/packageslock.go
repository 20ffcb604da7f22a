package dotnet

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// Package types in packages.lock.json.
const (
	typeDirect  = "Direct"
	typeProject = "Project"
)

type packagesLock struct {
	Version int `json:"version"`
	// Dependencies maps "tfm" or "tfm/rid" to the packages resolved for it.
	Dependencies map[string]map[string]lockedPackage `json:"dependencies"`
}

type lockedPackage struct {
	Type         string            `json:"type"`
	Requested    string            `json:"requested"`
	Resolved     string            `json:"resolved"`
	ContentHash  string            `json:"contentHash"`
	Dependencies map[string]string `json:"dependencies"`
}

// PackagesLockDetector registers the packages of packages.lock.json files.
type PackagesLockDetector struct {
	logger *log.Logger
}

// NewPackagesLockDetector creates a packages.lock.json detector. A nil
// logger discards output.
func NewPackagesLockDetector(logger *log.Logger) *PackagesLockDetector {
	return &PackagesLockDetector{logger: orDiscard(logger)}
}

func (d *PackagesLockDetector) ID() string               { return "nuget-lock" }
func (d *PackagesLockDetector) SearchPatterns() []string { return []string{"packages.lock.json"} }
func (d *PackagesLockDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypeNuGet}
}

// Execute decodes the lockfile and records every framework's closure.
func (d *PackagesLockDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var lock packagesLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	d.logger.Debug("parsed packages.lock.json", "location", req.Stream.Location, "frameworks", len(lock.Dependencies))

	for _, key := range slices.Sorted(maps.Keys(lock.Dependencies)) {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		tfm, _, _ := strings.Cut(key, "/")
		d.recordFramework(req.Recorder, tfm, lock.Dependencies[key])
	}

	if marked := traverse.CompleteRoots(req.Recorder); len(marked) > 0 {
		d.logger.Debug("marked unreachable packages as roots", "location", req.Stream.Location, "packages", marked)
	}
	return nil
}

func (d *PackagesLockDetector) recordFramework(rec *recorder.SingleFileComponentRecorder, tfm string, pkgs map[string]lockedPackage) {
	names := slices.Sorted(maps.Keys(pkgs))
	// NuGet ids are case-insensitive.
	byName := make(map[string]string, len(names))
	for _, name := range names {
		byName[strings.ToLower(name)] = name
	}

	comps := make(map[string]component.Component, len(names))
	for _, name := range names {
		p := pkgs[name]
		if p.Type == typeProject {
			continue
		}
		c, err := component.NewNuGet(name, p.Resolved)
		if err != nil {
			d.logger.Warn("skipping package", "package", name, "err", err)
			rec.RegisterPackageParseFailure(name + " - " + p.Resolved)
			continue
		}
		c.Hash = p.ContentHash
		comps[name] = c
		rec.RegisterUsage(c, recorder.Explicit(p.Type == typeDirect), recorder.TargetFramework(tfm))
	}

	for _, name := range names {
		p := pkgs[name]
		parent, ok := comps[name]
		if !ok && p.Type != typeProject {
			continue
		}
		for _, depName := range slices.Sorted(maps.Keys(p.Dependencies)) {
			resolved, found := byName[strings.ToLower(depName)]
			child, tracked := comps[resolved]
			switch {
			case !found:
				d.logger.Warn("dependency not in lockfile", "package", depName, "range", p.Dependencies[depName], "framework", tfm)
				rec.RegisterPackageParseFailure(depName + " - " + p.Dependencies[depName])
			case !tracked:
				// project to project reference
			case p.Type == typeProject:
				rec.RegisterUsage(child, recorder.Explicit(true), recorder.TargetFramework(tfm))
			default:
				rec.RegisterUsage(child, recorder.Parent(parent.ID()), recorder.TargetFramework(tfm))
			}
		}
	}
}

func orDiscard(l *log.Logger) *log.Logger {
	if l != nil {
		return l
	}
	return log.NewWithOptions(io.Discard, log.Options{})
}
