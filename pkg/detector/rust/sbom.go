package rust

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// CratesIOSource is the package id source of crates published on crates.io.
const CratesIOSource = "registry+https://github.com/rust-lang/crates.io-index"

// pkgIDRE matches a Cargo package id spec: source#name@version.
var pkgIDRE = regexp.MustCompile(`^(?P<source>[^#]*)#?(?P<name>[\w\-]*)[@#]?(?P<version>\d[\S]*)?$`)

type cargoSBOM struct {
	Version int         `json:"version"`
	Root    int         `json:"root"`
	Crates  []sbomCrate `json:"crates"`
}

type sbomCrate struct {
	ID           string    `json:"id"`
	Features     []string  `json:"features"`
	Dependencies []sbomDep `json:"dependencies"`
}

type sbomDep struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
}

// packageID is a parsed Cargo package id spec.
type packageID struct {
	Source  string
	Name    string
	Version string
}

// parsePackageID splits a package id spec. A spec without a name takes the
// last path segment of its source, as Cargo does for path crates.
func parsePackageID(id string) (packageID, bool) {
	m := pkgIDRE.FindStringSubmatch(id)
	if m == nil {
		return packageID{}, false
	}
	p := packageID{
		Source:  strings.TrimSpace(m[pkgIDRE.SubexpIndex("source")]),
		Name:    m[pkgIDRE.SubexpIndex("name")],
		Version: m[pkgIDRE.SubexpIndex("version")],
	}
	if strings.TrimSpace(p.Name) == "" {
		p.Name = p.Source[strings.LastIndex(p.Source, "/")+1:]
	}
	return p, true
}

// SBOMDetector registers crates from the SBOM files `cargo build
// -Zsbom` writes next to build artifacts.
//
// Crates are attributed to the Cargo.toml manifests that own them, taken
// from Ownership or, when that is nil, from the crate ownership the
// cargo-cli detector recorded in Workspace. Crates with no owner, and every
// crate when neither source has one, are recorded against the SBOM file.
type SBOMDetector struct {
	Ownership traverse.OwnershipMap
	Workspace *Workspace

	logger *log.Logger
}

// NewSBOMDetector creates a cargo SBOM detector. A nil logger discards output.
func NewSBOMDetector(logger *log.Logger) *SBOMDetector {
	return &SBOMDetector{logger: orDiscard(logger)}
}

func (d *SBOMDetector) ID() string                       { return "cargo-sbom" }
func (d *SBOMDetector) SearchPatterns() []string         { return []string{"*.cargo-sbom.json"} }
func (d *SBOMDetector) SupportedTypes() []component.Type { return []component.Type{component.TypeCargo} }

// Execute decodes the SBOM and walks the crate graph from its root.
func (d *SBOMDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var sbom cargoSBOM
	if err := json.Unmarshal(data, &sbom); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	if sbom.Root < 0 || sbom.Root >= len(sbom.Crates) {
		return errors.New(errors.ErrCodeInvalidManifest, "root index %d out of range in %s", sbom.Root, req.Stream.Location)
	}

	owners := d.Ownership
	if owners == nil {
		owners = d.Workspace.Ownership()
	}

	w := &sbomWalker{
		sbom:    sbom,
		rec:     req.Recorder,
		logger:  d.logger,
		visited: traverse.NewVisited(),
		attr: &traverse.Attributor{
			Parent:   req.Recorder.Parent(),
			Owners:   owners,
			Fallback: req.Recorder,
		},
	}
	return w.walk(ctx, sbom.Crates[sbom.Root], "", 0)
}

type sbomWalker struct {
	sbom    cargoSBOM
	rec     *recorder.SingleFileComponentRecorder
	attr    *traverse.Attributor
	logger  *log.Logger
	visited traverse.Visited
}

// walk registers the dependencies of crate. parent is the id of the nearest
// registered ancestor; a crate without one is an explicit root. Dev status
// comes from the kind of the edge that reached the crate and is not passed
// on to its own dependencies. Each crate is expanded at most once.
func (w *sbomWalker) walk(ctx context.Context, crate sbomCrate, parent string, depth int) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCanceled, err, "walk %s", w.rec.Location())
	}

	for _, dep := range crate.Dependencies {
		if dep.Index < 0 || dep.Index >= len(w.sbom.Crates) {
			w.logger.Warn("dependency index out of range", "crate", crate.ID, "index", dep.Index)
			w.rec.RegisterPackageParseFailure(crate.ID + " -> " + strconv.Itoa(dep.Index))
			continue
		}
		child := w.sbom.Crates[dep.Index]
		childDev := dep.Kind == "dev"
		next := parent

		id, ok := parsePackageID(child.ID)
		switch {
		case !ok:
			w.logger.Warn("malformed package id", "id", child.ID, "location", w.rec.Location())
			w.rec.RegisterPackageParseFailure(child.ID)
		case id.Source == CratesIOSource:
			c, err := component.NewCargo(id.Name, id.Version, id.Source)
			if err != nil {
				w.logger.Warn("invalid crate", "id", child.ID, "err", err)
				w.rec.RegisterPackageParseFailure(child.ID)
				break
			}
			w.attr.Register(child.ID, c, parent,
				recorder.Explicit(depth == 0 || parent == ""),
				recorder.Dev(childDev))
			next = c.ID()
		}

		if !w.visited.Add(strconv.Itoa(dep.Index)) {
			continue
		}
		if err := w.walk(ctx, child, next, depth+1); err != nil {
			return err
		}
	}
	return nil
}
