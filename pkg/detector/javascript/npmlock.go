package javascript

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"path"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

const nodeModules = "node_modules"

type packageLock struct {
	Name            string                  `json:"name"`
	Version         string                  `json:"version"`
	LockfileVersion int                     `json:"lockfileVersion"`
	Packages        map[string]lockfileNode `json:"packages"`
}

type lockfileNode struct {
	Name                 string            `json:"name"`
	Version              string            `json:"version"`
	Resolved             string            `json:"resolved"`
	Integrity            string            `json:"integrity"`
	License              string            `json:"license"`
	Link                 bool              `json:"link"`
	Dev                  bool              `json:"dev"`
	Optional             bool              `json:"optional"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
}

// requires returns the names the package depends on, sorted. devDependencies
// only count for local packages, since npm never installs them for
// registry packages.
func (n lockfileNode) requires(local bool) []string {
	set := make(map[string]struct{})
	for name := range n.Dependencies {
		set[name] = struct{}{}
	}
	for name := range n.OptionalDependencies {
		set[name] = struct{}{}
	}
	for name := range n.PeerDependencies {
		set[name] = struct{}{}
	}
	if local {
		for name := range n.DevDependencies {
			set[name] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (n lockfileNode) optional(name string) bool {
	_, opt := n.OptionalDependencies[name]
	_, peer := n.PeerDependencies[name]
	return opt || peer
}

// packageName returns the package name installed at an install path.
func packageName(installPath string, n lockfileNode) string {
	if n.Name != "" {
		return n.Name
	}
	i := strings.LastIndex(installPath, nodeModules+"/")
	if i < 0 {
		return path.Base(installPath)
	}
	return installPath[i+len(nodeModules)+1:]
}

// isLocal reports whether an install path is a workspace package rather than
// an installed dependency.
func isLocal(installPath string) bool {
	return installPath == "" || !strings.Contains(installPath, nodeModules+"/")
}

// NpmLockDetector registers the packages of package-lock.json files.
type NpmLockDetector struct {
	logger *log.Logger
}

// NewNpmLockDetector creates a package-lock.json detector. A nil logger
// discards output.
func NewNpmLockDetector(logger *log.Logger) *NpmLockDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &NpmLockDetector{logger: logger}
}

func (d *NpmLockDetector) ID() string                       { return "npm-lock" }
func (d *NpmLockDetector) SearchPatterns() []string         { return []string{"package-lock.json"} }
func (d *NpmLockDetector) SupportedTypes() []component.Type { return []component.Type{component.TypeNpm} }

// Execute decodes the lockfile and walks the installed tree from the root
// package. Lockfile version 1 is not supported.
func (d *NpmLockDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var lock packageLock
	if err := json.Unmarshal(data, &lock); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	if lock.LockfileVersion < 2 || lock.Packages == nil {
		return errors.New(errors.ErrCodeUnsupported, "lockfile version %d in %s", lock.LockfileVersion, req.Stream.Location)
	}
	root, ok := lock.Packages[""]
	if !ok {
		return errors.New(errors.ErrCodeInvalidManifest, "no root package in %s", req.Stream.Location)
	}

	w := &npmWalker{
		packages: lock.Packages,
		rec:      req.Recorder,
		logger:   d.logger,
		visited:  traverse.NewVisited(),
	}
	return w.walk(ctx, "", root, "")
}

type npmWalker struct {
	packages map[string]lockfileNode
	rec      *recorder.SingleFileComponentRecorder
	logger   *log.Logger
	visited  traverse.Visited
}

// walk registers the dependencies of the package installed at from. parent
// is the component id of that package, or "" when it is local.
func (w *npmWalker) walk(ctx context.Context, from string, n lockfileNode, parent string) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeCanceled, err, "walk %s", w.rec.Location())
	}

	for _, name := range n.requires(isLocal(from)) {
		at, child, ok := w.resolve(from, name)
		if !ok {
			if !n.optional(name) {
				w.logger.Warn("dependency not installed", "dependency", name, "from", from, "location", w.rec.Location())
			}
			continue
		}

		if child.Link {
			target, ok := w.packages[child.Resolved]
			if !ok {
				w.logger.Warn("link target missing", "link", at, "target", child.Resolved)
				continue
			}
			if w.visited.Add(child.Resolved) {
				if err := w.walk(ctx, child.Resolved, target, ""); err != nil {
					return err
				}
			}
			continue
		}

		c, err := component.NewNpm(packageName(at, child), child.Version, child.Integrity)
		if err != nil {
			w.logger.Warn("invalid package", "path", at, "err", err)
			w.rec.RegisterPackageParseFailure(at)
			continue
		}
		c.License = child.License
		w.rec.RegisterUsage(c,
			recorder.Explicit(parent == ""),
			recorder.Parent(parent),
			recorder.Dev(child.Dev))

		if w.visited.Add(at) {
			if err := w.walk(ctx, at, child, c.ID()); err != nil {
				return err
			}
		}
	}

	if from == "" {
		return w.walkWorkspaces(ctx)
	}
	return nil
}

// walkWorkspaces walks workspace packages no link reached.
func (w *npmWalker) walkWorkspaces(ctx context.Context) error {
	for _, p := range slices.Sorted(maps.Keys(w.packages)) {
		if p == "" || !isLocal(p) {
			continue
		}
		if !w.visited.Add(p) {
			continue
		}
		if err := w.walk(ctx, p, w.packages[p], ""); err != nil {
			return err
		}
	}
	return nil
}

// resolve finds the install path of name as required from the package at
// from, checking from/node_modules/name and then each enclosing
// node_modules directory up to the root.
func (w *npmWalker) resolve(from, name string) (string, lockfileNode, bool) {
	dir := from
	for {
		candidate := path.Join(dir, nodeModules, name)
		if n, ok := w.packages[candidate]; ok {
			return candidate, n, true
		}
		if dir == "" {
			return "", lockfileNode{}, false
		}
		i := strings.LastIndex(dir, "/"+nodeModules+"/")
		if i < 0 {
			dir = ""
			continue
		}
		dir = dir[:i]
	}
}
