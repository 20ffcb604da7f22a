package cocoapods

import (
	"context"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
	"github.com/matzehuels/depscan/pkg/traverse"
)

// trunk is the spec repository name of the public CocoaPods specs.
const trunk = "trunk"

type podfileLock struct {
	Pods            []podEntry                   `yaml:"PODS"`
	Dependencies    []podRef                     `yaml:"DEPENDENCIES"`
	SpecRepos       map[string][]string          `yaml:"SPEC REPOS"`
	CheckoutOptions map[string]map[string]string `yaml:"CHECKOUT OPTIONS"`
}

// podRef is a "Name (version)" entry. The version is a constraint under
// DEPENDENCIES and in dependency lists.
type podRef struct {
	Name    string
	Version string
}

func (r *podRef) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	name, rest, _ := strings.Cut(s, "(")
	r.Name = strings.TrimSpace(name)
	r.Version = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ")"))
	return nil
}

// podspec returns the podspec a (sub)spec name belongs to.
func (r podRef) podspec() string {
	spec, _, _ := strings.Cut(r.Name, "/")
	return spec
}

// podEntry is one PODS item: a scalar, or a one-key mapping to the pod's
// dependencies.
type podEntry struct {
	podRef
	Dependencies []podRef
}

func (p *podEntry) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Decode(&p.podRef)
	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return errors.New(errors.ErrCodeInvalidManifest, "line %d: pod entry must have exactly one key", n.Line)
		}
		if err := n.Content[0].Decode(&p.podRef); err != nil {
			return err
		}
		return n.Content[1].Decode(&p.Dependencies)
	default:
		return errors.New(errors.ErrCodeInvalidManifest, "line %d: unexpected pod entry", n.Line)
	}
}

// specRepo returns the spec repository that lists podspec, or "".
func (l podfileLock) specRepo(podspec string) string {
	for _, repo := range slices.Sorted(maps.Keys(l.SpecRepos)) {
		if !slices.Contains(l.SpecRepos[repo], podspec) {
			continue
		}
		if strings.EqualFold(repo, trunk) || strings.EqualFold(repo, "https://github.com/cocoapods/specs.git") {
			return trunk
		}
		return repo
	}
	return ""
}

// normalizeGitURL rewrites scp-style git@ remotes to https.
func normalizeGitURL(u string) string {
	if rest, ok := strings.CutPrefix(u, "git@"); ok {
		return "https://" + strings.Replace(rest, ":", "/", 1)
	}
	return u
}

// PodfileLockDetector registers the pods of Podfile.lock files.
type PodfileLockDetector struct {
	logger *log.Logger
}

// NewPodfileLockDetector creates a Podfile.lock detector. A nil logger
// discards output.
func NewPodfileLockDetector(logger *log.Logger) *PodfileLockDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &PodfileLockDetector{logger: logger}
}

func (d *PodfileLockDetector) ID() string               { return "podfile-lock" }
func (d *PodfileLockDetector) SearchPatterns() []string { return []string{"Podfile.lock"} }
func (d *PodfileLockDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypePod, component.TypeGit}
}

// Execute decodes the lockfile, registers one component per podspec and
// links each pod to the podspecs it depends on.
func (d *PodfileLockDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var lock podfileLock
	if err := yaml.Unmarshal(data, &lock); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}
	d.logger.Debug("parsed Podfile.lock", "location", req.Stream.Location, "pods", len(lock.Pods))
	rec := req.Recorder

	roots := make(map[string]bool, len(lock.Dependencies))
	for _, dep := range lock.Dependencies {
		roots[dep.podspec()] = true
	}

	comps := make(map[string]component.Component)
	for _, pod := range lock.Pods {
		spec := pod.podspec()
		if _, ok := comps[spec]; ok {
			continue
		}
		c, err := d.component(lock, spec, pod.Version)
		if err != nil {
			d.logger.Warn("skipping pod", "pod", pod.Name, "err", err)
			rec.RegisterPackageParseFailure(pod.Name + " - " + pod.Version)
			continue
		}
		comps[spec] = c
		rec.RegisterUsage(c, recorder.Explicit(roots[spec]))
	}

	for _, pod := range lock.Pods {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		parent, ok := comps[pod.podspec()]
		if !ok {
			continue
		}
		for _, dep := range pod.Dependencies {
			child, ok := comps[dep.podspec()]
			switch {
			case !ok:
				d.logger.Warn("missing podspec declaration", "podspec", dep.podspec(), "version", dep.Version)
				rec.RegisterPackageParseFailure(dep.podspec() + " - " + dep.Version)
			case dep.podspec() != pod.podspec():
				rec.RegisterUsage(child, recorder.Parent(parent.ID()))
			}
		}
	}

	if marked := traverse.CompleteRoots(rec); len(marked) > 0 {
		d.logger.Debug("marked unreachable pods as roots", "location", req.Stream.Location, "pods", marked)
	}
	return nil
}

// component returns the Git component of a pod checked out at a commit, or
// its Pod component.
func (d *PodfileLockDetector) component(lock podfileLock, spec, version string) (component.Component, error) {
	opts := lock.CheckoutOptions[spec]
	if repo, commit := opts[":git"], opts[":commit"]; repo != "" && commit != "" {
		return component.NewGit(normalizeGitURL(repo), commit)
	}
	return component.NewPod(spec, version, lock.specRepo(spec))
}
