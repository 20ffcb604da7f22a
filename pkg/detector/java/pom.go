package java

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

type pomProject struct {
	GroupID              string          `xml:"groupId"`
	ArtifactID           string          `xml:"artifactId"`
	Version              string          `xml:"version"`
	Parent               *pomParent      `xml:"parent"`
	Properties           pomProperties   `xml:"properties"`
	Dependencies         []pomDependency `xml:"dependencies>dependency"`
	DependencyManagement []pomDependency `xml:"dependencyManagement>dependencies>dependency"`
}

type pomParent struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
}

type pomProperties struct {
	Entries []pomProperty `xml:",any"`
}

type pomProperty struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
	Optional   string `xml:"optional"`
}

func (d pomDependency) key() string { return d.GroupID + ":" + d.ArtifactID }

// MavenPomDetector registers the direct dependencies declared in pom.xml.
type MavenPomDetector struct {
	logger *log.Logger
}

// NewMavenPomDetector creates a pom.xml detector. A nil logger discards
// output.
func NewMavenPomDetector(logger *log.Logger) *MavenPomDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &MavenPomDetector{logger: logger}
}

func (d *MavenPomDetector) ID() string               { return "maven-pom" }
func (d *MavenPomDetector) SearchPatterns() []string { return []string{"pom.xml"} }
func (d *MavenPomDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypeMaven}
}

// Execute decodes the POM and registers each declared dependency as an
// explicit root. Dependencies whose coordinates remain unresolved after
// property substitution are recorded as parse failures.
func (d *MavenPomDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var pom pomProject
	if err := xml.Unmarshal(data, &pom); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}

	props := pom.properties()
	managed := make(map[string]string, len(pom.DependencyManagement))
	for _, m := range pom.DependencyManagement {
		m = m.expand(props)
		if m.Version != "" {
			managed[m.key()] = m.Version
		}
	}

	for _, dep := range pom.Dependencies {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		d.register(dep.expand(props), managed, req.Recorder)
	}
	return nil
}

func (d *MavenPomDetector) register(dep pomDependency, managed map[string]string, rec *recorder.SingleFileComponentRecorder) {
	if dep.Version == "" {
		dep.Version = managed[dep.key()]
	}
	if unresolved(dep.GroupID) || unresolved(dep.ArtifactID) || unresolved(dep.Version) {
		d.logger.Warn("unresolved dependency", "dependency", dep.key(), "version", dep.Version, "location", rec.Location())
		rec.RegisterPackageParseFailure(dep.key())
		return
	}
	c, err := component.NewMaven(dep.GroupID, dep.ArtifactID, dep.Version)
	if err != nil {
		d.logger.Warn("invalid dependency", "dependency", dep.key(), "location", rec.Location(), "err", err)
		rec.RegisterPackageParseFailure(dep.key())
		return
	}
	scope := component.ParseScope(dep.Scope)
	rec.RegisterUsage(c,
		recorder.Explicit(true),
		recorder.WithScope(scope),
		recorder.Dev(scope == component.ScopeTest))
}

// properties returns the POM's properties together with the project.*
// built-ins.
func (p *pomProject) properties() map[string]string {
	props := make(map[string]string, len(p.Properties.Entries)+4)
	group, version := p.GroupID, p.Version
	if p.Parent != nil {
		if group == "" {
			group = p.Parent.GroupID
		}
		if version == "" {
			version = p.Parent.Version
		}
		props["project.parent.version"] = p.Parent.Version
	}
	props["project.groupId"] = group
	props["project.artifactId"] = p.ArtifactID
	props["project.version"] = version
	for _, e := range p.Properties.Entries {
		props[e.XMLName.Local] = strings.TrimSpace(e.Value)
	}
	return props
}

func (d pomDependency) expand(props map[string]string) pomDependency {
	d.GroupID = expand(d.GroupID, props)
	d.ArtifactID = expand(d.ArtifactID, props)
	d.Version = expand(d.Version, props)
	d.Scope = expand(d.Scope, props)
	return d
}

// expand substitutes ${name} references. Unknown references are left in
// place. Properties may refer to other properties; substitution stops after
// a fixed depth to break cycles.
func expand(s string, props map[string]string) string {
	s = strings.TrimSpace(s)
	for range 8 {
		if !strings.Contains(s, "${") {
			return s
		}
		next := expandOnce(s, props)
		if next == s {
			return s
		}
		s = next
	}
	return s
}

func expandOnce(s string, props map[string]string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start
		b.WriteString(s[:start])
		if v, ok := props[s[start+2:end]]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
}

func unresolved(s string) bool { return s == "" || strings.Contains(s, "${") }
