package component

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/matzehuels/depscan/pkg/errors"
)

// Type is the ecosystem tag of a component.
type Type string

// Supported component types.
const (
	TypeCargo  Type = "Cargo"
	TypeGo     Type = "Go"
	TypeNpm    Type = "Npm"
	TypeMaven  Type = "Maven"
	TypeNuGet  Type = "NuGet"
	TypePip    Type = "Pip"
	TypePod    Type = "Pod"
	TypeDotNet Type = "DotNet"
	TypeGit    Type = "Git"
)

// Types lists every supported component type in display order.
var Types = []Type{TypeCargo, TypeGo, TypeNpm, TypeMaven, TypeNuGet, TypePip, TypePod, TypeDotNet, TypeGit}

// Component is a package detected in a manifest.
//
// Construct components with the New* functions, which validate required
// fields. The zero value is not a valid component.
type Component struct {
	Type    Type   // Ecosystem tag
	Name    string // Package name (artifactId for Maven, repository URL for Git)
	Version string // Resolved version (SDK version for DotNet)
	Commit  string // Git commit hash

	Group           string // Maven groupId
	Source          string // Registry or source URL, not part of the ID
	Hash            string // Content hash (go.sum h1:, npm integrity), not part of the ID
	SpecRepo        string // CocoaPods spec repository, not part of the ID
	TargetFramework string // DotNet target framework moniker
	ProjectType     string // DotNet project type (application, library)

	Author  string
	License string
}

// NewCargo creates a Rust crate component. source may be empty for local crates.
func NewCargo(name, version, source string) (Component, error) {
	if err := require(TypeCargo, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeCargo, Name: name, Version: version, Source: source}, nil
}

// NewGo creates a Go module component. hash is the go.sum hash, if known.
func NewGo(name, version, hash string) (Component, error) {
	if err := require(TypeGo, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeGo, Name: name, Version: version, Hash: hash}, nil
}

// NewNpm creates an npm package component. hash is the lockfile integrity value.
func NewNpm(name, version, hash string) (Component, error) {
	if err := require(TypeNpm, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeNpm, Name: name, Version: version, Hash: hash}, nil
}

// NewMaven creates a Maven artifact component.
func NewMaven(group, artifact, version string) (Component, error) {
	if err := require(TypeMaven, "GroupId", group, "ArtifactId", artifact, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeMaven, Group: group, Name: artifact, Version: version}, nil
}

// NewNuGet creates a NuGet package component.
func NewNuGet(name, version string) (Component, error) {
	if err := require(TypeNuGet, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeNuGet, Name: name, Version: version}, nil
}

// NewPip creates a Python package component.
func NewPip(name, version string) (Component, error) {
	if err := require(TypePip, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypePip, Name: name, Version: version}, nil
}

// NewPod creates a CocoaPods component.
func NewPod(name, version, specRepo string) (Component, error) {
	if err := require(TypePod, "Name", name, "Version", version); err != nil {
		return Component{}, err
	}
	return Component{Type: TypePod, Name: name, Version: version, SpecRepo: specRepo}, nil
}

// NewDotNet creates a .NET SDK component. Only the SDK version is required.
func NewDotNet(sdkVersion, targetFramework, projectType string) (Component, error) {
	if err := require(TypeDotNet, "SdkVersion", sdkVersion); err != nil {
		return Component{}, err
	}
	return Component{
		Type:            TypeDotNet,
		Name:            ".NET SDK",
		Version:         sdkVersion,
		TargetFramework: targetFramework,
		ProjectType:     projectType,
	}, nil
}

// NewGit creates a component for a dependency pinned to a git commit.
func NewGit(repoURL, commit string) (Component, error) {
	if err := require(TypeGit, "RepositoryUrl", repoURL, "CommitHash", commit); err != nil {
		return Component{}, err
	}
	return Component{Type: TypeGit, Name: repoURL, Commit: commit}, nil
}

func require(typ Type, pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := errors.RequireField(pairs[i+1], pairs[i], string(typ)); err != nil {
			return err
		}
	}
	return nil
}

// ID returns the canonical identity of the component.
func (c Component) ID() string {
	switch c.Type {
	case TypePip:
		return strings.ToLower(fmt.Sprintf("%s %s - %s", c.Name, c.Version, c.Type))
	case TypeMaven:
		return fmt.Sprintf("%s %s %s - %s", c.Group, c.Name, c.Version, c.Type)
	case TypeDotNet:
		return fmt.Sprintf("%s %s %s - %s", c.Version, c.TargetFramework, c.ProjectType, c.Type)
	case TypeGit:
		return fmt.Sprintf("%s %s - %s", normalizeRepoURL(c.Name), c.Commit, c.Type)
	default:
		return fmt.Sprintf("%s %s - %s", c.Name, c.Version, c.Type)
	}
}

// String implements fmt.Stringer.
func (c Component) String() string { return c.ID() }

// IsZero reports whether c is the zero value.
func (c Component) IsZero() bool { return c.Type == "" }

// PackageURL returns the purl for the component, or "" for types without a
// purl scheme (DotNet SDKs).
func (c Component) PackageURL() string {
	switch c.Type {
	case TypeCargo:
		return purl("cargo", "", c.Name, c.Version)
	case TypeGo:
		if i := strings.LastIndex(c.Name, "/"); i > 0 {
			return purl("golang", c.Name[:i], c.Name[i+1:], c.Version)
		}
		return purl("golang", "", c.Name, c.Version)
	case TypeNpm:
		if scope, name, ok := strings.Cut(c.Name, "/"); ok && strings.HasPrefix(scope, "@") {
			return purl("npm", scope, name, c.Version)
		}
		return purl("npm", "", c.Name, c.Version)
	case TypeMaven:
		return purl("maven", c.Group, c.Name, c.Version)
	case TypeNuGet:
		return purl("nuget", "", c.Name, c.Version)
	case TypePip:
		return purl("pypi", "", strings.ToLower(c.Name), c.Version)
	case TypePod:
		return purl("cocoapods", "", c.Name, c.Version)
	case TypeGit:
		return "pkg:generic/" + url.PathEscape(c.Commit) + "?vcs_url=" + url.QueryEscape(c.Name)
	default:
		return ""
	}
}

func purl(typ, namespace, name, version string) string {
	var b strings.Builder
	b.WriteString("pkg:")
	b.WriteString(typ)
	b.WriteByte('/')
	for _, seg := range strings.Split(namespace, "/") {
		if seg == "" {
			continue
		}
		b.WriteString(strings.ReplaceAll(url.PathEscape(seg), "@", "%40"))
		b.WriteByte('/')
	}
	b.WriteString(url.PathEscape(name))
	if version != "" {
		b.WriteByte('@')
		b.WriteString(url.PathEscape(version))
	}
	return b.String()
}

func normalizeRepoURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	u = strings.TrimSuffix(u, "/")
	return strings.TrimSuffix(u, ".git")
}
