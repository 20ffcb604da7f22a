package dotnet

import (
	"bytes"
	"context"
	"encoding/xml"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

type packagesConfig struct {
	XMLName  xml.Name        `xml:"packages"`
	Packages []configPackage `xml:"package"`
}

type configPackage struct {
	ID                    string `xml:"id,attr"`
	Version               string `xml:"version,attr"`
	TargetFramework       string `xml:"targetFramework,attr"`
	DevelopmentDependency bool   `xml:"developmentDependency,attr"`
}

// PackagesConfigDetector registers the packages of packages.config files.
type PackagesConfigDetector struct {
	logger *log.Logger
}

// NewPackagesConfigDetector creates a packages.config detector. A nil logger
// discards output.
func NewPackagesConfigDetector(logger *log.Logger) *PackagesConfigDetector {
	return &PackagesConfigDetector{logger: orDiscard(logger)}
}

func (d *PackagesConfigDetector) ID() string               { return "nuget-packages-config" }
func (d *PackagesConfigDetector) SearchPatterns() []string { return []string{"packages.config"} }
func (d *PackagesConfigDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypeNuGet}
}

// Execute registers every listed package as an explicit root.
func (d *PackagesConfigDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var cfg packagesConfig
	if err := xml.NewDecoder(bytes.NewReader(data)).Decode(&cfg); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}

	for _, p := range cfg.Packages {
		c, err := component.NewNuGet(strings.TrimSpace(p.ID), normalizeVersion(p.Version))
		if err != nil {
			d.logger.Warn("skipping package", "location", req.Stream.Location, "package", p.ID, "err", err)
			req.Recorder.RegisterPackageParseFailure(p.ID + " - " + p.Version)
			continue
		}
		req.Recorder.RegisterUsage(c,
			recorder.Explicit(true),
			recorder.Dev(p.DevelopmentDependency),
			recorder.TargetFramework(strings.ToLower(strings.TrimSpace(p.TargetFramework))))
	}
	return nil
}

// normalizeVersion drops a zero fourth version segment, the way NuGet
// normalizes "1.2.3.0" to "1.2.3".
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if parts := strings.Split(v, "."); len(parts) == 4 && parts[3] == "0" {
		return strings.Join(parts[:3], ".")
	}
	return v
}
