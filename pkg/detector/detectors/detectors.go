// Package detectors assembles the built-in detector registry.
package detectors

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/detector/cocoapods"
	"github.com/matzehuels/depscan/pkg/detector/dotnet"
	"github.com/matzehuels/depscan/pkg/detector/golang"
	"github.com/matzehuels/depscan/pkg/detector/java"
	"github.com/matzehuels/depscan/pkg/detector/javascript"
	"github.com/matzehuels/depscan/pkg/detector/python"
	"github.com/matzehuels/depscan/pkg/detector/rust"
)

// Options configures the built-in detectors.
type Options struct {
	Logger *log.Logger

	// Cache memoizes cargo metadata output. Nil disables caching.
	Cache cache.Cache
	// Keyer derives the cache keys. Nil uses cache.NewDefaultKeyer.
	Keyer cache.Keyer
	// CacheTTL is how long cached output stays valid. Zero uses
	// rust.DefaultTTL.
	CacheTTL time.Duration
	// DisableRustCLI turns the cargo-cli detector off. The
	// DisableRustCliScan environment variable turns it off as well.
	DisableRustCLI bool
	// Runner runs cargo for the cargo-cli detector. Nil uses os/exec.
	Runner rust.CommandRunner
}

// Default returns a registry holding every built-in detector. The registry
// serves one scan at a time.
func Default(opts Options) *detector.Registry {
	cli := rust.NewCLIDetector(opts.Logger)
	if opts.Cache != nil {
		cli.Cache = opts.Cache
	}
	if opts.Keyer != nil {
		cli.Keyer = opts.Keyer
	}
	if opts.CacheTTL > 0 {
		cli.TTL = opts.CacheTTL
	}
	if opts.Runner != nil {
		cli.Runner = opts.Runner
	}
	cli.Disabled = cli.Disabled || opts.DisableRustCLI

	// The cargo detectors share one workspace: cargo-cli fills it before the
	// scan executes files, cargo-lock skips what it covers and cargo-sbom
	// reads its crate ownership.
	lock := rust.NewCargoLockDetector(opts.Logger)
	lock.Workspace = cli.Workspace
	sbom := rust.NewSBOMDetector(opts.Logger)
	sbom.Workspace = cli.Workspace

	return detector.NewRegistry(
		lock,
		sbom,
		cli,
		golang.NewGoModDetector(opts.Logger),
		javascript.NewNpmLockDetector(opts.Logger),
		java.NewMavenTreeDetector(opts.Logger),
		java.NewMavenPomDetector(opts.Logger),
		python.NewRequirementsDetector(opts.Logger),
		python.NewPoetryLockDetector(opts.Logger),
		dotnet.NewPackagesLockDetector(opts.Logger),
		dotnet.NewPackagesConfigDetector(opts.Logger),
		dotnet.NewAssetsDetector(opts.Logger),
		cocoapods.NewPodfileLockDetector(opts.Logger),
	)
}
