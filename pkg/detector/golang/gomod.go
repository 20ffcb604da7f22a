package golang

import (
	"bufio"
	"bytes"
	"context"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

// GoModDetector registers the modules required by go.mod files.
type GoModDetector struct {
	logger *log.Logger
}

// NewGoModDetector creates a go.mod detector. A nil logger discards output.
func NewGoModDetector(logger *log.Logger) *GoModDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &GoModDetector{logger: logger}
}

func (d *GoModDetector) ID() string                       { return "gomod" }
func (d *GoModDetector) SearchPatterns() []string         { return []string{"go.mod"} }
func (d *GoModDetector) SupportedTypes() []component.Type { return []component.Type{component.TypeGo} }

// Execute parses go.mod and registers each required module.
func (d *GoModDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	mf, err := modfile.Parse(req.Stream.Location, data, nil)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "parse %s", req.Stream.Location)
	}
	if mf.Module != nil {
		d.logger.Debug("parsed go.mod", "location", req.Stream.Location, "module", mf.Module.Mod.Path, "requires", len(mf.Require))
	}

	sums, err := d.loadSums(req)
	if err != nil {
		return err
	}
	replaces := newReplacer(mf.Replace)

	for _, r := range mf.Require {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		d.register(r, replaces, sums, req.Recorder)
	}
	return nil
}

func (d *GoModDetector) register(r *modfile.Require, replaces replacer, sums map[module.Version]string, rec *recorder.SingleFileComponentRecorder) {
	mod := r.Mod
	if to, ok := replaces.lookup(mod); ok {
		if to.Version == "" {
			d.logger.Info("skipping local module", "module", mod.Path, "path", to.Path, "location", rec.Location())
			return
		}
		d.logger.Debug("module replaced", "module", mod.String(), "with", to.String())
		mod = to
	}

	c, err := component.NewGo(mod.Path, mod.Version, sums[mod])
	if err != nil {
		d.logger.Warn("invalid require", "module", mod.String(), "err", err)
		rec.RegisterPackageParseFailure(strings.TrimSpace(mod.Path + " " + mod.Version))
		return
	}
	rec.RegisterUsage(c, recorder.Explicit(true))
}

// loadSums reads the go.sum next to the manifest, if any.
func (d *GoModDetector) loadSums(req detector.Request) (map[module.Version]string, error) {
	if req.Stream.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(req.Stream.Path), "go.sum"))
	if stderrors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidManifest, err, "read go.sum next to %s", req.Stream.Location)
	}
	req.Recorder.AddAdditionalRelatedFile(path.Join(path.Dir(req.Stream.Location), "go.sum"))
	return parseGoSum(data), nil
}

// parseGoSum maps each module version to its h1: content hash. Lines for
// go.mod-only hashes and malformed lines are ignored.
func parseGoSum(data []byte) map[module.Version]string {
	sums := make(map[module.Version]string)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 || strings.HasSuffix(fields[1], "/go.mod") {
			continue
		}
		sums[module.Version{Path: fields[0], Version: fields[1]}] = fields[2]
	}
	return sums
}

// replacer applies replace directives. A directive pinned to a version
// takes precedence over one covering every version of the module.
type replacer struct {
	exact map[module.Version]module.Version
	all   map[string]module.Version
}

func newReplacer(rs []*modfile.Replace) replacer {
	r := replacer{
		exact: make(map[module.Version]module.Version),
		all:   make(map[string]module.Version),
	}
	for _, rep := range rs {
		if rep.Old.Version == "" {
			r.all[rep.Old.Path] = rep.New
		} else {
			r.exact[rep.Old] = rep.New
		}
	}
	return r
}

func (r replacer) lookup(m module.Version) (module.Version, bool) {
	if to, ok := r.exact[m]; ok {
		return to, true
	}
	to, ok := r.all[m.Path]
	return to, ok
}
