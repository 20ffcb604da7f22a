package dotnet

import (
	"context"
	"debug/pe"
	"encoding/json"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

// unknown stands in for an SDK version, framework or project type that could
// not be determined.
const unknown = "unknown"

const globalJSON = "global.json"

type projectAssets struct {
	Version int                        `json:"version"`
	Targets map[string]json.RawMessage `json:"targets"`
	Project struct {
		Restore struct {
			ProjectName string `json:"projectName"`
			ProjectPath string `json:"projectPath"`
		} `json:"restore"`
	} `json:"project"`
}

// frameworks returns the sorted target frameworks, dropping runtime ids.
func (a projectAssets) frameworks() []string {
	seen := make(map[string]struct{}, len(a.Targets))
	for key := range a.Targets {
		tfm, _, _ := strings.Cut(key, "/")
		if tfm = strings.TrimSpace(tfm); tfm != "" {
			seen[tfm] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

type globalJSONFile struct {
	SDK struct {
		Version string `json:"version"`
	} `json:"sdk"`
}

// AssetsDetector registers the .NET SDK and target frameworks of restored
// projects.
type AssetsDetector struct {
	logger *log.Logger
}

// NewAssetsDetector creates a project.assets.json detector. A nil logger
// discards output.
func NewAssetsDetector(logger *log.Logger) *AssetsDetector {
	return &AssetsDetector{logger: orDiscard(logger)}
}

func (d *AssetsDetector) ID() string               { return "dotnet-sdk" }
func (d *AssetsDetector) SearchPatterns() []string { return []string{"project.assets.json"} }
func (d *AssetsDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypeDotNet}
}

// Execute registers one DotNet component per target framework. The global.json
// that pins the SDK version gets the bare SDK component as an explicit root.
func (d *AssetsDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var assets projectAssets
	if err := json.Unmarshal(data, &assets); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "decode %s", req.Stream.Location)
	}

	sdk, projectType := unknown, unknown
	if req.Stream.Path != "" {
		if v, loc := d.sdkVersion(req, d.projectDir(req, assets)); v != "" {
			sdk = v
			d.recordGlobalJSON(req, loc, v)
		}
		projectType = d.projectType(filepath.Dir(req.Stream.Path), assets.Project.Restore.ProjectName)
	}

	tfms := assets.frameworks()
	if len(tfms) == 0 {
		tfms = []string{unknown}
	}
	for _, tfm := range tfms {
		c, err := component.NewDotNet(sdk, tfm, projectType)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "register sdk for %s", req.Stream.Location)
		}
		req.Recorder.RegisterUsage(c, recorder.Explicit(true), recorder.TargetFramework(tfm))
	}
	d.logger.Debug("recorded dotnet project", "location", req.Stream.Location, "sdk", sdk, "frameworks", tfms, "type", projectType)
	return nil
}

// projectDir returns the directory of the restored project. The recorded
// project path is used when it exists on this machine, otherwise the parent
// of the obj directory holding the assets file.
func (d *AssetsDetector) projectDir(req detector.Request, assets projectAssets) string {
	if p := assets.Project.Restore.ProjectPath; p != "" {
		if _, err := os.Stat(p); err == nil {
			return filepath.Dir(p)
		}
		d.logger.Warn("project path does not exist", "location", req.Stream.Location, "project", p)
	}
	return filepath.Dir(filepath.Dir(req.Stream.Path))
}

// sdkVersion walks from dir up to the scan root and returns the SDK version
// of the first global.json that pins one, with that file's scan-relative
// location.
func (d *AssetsDetector) sdkVersion(req detector.Request, dir string) (string, string) {
	abs := filepath.ToSlash(req.Stream.Path)
	root, ok := strings.CutSuffix(abs, req.Stream.Location)
	if !ok {
		return "", ""
	}
	root = filepath.Clean(filepath.FromSlash(root))

	for {
		rel, err := filepath.Rel(root, dir)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", ""
		}
		data, err := os.ReadFile(filepath.Join(dir, globalJSON))
		if err == nil {
			var g globalJSONFile
			if err := json.Unmarshal(data, &g); err != nil {
				d.logger.Warn("ignoring global.json", "path", filepath.Join(dir, globalJSON), "err", err)
			} else if v := strings.TrimSpace(g.SDK.Version); v != "" {
				return v, path.Join(filepath.ToSlash(rel), globalJSON)
			}
		}
		if rel == "." {
			return "", ""
		}
		dir = filepath.Dir(dir)
	}
}

// recordGlobalJSON registers the pinned SDK on the global.json location.
func (d *AssetsDetector) recordGlobalJSON(req detector.Request, location, version string) {
	c, err := component.NewDotNet(version, unknown, unknown)
	if err != nil {
		return
	}
	rec, err := req.Recorder.Parent().CreateSingleFileComponentRecorder(location)
	if err != nil {
		d.logger.Warn("cannot record global.json", "location", location, "err", err)
		return
	}
	rec.RegisterUsage(c, recorder.Explicit(true))
	req.Recorder.AddAdditionalRelatedFile(location)
}

// projectType inspects the compiled output below dir, the obj directory of
// the project: an executable image is an application, a DLL image a library.
func (d *AssetsDetector) projectType(dir, name string) string {
	if dir == "" || name == "" || strings.ContainsAny(name, `/\`) {
		return unknown
	}
	var candidates []string
	for _, ext := range []string{".dll", ".exe"} {
		_ = filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
			if err == nil && !e.IsDir() && e.Name() == name+ext {
				candidates = append(candidates, p)
			}
			return nil
		})
	}
	for _, p := range candidates {
		f, err := pe.Open(p)
		if err != nil {
			d.logger.Warn("cannot read output assembly", "path", p, "err", err)
			continue
		}
		dll := f.FileHeader.Characteristics&pe.IMAGE_FILE_DLL != 0
		f.Close()
		if dll {
			return "library"
		}
		return "application"
	}
	return unknown
}
