package dotnet

import (
	"context"
	"debug/pe"
	"encoding/binary"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

func execute(t *testing.T, d detector.Detector, stream detector.Stream, content string) (*recorder.ComponentRecorder, *recorder.SingleFileComponentRecorder, error) {
	t.Helper()
	cr := recorder.New()
	rec, err := cr.CreateSingleFileComponentRecorder(stream.Location)
	if err != nil {
		t.Fatal(err)
	}
	stream.Reader = strings.NewReader(content)
	err = d.Execute(context.Background(), detector.Request{Stream: stream, Recorder: rec})
	return cr, rec, err
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

const packagesLockJSON = `{
  "version": 1,
  "dependencies": {
    "net8.0": {
      "Newtonsoft.Json": {
        "type": "Direct",
        "requested": "[13.0.3, )",
        "resolved": "13.0.3",
        "contentHash": "HrC5BXdl00IP9zeV+0Z848QWPAoCr9P3bDEZguI+gkLcBKAOxix/tLEAAHC+UvDNPv4a2d18lOReHMOagPa+zQ=="
      },
      "Serilog.Sinks.File": {
        "type": "Direct",
        "requested": "[5.0.0, )",
        "resolved": "5.0.0",
        "contentHash": "uwV5hdhWPwUH1szhO8PJpFiahqXmzPzJT/sOijH/kFgUx+cyoDTMM8MHD0adw9+Iem6itoibbUXHYslzXsLEAg==",
        "dependencies": {
          "serilog": "2.10.0",
          "Missing.Package": "1.0.0"
        }
      },
      "Serilog": {
        "type": "Transitive",
        "resolved": "3.1.1",
        "contentHash": "P6G4/4Kt9bT635bhuwdXlJ2SCqqn2nhh4gqFqQueCOr9bK/e7W9ll/IoX1Ter948cV2Z/5+5v8pAfJYUISY03A=="
      },
      "Orphan": {
        "type": "CentralTransitive",
        "requested": "[1.0.0, )",
        "resolved": "1.0.0"
      },
      "Shared": {
        "type": "Project",
        "dependencies": {
          "Serilog": "[3.1.1, )",
          "Other.Project": "[1.0.0, )"
        }
      },
      "Other.Project": {
        "type": "Project"
      }
    },
    "net8.0/linux-x64": {
      "Newtonsoft.Json": {
        "type": "Direct",
        "requested": "[13.0.3, )",
        "resolved": "13.0.3"
      }
    },
    "net48": {
      "Newtonsoft.Json": {
        "type": "Direct",
        "requested": "[13.0.3, )",
        "resolved": "13.0.3"
      }
    }
  }
}`

func TestPackagesLock(t *testing.T) {
	_, rec, err := execute(t, NewPackagesLockDetector(nil), detector.Stream{Location: "src/App/packages.lock.json"}, packagesLockJSON)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	g := rec.DependencyGraph()

	want := []string{
		"Newtonsoft.Json 13.0.3 - NuGet",
		"Orphan 1.0.0 - NuGet",
		"Serilog 3.1.1 - NuGet",
		"Serilog.Sinks.File 5.0.0 - NuGet",
	}
	if got := g.GetComponents(); !slices.Equal(got, want) {
		t.Fatalf("GetComponents() = %v, want %v", got, want)
	}

	tests := []struct {
		id         string
		explicit   bool
		deps       []string
		frameworks []string
	}{
		{"Newtonsoft.Json 13.0.3 - NuGet", true, nil, []string{"net48", "net8.0"}},
		{"Serilog.Sinks.File 5.0.0 - NuGet", true, []string{"Serilog 3.1.1 - NuGet"}, []string{"net8.0"}},
		{"Serilog 3.1.1 - NuGet", true, nil, []string{"net8.0"}},
		{"Orphan 1.0.0 - NuGet", true, nil, []string{"net8.0"}},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := g.IsComponentExplicitlyReferenced(tt.id); got != tt.explicit {
				t.Errorf("IsComponentExplicitlyReferenced() = %v, want %v", got, tt.explicit)
			}
			if got := g.GetDependenciesForComponent(tt.id); !slices.Equal(got, tt.deps) {
				t.Errorf("GetDependenciesForComponent() = %v, want %v", got, tt.deps)
			}
			if got := rec.TargetFrameworks(tt.id); !slices.Equal(got, tt.frameworks) {
				t.Errorf("TargetFrameworks() = %v, want %v", got, tt.frameworks)
			}
		})
	}

	if c, _ := rec.Component("Serilog 3.1.1 - NuGet"); !strings.HasPrefix(c.Hash, "P6G4") {
		t.Errorf("Serilog Hash = %q, want the lockfile content hash", c.Hash)
	}
	if got, want := rec.Failures(), []string{"Missing.Package - 1.0.0"}; !slices.Equal(got, want) {
		t.Errorf("Failures() = %v, want %v", got, want)
	}
}

func TestPackagesLockInvalid(t *testing.T) {
	_, _, err := execute(t, NewPackagesLockDetector(nil), detector.Stream{Location: "packages.lock.json"}, `{"dependencies": [`)
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("Execute() error = %v, want INVALID_MANIFEST", err)
	}
}

func TestPackagesConfig(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		want     []string
		dev      map[string]bool
		tfm      map[string]string
		failures []string
		code     errors.Code
	}{
		{
			name: "packages",
			content: `<?xml version="1.0" encoding="utf-8"?>
<packages>
  <package id="jQuery" version="3.1.1" targetFramework="net46" />
  <package id="NUnit" version="3.13.3.0" targetFramework="NET46" developmentDependency="true" />
  <package id="" version="1.0.0" />
</packages>`,
			want:     []string{"NUnit 3.13.3 - NuGet", "jQuery 3.1.1 - NuGet"},
			dev:      map[string]bool{"NUnit 3.13.3 - NuGet": true, "jQuery 3.1.1 - NuGet": false},
			tfm:      map[string]string{"NUnit 3.13.3 - NuGet": "net46", "jQuery 3.1.1 - NuGet": "net46"},
			failures: []string{" - 1.0.0"},
		},
		{name: "empty", content: "<packages/>"},
		{name: "wrong root", content: "<project/>", code: errors.ErrCodeInvalidManifest},
		{name: "not xml", content: "<packages>", code: errors.ErrCodeInvalidManifest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rec, err := execute(t, NewPackagesConfigDetector(nil), detector.Stream{Location: "web/packages.config"}, tt.content)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("Execute() error = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			g := rec.DependencyGraph()
			if got := g.GetComponents(); !slices.Equal(got, tt.want) {
				t.Fatalf("GetComponents() = %v, want %v", got, tt.want)
			}
			for _, id := range tt.want {
				if !g.IsComponentExplicitlyReferenced(id) {
					t.Errorf("%s should be explicit", id)
				}
				if dev := g.IsDevelopmentDependency(id); dev == nil || *dev != tt.dev[id] {
					t.Errorf("IsDevelopmentDependency(%s) = %v, want %v", id, dev, tt.dev[id])
				}
				if got := rec.TargetFrameworks(id); !slices.Equal(got, []string{tt.tfm[id]}) {
					t.Errorf("TargetFrameworks(%s) = %v, want [%s]", id, got, tt.tfm[id])
				}
			}
			if got := rec.Failures(); !slices.Equal(got, tt.failures) {
				t.Errorf("Failures() = %v, want %v", got, tt.failures)
			}
		})
	}
}

func TestNormalizeVersion(t *testing.T) {
	tests := map[string]string{
		"1.2.3.0":      "1.2.3",
		"1.2.3.4":      "1.2.3.4",
		" 1.2.3 ":      "1.2.3",
		"1.0.0-beta.0": "1.0.0-beta.0",
	}
	for in, want := range tests {
		if got := normalizeVersion(in); got != want {
			t.Errorf("normalizeVersion(%q) = %q, want %q", in, got, want)
		}
	}
}

// peImage returns a minimal COFF header with the given characteristics.
func peImage(characteristics uint16) []byte {
	b := make([]byte, 96)
	binary.LittleEndian.PutUint16(b[0:], pe.IMAGE_FILE_MACHINE_I386)
	binary.LittleEndian.PutUint16(b[18:], characteristics)
	return b
}

const assetsJSON = `{
  "version": 3,
  "targets": {
    "net8.0": {},
    "net8.0/linux-x64": {},
    "net48": {}
  },
  "project": {
    "restore": {
      "projectName": "App",
      "projectPath": "/build/agent/src/App/App.csproj"
    }
  }
}`

func TestAssets(t *testing.T) {
	tests := []struct {
		name       string
		globalJSON string
		assembly   []byte
		sdk        string
		typ        string
	}{
		{"application", `{"sdk": {"version": "8.0.100"}}`, peImage(pe.IMAGE_FILE_EXECUTABLE_IMAGE), "8.0.100", "application"},
		{"library", `{"sdk": {"version": "8.0.100"}}`, peImage(pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_DLL), "8.0.100", "library"},
		{"unreadable assembly", `{"sdk": {"version": "8.0.100"}}`, []byte("not a pe"), "8.0.100", "unknown"},
		{"no sdk pinned", `{"msbuild-sdks": {}}`, nil, "unknown", "unknown"},
		{"malformed global.json", `{`, nil, "unknown", "unknown"},
		{"no global.json", "", nil, "unknown", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			if tt.globalJSON != "" {
				writeFile(t, filepath.Join(root, "global.json"), []byte(tt.globalJSON))
			}
			if tt.assembly != nil {
				writeFile(t, filepath.Join(root, "src", "App", "obj", "Debug", "net8.0", "App.dll"), tt.assembly)
			}
			location := "src/App/obj/project.assets.json"
			stream := detector.Stream{Location: location, Path: filepath.Join(root, filepath.FromSlash(location))}

			cr, rec, err := execute(t, NewAssetsDetector(nil), stream, assetsJSON)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			want := []string{
				tt.sdk + " net48 " + tt.typ + " - DotNet",
				tt.sdk + " net8.0 " + tt.typ + " - DotNet",
			}
			g := rec.DependencyGraph()
			if got := g.GetComponents(); !slices.Equal(got, want) {
				t.Fatalf("GetComponents() = %v, want %v", got, want)
			}
			for _, id := range want {
				if !g.IsComponentExplicitlyReferenced(id) {
					t.Errorf("%s should be explicit", id)
				}
			}

			graphs := cr.GetDependencyGraphsByLocation()
			pinned, ok := graphs["global.json"]
			if tt.sdk == "unknown" {
				if ok && pinned.HasComponents() {
					t.Errorf("global.json has %v, want nothing", pinned.GetComponents())
				}
				return
			}
			if !ok {
				t.Fatal("global.json location not recorded")
			}
			if got, want := pinned.GetComponents(), []string{tt.sdk + " unknown unknown - DotNet"}; !slices.Equal(got, want) {
				t.Errorf("global.json components = %v, want %v", got, want)
			}
			if got := g.AdditionalRelatedFiles(); !slices.Contains(got, "global.json") {
				t.Errorf("AdditionalRelatedFiles() = %v, want global.json", got)
			}
		})
	}
}

func TestAssetsNearestGlobalJSON(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "global.json"), []byte(`{"sdk": {"version": "6.0.400"}}`))
	writeFile(t, filepath.Join(root, "src", "global.json"), []byte(`{"sdk": {"version": "8.0.100"}}`))

	location := "src/App/obj/project.assets.json"
	stream := detector.Stream{Location: location, Path: filepath.Join(root, filepath.FromSlash(location))}
	cr, rec, err := execute(t, NewAssetsDetector(nil), stream, `{"targets": {"net8.0": {}}}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := rec.DependencyGraph().GetComponents(), []string{"8.0.100 net8.0 unknown - DotNet"}; !slices.Equal(got, want) {
		t.Errorf("GetComponents() = %v, want %v", got, want)
	}
	if _, ok := cr.GetDependencyGraphsByLocation()["src/global.json"]; !ok {
		t.Error("src/global.json location not recorded")
	}
}

func TestAssetsWithoutPath(t *testing.T) {
	_, rec, err := execute(t, NewAssetsDetector(nil), detector.Stream{Location: "obj/project.assets.json"}, `{"targets": {}}`)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := rec.DependencyGraph().GetComponents(), []string{"unknown unknown unknown - DotNet"}; !slices.Equal(got, want) {
		t.Errorf("GetComponents() = %v, want %v", got, want)
	}
}
