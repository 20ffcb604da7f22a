package scan_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/detector/detectors"
	"github.com/matzehuels/depscan/pkg/scan"
)

const cratesIO = "registry+https://github.com/rust-lang/crates.io-index"

// cargoRunner answers cargo metadata per --manifest-path.
type cargoRunner struct {
	outs  map[string]string
	calls []string
}

func (c *cargoRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	manifest := ""
	if i := slices.Index(args, "--manifest-path"); i >= 0 && i+1 < len(args) {
		manifest = args[i+1]
	}
	c.calls = append(c.calls, manifest)
	out, ok := c.outs[manifest]
	if !ok {
		return nil, fmt.Errorf("unexpected cargo run for %s", manifest)
	}
	return []byte(out), nil
}

func localID(dir, name string) string {
	return "path+file://" + filepath.ToSlash(dir) + "#" + name + "@0.1.0"
}

func TestScanCargoWorkspace(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"ws/Cargo.toml":          "[workspace]\nmembers = [\"a\", \"b\"]\n",
		"ws/Cargo.lock":          "version = 3\n",
		"ws/a/Cargo.toml":        "[package]\nname = \"a\"\n",
		"ws/b/Cargo.toml":        "[package]\nname = \"b\"\n",
		"ws/app.cargo-sbom.json": "",
	}
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ws := filepath.Join(root, "ws")
	aID, bID := localID(filepath.Join(ws, "a"), "a"), localID(filepath.Join(ws, "b"), "b")
	xID, yID := cratesIO+"#x@1.0.0", cratesIO+"#y@1.0.0"
	metadata := map[string]any{
		"packages": []map[string]any{
			{"name": "a", "version": "0.1.0", "id": aID, "source": nil, "manifest_path": filepath.Join(ws, "a", "Cargo.toml")},
			{"name": "b", "version": "0.1.0", "id": bID, "source": nil, "manifest_path": filepath.Join(ws, "b", "Cargo.toml")},
			{"name": "x", "version": "1.0.0", "id": xID, "source": cratesIO},
			{"name": "y", "version": "1.0.0", "id": yID, "source": cratesIO},
		},
		"workspace_members": []string{aID, bID},
		"resolve": map[string]any{
			"root": nil,
			"nodes": []map[string]any{
				{"id": aID, "deps": []map[string]any{{"name": "x", "pkg": xID, "dep_kinds": []map[string]any{{"kind": nil}}}}},
				{"id": bID, "deps": []map[string]any{
					{"name": "x", "pkg": xID, "dep_kinds": []map[string]any{{"kind": nil}}},
					{"name": "y", "pkg": yID, "dep_kinds": []map[string]any{{"kind": nil}}},
				}},
				{"id": xID, "deps": []map[string]any{}},
				{"id": yID, "deps": []map[string]any{}},
			},
		},
	}
	out, err := json.Marshal(metadata)
	if err != nil {
		t.Fatal(err)
	}
	sbom := map[string]any{
		"version": 1,
		"root":    0,
		"crates": []map[string]any{
			{"id": bID, "dependencies": []map[string]any{{"index": 1, "kind": "normal"}}},
			{"id": xID, "dependencies": []map[string]any{}},
		},
	}
	sbomData, err := json.Marshal(sbom)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(ws, "app.cargo-sbom.json"), sbomData, 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &cargoRunner{outs: map[string]string{filepath.Join(ws, "Cargo.toml"): string(out)}}
	cfg := config.Default()
	cfg.Cache.Backend = config.CacheNone
	s := &scan.Scanner{
		Registry: detectors.Default(detectors.Options{Runner: runner}),
		Config:   cfg,
	}
	res, err := s.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(res.Failures) != 0 {
		t.Fatalf("Failures = %+v", res.Failures)
	}
	if len(runner.calls) != 1 {
		t.Errorf("cargo ran %d times (%v), want once for the workspace root", len(runner.calls), runner.calls)
	}

	var skipped []string
	for _, f := range res.Skipped {
		skipped = append(skipped, f.Location+" "+f.Detector)
	}
	wantSkipped := []string{"ws/Cargo.lock cargo-lock", "ws/a/Cargo.toml cargo-cli", "ws/b/Cargo.toml cargo-cli"}
	if !slices.Equal(skipped, wantSkipped) {
		t.Errorf("Skipped = %v, want %v", skipped, wantSkipped)
	}

	graphs := res.Recorder.GetDependencyGraphsByLocation()
	tests := []struct {
		location string
		want     []string
	}{
		{"ws/a/Cargo.toml", []string{"x 1.0.0 - Cargo"}},
		{"ws/b/Cargo.toml", []string{"x 1.0.0 - Cargo", "y 1.0.0 - Cargo"}},
	}
	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			g := graphs[tt.location]
			if g == nil {
				t.Fatalf("no graph for %s", tt.location)
			}
			if got := g.GetComponents(); !slices.Equal(got, tt.want) {
				t.Errorf("GetComponents() = %v, want %v", got, tt.want)
			}
			if !g.IsComponentExplicitlyReferenced("x 1.0.0 - Cargo") {
				t.Error("x should be a root")
			}
		})
	}

	// The SBOM crate is owned by both members, so nothing stays on the SBOM.
	if g, ok := graphs["ws/app.cargo-sbom.json"]; ok {
		t.Errorf("SBOM location should be empty, has %v", g.GetComponents())
	}
	if !slices.Contains(res.Detectors, "cargo-sbom") {
		t.Errorf("Detectors = %v, want cargo-sbom to have run", res.Detectors)
	}
	for _, d := range res.Recorder.GetDetectedComponents() {
		if d.ID() != "x 1.0.0 - Cargo" {
			continue
		}
		for _, loc := range []string{"ws/a/Cargo.toml", "ws/b/Cargo.toml"} {
			if !slices.Contains(d.FilePaths, loc) {
				t.Errorf("x FilePaths = %v, want %s", d.FilePaths, loc)
			}
		}
	}
}
