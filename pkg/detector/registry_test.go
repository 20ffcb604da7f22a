package detector

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

type fakeDetector struct {
	id       string
	patterns []string
	types    []component.Type
}

func (f *fakeDetector) ID() string                             { return f.id }
func (f *fakeDetector) SearchPatterns() []string               { return f.patterns }
func (f *fakeDetector) SupportedTypes() []component.Type       { return f.types }
func (f *fakeDetector) Execute(context.Context, Request) error { return nil }

func newTestRegistry() *Registry {
	return NewRegistry(
		&fakeDetector{id: "cargo-lock", patterns: []string{"Cargo.lock"}, types: []component.Type{component.TypeCargo}},
		&fakeDetector{id: "cargo-sbom", patterns: []string{"*.cargo-sbom.json"}, types: []component.Type{component.TypeCargo}},
		&fakeDetector{id: "pip", patterns: []string{"requirements.txt", "requirements*.txt"}, types: []component.Type{component.TypePip}},
		&fakeDetector{id: "nested", patterns: []string{"**/deps/*.mvndeps"}, types: []component.Type{component.TypeMaven}},
	)
}

func TestRegistryMatch(t *testing.T) {
	r := newTestRegistry()

	tests := []struct {
		path        string
		wantIDs     []string
		wantPattern string
	}{
		{"repo/Cargo.lock", []string{"cargo-lock"}, "Cargo.lock"},
		{"repo/target/app.cargo-sbom.json", []string{"cargo-sbom"}, "*.cargo-sbom.json"},
		{"requirements-dev.txt", []string{"pip"}, "requirements*.txt"},
		{"requirements.txt", []string{"pip"}, "requirements.txt"},
		{"a/b/deps/x.mvndeps", []string{"nested"}, "**/deps/*.mvndeps"},
		{"repo/Cargo.toml", nil, ""},
		{"repo/cargo.lock", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := r.Match(tt.path)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("Match(%q) = %d detectors, want %d", tt.path, len(got), len(tt.wantIDs))
			}
			for i, m := range got {
				if m.Detector.ID() != tt.wantIDs[i] {
					t.Errorf("Match[%d] = %s, want %s", i, m.Detector.ID(), tt.wantIDs[i])
				}
				if m.Pattern != tt.wantPattern {
					t.Errorf("Pattern = %q, want %q", m.Pattern, tt.wantPattern)
				}
			}
		})
	}
}

func TestRegistryRegister(t *testing.T) {
	r := newTestRegistry()

	if err := r.Register(&fakeDetector{id: "pip"}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("duplicate Register error = %v, want INVALID_INPUT", err)
	}
	if err := r.Register(&fakeDetector{id: ""}); err == nil {
		t.Error("empty id should fail")
	}
	if err := r.Register(&fakeDetector{id: "bad", patterns: []string{"[unclosed"}}); err == nil {
		t.Error("invalid pattern should fail")
	}
	if _, ok := r.Lookup("bad"); ok {
		t.Error("failed registration must not be stored")
	}
}

func TestRegistryLookupAndFilter(t *testing.T) {
	r := newTestRegistry()

	if got := strings.Join(r.IDs(), ","); got != "cargo-lock,cargo-sbom,nested,pip" {
		t.Errorf("IDs() = %s", got)
	}
	if d, ok := r.Lookup("cargo-lock"); !ok || d.ID() != "cargo-lock" {
		t.Error("Lookup(cargo-lock) failed")
	}
	if n := len(r.ForType(component.TypeCargo)); n != 2 {
		t.Errorf("ForType(Cargo) = %d, want 2", n)
	}

	f, err := r.Filter([]string{"pip", " cargo-lock "})
	if err != nil {
		t.Fatalf("Filter: %v", err)
	}
	if got := strings.Join(f.IDs(), ","); got != "cargo-lock,pip" {
		t.Errorf("filtered IDs() = %s", got)
	}
	if same, _ := r.Filter(nil); same != r {
		t.Error("empty filter should return the same registry")
	}
	if _, err := r.Filter([]string{"nope"}); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("unknown id error = %v, want NOT_FOUND", err)
	}
}

func TestRequest(t *testing.T) {
	ctx := context.Background()
	req := Request{Stream: Stream{Location: "x", Reader: strings.NewReader("data")}}
	if err := req.Validate(); err == nil {
		t.Error("request without recorder should be invalid")
	}

	rec, _ := recorder.New().CreateSingleFileComponentRecorder("x")
	req.Recorder = rec
	if err := req.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	data, err := req.ReadAll(ctx)
	if err != nil || string(data) != "data" {
		t.Errorf("ReadAll() = %q, %v", data, err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := req.ReadAll(cancelled); !errors.Is(err, errors.ErrCodeCanceled) {
		t.Errorf("ReadAll on cancelled ctx error = %v, want CANCELED", err)
	}
}
