package traverse

import (
	"errors"
	"slices"
	"testing"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/recorder"
)

func TestVisited(t *testing.T) {
	v := NewVisited()
	if !v.Add("a", "b", "true") {
		t.Error("first Add should report new")
	}
	if v.Add("a", "b", "true") {
		t.Error("second Add should report seen")
	}
	if !v.Add("a", "b", "false") {
		t.Error("different context should be new")
	}
	if !v.Add("ab", "", "true") {
		t.Error("parts must not collide after joining")
	}
	if !v.Has("a", "b", "true") || v.Has("x") {
		t.Error("Has reports wrong membership")
	}
}

func TestResolveDependency(t *testing.T) {
	candidates := []PackageRef{
		{Name: "dup", Version: "1.0.0", Source: "registry+a"},
		{Name: "dup", Version: "2.0.0", Source: "registry+a"},
		{Name: "dup", Version: "2.0.0", Source: "registry+b"},
		{Name: "solo", Version: "0.1.0", Source: "registry+a"},
	}

	tests := []struct {
		name    string
		spec    DependencySpec
		want    int
		wantErr error
	}{
		{"NameOnly", DependencySpec{Name: "solo"}, 3, nil},
		{"NameOnlyAmbiguous", DependencySpec{Name: "dup"}, -1, ErrAmbiguousDependency},
		{"NameVersion", DependencySpec{Name: "dup", Version: "1.0.0"}, 0, nil},
		{"NameVersionAmbiguous", DependencySpec{Name: "dup", Version: "2.0.0"}, -1, ErrAmbiguousDependency},
		{"NameVersionSource", DependencySpec{Name: "dup", Version: "2.0.0", Source: "registry+b"}, 2, nil},
		{"VersionMismatch", DependencySpec{Name: "solo", Version: "9.9.9"}, -1, ErrDependencyNotFound},
		{"SourceMismatch", DependencySpec{Name: "solo", Source: "registry+z"}, -1, ErrDependencyNotFound},
		{"Missing", DependencySpec{Name: "nope"}, -1, ErrDependencyNotFound},
		{"Blank", DependencySpec{}, -1, ErrInvalidDependency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDependency(tt.spec, candidates)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveDependency() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDependencySpecString(t *testing.T) {
	tests := []struct {
		spec DependencySpec
		want string
	}{
		{DependencySpec{Name: "a"}, "a"},
		{DependencySpec{Name: "a", Version: "1.0"}, "a 1.0"},
		{DependencySpec{Name: "a", Version: "1.0", Source: "registry+x"}, "a 1.0 (registry+x)"},
	}
	for _, tt := range tests {
		if got := tt.spec.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestBuildOwnership(t *testing.T) {
	locals := map[string]string{
		"app":  "app/Cargo.toml",
		"tool": "tool/Cargo.toml",
	}
	edges := map[string][]string{
		"app":    {"serde", "shared"},
		"tool":   {"shared"},
		"shared": {"libc", "cyc"},
		"cyc":    {"shared"},
		"serde":  {},
	}

	got := BuildOwnership(locals, edges)

	tests := []struct {
		key  string
		want []string
	}{
		{"app", []string{"app/Cargo.toml"}},
		{"tool", []string{"tool/Cargo.toml"}},
		{"serde", []string{"app/Cargo.toml"}},
		{"shared", []string{"app/Cargo.toml", "tool/Cargo.toml"}},
		{"libc", []string{"app/Cargo.toml", "tool/Cargo.toml"}},
		{"cyc", []string{"app/Cargo.toml", "tool/Cargo.toml"}},
		{"unknown", nil},
	}
	for _, tt := range tests {
		if owners := got.Owners(tt.key); !slices.Equal(owners, tt.want) {
			t.Errorf("Owners(%q) = %v, want %v", tt.key, owners, tt.want)
		}
	}
	if m := got.Manifests(); !slices.Equal(m, []string{"app/Cargo.toml", "tool/Cargo.toml"}) {
		t.Errorf("Manifests() = %v", m)
	}
	var nilMap OwnershipMap
	if nilMap.Owners("x") != nil {
		t.Error("nil map should have no owners")
	}
}

func TestAttributorMultipleOwners(t *testing.T) {
	parent := recorder.New()
	fallback, _ := parent.CreateSingleFileComponentRecorder("workspace.cargo-sbom.json")

	p, _ := component.NewCargo("p", "1.0.0", "registry+https://github.com/rust-lang/crates.io-index")
	c, _ := component.NewCargo("c", "1.0.0", "registry+https://github.com/rust-lang/crates.io-index")

	a := &Attributor{
		Parent: parent,
		Owners: OwnershipMap{
			"p": {"o1/Cargo.toml"},
			"c": {"o1/Cargo.toml", "o2/Cargo.toml"},
		},
		Fallback: fallback,
	}
	a.Register("p", p, "", recorder.Explicit(true))
	a.Register("c", c, p.ID())

	o1, _ := parent.CreateSingleFileComponentRecorder("o1/Cargo.toml")
	o2, _ := parent.CreateSingleFileComponentRecorder("o2/Cargo.toml")

	if got := o1.DependencyGraph().GetDependenciesForComponent(p.ID()); !slices.Equal(got, []string{c.ID()}) {
		t.Errorf("o1 deps(p) = %v, want [c]", got)
	}
	if !o2.DependencyGraph().Contains(c.ID()) {
		t.Error("o2 should record c")
	}
	if o2.DependencyGraph().Contains(p.ID()) {
		t.Error("o2 should not record p")
	}
	if o2.DependencyGraph().EdgeCount() != 0 {
		t.Error("o2 must not get a dangling parent edge")
	}
	if !o2.DependencyGraph().IsComponentExplicitlyReferenced(c.ID()) {
		t.Error("c should be a root of o2")
	}
	if o1.DependencyGraph().IsComponentExplicitlyReferenced(c.ID()) {
		t.Error("c should not be a root of o1")
	}
	if fallback.DependencyGraph().HasComponents() {
		t.Error("fallback recorder should be unused")
	}
}

func TestAttributorOwnLocationUsesFallback(t *testing.T) {
	parent := recorder.New()
	staged, err := parent.Stage("Cargo.toml")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	c, _ := component.NewCargo("c", "1.0.0", "registry+https://github.com/rust-lang/crates.io-index")

	a := &Attributor{
		Parent:   parent,
		Owners:   OwnershipMap{"c": {"Cargo.toml", "util/Cargo.toml"}},
		Fallback: staged,
	}
	a.Register("c", c, "", recorder.Explicit(true))

	if !staged.DependencyGraph().Contains(c.ID()) {
		t.Error("own location should be recorded through the fallback")
	}
	if got := parent.Locations(); !slices.Equal(got, []string{"util/Cargo.toml"}) {
		t.Errorf("Locations() = %v, want only util/Cargo.toml before commit", got)
	}
}

func TestOwnershipMerge(t *testing.T) {
	var m OwnershipMap
	m = m.Merge(OwnershipMap{"x": {"b/Cargo.toml"}})
	m = m.Merge(OwnershipMap{"x": {"a/Cargo.toml", "b/Cargo.toml"}, "y": {"c/Cargo.toml"}})
	m = m.Merge(nil)

	if got := m.Owners("x"); !slices.Equal(got, []string{"a/Cargo.toml", "b/Cargo.toml"}) {
		t.Errorf("Owners(x) = %v", got)
	}
	if got := m.Owners("y"); !slices.Equal(got, []string{"c/Cargo.toml"}) {
		t.Errorf("Owners(y) = %v", got)
	}
}

func TestAttributorFallback(t *testing.T) {
	c, _ := component.NewCargo("c", "1.0.0", "")

	tests := []struct {
		name   string
		parent bool
		owners OwnershipMap
	}{
		{"NilMap", true, nil},
		{"MissingEntry", true, OwnershipMap{"other": {"o/Cargo.toml"}}},
		{"EmptyEntry", true, OwnershipMap{"c": {}}},
		{"NilParentRecorder", false, OwnershipMap{"c": {"o/Cargo.toml"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := recorder.New()
			fallback, _ := rec.CreateSingleFileComponentRecorder("fallback")
			a := &Attributor{Owners: tt.owners, Fallback: fallback}
			if tt.parent {
				a.Parent = rec
			}
			a.Register("c", c, "", recorder.Explicit(true))

			if !fallback.DependencyGraph().IsComponentExplicitlyReferenced(c.ID()) {
				t.Error("fallback should record c as explicit")
			}
			if got := rec.Locations(); !slices.Equal(got, []string{"fallback"}) {
				t.Errorf("Locations() = %v, want only fallback", got)
			}
		})
	}
}

func TestCompleteRoots(t *testing.T) {
	r := recorder.New()
	rec, _ := r.CreateSingleFileComponentRecorder("Cargo.lock")
	comp := func(name string) component.Component {
		c, err := component.NewCargo(name, "1.0.0", "registry")
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	root, child := comp("root"), comp("child")
	a, b, c := comp("a"), comp("b"), comp("c")

	rec.RegisterUsage(root, recorder.Explicit(true))
	rec.RegisterUsage(child, recorder.Parent(root.ID()))
	rec.RegisterUsage(b)
	rec.RegisterUsage(a)
	rec.RegisterUsage(b, recorder.Parent(a.ID()))
	rec.RegisterUsage(a, recorder.Parent(b.ID()))
	rec.RegisterUsage(c, recorder.Parent(b.ID()))

	marked := CompleteRoots(rec)
	if !slices.Equal(marked, []string{a.ID()}) {
		t.Errorf("CompleteRoots() = %v, want [%s]", marked, a.ID())
	}
	g := rec.DependencyGraph()
	want := []string{a.ID(), root.ID()}
	if got := g.GetAllExplicitlyReferencedComponents(); !slices.Equal(got, want) {
		t.Errorf("roots = %v, want %v", got, want)
	}

	if again := CompleteRoots(rec); len(again) != 0 {
		t.Errorf("second CompleteRoots() = %v, want none", again)
	}
}
