package java

import (
	"context"
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

const mvnTree = `com.example:app:jar:1.0.0
+- org.slf4j:slf4j-api:jar:1.7.36:compile
+- com.google.guava:guava:jar:32.1.2-jre:compile
|  +- com.google.guava:failureaccess:jar:1.0.1:compile
|  \- com.google.code.findbugs:jsr305:jar:3.0.2:compile (optional)
+- io.netty:netty-transport-native-epoll:jar:linux-x86_64:4.1.100.Final:runtime
\- junit:junit:jar:4.13.2:test
   \- org.hamcrest:hamcrest-core:jar:1.3:test

com.example:lib:jar:1.0.0
\- org.slf4j:slf4j-api:jar:1.7.36
`

const (
	slf4j     = "org.slf4j slf4j-api 1.7.36 - Maven"
	guava     = "com.google.guava guava 32.1.2-jre - Maven"
	access    = "com.google.guava failureaccess 1.0.1 - Maven"
	jsr305    = "com.google.code.findbugs jsr305 3.0.2 - Maven"
	epoll     = "io.netty netty-transport-native-epoll 4.1.100.Final - Maven"
	junit     = "junit junit 4.13.2 - Maven"
	hamcrest  = "org.hamcrest hamcrest-core 1.3 - Maven"
	jackson   = "com.fasterxml.jackson.core jackson-databind 2.15.2 - Maven"
	commonsIO = "commons-io commons-io 2.13.0 - Maven"
)

func execute(t *testing.T, d detector.Detector, location, content string) (*recorder.ComponentRecorder, *recorder.SingleFileComponentRecorder, error) {
	t.Helper()
	cr := recorder.New()
	rec, err := cr.CreateSingleFileComponentRecorder(location)
	if err != nil {
		t.Fatal(err)
	}
	err = d.Execute(context.Background(), detector.Request{
		Stream:   detector.Stream{Location: location, Reader: strings.NewReader(content)},
		Recorder: rec,
	})
	return cr, rec, err
}

func TestMavenTree(t *testing.T) {
	cr, rec, err := execute(t, NewMavenTreeDetector(nil), "bcde.mvndeps", mvnTree)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	g := rec.DependencyGraph()

	tests := []struct {
		id       string
		explicit bool
		deps     []string
	}{
		{slf4j, true, nil},
		{guava, true, []string{jsr305, access}},
		{access, false, nil},
		{jsr305, false, nil},
		{epoll, true, nil},
		{junit, true, []string{hamcrest}},
		{hamcrest, false, nil},
	}
	for _, tt := range tests {
		if !g.Contains(tt.id) {
			t.Errorf("%s not registered", tt.id)
			continue
		}
		if got := g.IsComponentExplicitlyReferenced(tt.id); got != tt.explicit {
			t.Errorf("explicit(%s) = %v, want %v", tt.id, got, tt.explicit)
		}
		if got := g.GetDependenciesForComponent(tt.id); !slices.Equal(got, tt.deps) {
			t.Errorf("deps(%s) = %v, want %v", tt.id, got, tt.deps)
		}
	}
	if n := len(g.GetComponents()); n != len(tests) {
		t.Errorf("GetComponents() has %d entries, want %d", n, len(tests))
	}

	if dev := cr.GetEffectiveDevDependencyValue(hamcrest); dev == nil || !*dev {
		t.Errorf("hamcrest dev = %v, want true", dev)
	}
	if dev := cr.GetEffectiveDevDependencyValue(guava); dev == nil || *dev {
		t.Errorf("guava dev = %v, want false", dev)
	}
	if got := g.GetDependencyScope(epoll); got != component.ScopeRuntime {
		t.Errorf("epoll scope = %q, want runtime", got)
	}
	if got := g.GetDependencyScope(slf4j); got != component.ScopeCompile {
		t.Errorf("slf4j scope = %q, want compile", got)
	}
}

func TestMavenTreeLogPrefix(t *testing.T) {
	const tree = `[INFO] com.example:app:jar:1.0.0
[INFO] \- junit:junit:jar:4.13.2:test
[INFO]    \- org.hamcrest:hamcrest-core:jar:1.3:test
[INFO]
`
	_, rec, err := execute(t, NewMavenTreeDetector(nil), "deps.mvndeps", tree)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	g := rec.DependencyGraph()
	if got := g.GetDependenciesForComponent(junit); !slices.Equal(got, []string{hamcrest}) {
		t.Errorf("deps(junit) = %v, want [%s]", got, hamcrest)
	}
	if !g.IsComponentExplicitlyReferenced(junit) {
		t.Error("junit should be explicit")
	}
}

func TestMavenTreeBadLine(t *testing.T) {
	const tree = `com.example:app:jar:1.0.0
+- not-a-coordinate
|  \- junit:junit:jar:4.13.2:test
\- org.slf4j:slf4j-api:jar:1.7.36:compile
`
	_, rec, err := execute(t, NewMavenTreeDetector(nil), "bcde.mvndeps", tree)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := rec.Failures(); !slices.Equal(got, []string{"not-a-coordinate"}) {
		t.Errorf("Failures() = %v", got)
	}
	g := rec.DependencyGraph()
	for _, id := range []string{junit, slf4j} {
		if !g.IsComponentExplicitlyReferenced(id) {
			t.Errorf("%s should be explicit", id)
		}
	}
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		in      string
		id      string
		scope   component.Scope
		dev     string
		wantErr bool
	}{
		{"a:b:jar:1.0", "a b 1.0 - Maven", component.ScopeCompile, "nil", false},
		{"a:b:jar:1.0:test", "a b 1.0 - Maven", component.ScopeTest, "true", false},
		{"a:b:jar:tests:1.0:provided", "a b 1.0 - Maven", component.ScopeProvided, "false", false},
		{"a:b:jar:1.0:compile (optional)", "a b 1.0 - Maven", component.ScopeCompile, "false", false},
		{"a:b:1.0", "", "", "", true},
		{"a:b:c:d:e:f:g", "", "", "", true},
		{"a::jar:1.0", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, scope, dev, err := parseCoordinates(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if c.ID() != tt.id {
				t.Errorf("ID() = %q, want %q", c.ID(), tt.id)
			}
			if scope != tt.scope {
				t.Errorf("scope = %q, want %q", scope, tt.scope)
			}
			got := "nil"
			if dev != nil {
				got = map[bool]string{true: "true", false: "false"}[*dev]
			}
			if got != tt.dev {
				t.Errorf("dev = %s, want %s", got, tt.dev)
			}
		})
	}
}

const pomXML = `<?xml version="1.0" encoding="UTF-8"?>
<project>
  <parent>
    <groupId>com.example</groupId>
    <artifactId>parent</artifactId>
    <version>2.0.0</version>
  </parent>
  <artifactId>app</artifactId>
  <properties>
    <jackson.version>2.15.2</jackson.version>
    <jackson.group>com.fasterxml.jackson.core</jackson.group>
  </properties>
  <dependencyManagement>
    <dependencies>
      <dependency>
        <groupId>commons-io</groupId>
        <artifactId>commons-io</artifactId>
        <version>2.13.0</version>
      </dependency>
    </dependencies>
  </dependencyManagement>
  <dependencies>
    <dependency>
      <groupId>${jackson.group}</groupId>
      <artifactId>jackson-databind</artifactId>
      <version>${jackson.version}</version>
    </dependency>
    <dependency>
      <groupId>commons-io</groupId>
      <artifactId>commons-io</artifactId>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
      <version>4.13.2</version>
      <scope>test</scope>
    </dependency>
    <dependency>
      <groupId>com.example</groupId>
      <artifactId>sibling</artifactId>
      <version>${project.version}</version>
    </dependency>
    <dependency>
      <groupId>org.unknown</groupId>
      <artifactId>missing</artifactId>
      <version>${missing.version}</version>
    </dependency>
  </dependencies>
</project>`

func TestMavenPom(t *testing.T) {
	cr, rec, err := execute(t, NewMavenPomDetector(nil), "pom.xml", pomXML)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	g := rec.DependencyGraph()

	want := []string{
		commonsIO,
		"com.example sibling 2.0.0 - Maven",
		jackson,
		junit,
	}
	got := g.GetComponents()
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Fatalf("GetComponents() = %v, want %v", got, want)
	}
	for _, id := range want {
		if !g.IsComponentExplicitlyReferenced(id) {
			t.Errorf("%s should be explicit", id)
		}
	}
	if dev := cr.GetEffectiveDevDependencyValue(junit); dev == nil || !*dev {
		t.Errorf("junit dev = %v, want true", dev)
	}
	if got := g.GetDependencyScope(junit); got != component.ScopeTest {
		t.Errorf("junit scope = %q, want test", got)
	}
	if got := rec.Failures(); !slices.Equal(got, []string{"org.unknown:missing"}) {
		t.Errorf("Failures() = %v", got)
	}
}

func TestMavenPomInvalid(t *testing.T) {
	_, _, err := execute(t, NewMavenPomDetector(nil), "pom.xml", "<project><dependencies>")
	if !errors.Is(err, errors.ErrCodeInvalidManifest) {
		t.Errorf("err = %v, want %s", err, errors.ErrCodeInvalidManifest)
	}
}

func TestExpand(t *testing.T) {
	props := map[string]string{
		"a":    "1",
		"b":    "${a}.2",
		"self": "${self}",
	}
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"${a}", "1"},
		{"${b}", "1.2"},
		{"v${a}-${b}", "v1-1.2"},
		{"${unknown}", "${unknown}"},
		{"${self}", "${self}"},
		{"${open", "${open"},
	}
	for _, tt := range tests {
		if got := expand(tt.in, props); got != tt.want {
			t.Errorf("expand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
