package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/errors"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Setenv(config.EnvWorkers, "")
	t.Setenv(config.EnvRedisURL, "")

	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err = root.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"scan", "detectors", "cache", "completion"} {
		if !slices.Contains(names, want) {
			t.Errorf("missing command %q in %v", want, names)
		}
	}
}

func TestScanCommandJSON(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"api/requirements.txt": "flask==3.0.0\n",
		"go.mod":               "module example.com/app\n\ngo 1.22\n\nrequire golang.org/x/mod v0.24.0\n",
	})

	stdout, stderr, err := execute(t, "scan", dir, "--no-cache")
	if err != nil {
		t.Fatalf("scan: %v\n%s", err, stderr)
	}

	var decoded struct {
		Components []struct {
			ID string `json:"id"`
		} `json:"components"`
		Locations []struct {
			Path string `json:"path"`
		} `json:"locations"`
	}
	if err := json.Unmarshal([]byte(stdout), &decoded); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout)
	}
	var ids []string
	for _, c := range decoded.Components {
		ids = append(ids, c.ID)
	}
	want := []string{"golang.org/x/mod v0.24.0 - Go", "flask 3.0.0 - pip"}
	if !slices.Equal(ids, want) {
		t.Errorf("components = %v, want %v", ids, want)
	}
	if len(decoded.Locations) != 2 {
		t.Errorf("locations = %+v", decoded.Locations)
	}
	if !strings.Contains(stderr, "Scan complete") {
		t.Errorf("summary missing from stderr:\n%s", stderr)
	}
}

func TestScanCommandDOTFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"requirements.txt": "django==4.2.7\n"})
	out := filepath.Join(t.TempDir(), "deps.dot")

	stdout, _, err := execute(t, "scan", dir, "--no-cache", "--quiet", "--format", "dot", "-o", out)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want empty when writing to a file", stdout)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"0:django 4.2.7 - pip"`) {
		t.Errorf("DOT output:\n%s", data)
	}
}

func TestScanCommandConfigAndFlags(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a/requirements.txt": "flask==3.0.0\n",
		"b/requirements.txt": "celery==5.3.0\n",
		"c/requirements.txt": "django==4.2.7\n",
	})
	cfgPath := filepath.Join(t.TempDir(), "depscan.yaml")
	if err := os.WriteFile(cfgPath, []byte("exclude: [\"a/**\"]\ncache:\n  backend: none\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := execute(t, "scan", dir, "--quiet", "--config", cfgPath, "--exclude", "b/**", "--workers", "1")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if strings.Contains(stdout, "flask") || strings.Contains(stdout, "celery") {
		t.Errorf("excluded components in report:\n%s", stdout)
	}
	if !strings.Contains(stdout, "django 4.2.7 - pip") {
		t.Errorf("django missing from report:\n%s", stdout)
	}
}

func TestScanCommandMetricsFile(t *testing.T) {
	dir := writeFiles(t, map[string]string{"requirements.txt": "flask==3.0.0\n"})
	metrics := filepath.Join(t.TempDir(), "depscan.prom")

	if _, _, err := execute(t, "scan", dir, "--no-cache", "--quiet", "--metrics-file", metrics); err != nil {
		t.Fatalf("scan: %v", err)
	}
	data, err := os.ReadFile(metrics)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"depscan_scans_total 1",
		`depscan_files_total{detector="pip-requirements",outcome="ok"} 1`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics missing %q:\n%s", want, data)
		}
	}
}

func TestScanCommandErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"bad format", []string{"scan", dir, "--format", "pdf"}, errors.ErrCodeInvalidInput},
		{"missing dir", []string{"scan", filepath.Join(dir, "nope"), "--no-cache"}, errors.ErrCodeInvalidPath},
		{"unknown detector", []string{"scan", dir, "--no-cache", "--detectors", "nope"}, errors.ErrCodeNotFound},
		{"bad workers", []string{"scan", dir, "--no-cache", "--workers", "0"}, errors.ErrCodeInvalidConfig},
		{"missing config", []string{"scan", dir, "--config", filepath.Join(dir, "none.yaml")}, errors.ErrCodeFileNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := execute(t, tt.args...); !errors.Is(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestScanOptionsApply(t *testing.T) {
	opts := &scanOptions{rootOptions: &rootOptions{}}
	cmd := &cobra.Command{}
	cmd.Flags().StringSliceVar(&opts.detectors, "detectors", nil, "")
	cmd.Flags().StringSliceVar(&opts.exclude, "exclude", nil, "")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "")
	if err := cmd.Flags().Parse([]string{"--detectors", "gomod,npm-lock", "--exclude", "vendor"}); err != nil {
		t.Fatal(err)
	}
	opts.redisURL = "redis://localhost:6379/0"

	cfg := config.Default()
	cfg.Exclude = []string{"dist"}
	workers := cfg.Workers
	opts.apply(cmd, &cfg)

	if !slices.Equal(cfg.Detectors, []string{"gomod", "npm-lock"}) {
		t.Errorf("Detectors = %v", cfg.Detectors)
	}
	if !slices.Equal(cfg.Exclude, []string{"dist", "vendor"}) {
		t.Errorf("Exclude = %v", cfg.Exclude)
	}
	if cfg.Workers != workers {
		t.Errorf("Workers = %d, want unchanged %d", cfg.Workers, workers)
	}
	if cfg.Cache.Backend != config.CacheRedis || cfg.Cache.RedisURL != opts.redisURL {
		t.Errorf("Cache = %+v", cfg.Cache)
	}

	opts.noCache = true
	opts.apply(cmd, &cfg)
	if cfg.Cache.Backend != config.CacheNone {
		t.Errorf("--no-cache backend = %q", cfg.Cache.Backend)
	}
}

func TestDetectorsCommand(t *testing.T) {
	stdout, _, err := execute(t, "detectors")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"cargo-lock", "poetry-lock", "poetry.lock", "maven-tree", "*.mvndeps"} {
		if !strings.Contains(stdout, want) {
			t.Errorf("detectors output missing %q:\n%s", want, stdout)
		}
	}
}

func TestCompletionCommand(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"completion", "bash"}, "__start_depscan"},
		{[]string{"completion", "zsh"}, "#compdef depscan"},
		{[]string{"completion", "fish", "--no-descriptions"}, "complete -c depscan"},
		{[]string{"completion", "powershell"}, "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.args[1], func(t *testing.T) {
			stdout, _, err := execute(t, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(stdout, tt.want) {
				t.Errorf("%s completion should contain %q", tt.args[1], tt.want)
			}
		})
	}

	if _, _, err := execute(t, "completion", "tcsh"); err == nil {
		t.Error("unknown shell should be rejected")
	}
}

func TestCompletionOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "completions", "_depscan")
	stdout, _, err := execute(t, "completion", "zsh", "--output", path)
	if err != nil {
		t.Fatal(err)
	}
	if stdout != "" {
		t.Errorf("stdout = %q, want nothing when writing to a file", stdout)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "#compdef depscan") {
		t.Error("written script is not a zsh completion")
	}
}

func TestCompletionHelpListsShells(t *testing.T) {
	help := completionHelp()
	for _, s := range completionShells {
		if !strings.Contains(help, "depscan completion "+s.name+" --output") {
			t.Errorf("help does not show how to install %s completions", s.name)
		}
	}
}
