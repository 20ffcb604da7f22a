package python

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/depscan/pkg/component"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/recorder"
)

var (
	depNameRE = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)`)
	pinnedRE  = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)\s*(?:\[[^\]]*\])?\s*===?\s*([^\s;,#]+)\s*(?:;.*)?$`)
	separator = regexp.MustCompile(`[-_.]+`)
)

// normalize returns the PEP 503 form of a package name.
func normalize(name string) string {
	return separator.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// RequirementsDetector registers the pinned packages of requirements files.
type RequirementsDetector struct {
	logger *log.Logger
}

// NewRequirementsDetector creates a requirements.txt detector. A nil logger
// discards output.
func NewRequirementsDetector(logger *log.Logger) *RequirementsDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &RequirementsDetector{logger: logger}
}

func (d *RequirementsDetector) ID() string               { return "pip-requirements" }
func (d *RequirementsDetector) SearchPatterns() []string { return []string{"requirements*.txt"} }
func (d *RequirementsDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypePip}
}

// Execute registers every pinned requirement as an explicit root.
func (d *RequirementsDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	lines, err := requirementLines(data)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", req.Stream.Location)
	}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		d.register(line, req.Recorder)
	}
	return nil
}

func (d *RequirementsDetector) register(line string, rec *recorder.SingleFileComponentRecorder) {
	m := pinnedRE.FindStringSubmatch(line)
	if m == nil {
		if name := depNameRE.FindString(line); name != "" {
			d.logger.Debug("skipping unpinned requirement", "requirement", name, "location", rec.Location())
		}
		return
	}
	c, err := component.NewPip(normalize(m[1]), m[2])
	if err != nil {
		d.logger.Warn("invalid requirement", "requirement", line, "err", err)
		rec.RegisterPackageParseFailure(line)
		return
	}
	rec.RegisterUsage(c, recorder.Explicit(true))
}

// requirementLines returns the requirement lines of a file with comments,
// continuations and per-requirement options removed. Option lines,
// URLs and VCS references are dropped.
func requirementLines(data []byte) ([]string, error) {
	var (
		lines   []string
		pending strings.Builder
	)
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := sc.Text()
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			line = ""
		}
		if cont, ok := strings.CutSuffix(strings.TrimRight(line, " \t"), `\`); ok {
			pending.WriteString(cont)
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		full := strings.TrimSpace(pending.String())
		pending.Reset()

		if full == "" || full[0] == '-' {
			continue
		}
		if strings.Contains(full, "://") || strings.HasPrefix(full, "git+") {
			continue
		}
		if i := strings.Index(full, " --"); i >= 0 {
			full = strings.TrimSpace(full[:i])
		}
		lines = append(lines, full)
	}
	if rest := strings.TrimSpace(pending.String()); rest != "" && rest[0] != '-' {
		lines = append(lines, rest)
	}
	return lines, sc.Err()
}
