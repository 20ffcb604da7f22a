package java

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

const logPrefix = "[INFO]"

var (
	splitters = []string{"+- ", `\- `}
	scopeRE   = regexp.MustCompile(`^\w+`)
)

// MavenTreeDetector registers the artifacts of mvn dependency:tree output.
type MavenTreeDetector struct {
	logger *log.Logger
}

// NewMavenTreeDetector creates a dependency:tree detector. A nil logger
// discards output.
func NewMavenTreeDetector(logger *log.Logger) *MavenTreeDetector {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &MavenTreeDetector{logger: logger}
}

func (d *MavenTreeDetector) ID() string { return "maven-tree" }
func (d *MavenTreeDetector) SearchPatterns() []string {
	return []string{"bcde.mvndeps", "*.mvndeps"}
}
func (d *MavenTreeDetector) SupportedTypes() []component.Type {
	return []component.Type{component.TypeMaven}
}

// treeEntry is an open node of the tree being parsed. id is "" for the
// project line and for lines that failed to parse.
type treeEntry struct {
	level int
	id    string
}

// Execute parses every tree in the file. Each unindented line starts a new
// tree.
func (d *MavenTreeDetector) Execute(ctx context.Context, req detector.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	data, err := req.ReadAll(ctx)
	if err != nil {
		return err
	}

	var stack []treeEntry
	trees := 0
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeCanceled, err, "process %s", req.Stream.Location)
		}
		line := trimLogPrefix(sc.Text())
		if strings.TrimSpace(line) == "" {
			continue
		}

		level, coords, ok := splitTreeLine(line)
		if !ok {
			stack = append(stack[:0], treeEntry{level: -1})
			trees++
			continue
		}
		if stack == nil {
			stack = []treeEntry{{level: -1}}
		}
		for len(stack) > 1 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1].id

		id := d.register(coords, parent, req.Recorder)
		stack = append(stack, treeEntry{level: level, id: id})
	}
	if err := sc.Err(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidManifest, err, "read %s", req.Stream.Location)
	}

	d.logger.Debug("parsed dependency tree", "location", req.Stream.Location, "trees", trees)
	return nil
}

// register records the artifact named by coords and returns its id, or ""
// when coords cannot be parsed.
func (d *MavenTreeDetector) register(coords, parent string, rec *recorder.SingleFileComponentRecorder) string {
	c, scope, dev, err := parseCoordinates(coords)
	if err != nil {
		d.logger.Warn("invalid artifact", "coordinates", coords, "location", rec.Location(), "err", err)
		rec.RegisterPackageParseFailure(coords)
		return ""
	}
	rec.RegisterUsage(c,
		recorder.Explicit(parent == ""),
		recorder.Parent(parent),
		recorder.WithScope(scope),
		recorder.DevPtr(dev))
	return c.ID()
}

func trimLogPrefix(line string) string {
	if rest, ok := strings.CutPrefix(line, logPrefix); ok {
		return strings.TrimPrefix(rest, " ")
	}
	return line
}

// splitTreeLine returns the column of the tree marker and the coordinates
// that follow it. ok is false for a line without a marker.
func splitTreeLine(line string) (level int, coords string, ok bool) {
	level = -1
	for _, s := range splitters {
		if i := strings.Index(line, s); i >= 0 && (level < 0 || i < level) {
			level = i
		}
	}
	if level < 0 {
		return 0, "", false
	}
	coords = strings.Trim(line[level+len(splitters[0]):], "| ")
	return level, coords, true
}

// parseCoordinates parses group:artifact:type[:classifier]:version[:scope].
// Trailing annotations such as "(optional)" are ignored. A coordinate
// without a scope leaves the dev flag unstated.
func parseCoordinates(s string) (component.Component, component.Scope, *bool, error) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ":")
	if len(parts) == 6 {
		parts = append(parts[:3], parts[4:]...)
	}
	if len(parts) < 4 || len(parts) > 5 {
		return component.Component{}, "", nil, errors.New(errors.ErrCodeInvalidInput, "want 4 to 6 coordinate parts, got %d", len(parts))
	}

	c, err := component.NewMaven(parts[0], parts[1], parts[3])
	if err != nil {
		return component.Component{}, "", nil, err
	}
	if len(parts) == 4 {
		return c, component.ScopeCompile, nil, nil
	}
	scope := component.ParseScope(scopeRE.FindString(parts[4]))
	dev := scope == component.ScopeTest
	return c, scope, &dev, nil
}
