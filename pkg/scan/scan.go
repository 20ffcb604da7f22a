// Package scan walks a source tree and runs the matching detectors on every
// manifest it finds.
//
// Detectors that implement [detector.Preparer] first see the full file list.
// Files are then processed concurrently, bounded by [config.Config.Workers].
// Each detector run writes into a staged recorder that is committed only when
// the run succeeds, so a detector error or panic only drops what that run
// recorded; the rest of the scan proceeds. The aggregate
// [recorder.ComponentRecorder] in the [Result] holds every graph that
// completed.
//
//	s := &scan.Scanner{Registry: detectors.Default(detectors.Options{}), Config: config.Default()}
//	res, err := s.Scan(ctx, "./repo")
//	for _, c := range res.Recorder.GetDetectedComponents() {
//	    fmt.Println(c.ID(), c.FilePaths)
//	}
package scan

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime/debug"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/detector"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/recorder"
)

// DefaultSkipDirs are directory names never descended into.
var DefaultSkipDirs = []string{".git", ".hg", ".svn", "node_modules", "target"}

// Scanner runs detectors over a directory tree.
type Scanner struct {
	Registry *detector.Registry
	Config   config.Config
	Logger   *log.Logger
	// Hooks receives scan events. Nil uses the globally registered hooks.
	Hooks observability.ScanHooks
}

// Failure is a file a detector could not process.
type Failure struct {
	Location string      `json:"location"`
	Detector string      `json:"detector"`
	Code     errors.Code `json:"code"`
	Message  string      `json:"message"`
}

// Result is the outcome of a scan.
type Result struct {
	ScanID    string
	Root      string
	Recorder  *recorder.ComponentRecorder
	Detectors []string  // Ids of the detectors that processed at least one file
	Files     int       // Manifest files matched
	Skipped   []Failure // Files a detector declined (UNSUPPORTED)
	Failures  []Failure
	Duration  time.Duration
}

// job is one matched file and the detectors to run on it.
type job struct {
	path     string
	location string
	matches  []detector.Match
}

// Scan walks root and processes every file a detector matches. It returns an
// error only when the scan as a whole cannot run: the root is not a
// directory, the configuration is invalid, or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (*Result, error) {
	start := time.Now()
	logger := s.logger()
	hooks := s.hooks()

	if err := s.Config.Validate(); err != nil {
		return nil, err
	}
	if s.Registry == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "scanner has no detector registry")
	}
	reg, err := s.Registry.Filter(s.Config.Detectors)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "resolve %s", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "scan root %s", root)
	}
	if !info.IsDir() {
		return nil, errors.New(errors.ErrCodeInvalidPath, "scan root %s is not a directory", root)
	}

	res := &Result{
		ScanID:   uuid.NewString(),
		Root:     abs,
		Recorder: recorder.New(recorder.WithLogger(logger)),
	}
	hooks.OnScanStart(ctx, abs)
	logger.Debug("scan started", "id", res.ScanID, "root", abs, "workers", s.Config.Workers, "detectors", reg.IDs())

	jobs, err := s.collect(ctx, abs, reg, logger)
	if err == nil {
		res.Files = len(jobs)
		err = s.prepare(ctx, jobs, reg, logger)
	}
	if err == nil {
		err = s.run(ctx, jobs, res, hooks, logger)
	}
	res.Duration = time.Since(start)
	hooks.OnScanComplete(ctx, abs, res.Files, res.Duration, err)
	if err != nil {
		return res, err
	}

	logger.Debug("scan finished", "id", res.ScanID, "files", res.Files, "failures", len(res.Failures), "duration", res.Duration)
	return res, nil
}

// collect walks root and returns the matched files in walk order.
func (s *Scanner) collect(ctx context.Context, root string, reg *detector.Registry, logger *log.Logger) ([]job, error) {
	var jobs []job
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			logger.Warn("skipping unreadable path", "path", p, "err", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (slices.Contains(DefaultSkipDirs, d.Name()) || s.excluded(rel)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || s.excluded(rel) {
			return nil
		}
		if matches := reg.Match(rel); len(matches) > 0 {
			jobs = append(jobs, job{path: p, location: rel, matches: matches})
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeCanceled, ctx.Err(), "walk %s", root)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidPath, err, "walk %s", root)
	}
	return jobs, nil
}

func (s *Scanner) excluded(rel string) bool {
	for _, pattern := range s.Config.Exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// prepare hands every matched file to the detectors that implement
// [detector.Preparer]. A failed preparation is logged and the scan goes on;
// the detector then works file by file.
func (s *Scanner) prepare(ctx context.Context, jobs []job, reg *detector.Registry, logger *log.Logger) error {
	files := make([]detector.File, len(jobs))
	for i, j := range jobs {
		files[i] = detector.File{Location: j.location, Path: j.path}
	}
	for _, d := range reg.All() {
		p, ok := d.(detector.Preparer)
		if !ok {
			continue
		}
		err := p.Prepare(ctx, files)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return errors.Wrap(errors.ErrCodeCanceled, ctx.Err(), "prepare %s", d.ID())
		default:
			logger.Warn("detector preparation failed", "detector", d.ID(), "err", err)
		}
	}
	return nil
}

// run processes jobs with at most Config.Workers files in flight. Per-file
// errors are collected into res; only cancellation stops the scan.
func (s *Scanner) run(ctx context.Context, jobs []job, res *Result, hooks observability.ScanHooks, logger *log.Logger) error {
	var (
		mu   sync.Mutex
		used = make(map[string]struct{})
	)
	report := func(f Failure, skipped bool) {
		mu.Lock()
		defer mu.Unlock()
		if skipped {
			res.Skipped = append(res.Skipped, f)
		} else {
			res.Failures = append(res.Failures, f)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Config.Workers)
	for _, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			for _, m := range j.matches {
				if err := gctx.Err(); err != nil {
					return err
				}
				err := s.process(gctx, j, m, res.Recorder, hooks, logger)
				id := m.Detector.ID()
				switch {
				case err == nil:
					mu.Lock()
					used[id] = struct{}{}
					mu.Unlock()
				case errors.Is(err, errors.ErrCodeCanceled) && gctx.Err() != nil:
					return gctx.Err()
				case errors.Is(err, errors.ErrCodeUnsupported):
					logger.Debug("detector skipped file", "detector", id, "location", j.location, "reason", errors.UserMessage(err))
					report(newFailure(j.location, id, err), true)
				default:
					logger.Warn("detector failed", "detector", id, "location", j.location, "err", err)
					mu.Lock()
					used[id] = struct{}{}
					mu.Unlock()
					report(newFailure(j.location, id, err), false)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return errors.Wrap(errors.ErrCodeCanceled, err, "scan %s", res.Root)
	}

	res.Detectors = make([]string, 0, len(used))
	for id := range used {
		res.Detectors = append(res.Detectors, id)
	}
	slices.Sort(res.Detectors)
	sortFailures(res.Skipped)
	sortFailures(res.Failures)
	return nil
}

// process runs one detector on one file against a staged recorder. The
// staged graph is committed when the detector succeeds or declines the file
// and dropped otherwise. A panic in the detector is returned as an
// INTERNAL_ERROR.
func (s *Scanner) process(ctx context.Context, j job, m detector.Match, cr *recorder.ComponentRecorder, hooks observability.ScanHooks, logger *log.Logger) (err error) {
	id := m.Detector.ID()
	start := time.Now()
	hooks.OnFileStart(ctx, id, j.location)

	components := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error("detector panicked", "detector", id, "location", j.location, "panic", r, "stack", string(debug.Stack()))
			err = errors.New(errors.ErrCodeInternal, "detector %s panicked on %s: %v", id, j.location, r)
		}
		hooks.OnFileComplete(ctx, id, j.location, components, time.Since(start), err)
	}()

	rec, err := cr.Stage(j.location)
	if err != nil {
		return err
	}
	f, err := os.Open(j.path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", j.location)
	}
	defer f.Close()

	err = m.Detector.Execute(ctx, detector.Request{
		Stream: detector.Stream{
			Location: j.location,
			Path:     j.path,
			Pattern:  m.Pattern,
			Reader:   f,
		},
		Recorder: rec,
	})
	components = rec.DependencyGraph().Len()
	if err == nil || errors.Is(err, errors.ErrCodeUnsupported) {
		cr.Commit(rec)
	}
	if err == nil {
		logger.Debug("processed file", "detector", id, "location", j.location, "components", components, "failures", len(rec.Failures()))
	}
	return err
}

func newFailure(location, detectorID string, err error) Failure {
	return Failure{
		Location: location,
		Detector: detectorID,
		Code:     errors.GetCode(err),
		Message:  err.Error(),
	}
}

func sortFailures(list []Failure) {
	slices.SortFunc(list, func(a, b Failure) int {
		if c := strings.Compare(a.Location, b.Location); c != 0 {
			return c
		}
		return strings.Compare(a.Detector, b.Detector)
	})
}

func (s *Scanner) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.NewWithOptions(io.Discard, log.Options{})
}

func (s *Scanner) hooks() observability.ScanHooks {
	if s.Hooks != nil {
		return s.Hooks
	}
	return observability.Scan()
}

// String summarizes the result for logs.
func (r *Result) String() string {
	return fmt.Sprintf("scan %s: %d files, %d locations, %d failures in %s",
		r.ScanID, r.Files, len(r.Recorder.Locations()), len(r.Failures), r.Duration.Round(time.Millisecond))
}
