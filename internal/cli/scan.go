package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/cache"
	"github.com/matzehuels/depscan/pkg/config"
	"github.com/matzehuels/depscan/pkg/detector/detectors"
	"github.com/matzehuels/depscan/pkg/errors"
	"github.com/matzehuels/depscan/pkg/observability"
	"github.com/matzehuels/depscan/pkg/report"
	"github.com/matzehuels/depscan/pkg/scan"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatDOT  = "dot"
	formatSVG  = "svg"
)

// redisKeyPrefix namespaces depscan entries in a shared Redis database.
const redisKeyPrefix = "depscan:"

type scanOptions struct {
	*rootOptions
	output      string
	format      string
	detectors   []string
	exclude     []string
	workers     int
	noCache     bool
	redisURL    string
	metricsFile string
	quiet       bool
	tree        bool
	browse      bool
}

func newScanCmd(root *rootOptions) *cobra.Command {
	opts := &scanOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "scan [dir]",
		Short: "Detect components and dependency graphs in a source tree",
		Long: `Walk dir (default ".") and run every detector whose patterns match a file.

The report lists each component once with every manifest that references it,
plus the dependency graph of each manifest. Files a detector cannot parse are
reported as failures and do not stop the scan.`,
		Example: `  depscan scan .
  depscan scan ./repo --format dot -o deps.dot
  depscan scan ./repo --detectors cargo-lock,npm-lock --exclude "**/testdata/**"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) == 1 {
				dir = args[0]
			}
			return runScan(cmd, opts, dir)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")
	f.StringVarP(&opts.format, "format", "f", formatJSON, "report format: json, dot or svg")
	f.StringSliceVar(&opts.detectors, "detectors", nil, "run only these detector ids (comma-separated)")
	f.StringSliceVar(&opts.exclude, "exclude", nil, "skip paths matching these globs (repeatable)")
	f.IntVarP(&opts.workers, "workers", "w", 0, "files processed in parallel (default: number of CPUs)")
	f.BoolVar(&opts.noCache, "no-cache", false, "do not cache cargo metadata output")
	f.StringVar(&opts.redisURL, "redis-url", "", "cache cargo metadata output in Redis")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics for this scan to a textfile")
	f.BoolVarP(&opts.quiet, "quiet", "q", false, "do not print the summary")
	f.BoolVar(&opts.tree, "tree", false, "print the dependency tree of every location")
	f.BoolVar(&opts.browse, "browse", false, "pick a location interactively and print its dependency tree")

	_ = cmd.RegisterFlagCompletionFunc("format", cobra.FixedCompletions(
		[]string{formatJSON, formatDOT, formatSVG}, cobra.ShellCompDirectiveNoFileComp))
	_ = cmd.RegisterFlagCompletionFunc("detectors", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return detectors.Default(detectors.Options{}).IDs(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runScan(cmd *cobra.Command, opts *scanOptions, dir string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	stderr := cmd.ErrOrStderr()

	switch opts.format {
	case formatJSON, formatDOT, formatSVG:
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unknown format %q (want json, dot or svg)", opts.format)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cmd, &cfg)

	c, err := openCache(ctx, cfg.Cache)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.metricsFile != "" {
		reg := prometheus.NewRegistry()
		m := observability.NewMetrics(reg)
		observability.SetScanHooks(m)
		observability.SetCacheHooks(m)
		defer observability.Reset()
		defer func() {
			if err := prometheus.WriteToTextfile(opts.metricsFile, reg); err != nil {
				logger.Warn("failed to write metrics", "path", opts.metricsFile, "err", err)
			}
		}()
	}

	keyer := cache.NewDefaultKeyer()
	if cfg.Cache.Backend == config.CacheRedis {
		keyer = cache.NewScopedKeyer(keyer, redisKeyPrefix)
	}

	s := &scan.Scanner{
		Registry: detectors.Default(detectors.Options{
			Logger:         logger,
			Cache:          c,
			Keyer:          keyer,
			CacheTTL:       cfg.Cache.TTL,
			DisableRustCLI: cfg.DisableRustCLI,
		}),
		Config: cfg,
		Logger: logger,
	}

	prog := newProgress(logger)
	var spinner *Spinner
	if !verbose(logger) && !opts.quiet {
		spinner = newSpinnerWithContext(ctx, stderr, "Scanning…")
		s.Hooks = &spinnerHooks{next: observability.Scan(), spinner: spinner}
		spinner.Start()
	}
	res, err := s.Scan(ctx, dir)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}
	prog.done(fmt.Sprintf("Scanned %d files", res.Files))

	r := report.Build(res)
	if err := writeReport(ctx, cmd.OutOrStdout(), r, opts.format, opts.output); err != nil {
		return err
	}

	if !opts.quiet {
		printSummary(stderr, r)
		if opts.output != "" {
			printFile(stderr, opts.output)
		}
	}
	if opts.tree {
		for _, loc := range r.Locations {
			if g, ok := r.Graph(loc.Path); ok {
				fmt.Fprintln(stderr, renderTree(g, loc.Path))
			}
		}
	}
	if opts.browse {
		out, err := browse(r, tea.WithContext(ctx), tea.WithOutput(stderr))
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintln(stderr, out)
		}
	}
	return nil
}

// apply copies the flags the user set over cfg.
func (o *scanOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("detectors") {
		cfg.Detectors = o.detectors
	}
	if f.Changed("exclude") {
		cfg.Exclude = append(cfg.Exclude, o.exclude...)
	}
	if f.Changed("workers") {
		cfg.Workers = o.workers
	}
	if o.redisURL != "" {
		cfg.Cache.Backend = config.CacheRedis
		cfg.Cache.RedisURL = o.redisURL
	}
	if o.noCache {
		cfg.Cache.Backend = config.CacheNone
	}
}

// openCache opens the configured cache backend. An unavailable file cache
// directory falls back to no caching.
func openCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	switch cfg.Backend {
	case config.CacheNone:
		return cache.NewNullCache(), nil
	case config.CacheRedis:
		c, err := cache.NewRedisCache(ctx, cfg.RedisURL)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "open redis cache")
		}
		return c, nil
	default:
		dir, err := cacheDir(cfg)
		if err != nil {
			loggerFromContext(ctx).Warn("cache disabled", "err", err)
			return cache.NewNullCache(), nil
		}
		return cache.NewFileCache(dir)
	}
}

// writeReport renders r in format and writes it to path, or to stdout when
// path is empty.
func writeReport(ctx context.Context, stdout io.Writer, r *report.Report, format, path string) error {
	var data []byte
	switch format {
	case formatJSON:
		if path != "" {
			return report.ExportJSON(r, path)
		}
		return report.WriteJSON(r, stdout)
	case formatDOT:
		data = []byte(report.ToDOTAll(r))
	case formatSVG:
		var err error
		if data, err = report.RenderSVG(ctx, report.ToDOTAll(r)); err != nil {
			return errors.Wrap(errors.ErrCodeInternal, err, "render svg")
		}
	}

	if path == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	return nil
}

// formatList renders ids as "a, b, c".
func formatList(ids []string) string {
	if len(ids) == 0 {
		return "-"
	}
	return strings.Join(ids, ", ")
}
