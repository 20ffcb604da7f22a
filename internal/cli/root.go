package cli

import (
	"context"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/buildinfo"
	"github.com/matzehuels/depscan/pkg/config"
)

// appName is the binary name used in help text and the version template.
const appName = "depscan"

// rootOptions are the flags shared by every command.
type rootOptions struct {
	verbose    bool
	configPath string
}

// Execute runs the depscan CLI with ctx and returns the first command error.
//
// Logging goes to stderr at info level, or debug level with --verbose. The
// logger is attached to the command context and retrieved with
// loggerFromContext.
//
//	func main() {
//	    ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	    defer cancel()
//	    if err := cli.Execute(ctx); err != nil {
//	        os.Exit(1)
//	    }
//	}
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           appName,
		Short:         "depscan detects dependency graphs in source trees",
		Long:          `depscan walks a source tree, parses every package manifest and lockfile it recognizes, and reports the components each one references together with their dependency graph.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if opts.verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(cmd.ErrOrStderr(), level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")

	root.AddCommand(newScanCmd(opts))
	root.AddCommand(newDetectorsCmd())
	root.AddCommand(newCacheCmd(opts))
	root.AddCommand(newCompletionCmd())

	return root
}

// loadConfig builds the configuration from defaults, the --config file and
// the environment. Command flags are applied by the caller.
func (o *rootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
