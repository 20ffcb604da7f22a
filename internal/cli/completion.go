package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/errors"
)

// completionShell is a shell depscan can generate a completion script for.
type completionShell struct {
	name    string
	load    string // loads the script into the current session
	install string // default file the script is installed to
	gen     func(root *cobra.Command, w io.Writer, descriptions bool) error
}

var completionShells = []completionShell{
	{
		name:    "bash",
		load:    "source <(depscan completion bash)",
		install: "/etc/bash_completion.d/depscan",
		gen: func(root *cobra.Command, w io.Writer, desc bool) error {
			return root.GenBashCompletionV2(w, desc)
		},
	},
	{
		name:    "zsh",
		load:    "source <(depscan completion zsh)",
		install: `"${fpath[1]}/_depscan"`,
		gen: func(root *cobra.Command, w io.Writer, desc bool) error {
			if desc {
				return root.GenZshCompletion(w)
			}
			return root.GenZshCompletionNoDesc(w)
		},
	},
	{
		name:    "fish",
		load:    "depscan completion fish | source",
		install: "~/.config/fish/completions/depscan.fish",
		gen: func(root *cobra.Command, w io.Writer, desc bool) error {
			return root.GenFishCompletion(w, desc)
		},
	},
	{
		name:    "powershell",
		load:    "depscan completion powershell | Out-String | Invoke-Expression",
		install: "depscan.ps1 (sourced from your profile)",
		gen: func(root *cobra.Command, w io.Writer, desc bool) error {
			if desc {
				return root.GenPowerShellCompletionWithDesc(w)
			}
			return root.GenPowerShellCompletion(w)
		},
	},
}

func completionHelp() string {
	var b strings.Builder
	b.WriteString("Generate a shell completion script for depscan.\n\n")
	b.WriteString("Completions cover commands, flags and the detector ids accepted by\n")
	b.WriteString("scan --detectors. Load a script for the current session, or write it\n")
	b.WriteString("once with --output:\n")
	for _, s := range completionShells {
		fmt.Fprintf(&b, "\n%s:\n  %s\n  depscan completion %s --output %s\n", s.name, s.load, s.name, s.install)
	}
	return b.String()
}

func newCompletionCmd() *cobra.Command {
	var (
		output         string
		noDescriptions bool
	)
	names := make([]string, len(completionShells))
	for i, s := range completionShells {
		names[i] = s.name
	}

	cmd := &cobra.Command{
		Use:                   "completion [" + strings.Join(names, "|") + "]",
		Short:                 "Generate shell completion scripts",
		Long:                  completionHelp(),
		DisableFlagsInUseLine: true,
		ValidArgs:             names,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			i := slices.IndexFunc(completionShells, func(s completionShell) bool { return s.name == args[0] })
			shell := completionShells[i]

			if output == "" {
				return shell.gen(cmd.Root(), cmd.OutOrStdout(), !noDescriptions)
			}
			return writeCompletion(cmd, shell, output, !noDescriptions)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the script to this file instead of stdout")
	cmd.Flags().BoolVar(&noDescriptions, "no-descriptions", false, "omit completion descriptions")
	return cmd
}

// writeCompletion writes the script for shell to path, creating missing
// parent directories.
func writeCompletion(cmd *cobra.Command, shell completionShell, path string, descriptions bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create directory for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "create %s", path)
	}
	if err := shell.gen(cmd.Root(), f, descriptions); err != nil {
		f.Close()
		return errors.Wrap(errors.ErrCodeInternal, err, "generate %s completion", shell.name)
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidPath, err, "write %s", path)
	}
	loggerFromContext(cmd.Context()).Info("wrote completion script", "shell", shell.name, "path", path)
	return nil
}
