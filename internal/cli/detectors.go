package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/depscan/pkg/detector/detectors"
)

var styleDetectorID = lipgloss.NewStyle().Foreground(colorCyan).Width(18)

func newDetectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detectors",
		Short: "List the built-in detectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			reg := detectors.Default(detectors.Options{Logger: loggerFromContext(cmd.Context())})
			for _, d := range reg.All() {
				types := make([]string, 0, len(d.SupportedTypes()))
				for _, t := range d.SupportedTypes() {
					types = append(types, string(t))
				}
				fmt.Fprintln(w, styleDetectorID.Render(d.ID())+" "+
					StyleValue.Render(formatList(d.SearchPatterns()))+" "+
					StyleDim.Render("("+strings.Join(types, ", ")+")"))
			}
			return nil
		},
	}
}
