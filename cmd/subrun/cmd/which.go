package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-subprocess/pkg/shellutil"
)

var whichCmd = &cobra.Command{
	Use:   "which NAME...",
	Short: "Show which program a command name runs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWhich,
}

func init() {
	rootCmd.AddCommand(whichCmd)
}

func runWhich(cmd *cobra.Command, args []string) error {
	missing := 0
	for _, name := range args {
		path := shellutil.FindProgram(name)
		if path == "" {
			uiInstance.Error(fmt.Sprintf("%s: not found", name))
			missing++
			continue
		}
		uiInstance.Println(path)
	}
	if missing > 0 {
		return &exitError{code: 1}
	}
	return nil
}
