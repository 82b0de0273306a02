package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/output"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Remove leftover partial outputs, fragment files and checkpoints",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
				if info, err := os.Stat(dir); err != nil || !info.IsDir() {
					dir = filepath.Dir(dir)
				}
			}
			removed, err := fragment.CleanArtifacts(dir)
			if err != nil {
				output.PrintError(fmt.Sprintf("Error cleaning up temporary files: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary files", removed))
		},
	}
}
