package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/tanq16/fragzo/internal/scheduler"
	"github.com/tanq16/fragzo/internal/utils"
)

func newListCmd() *cobra.Command {
	var outputPath string
	var profile string

	cmd := &cobra.Command{
		Use:   "list [FILE] [--output OUTPUT_PATH]",
		Short: "Download fragments named in a list file",
		Long: `Download an ordered fragment list into a single file.

The list file names one fragment per line (http(s) or s3 URLs, not mixed)
with '#' comments allowed.

Examples:
  fragzo list segments.txt
  fragzo list segments.txt -o capture.bin
  fragzo list s3-parts.txt --profile backups`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := utils.FragzoJob{
				JobType:          "list",
				URL:              args[0],
				OutputPath:       outputPath,
				FragmentRetries:  fragmentRetries,
				SkipUnavailable:  skipUnavailable,
				KeepFragments:    keepFragments,
				RateLimit:        globalRateLimit,
				ProgressType:     "progress",
				HTTPClientConfig: globalHTTPConfig,
				Metadata:         make(map[string]any),
			}
			job.Metadata["awsProfile"] = profile
			jobs := []utils.FragzoJob{job}
			if err := scheduler.Run(cmd.Context(), jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: derived from the list file name)")
	cmd.Flags().StringVar(&profile, "profile", "default", "AWS profile to use for s3 fragment lists")
	return cmd
}
