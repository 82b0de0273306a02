package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/fragzo/internal/scheduler"
	"github.com/tanq16/fragzo/internal/utils"
)

func newHLSCmd() *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:     "hls [URL] [--output OUTPUT_PATH]",
		Short:   "Download HLS/M3U8 streams (VOD or live)",
		Aliases: []string{"m3u8", "stream", "live-stream"},
		Args:    cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			job := utils.FragzoJob{
				JobType:          "hls",
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
			jobs := []utils.FragzoJob{job}
			log.Debug().Str("op", "cmd/hls").Msgf("Starting scheduler with %d jobs", len(jobs))
			if err := scheduler.Run(cmd.Context(), jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path (default: stream_[timestamp].ts)")
	return cmd
}
