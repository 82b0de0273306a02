package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tanq16/fragzo/internal/scheduler"
	"github.com/tanq16/fragzo/internal/utils"
	"gopkg.in/yaml.v3"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			yamlFile := args[0]
			data, err := os.ReadFile(yamlFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error reading YAML file: %v\n", err)
				os.Exit(1)
			}
			var batchFile utils.BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing YAML file: %v\n", err)
				os.Exit(1)
			}
			jobs := buildJobsFromBatch(batchFile)
			if len(jobs) == 0 {
				fmt.Fprintf(os.Stderr, "No valid jobs found in the batch file\n")
				os.Exit(1)
			}
			if err := scheduler.Run(cmd.Context(), jobs, workers, fileLog); err != nil {
				os.Exit(1)
			}
		},
	}
	return cmd
}

func buildJobsFromBatch(batchFile utils.BatchFile) []utils.FragzoJob {
	var jobs []utils.FragzoJob
	for jobType, entries := range batchFile {
		normalizedType := normalizeJobType(jobType)
		if normalizedType == "" {
			fmt.Fprintf(os.Stderr, "Warning: Unknown job type '%s', skipping...\n", jobType)
			continue
		}
		for _, entry := range entries {
			if entry.Link == "" {
				fmt.Fprintf(os.Stderr, "Warning: Empty link found in %s section, skipping...\n", jobType)
				continue
			}
			job := utils.FragzoJob{
				JobType:          normalizedType,
				URL:              entry.Link,
				OutputPath:       entry.OutputPath,
				FragmentRetries:  fragmentRetries,
				SkipUnavailable:  skipUnavailable,
				KeepFragments:    keepFragments,
				RateLimit:        globalRateLimit,
				ProgressType:     "progress",
				HTTPClientConfig: globalHTTPConfig,
				Metadata:         make(map[string]any),
			}
			if normalizedType == "list" {
				job.Metadata["awsProfile"] = "default"
			}
			jobs = append(jobs, job)
		}
	}
	return jobs
}

func normalizeJobType(jobType string) string {
	typeMap := map[string]string{
		"hls":         "hls",
		"m3u8":        "hls",
		"stream":      "hls",
		"live-stream": "hls",
		"livestream":  "hls",
		"list":        "list",
		"fragments":   "list",
		"files":       "list",
	}
	normalized := ""
	for key, value := range typeMap {
		if key == jobType || key == strings.ToLower(jobType) {
			normalized = value
			break
		}
	}
	return normalized
}
