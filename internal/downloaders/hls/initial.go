// Package hls downloads HLS streams: VOD playlists fragment by fragment,
// live playlists by following the moving window until the stream ends.
package hls

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/tanq16/fragzo/internal/utils"
)

type HLSDownloader struct{}

func (d *HLSDownloader) ValidateJob(job *utils.FragzoJob) error {
	parsedURL, err := url.Parse(job.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("unsupported scheme: %s", parsedURL.Scheme)
	}
	return nil
}

func (d *HLSDownloader) BuildJob(job *utils.FragzoJob) error {
	if job.OutputPath == "" {
		job.OutputPath = fmt.Sprintf("stream_%s.ts", time.Now().Format("2006-01-02_15-04"))
	}
	// Only a completed output forces a new name. Resume artifacts are keyed
	// to the temp file, so an interrupted session keeps its path.
	if _, err := os.Stat(job.OutputPath); err == nil {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
	return nil
}
