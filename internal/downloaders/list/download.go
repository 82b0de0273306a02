package list

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/transport"
	"github.com/tanq16/fragzo/internal/utils"
)

func (d *ListDownloader) Download(ctx context.Context, job *utils.FragzoJob) error {
	locators, _ := job.Metadata["locators"].([]fragment.Locator)
	if len(locators) == 0 {
		return fmt.Errorf("no fragments to download")
	}
	var tp fragment.Transport
	if strings.HasPrefix(locators[0].URL, "s3://") {
		profile, _ := job.Metadata["awsProfile"].(string)
		s3Transport, err := transport.NewS3Transport(ctx, profile)
		if err != nil {
			return err
		}
		tp = s3Transport
		log.Debug().Str("op", "list/download").Msg("Using S3 transport")
	} else {
		client := utils.NewFragzoHTTPClient(job.HTTPClientConfig)
		tp = transport.NewHTTPTransport(client, job.RateLimit)
	}
	log.Info().Str("op", "list/download").Msgf("Found %d fragments to download", len(locators))
	dl := fragment.NewDownloader(tp, sessionOptions(job))
	return dl.Download(ctx, fragment.NewFiniteSequence(locators), job.OutputPath)
}

func sessionOptions(job *utils.FragzoJob) fragment.Options {
	return fragment.Options{
		Retries:         job.FragmentRetries,
		SkipUnavailable: job.SkipUnavailable,
		KeepFragments:   job.KeepFragments,
		OnProgress: func(snap fragment.Snapshot) {
			if job.ProgressFunc != nil {
				job.ProgressFunc(snap.DownloadedBytes, snap.TotalBytesEstimate, progressDetail(snap))
			}
		},
		OnRetry: func(index, attempt, budget int, err error) {
			if job.StreamFunc != nil {
				job.StreamFunc(fmt.Sprintf("Retrying fragment %d (attempt %d/%d): %v", index, attempt, budget, err))
			}
		},
		OnSkip: func(index int) {
			if job.StreamFunc != nil {
				job.StreamFunc(fmt.Sprintf("Skipped unavailable fragment %d", index))
			}
		},
	}
}

func progressDetail(snap fragment.Snapshot) string {
	parts := make([]string, 0, 3)
	if snap.FragmentCount >= 0 {
		parts = append(parts, fmt.Sprintf("fragment %d/%d", snap.FragmentIndex, snap.FragmentCount))
	} else {
		parts = append(parts, fmt.Sprintf("fragment %d (live)", snap.FragmentIndex))
	}
	if snap.Speed > 0 {
		parts = append(parts, utils.FormatSpeed(snap.Speed))
	}
	if snap.ETA >= 0 {
		parts = append(parts, "ETA "+snap.ETA.Round(time.Second).String())
	}
	return strings.Join(parts, " | ")
}
