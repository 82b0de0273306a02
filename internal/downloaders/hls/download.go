package hls

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/manifest"
	"github.com/tanq16/fragzo/internal/transport"
	"github.com/tanq16/fragzo/internal/utils"
)

func (d *HLSDownloader) Download(ctx context.Context, job *utils.FragzoJob) error {
	client := utils.NewFragzoHTTPClient(job.HTTPClientConfig)
	log.Debug().Str("op", "hls/download").Msgf("Fetching manifest from %s", job.URL)
	pl, err := manifest.FetchHLS(ctx, job.URL, client)
	if err != nil {
		return fmt.Errorf("error fetching manifest: %v", err)
	}
	if len(pl.Fragments) == 0 && !pl.Live {
		return fmt.Errorf("no fragments found in playlist")
	}

	dl := fragment.NewDownloader(transport.NewHTTPTransport(client, job.RateLimit), sessionOptions(job))
	var seq fragment.Sequence
	if pl.Live {
		log.Info().Str("op", "hls/download").Msg("Live playlist detected, following until the stream ends")
		if job.StreamFunc != nil {
			job.StreamFunc("Live stream: capturing until stopped")
		}
		seq = fragment.NewLiveSequence(newPlaylistFollower(pl, client).next)
	} else {
		locators := pl.Fragments
		if pl.InitSegment != "" {
			locators = append([]fragment.Locator{{URL: pl.InitSegment}}, locators...)
		}
		log.Info().Str("op", "hls/download").Msgf("Found %d fragments to download", len(locators))
		seq = fragment.NewFiniteSequence(locators)
	}
	return dl.Download(ctx, seq, job.OutputPath)
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
