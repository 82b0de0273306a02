package hls

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/manifest"
	"github.com/tanq16/fragzo/internal/utils"
)

const defaultPollInterval = 2 * time.Second

// playlistFollower turns a live media playlist into an unbounded fragment
// sequence. New segments are discovered by refetching the playlist at the
// target-duration cadence; media sequence numbers align each refreshed
// window against the segments already handed out.
type playlistFollower struct {
	client   *utils.FragzoHTTPClient
	mediaURL string
	poll     time.Duration
	known    []fragment.Locator
	nextSeq  int64 // media sequence number of the next unseen segment
	ended    bool
}

func newPlaylistFollower(pl *manifest.Playlist, client *utils.FragzoHTTPClient) *playlistFollower {
	poll := pl.TargetDuration
	if poll <= 0 {
		poll = defaultPollInterval
	}
	known := pl.Fragments
	if pl.InitSegment != "" {
		known = append([]fragment.Locator{{URL: pl.InitSegment}}, known...)
	}
	return &playlistFollower{
		client:   client,
		mediaURL: pl.MediaURL,
		poll:     poll,
		known:    known,
		nextSeq:  pl.MediaSequence + int64(len(pl.Fragments)),
	}
}

// next blocks until fragment index is known, the stream ends, or ctx is
// cancelled. Transient refresh failures keep polling; the enclosing session
// decides when to give up by cancelling ctx.
func (f *playlistFollower) next(ctx context.Context, index int) (fragment.Locator, bool, error) {
	for {
		if index < len(f.known) {
			return f.known[index], true, nil
		}
		if f.ended {
			return fragment.Locator{}, false, nil
		}
		select {
		case <-ctx.Done():
			return fragment.Locator{}, false, ctx.Err()
		case <-time.After(f.poll):
		}
		if err := f.refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return fragment.Locator{}, false, ctx.Err()
			}
			log.Warn().Str("op", "hls/follower").Err(err).Msg("Error refreshing live playlist")
		}
	}
}

func (f *playlistFollower) refresh(ctx context.Context) error {
	pl, err := manifest.FetchHLS(ctx, f.mediaURL, f.client)
	if err != nil {
		return err
	}
	if pl.TargetDuration > 0 {
		f.poll = pl.TargetDuration
	}
	for i, loc := range pl.Fragments {
		seq := pl.MediaSequence + int64(i)
		if seq < f.nextSeq {
			continue
		}
		if seq > f.nextSeq {
			log.Warn().Str("op", "hls/follower").Msgf("Live window moved past %d unseen segments", seq-f.nextSeq)
		}
		f.known = append(f.known, loc)
		f.nextSeq = seq + 1
	}
	if !pl.Live {
		log.Debug().Str("op", "hls/follower").Msg("Playlist ended")
		f.ended = true
	}
	return nil
}
