package fragment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Downloader runs sequential fragment download sessions over a Transport.
// Fragment i+1 is never fetched before fragment i is durably appended, so
// the assembled file is valid media at every point in time.
type Downloader struct {
	transport Transport
	opts      Options
}

func NewDownloader(transport Transport, opts Options) *Downloader {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &Downloader{transport: transport, opts: opts}
}

// Download fetches every fragment of seq in order and assembles them into
// outputPath. Finite sequences checkpoint after each fragment and resume
// from the sidecar on the next run. Live sequences run until the stream
// ends or ctx is cancelled, then finalize whatever was captured.
func (d *Downloader) Download(ctx context.Context, seq Sequence, outputPath string) error {
	if seq.Count() < 0 {
		return d.runLive(ctx, seq, outputPath)
	}
	return d.runFinite(ctx, seq, outputPath)
}

func (d *Downloader) runFinite(ctx context.Context, seq Sequence, outputPath string) error {
	cp, found, err := loadCheckpoint(outputPath)
	if err != nil {
		return err
	}
	asm, err := openAssembler(outputPath, cp)
	if err != nil {
		return err
	}
	if !found {
		if err := saveCheckpoint(outputPath, cp); err != nil {
			asm.close()
			return err
		}
	} else if cp.Index > 0 {
		log.Debug().Str("op", "fragment/downloader").Msgf("Resuming %s from fragment %d (%d bytes already on disk)", outputPath, cp.Index, asm.resumed)
	}
	log.Debug().Str("op", "fragment/downloader").Msgf("Total fragments: %d", seq.Count())

	st := newProgressState(outputPath, asm.resumed, cp.Index, seq.Count(), time.Now())
	d.emit(st.initialSnapshot(time.Now()))
	for i := cp.Index; ; i++ {
		if err := ctx.Err(); err != nil {
			asm.close()
			return err
		}
		loc, ok, err := seq.Fragment(ctx, i)
		if err != nil {
			asm.close()
			return fmt.Errorf("error resolving fragment %d: %w", i, err)
		}
		if !ok {
			break
		}
		fragPath := fragmentPath(asm.tempPath, i)
		n, err := d.fetchWithRetries(ctx, i, loc, fragPath, &st)
		if err != nil {
			var unavail *UnavailableError
			if errors.As(err, &unavail) && d.opts.SkipUnavailable {
				d.skip(i, fragPath, &st)
				if err := saveCheckpoint(outputPath, Checkpoint{Index: i + 1}); err != nil {
					asm.close()
					return err
				}
				continue
			}
			asm.close()
			return err
		}
		var snap Snapshot
		st, snap = foldProgress(st, progressEvent{final: true, fragBytes: n, fragTotal: n}, time.Now())
		d.emit(snap)
		if _, err := asm.appendFragment(fragPath); err != nil {
			asm.close()
			return fmt.Errorf("fragment %d: %w", i, err)
		}
		if err := saveCheckpoint(outputPath, Checkpoint{Index: i + 1}); err != nil {
			asm.close()
			return err
		}
		if !d.opts.KeepFragments {
			os.Remove(fragPath)
		}
	}
	size, err := asm.finalize()
	if err != nil {
		return err
	}
	if err := clearCheckpoint(outputPath); err != nil {
		return err
	}
	log.Debug().Str("op", "fragment/downloader").Msgf("Assembled %d fragments (%d bytes) into %s", st.index, size, outputPath)
	d.emit(st.finishedSnapshot(size, time.Now()))
	return nil
}

// runLive captures an unbounded sequence. There is no checkpointing, a live
// playlist window moves on and cannot be resumed, so cancellation is a
// graceful stop: the fragments captured so far are finalized into a
// playable file.
func (d *Downloader) runLive(ctx context.Context, seq Sequence, outputPath string) error {
	asm, err := openLiveAssembler(outputPath)
	if err != nil {
		return err
	}
	log.Debug().Str("op", "fragment/downloader").Msg("Total fragments: unknown (live)")

	st := newProgressState(outputPath, 0, 0, -1, time.Now())
	d.emit(st.initialSnapshot(time.Now()))
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			break
		}
		loc, ok, err := seq.Fragment(ctx, i)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			asm.close()
			return fmt.Errorf("error resolving fragment %d: %w", i, err)
		}
		if !ok {
			break
		}
		fragPath := fragmentPath(asm.tempPath, i)
		n, err := d.fetchWithRetries(ctx, i, loc, fragPath, &st)
		if err != nil {
			if ctx.Err() != nil {
				os.Remove(fragPath)
				break
			}
			var unavail *UnavailableError
			if errors.As(err, &unavail) && d.opts.SkipUnavailable {
				d.skip(i, fragPath, &st)
				continue
			}
			asm.close()
			return err
		}
		var snap Snapshot
		st, snap = foldProgress(st, progressEvent{final: true, fragBytes: n, fragTotal: n}, time.Now())
		d.emit(snap)
		if _, err := asm.appendFragment(fragPath); err != nil {
			asm.close()
			return fmt.Errorf("fragment %d: %w", i, err)
		}
		if !d.opts.KeepFragments {
			os.Remove(fragPath)
		}
	}
	size, err := asm.finalize()
	if err != nil {
		return err
	}
	log.Debug().Str("op", "fragment/downloader").Msgf("Captured %d fragments (%d bytes) into %s", st.index, size, outputPath)
	d.emit(st.finishedSnapshot(size, time.Now()))
	return nil
}

// fetchWithRetries runs up to Retries+1 transport attempts for one
// fragment. Remote errors burn the retry budget; local I/O errors and
// cancellation abort immediately. An exhausted budget is reported as an
// UnavailableError so the caller can decide between skip and abort.
func (d *Downloader) fetchWithRetries(ctx context.Context, index int, loc Locator, fragPath string, st *progressState) (int64, error) {
	transfer := func(downloaded, total int64) {
		var snap Snapshot
		*st, snap = foldProgress(*st, progressEvent{fragBytes: downloaded, fragTotal: total}, time.Now())
		d.emit(snap)
	}
	budget := d.opts.Retries
	var lastErr error
	for attempt := range budget + 1 {
		if attempt > 0 {
			log.Warn().Str("op", "fragment/downloader").Err(lastErr).Msgf("Retrying fragment %d (attempt %d/%d)", index, attempt, budget)
			if d.opts.OnRetry != nil {
				d.opts.OnRetry(index, attempt, budget, lastErr)
			}
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}
		n, err := d.transport.Fetch(ctx, loc, fragPath, transfer)
		if err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		var ioErr *IOError
		if errors.As(err, &ioErr) {
			return 0, err
		}
		lastErr = err
	}
	return 0, &UnavailableError{Index: index, Attempts: budget + 1, Err: lastErr}
}

func (d *Downloader) skip(index int, fragPath string, st *progressState) {
	log.Warn().Str("op", "fragment/downloader").Msgf("Skipping fragment %d", index)
	if d.opts.OnSkip != nil {
		d.opts.OnSkip(index)
	}
	// The abandoned fragment's partial bytes must not leak into the next
	// fragment's delta accounting.
	st.prevFrag = 0
	if !d.opts.KeepFragments {
		os.Remove(fragPath)
	}
}

func (d *Downloader) emit(snap Snapshot) {
	if d.opts.OnProgress != nil {
		d.opts.OnProgress(snap)
	}
}
