// Package fragment implements sequential download of fragmented media:
// fragments are fetched one at a time in index order, appended to a single
// output file, and progress is checkpointed so an interrupted download can
// resume without refetching completed fragments.
package fragment

import (
	"context"
	"fmt"
)

// Locator identifies one fetchable fragment.
type Locator struct {
	URL     string
	Headers map[string]string // per-fragment overrides, may be nil
}

// Sequence yields fragment locators in strictly increasing index order.
// Fragment may block until the requested index exists (live playlists) and
// reports ok=false once the sequence is exhausted. Count returns the total
// number of fragments, or -1 for live sequences whose length is unknown
// until the stream ends.
type Sequence interface {
	Fragment(ctx context.Context, index int) (Locator, bool, error)
	Count() int
}

type finiteSequence struct {
	locators []Locator
}

func NewFiniteSequence(locators []Locator) Sequence {
	return &finiteSequence{locators: locators}
}

func (s *finiteSequence) Fragment(_ context.Context, index int) (Locator, bool, error) {
	if index < 0 || index >= len(s.locators) {
		return Locator{}, false, nil
	}
	return s.locators[index], true, nil
}

func (s *finiteSequence) Count() int {
	return len(s.locators)
}

type liveSequence struct {
	next func(ctx context.Context, index int) (Locator, bool, error)
}

// NewLiveSequence wraps a generator for live streams. The generator may
// block until fragment index exists, and reports ok=false once the stream
// has ended.
func NewLiveSequence(next func(ctx context.Context, index int) (Locator, bool, error)) Sequence {
	return &liveSequence{next: next}
}

func (s *liveSequence) Fragment(ctx context.Context, index int) (Locator, bool, error) {
	return s.next(ctx, index)
}

func (s *liveSequence) Count() int {
	return -1
}

// TransferFunc receives byte-level updates for the in-flight fragment:
// cumulative bytes fetched of that fragment and its expected total size
// (negative when the size is unknown).
type TransferFunc func(downloaded, total int64)

// Transport fetches a single fragment into a local file. A call is one
// attempt; retry policy belongs to the orchestrator. On success it returns
// the fragment's full byte count on disk.
type Transport interface {
	Fetch(ctx context.Context, loc Locator, destPath string, transfer TransferFunc) (int64, error)
}

// Options configures one download session.
type Options struct {
	Retries         int  // extra attempts per fragment after the first
	SkipUnavailable bool // skip fragments whose retry budget is exhausted
	KeepFragments   bool // keep per-fragment temp files after appending

	OnProgress func(Snapshot)
	OnRetry    func(index, attempt, budget int, err error)
	OnSkip     func(index int)
}

// TempOutputPath returns the working copy of the output file, renamed into
// place only when the session finalizes.
func TempOutputPath(outputPath string) string {
	return outputPath + ".part"
}

func fragmentPath(tempOutputPath string, index int) string {
	return fmt.Sprintf("%s-Frag%d", tempOutputPath, index)
}
