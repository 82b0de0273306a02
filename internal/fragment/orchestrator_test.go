package fragment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// scriptedTransport serves fragments from memory, writing them to the
// destination path like a real transport. Failures are scripted per URL.
type scriptedTransport struct {
	payloads map[string][]byte
	failures map[string]int  // remaining remote failures per URL
	ioFail   map[string]bool // URLs that fail with a local I/O error
	calls    map[string]int  // fetch attempts per URL
	onFetch  func(loc Locator)
}

func newScriptedTransport() *scriptedTransport {
	return &scriptedTransport{
		payloads: make(map[string][]byte),
		failures: make(map[string]int),
		ioFail:   make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (s *scriptedTransport) Fetch(_ context.Context, loc Locator, destPath string, transfer TransferFunc) (int64, error) {
	s.calls[loc.URL]++
	if s.onFetch != nil {
		s.onFetch(loc)
	}
	if s.ioFail[loc.URL] {
		return 0, &IOError{Err: errors.New("disk full")}
	}
	if s.failures[loc.URL] > 0 {
		s.failures[loc.URL]--
		return 0, errors.New("unexpected status code: 503")
	}
	payload, ok := s.payloads[loc.URL]
	if !ok {
		return 0, errors.New("unexpected status code: 404")
	}
	if err := os.WriteFile(destPath, payload, 0644); err != nil {
		return 0, &IOError{Err: err}
	}
	if transfer != nil {
		transfer(int64(len(payload)), int64(len(payload)))
	}
	return int64(len(payload)), nil
}

func fragURL(index int) string {
	return fmt.Sprintf("https://cdn.example.com/frag%d.ts", index)
}

// scriptFragments registers one payload per fragment and returns the
// locators for a finite sequence over them.
func scriptFragments(tr *scriptedTransport, payloads ...string) []Locator {
	locators := make([]Locator, len(payloads))
	for i, p := range payloads {
		locators[i] = Locator{URL: fragURL(i)}
		tr.payloads[fragURL(i)] = []byte(p)
	}
	return locators
}

func totalCalls(tr *scriptedTransport) int {
	n := 0
	for _, c := range tr.calls {
		n += c
	}
	return n
}

func TestDownloadAssemblesInOrder(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "one-", "two-", "three-", "four-", "five!")

	var snaps []Snapshot
	dl := NewDownloader(tr, Options{OnProgress: func(s Snapshot) { snaps = append(snaps, s) }})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "one-two-three-four-five!"
	if string(got) != want {
		t.Errorf("output mismatch: got %q, want %q", got, want)
	}
	if _, err := os.Stat(CheckpointPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected sidecar to be cleared after finalize")
	}
	if _, err := os.Stat(TempOutputPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected temp output to be renamed away")
	}
	leftovers, _ := filepath.Glob(TempOutputPath(outputPath) + "-Frag*")
	if len(leftovers) != 0 {
		t.Errorf("expected no fragment files, found %v", leftovers)
	}

	if len(snaps) < 2 {
		t.Fatalf("expected initial and final snapshots, got %d", len(snaps))
	}
	first, last := snaps[0], snaps[len(snaps)-1]
	if first.Status != StatusDownloading || first.DownloadedBytes != 0 {
		t.Errorf("unexpected initial snapshot: %+v", first)
	}
	if last.Status != StatusFinished {
		t.Errorf("expected finished snapshot, got %+v", last)
	}
	if last.DownloadedBytes != int64(len(want)) || last.TotalBytesEstimate != int64(len(want)) {
		t.Errorf("finished totals mismatch: %d / %d", last.DownloadedBytes, last.TotalBytesEstimate)
	}
	if last.FragmentIndex != 5 || last.FragmentCount != 5 {
		t.Errorf("finished fragments mismatch: %d/%d", last.FragmentIndex, last.FragmentCount)
	}
}

func TestDownloadWritesCheckpointBeforeFirstFetch(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "payload")

	var observed []int
	tr.onFetch = func(loc Locator) {
		cp, found, err := loadCheckpoint(outputPath)
		if err != nil || !found {
			t.Errorf("expected sidecar during fetch: found=%v err=%v", found, err)
			return
		}
		observed = append(observed, cp.Index)
	}

	dl := NewDownloader(tr, Options{})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(observed) != 1 || observed[0] != 0 {
		t.Errorf("expected fresh checkpoint at index 0 during first fetch, got %v", observed)
	}
}

func TestDownloadResumesFromCheckpoint(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	writeFile(t, TempOutputPath(outputPath), []byte("one-two-"))
	if err := saveCheckpoint(outputPath, Checkpoint{Index: 2}); err != nil {
		t.Fatalf("saveCheckpoint: %v", err)
	}
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "one-", "two-", "three-", "four!")

	var snaps []Snapshot
	dl := NewDownloader(tr, Options{OnProgress: func(s Snapshot) { snaps = append(snaps, s) }})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, _ := os.ReadFile(outputPath)
	if string(got) != "one-two-three-four!" {
		t.Errorf("output mismatch: %q", got)
	}
	if tr.calls[fragURL(0)] != 0 || tr.calls[fragURL(1)] != 0 {
		t.Error("expected completed fragments not to be refetched")
	}
	if tr.calls[fragURL(2)] != 1 || tr.calls[fragURL(3)] != 1 {
		t.Errorf("expected one fetch each for remaining fragments, got %v", tr.calls)
	}
	if snaps[0].DownloadedBytes != 8 {
		t.Errorf("expected initial snapshot to report 8 resumed bytes, got %d", snaps[0].DownloadedBytes)
	}
}

func TestDownloadRetriesThenSucceeds(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "steady-", "flaky!")
	tr.failures[fragURL(1)] = 2

	type retry struct{ index, attempt, budget int }
	var retries []retry
	dl := NewDownloader(tr, Options{
		Retries: 2,
		OnRetry: func(index, attempt, budget int, err error) {
			if err == nil {
				t.Error("expected retry notice to carry the previous error")
			}
			retries = append(retries, retry{index, attempt, budget})
		},
	})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, _ := os.ReadFile(outputPath)
	if string(got) != "steady-flaky!" {
		t.Errorf("output mismatch: %q", got)
	}
	if tr.calls[fragURL(1)] != 3 {
		t.Errorf("expected 3 attempts for flaky fragment, got %d", tr.calls[fragURL(1)])
	}
	want := []retry{{1, 1, 2}, {1, 2, 2}}
	if len(retries) != len(want) {
		t.Fatalf("expected %d retry notices, got %d", len(want), len(retries))
	}
	for i, r := range retries {
		if r != want[i] {
			t.Errorf("retry notice %d: got %+v, want %+v", i, r, want[i])
		}
	}
}

func TestDownloadUnavailableAbortsResumable(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "first-", "gone")
	tr.failures[fragURL(1)] = 99

	dl := NewDownloader(tr, Options{Retries: 1})
	err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath)

	var unavail *UnavailableError
	if !errors.As(err, &unavail) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	if unavail.Index != 1 || unavail.Attempts != 2 {
		t.Errorf("unexpected unavailable detail: %+v", unavail)
	}
	if tr.calls[fragURL(1)] != 2 {
		t.Errorf("expected retry budget of 2 attempts, got %d", tr.calls[fragURL(1)])
	}

	// The session must stay resumable: temp output and sidecar agree.
	cp, found, err := loadCheckpoint(outputPath)
	if err != nil || !found {
		t.Fatalf("expected sidecar after abort: found=%v err=%v", found, err)
	}
	if cp.Index != 1 {
		t.Errorf("expected checkpoint index 1, got %d", cp.Index)
	}
	got, err := os.ReadFile(TempOutputPath(outputPath))
	if err != nil {
		t.Fatalf("expected temp output after abort: %v", err)
	}
	if string(got) != "first-" {
		t.Errorf("temp output mismatch: %q", got)
	}
}

func TestDownloadSkipsUnavailable(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "first-", "missing", "third!")
	tr.failures[fragURL(1)] = 99

	var checkpointAtFrag2 = -1
	tr.onFetch = func(loc Locator) {
		if loc.URL == fragURL(2) {
			if cp, found, err := loadCheckpoint(outputPath); err == nil && found {
				checkpointAtFrag2 = cp.Index
			}
		}
	}

	var skipped []int
	var last Snapshot
	dl := NewDownloader(tr, Options{
		SkipUnavailable: true,
		OnSkip:          func(index int) { skipped = append(skipped, index) },
		OnProgress:      func(s Snapshot) { last = s },
	})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, _ := os.ReadFile(outputPath)
	if string(got) != "first-third!" {
		t.Errorf("output mismatch: %q", got)
	}
	if len(skipped) != 1 || skipped[0] != 1 {
		t.Errorf("expected skip notice for fragment 1, got %v", skipped)
	}
	// A skipped fragment still advances the checkpoint, otherwise a resume
	// would refetch it forever.
	if checkpointAtFrag2 != 2 {
		t.Errorf("expected checkpoint 2 while fetching fragment 2, got %d", checkpointAtFrag2)
	}
	if last.Status != StatusFinished {
		t.Errorf("expected finished snapshot, got %+v", last)
	}
	if last.FragmentIndex != 2 || last.FragmentCount != 3 {
		t.Errorf("expected 2 fetched of 3 fragments, got %d/%d", last.FragmentIndex, last.FragmentCount)
	}
	if _, err := os.Stat(CheckpointPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected sidecar to be cleared after finalize")
	}
}

func TestDownloadLocalErrorAbortsImmediately(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "payload")
	tr.ioFail[fragURL(0)] = true

	retried := false
	dl := NewDownloader(tr, Options{
		Retries:         5,
		SkipUnavailable: true,
		OnRetry:         func(index, attempt, budget int, err error) { retried = true },
	})
	err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath)

	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if tr.calls[fragURL(0)] != 1 {
		t.Errorf("expected a single attempt, got %d", tr.calls[fragURL(0)])
	}
	if retried {
		t.Error("expected no retry notices for local errors")
	}
}

func TestDownloadCorruptCheckpointAborts(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	writeFile(t, CheckpointPath(outputPath), []byte("{not json"))
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "payload")

	dl := NewDownloader(tr, Options{})
	err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath)
	if !errors.Is(err, ErrCorruptCheckpoint) {
		t.Fatalf("expected ErrCorruptCheckpoint, got %v", err)
	}
	if totalCalls(tr) != 0 {
		t.Error("expected no fetches with a corrupt checkpoint")
	}
}

func TestDownloadResumeMismatchAborts(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	if err := saveCheckpoint(outputPath, Checkpoint{Index: 2}); err != nil {
		t.Fatalf("saveCheckpoint: %v", err)
	}
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "one", "two", "three")

	dl := NewDownloader(tr, Options{})
	err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath)
	if !errors.Is(err, ErrResumeMismatch) {
		t.Fatalf("expected ErrResumeMismatch, got %v", err)
	}
	if totalCalls(tr) != 0 {
		t.Error("expected no fetches on resume mismatch")
	}
}

func TestDownloadKeepFragments(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "one-", "two!")

	dl := NewDownloader(tr, Options{KeepFragments: true})
	if err := dl.Download(context.Background(), NewFiniteSequence(locators), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	for i := range locators {
		fragPath := fmt.Sprintf("%s-Frag%d", TempOutputPath(outputPath), i)
		if _, err := os.Stat(fragPath); err != nil {
			t.Errorf("expected kept fragment file %s: %v", fragPath, err)
		}
	}
}

func TestDownloadEmptySequence(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()

	dl := NewDownloader(tr, Options{})
	if err := dl.Download(context.Background(), NewFiniteSequence(nil), outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	info, err := os.Stat(outputPath)
	if err != nil {
		t.Fatalf("expected empty output file: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty output, got %d bytes", info.Size())
	}
	if _, err := os.Stat(CheckpointPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected sidecar to be cleared")
	}
}

func TestDownloadCancelledStaysResumable(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "video.ts")
	tr := newScriptedTransport()
	locators := scriptFragments(tr, "payload")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dl := NewDownloader(tr, Options{})
	err := dl.Download(ctx, NewFiniteSequence(locators), outputPath)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// Cancellation leaves a consistent resume pair behind.
	cp, found, err := loadCheckpoint(outputPath)
	if err != nil || !found {
		t.Fatalf("expected sidecar after cancellation: found=%v err=%v", found, err)
	}
	if cp.Index != 0 {
		t.Errorf("expected checkpoint index 0, got %d", cp.Index)
	}
	if _, err := os.Stat(TempOutputPath(outputPath)); err != nil {
		t.Errorf("expected temp output after cancellation: %v", err)
	}
	if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
		t.Error("expected no final output after cancellation")
	}
}

func liveURL(index int) string {
	return fmt.Sprintf("https://cdn.example.com/live%d.ts", index)
}

func TestLiveCaptureUntilStreamEnds(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "capture.ts")
	tr := newScriptedTransport()
	for i := range 3 {
		tr.payloads[liveURL(i)] = []byte(fmt.Sprintf("seg%d-", i))
	}
	seq := NewLiveSequence(func(_ context.Context, index int) (Locator, bool, error) {
		if index >= 3 {
			return Locator{}, false, nil
		}
		return Locator{URL: liveURL(index)}, true, nil
	})

	var last Snapshot
	dl := NewDownloader(tr, Options{OnProgress: func(s Snapshot) { last = s }})
	if err := dl.Download(context.Background(), seq, outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, _ := os.ReadFile(outputPath)
	if string(got) != "seg0-seg1-seg2-" {
		t.Errorf("output mismatch: %q", got)
	}
	// Live sessions never touch the sidecar.
	if _, err := os.Stat(CheckpointPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected no sidecar for live capture")
	}
	if last.Status != StatusFinished || last.FragmentCount != 3 {
		t.Errorf("unexpected finished snapshot: %+v", last)
	}
}

func TestLiveCaptureCancelFinalizes(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "capture.ts")
	tr := newScriptedTransport()
	for i := range 2 {
		tr.payloads[liveURL(i)] = []byte(fmt.Sprintf("seg%d-", i))
	}
	ctx, cancel := context.WithCancel(context.Background())
	seq := NewLiveSequence(func(ctx context.Context, index int) (Locator, bool, error) {
		if index == 2 {
			// Simulates SIGINT while waiting for the next segment.
			cancel()
			return Locator{}, false, ctx.Err()
		}
		return Locator{URL: liveURL(index)}, true, nil
	})

	dl := NewDownloader(tr, Options{})
	if err := dl.Download(ctx, seq, outputPath); err != nil {
		t.Fatalf("expected graceful stop, got %v", err)
	}

	got, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("expected finalized output: %v", err)
	}
	if string(got) != "seg0-seg1-" {
		t.Errorf("output mismatch: %q", got)
	}
	if _, err := os.Stat(TempOutputPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected temp output to be renamed away")
	}
	if _, err := os.Stat(CheckpointPath(outputPath)); !os.IsNotExist(err) {
		t.Error("expected no sidecar for live capture")
	}
}

func TestLiveCaptureDiscardsLeftoverTempOutput(t *testing.T) {
	outputPath := filepath.Join(t.TempDir(), "capture.ts")
	writeFile(t, TempOutputPath(outputPath), []byte("stale bytes from a previous run"))
	tr := newScriptedTransport()
	tr.payloads[liveURL(0)] = []byte("fresh")
	seq := NewLiveSequence(func(_ context.Context, index int) (Locator, bool, error) {
		if index >= 1 {
			return Locator{}, false, nil
		}
		return Locator{URL: liveURL(index)}, true, nil
	})

	dl := NewDownloader(tr, Options{})
	if err := dl.Download(context.Background(), seq, outputPath); err != nil {
		t.Fatalf("Download: %v", err)
	}

	got, _ := os.ReadFile(outputPath)
	if string(got) != "fresh" {
		t.Errorf("expected leftover bytes discarded, got %q", got)
	}
}
