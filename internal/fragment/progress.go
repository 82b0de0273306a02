package fragment

import "time"

const (
	StatusDownloading = "downloading"
	StatusFinished    = "finished"
)

// Snapshot is a point-in-time view of a download session, rebuilt for every
// observer callback and never persisted.
type Snapshot struct {
	Status             string
	DownloadedBytes    int64
	TotalBytesEstimate int64 // -1 when unknown
	FragmentIndex      int
	FragmentCount      int // -1 when unknown (live)
	Filename           string
	TempFilename       string
	Elapsed            time.Duration
	Speed              float64       // bytes per second, 0 when unknown
	ETA                time.Duration // negative when unknown
}

// progressState accumulates session statistics across fragment events.
// index counts fully fetched fragments, so while fragment i is in flight
// index == i and it advances when the fragment's final event folds in.
type progressState struct {
	started    time.Time
	resumed    int64 // bytes already on disk when the session began
	downloaded int64 // cumulative bytes including resumed
	completed  int64 // bytes of fully fetched fragments including resumed
	prevFrag   int64 // bytes reported so far for the in-flight fragment
	index      int
	count      int // total fragments, -1 for live
	filename   string
	tempname   string
}

// progressEvent is one byte-level update for the in-flight fragment.
// fragBytes is cumulative for that fragment; fragTotal is its expected size
// (negative when unknown). A final event reports the fragment fully fetched
// with fragBytes == fragTotal == its size on disk.
type progressEvent struct {
	final     bool
	fragBytes int64
	fragTotal int64
}

func newProgressState(outputPath string, resumed int64, index, count int, started time.Time) progressState {
	return progressState{
		started:    started,
		resumed:    resumed,
		downloaded: resumed,
		completed:  resumed,
		index:      index,
		count:      count,
		filename:   outputPath,
		tempname:   TempOutputPath(outputPath),
	}
}

// foldProgress applies one event and returns the updated state plus the
// snapshot to report. Byte accounting is delta-based: each event carries the
// fragment's cumulative count, so only the growth since the previous event
// is added to the session total.
func foldProgress(st progressState, ev progressEvent, now time.Time) (progressState, Snapshot) {
	elapsed := now.Sub(st.started)

	// Extrapolate total size from the average fragment size seen so far.
	// The in-flight fragment's expected size counts as if complete, so the
	// estimate is volatile early on and stabilizes as fragments finish.
	estimate := int64(-1)
	if st.count >= 0 {
		fragTotal := ev.fragTotal
		if fragTotal < 0 {
			fragTotal = 0
		}
		estimate = int64(float64(st.completed+fragTotal) / float64(st.index+1) * float64(st.count))
	}

	if ev.final {
		st.index++
		st.downloaded += ev.fragBytes - st.prevFrag
		st.completed = st.downloaded
		st.prevFrag = 0
	} else {
		st.downloaded += ev.fragBytes - st.prevFrag
		st.prevFrag = ev.fragBytes
	}

	speed := calcSpeed(st.downloaded-st.resumed, elapsed)
	eta := time.Duration(-1)
	if estimate >= 0 && speed > 0 {
		remaining := estimate - st.downloaded
		if remaining < 0 {
			remaining = 0
		}
		eta = time.Duration(float64(remaining) / speed * float64(time.Second))
	}

	return st, Snapshot{
		Status:             StatusDownloading,
		DownloadedBytes:    st.downloaded,
		TotalBytesEstimate: estimate,
		FragmentIndex:      st.index,
		FragmentCount:      st.count,
		Filename:           st.filename,
		TempFilename:       st.tempname,
		Elapsed:            elapsed,
		Speed:              speed,
		ETA:                eta,
	}
}

// initialSnapshot reports the session's starting point, which on resume
// already includes the bytes recovered from the temp output file.
func (st progressState) initialSnapshot(now time.Time) Snapshot {
	return Snapshot{
		Status:             StatusDownloading,
		DownloadedBytes:    st.downloaded,
		TotalBytesEstimate: -1,
		FragmentIndex:      st.index,
		FragmentCount:      st.count,
		Filename:           st.filename,
		TempFilename:       st.tempname,
		Elapsed:            now.Sub(st.started),
		ETA:                -1,
	}
}

// finishedSnapshot reports the terminal state after finalize, carrying the
// final file size as both downloaded and total bytes.
func (st progressState) finishedSnapshot(size int64, now time.Time) Snapshot {
	count := st.count
	if count < 0 {
		count = st.index
	}
	elapsed := now.Sub(st.started)
	return Snapshot{
		Status:             StatusFinished,
		DownloadedBytes:    size,
		TotalBytesEstimate: size,
		FragmentIndex:      st.index,
		FragmentCount:      count,
		Filename:           st.filename,
		TempFilename:       st.tempname,
		Elapsed:            elapsed,
		Speed:              calcSpeed(st.downloaded-st.resumed, elapsed),
	}
}

func calcSpeed(bytes int64, elapsed time.Duration) float64 {
	if bytes <= 0 || elapsed < time.Millisecond {
		return 0
	}
	return float64(bytes) / elapsed.Seconds()
}
