package fragment

import (
	"encoding/json"
	"fmt"
	"os"
)

// Checkpoint records how many fragments are fully appended to the temp
// output file. Index is the next fragment to fetch.
type Checkpoint struct {
	Index int
}

type checkpointData struct {
	CurrentFragmentIndex int `json:"current_fragment_index"`
}

type checkpointFile struct {
	Download checkpointData `json:"download"`
}

// CheckpointPath returns the sidecar path for an output file.
func CheckpointPath(outputPath string) string {
	return outputPath + ".fragzo"
}

// loadCheckpoint reads the sidecar. A missing file is a fresh start and
// returns (zero, false, nil). An unparseable file returns
// ErrCorruptCheckpoint.
func loadCheckpoint(outputPath string) (Checkpoint, bool, error) {
	raw, err := os.ReadFile(CheckpointPath(outputPath))
	if os.IsNotExist(err) {
		return Checkpoint{}, false, nil
	}
	if err != nil {
		return Checkpoint{}, false, &IOError{Err: fmt.Errorf("error reading checkpoint: %v", err)}
	}
	var cf checkpointFile
	if err := json.Unmarshal(raw, &cf); err != nil {
		return Checkpoint{}, false, fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}
	if cf.Download.CurrentFragmentIndex < 0 {
		return Checkpoint{}, false, fmt.Errorf("%w: negative fragment index", ErrCorruptCheckpoint)
	}
	return Checkpoint{Index: cf.Download.CurrentFragmentIndex}, true, nil
}

// saveCheckpoint writes the sidecar atomically so a crash mid-write never
// leaves a corrupt file: write to a temp, fsync, then rename into place.
func saveCheckpoint(outputPath string, cp Checkpoint) error {
	raw, err := json.Marshal(checkpointFile{Download: checkpointData{CurrentFragmentIndex: cp.Index}})
	if err != nil {
		return &IOError{Err: fmt.Errorf("error encoding checkpoint: %v", err)}
	}
	path := CheckpointPath(outputPath)
	tmpPath := path + ".tmp"
	tmpFile, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return &IOError{Err: fmt.Errorf("error creating checkpoint temp: %v", err)}
	}
	if _, err := tmpFile.Write(raw); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return &IOError{Err: fmt.Errorf("error writing checkpoint: %v", err)}
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return &IOError{Err: fmt.Errorf("error syncing checkpoint: %v", err)}
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return &IOError{Err: fmt.Errorf("error closing checkpoint: %v", err)}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &IOError{Err: fmt.Errorf("error replacing checkpoint: %v", err)}
	}
	return nil
}

// clearCheckpoint removes the sidecar after a successful finalize.
func clearCheckpoint(outputPath string) error {
	err := os.Remove(CheckpointPath(outputPath))
	if err != nil && !os.IsNotExist(err) {
		return &IOError{Err: fmt.Errorf("error removing checkpoint: %v", err)}
	}
	return nil
}
