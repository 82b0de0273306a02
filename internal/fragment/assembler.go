package fragment

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// assembler owns the temp output file. Fragments are appended in order and
// the file is renamed to its final name only when the session finishes.
type assembler struct {
	outputPath string
	tempPath   string
	file       *os.File
	resumed    int64 // bytes already present when the session opened
	written    int64 // total bytes in the temp output file
}

// openAssembler opens the temp output file, appending if it already exists.
// The checkpoint and the file must agree about prior progress: a checkpoint
// past fragment zero with an empty file, or bytes on disk with a fresh
// checkpoint, both mean the pair is unusable.
func openAssembler(outputPath string, cp Checkpoint) (*assembler, error) {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &IOError{Err: fmt.Errorf("error creating output directory: %v", err)}
		}
	}
	tempPath := TempOutputPath(outputPath)
	var resumed int64
	exists := false
	if info, err := os.Stat(tempPath); err == nil {
		exists = true
		resumed = info.Size()
	} else if !os.IsNotExist(err) {
		return nil, &IOError{Err: fmt.Errorf("error checking temp output: %v", err)}
	}
	if cp.Index > 0 && resumed == 0 {
		return nil, fmt.Errorf("%w: checkpoint expects %d fragments but %s is empty", ErrResumeMismatch, cp.Index, tempPath)
	}
	if cp.Index == 0 && resumed > 0 {
		return nil, fmt.Errorf("%w: %s holds %d bytes but checkpoint expects none", ErrResumeMismatch, tempPath, resumed)
	}
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if exists {
		flags = os.O_WRONLY | os.O_APPEND
	}
	file, err := os.OpenFile(tempPath, flags, 0644)
	if err != nil {
		return nil, &IOError{Err: fmt.Errorf("error opening temp output: %v", err)}
	}
	return &assembler{
		outputPath: outputPath,
		tempPath:   tempPath,
		file:       file,
		resumed:    resumed,
		written:    resumed,
	}, nil
}

// openLiveAssembler opens a fresh temp output, discarding any leftover
// partial file. Live captures cannot resume because the playlist window has
// moved since the previous attempt.
func openLiveAssembler(outputPath string) (*assembler, error) {
	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &IOError{Err: fmt.Errorf("error creating output directory: %v", err)}
		}
	}
	tempPath := TempOutputPath(outputPath)
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &IOError{Err: fmt.Errorf("error opening temp output: %v", err)}
	}
	return &assembler{
		outputPath: outputPath,
		tempPath:   tempPath,
		file:       file,
	}, nil
}

// appendFragment copies a fetched fragment file onto the end of the temp
// output and syncs it to disk before the caller advances the checkpoint.
func (a *assembler) appendFragment(fragPath string) (int64, error) {
	frag, err := os.Open(fragPath)
	if err != nil {
		return 0, &IOError{Err: fmt.Errorf("error opening fragment file: %v", err)}
	}
	n, err := io.Copy(a.file, frag)
	frag.Close()
	if err != nil {
		return n, &IOError{Err: fmt.Errorf("error appending fragment: %v", err)}
	}
	if err := a.file.Sync(); err != nil {
		return n, &IOError{Err: fmt.Errorf("error syncing output: %v", err)}
	}
	a.written += n
	return n, nil
}

// finalize closes the temp output and renames it to the real output path.
func (a *assembler) finalize() (int64, error) {
	if err := a.file.Close(); err != nil {
		a.file = nil
		return 0, &IOError{Err: fmt.Errorf("error closing temp output: %v", err)}
	}
	a.file = nil
	if err := os.Rename(a.tempPath, a.outputPath); err != nil {
		return 0, &IOError{Err: fmt.Errorf("error renaming output: %v", err)}
	}
	return a.written, nil
}

// close releases the temp output without renaming, keeping it on disk so a
// later session can resume.
func (a *assembler) close() {
	if a.file != nil {
		a.file.Close()
		a.file = nil
	}
}
