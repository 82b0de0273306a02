package fragment

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// CleanArtifacts removes leftover session files under dir: temp outputs,
// per-fragment temp files, and checkpoint sidecars. It returns the number
// of files removed.
func CleanArtifacts(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".part"),
			strings.HasSuffix(name, ".fragzo"),
			strings.HasSuffix(name, ".fragzo.tmp"),
			strings.Contains(name, ".part-Frag"):
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}
