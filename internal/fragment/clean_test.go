package fragment

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCleanArtifacts(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	artifacts := []string{
		filepath.Join(dir, "video.ts.part"),
		filepath.Join(dir, "video.ts.fragzo"),
		filepath.Join(dir, "video.ts.fragzo.tmp"),
		filepath.Join(dir, "video.ts.part-Frag7"),
		filepath.Join(sub, "other.mp4.part"),
	}
	keepers := []string{
		filepath.Join(dir, "video.ts"),
		filepath.Join(dir, "notes.txt"),
		filepath.Join(dir, ".fragzo.log"),
	}
	for _, path := range append(append([]string{}, artifacts...), keepers...) {
		writeFile(t, path, []byte("x"))
	}

	removed, err := CleanArtifacts(dir)
	if err != nil {
		t.Fatalf("CleanArtifacts: %v", err)
	}
	if removed != len(artifacts) {
		t.Errorf("expected %d removed, got %d", len(artifacts), removed)
	}
	for _, path := range artifacts {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("expected %s to be removed", path)
		}
	}
	for _, path := range keepers {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to survive: %v", path, err)
		}
	}
}

func TestCleanArtifactsEmptyDir(t *testing.T) {
	removed, err := CleanArtifacts(t.TempDir())
	if err != nil {
		t.Fatalf("CleanArtifacts: %v", err)
	}
	if removed != 0 {
		t.Errorf("expected nothing removed, got %d", removed)
	}
}
