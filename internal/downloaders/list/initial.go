// Package list downloads an explicit fragment list: a local file naming
// one fragment URL per line, all http(s) or all s3.
package list

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tanq16/fragzo/internal/manifest"
	"github.com/tanq16/fragzo/internal/utils"
)

type ListDownloader struct{}

func (d *ListDownloader) ValidateJob(job *utils.FragzoJob) error {
	info, err := os.Stat(job.URL)
	if err != nil {
		return fmt.Errorf("cannot read fragment list: %v", err)
	}
	if info.IsDir() {
		return fmt.Errorf("fragment list %s is a directory", job.URL)
	}
	return nil
}

func (d *ListDownloader) BuildJob(job *utils.FragzoJob) error {
	locators, err := manifest.LoadListFile(job.URL)
	if err != nil {
		return err
	}
	if len(locators) == 0 {
		return fmt.Errorf("no fragments found in %s", job.URL)
	}
	if job.OutputPath == "" {
		job.OutputPath = defaultOutputName(job.URL)
	}
	// Only a completed output forces a new name. Resume artifacts are keyed
	// to the temp file, so an interrupted session keeps its path.
	if _, err := os.Stat(job.OutputPath); err == nil {
		job.OutputPath = utils.RenewOutputPath(job.OutputPath)
	}
	job.Metadata["locators"] = locators
	return nil
}

func defaultOutputName(listPath string) string {
	base := filepath.Base(listPath)
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		base = "download"
	}
	return base + ".bin"
}
