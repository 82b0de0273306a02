package utils

import "context"

type Downloader interface {
	ValidateJob(job *FragzoJob) error
	BuildJob(job *FragzoJob) error
	Download(ctx context.Context, job *FragzoJob) error
}

type FragzoJob struct {
	ID               string
	JobType          string
	URL              string
	OutputPath       string
	ProgressType     string
	ProgressFunc     func(downloaded, total int64, detail string)
	StreamFunc       func(line string)
	FragmentRetries  int
	SkipUnavailable  bool
	KeepFragments    bool
	RateLimit        int64 // bytes per second, 0 means unlimited
	Metadata         map[string]any
	HTTPClientConfig HTTPClientConfig
}

type BatchEntry struct {
	OutputPath string `yaml:"op,omitempty"`
	Link       string `yaml:"link"`
}

type BatchFile map[string][]BatchEntry
