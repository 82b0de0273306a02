package scheduler

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanq16/fragzo/internal/downloaders/hls"
	"github.com/tanq16/fragzo/internal/downloaders/list"
	"github.com/tanq16/fragzo/internal/output"
	"github.com/tanq16/fragzo/internal/utils"
)

// downloaderRegistry maps job types to their respective downloader implementations
var downloaderRegistry = map[string]utils.Downloader{
	"hls":  &hls.HLSDownloader{},
	"list": &list.ListDownloader{},
}

// Run executes the given jobs over a worker pool, reporting progress through
// the output manager until every job finishes. The console display owns the
// terminal, so zerolog is redirected to a file when fileLog is set and
// silenced otherwise. Returns an error when any job failed.
func Run(ctx context.Context, jobs []utils.FragzoJob, numWorkers int, fileLog bool) error {
	if fileLog {
		logFile, err := os.OpenFile(utils.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer logFile.Close()
			utils.SetLogOutput(logFile)
		}
	} else {
		utils.SetLogOutput(io.Discard)
	}

	outputMgr := output.NewManager()
	outputMgr.StartDisplay()
	defer outputMgr.StopDisplay()

	jobCh := make(chan utils.FragzoJob, len(jobs))
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)

	var failed atomic.Int64
	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			processJobs(ctx, jobCh, outputMgr, &failed)
		}()
	}
	wg.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d downloads failed", n, len(jobs))
	}
	return nil
}

// processJobs handles job processing for a worker
func processJobs(ctx context.Context, jobCh <-chan utils.FragzoJob, outputMgr *output.Manager, failed *atomic.Int64) {
	for job := range jobCh {
		job.ID = uuid.NewString()
		outputMgr.Register(job.ID, job.URL)

		if ctx.Err() != nil {
			outputMgr.ReportError(job.ID, ctx.Err())
			outputMgr.SetMessage(job.ID, "Cancelled before start")
			failed.Add(1)
			continue
		}

		downloader, exists := downloaderRegistry[job.JobType]
		if !exists {
			outputMgr.ReportError(job.ID, fmt.Errorf("unknown job type: %s", job.JobType))
			outputMgr.SetMessage(job.ID, fmt.Sprintf("Error: Unknown job type %s", job.JobType))
			failed.Add(1)
			continue
		}
		log.Debug().Str("op", "scheduler").Str("jobId", job.ID).Msgf("Starting %s job for %s", job.JobType, job.URL)

		outputMgr.SetStatus(job.ID, "pending")
		outputMgr.SetMessage(job.ID, fmt.Sprintf("Validating %s job", job.JobType))
		if err := downloader.ValidateJob(&job); err != nil {
			outputMgr.ReportError(job.ID, fmt.Errorf("validation failed: %v", err))
			outputMgr.SetMessage(job.ID, fmt.Sprintf("Validation failed for %s", job.URL))
			failed.Add(1)
			continue
		}

		outputMgr.SetMessage(job.ID, fmt.Sprintf("Building %s job", job.JobType))
		if err := downloader.BuildJob(&job); err != nil {
			outputMgr.ReportError(job.ID, fmt.Errorf("build failed: %v", err))
			outputMgr.SetMessage(job.ID, fmt.Sprintf("Build failed for %s", job.URL))
			failed.Add(1)
			continue
		}

		outputMgr.SetStatus(job.ID, "downloading")
		outputMgr.SetMessage(job.ID, fmt.Sprintf("Downloading %s", job.OutputPath))
		jobID := job.ID
		job.ProgressFunc = func(downloaded, total int64, detail string) {
			outputMgr.UpdateProgress(jobID, downloaded, total, detail)
		}
		job.StreamFunc = func(line string) {
			outputMgr.AddStreamLine(jobID, line)
		}
		if err := downloader.Download(ctx, &job); err != nil {
			outputMgr.ReportError(job.ID, fmt.Errorf("download failed: %v", err))
			outputMgr.SetMessage(job.ID, fmt.Sprintf("Download failed for %s", job.OutputPath))
			failed.Add(1)
			continue
		}

		outputMgr.Complete(job.ID, fmt.Sprintf("Completed %s", job.OutputPath))
		log.Debug().Str("op", "scheduler").Str("jobId", job.ID).Msgf("Finished %s", job.OutputPath)
	}
}
