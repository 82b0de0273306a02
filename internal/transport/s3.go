package transport

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/utils"
)

// S3Transport fetches s3://bucket/key fragments. Parts are downloaded
// sequentially so transfer callbacks stay cumulative and in order.
type S3Transport struct {
	client *s3.Client
}

func NewS3Transport(ctx context.Context, profile string) (*S3Transport, error) {
	if profile == "" {
		profile = os.Getenv("AWS_PROFILE")
	}
	if profile == "" {
		profile = "default"
	}
	cfg, err := config.LoadDefaultConfig(ctx, config.WithSharedConfigProfile(profile), config.WithRetryMode("adaptive"))
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	s3Options := func(o *s3.Options) {
		// Disable checksum validation warning
		o.DisableLogOutputChecksumValidationSkipped = true
	}
	return &S3Transport{client: s3.NewFromConfig(cfg, s3Options)}, nil
}

func parseS3URL(rawURL string) (string, string, error) {
	trimmed := strings.TrimPrefix(rawURL, "s3://")
	if trimmed == rawURL {
		return "", "", fmt.Errorf("not an s3 URL: %s", rawURL)
	}
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("s3 URL %s has no object key", rawURL)
	}
	return parts[0], parts[1], nil
}

// s3ProgressWriter reports cumulative bytes as the manager writes parts
// and remembers the first local write failure so it can be told apart from
// a transfer failure.
type s3ProgressWriter struct {
	writer   io.WriterAt
	written  int64
	total    int64
	transfer fragment.TransferFunc
	writeErr error
}

func (pw *s3ProgressWriter) WriteAt(p []byte, off int64) (int, error) {
	n, err := pw.writer.WriteAt(p, off)
	if err != nil && pw.writeErr == nil {
		pw.writeErr = err
	}
	if n > 0 {
		pw.written += int64(n)
		pw.transfer(pw.written, pw.total)
	}
	return n, err
}

func (t *S3Transport) Fetch(ctx context.Context, loc fragment.Locator, destPath string, transfer fragment.TransferFunc) (int64, error) {
	bucket, key, err := parseS3URL(loc.URL)
	if err != nil {
		return 0, err
	}
	headObj, err := t.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("error getting S3 object info: %v", err)
	}
	total := int64(-1)
	if headObj.ContentLength != nil {
		total = *headObj.ContentLength
	}
	file, err := os.Create(destPath)
	if err != nil {
		return 0, &fragment.IOError{Err: fmt.Errorf("error creating fragment file: %v", err)}
	}
	defer file.Close()
	transfer(0, total)

	downloader := manager.NewDownloader(t.client, func(d *manager.Downloader) {
		d.PartSize = utils.DefaultBufferSize
		// Sequential parts keep the transfer callback cumulative.
		d.Concurrency = 1
		d.BufferProvider = manager.NewPooledBufferedWriterReadFromProvider(utils.DefaultBufferSize)
	})
	pw := &s3ProgressWriter{writer: file, total: total, transfer: transfer}
	n, err := downloader.Download(ctx, pw, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if pw.writeErr != nil {
			return n, &fragment.IOError{Err: fmt.Errorf("error writing fragment file: %v", pw.writeErr)}
		}
		return n, fmt.Errorf("error downloading S3 object: %v", err)
	}
	if err := file.Sync(); err != nil {
		return n, &fragment.IOError{Err: fmt.Errorf("error syncing fragment file: %v", err)}
	}
	return n, nil
}
