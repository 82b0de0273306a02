// Package transport provides fragment fetchers for the protocols fragzo
// speaks: plain HTTP(S) and S3 object storage.
package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/utils"
)

// fragmentBufferSize is the read chunk for fragment bodies. It also caps
// the rate limiter burst, so a single read never exceeds the bucket.
const fragmentBufferSize = 256 * 1024

// HTTPTransport fetches fragments over HTTP(S). One Fetch call is a single
// attempt: a partial fragment file left by an earlier attempt is resumed
// with a Range request when the server cooperates, and refetched from
// scratch when it does not.
type HTTPTransport struct {
	client  *utils.FragzoHTTPClient
	limiter *rate.Limiter
}

// NewHTTPTransport wraps client, throttling body reads to rateLimit bytes
// per second when rateLimit > 0.
func NewHTTPTransport(client *utils.FragzoHTTPClient, rateLimit int64) *HTTPTransport {
	t := &HTTPTransport{client: client}
	if rateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(rateLimit), fragmentBufferSize)
	}
	return t
}

func (t *HTTPTransport) Fetch(ctx context.Context, loc fragment.Locator, destPath string, transfer fragment.TransferFunc) (int64, error) {
	var resumeOffset int64
	fileMode := os.O_CREATE | os.O_WRONLY
	if fileInfo, err := os.Stat(destPath); err == nil {
		resumeOffset = fileInfo.Size()
		fileMode |= os.O_APPEND
	} else if os.IsNotExist(err) {
		fileMode |= os.O_TRUNC
	} else {
		return 0, &fragment.IOError{Err: fmt.Errorf("error checking fragment file: %v", err)}
	}
	outFile, err := os.OpenFile(destPath, fileMode, 0644)
	if err != nil {
		return 0, &fragment.IOError{Err: fmt.Errorf("error creating fragment file: %v", err)}
	}
	defer func() { outFile.Close() }()

	req, err := http.NewRequestWithContext(ctx, "GET", loc.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %v", err)
	}
	for k, v := range loc.Headers {
		req.Header.Set(k, v)
	}
	if resumeOffset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeOffset))
		log.Debug().Str("op", "transport/http").Msgf("Resuming fragment from offset %d", resumeOffset)
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing GET request: %v", err)
	}
	defer resp.Body.Close()

	if resumeOffset > 0 {
		switch resp.StatusCode {
		case http.StatusPartialContent:
		case http.StatusOK:
			log.Warn().Str("op", "transport/http").Msg("Server does not support resume. Restarting fragment.")
			outFile.Close()
			outFile, err = os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
			if err != nil {
				return 0, &fragment.IOError{Err: fmt.Errorf("error recreating fragment file: %v", err)}
			}
			resumeOffset = 0
		default:
			return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
	} else if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = resumeOffset + resp.ContentLength
	}
	downloaded := resumeOffset
	transfer(downloaded, total)
	buffer := make([]byte, fragmentBufferSize)
	for {
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if t.limiter != nil {
				if err := t.limiter.WaitN(ctx, bytesRead); err != nil {
					return downloaded, err
				}
			}
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return downloaded, &fragment.IOError{Err: fmt.Errorf("error writing fragment file: %v", writeErr)}
			}
			downloaded += int64(bytesRead)
			transfer(downloaded, total)
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return downloaded, fmt.Errorf("error reading response body: %v", readErr)
		}
	}
	if err := outFile.Sync(); err != nil {
		return downloaded, &fragment.IOError{Err: fmt.Errorf("error syncing fragment file: %v", err)}
	}
	return downloaded, nil
}
