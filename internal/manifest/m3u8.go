// Package manifest turns upstream inputs, HLS playlists and plain URL
// lists, into ordered fragment locators for the download engine.
package manifest

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/utils"
)

// Playlist is one parsed HLS playlist. A master playlist carries Variants
// and no Fragments; a media playlist carries Fragments and the tags needed
// to follow it while live.
type Playlist struct {
	MediaURL       string
	Fragments      []fragment.Locator
	Variants       []string
	InitSegment    string // EXT-X-MAP URI, empty when absent
	Live           bool
	TargetDuration time.Duration
	MediaSequence  int64
}

const maxMasterDepth = 5

// FetchHLS downloads and parses a playlist. Master playlists are followed
// into their first variant, which lists streams highest quality first by
// convention.
func FetchHLS(ctx context.Context, manifestURL string, client *utils.FragzoHTTPClient) (*Playlist, error) {
	for depth := 0; depth < maxMasterDepth; depth++ {
		content, err := fetchContents(ctx, manifestURL, client)
		if err != nil {
			return nil, err
		}
		pl, err := Parse(content, manifestURL)
		if err != nil {
			return nil, err
		}
		if len(pl.Variants) == 0 {
			return pl, nil
		}
		log.Debug().Str("op", "manifest/m3u8").Msgf("Detected master playlist, fetching sub-playlist: %s", pl.Variants[0])
		manifestURL = pl.Variants[0]
	}
	return nil, fmt.Errorf("too many nested master playlists")
}

func fetchContents(ctx context.Context, manifestURL string, client *utils.FragzoHTTPClient) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", manifestURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching m3u8 manifest: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned status code %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading manifest content: %v", err)
	}
	return string(content), nil
}

// Parse interprets playlist text. Relative URIs are resolved against
// manifestURL. Encrypted playlists are rejected, payload decryption is out
// of scope.
func Parse(content, manifestURL string) (*Playlist, error) {
	baseURL, err := url.Parse(manifestURL)
	if err != nil {
		return nil, fmt.Errorf("error parsing manifest URL: %v", err)
	}
	pl := &Playlist{MediaURL: manifestURL, MediaSequence: 0}
	scanner := bufio.NewScanner(strings.NewReader(content))
	var isMaster, ended, vod bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			isMaster = true
			continue
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			ended = true
			continue
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:"):
			if strings.TrimPrefix(line, "#EXT-X-PLAYLIST-TYPE:") == "VOD" {
				vod = true
			}
			continue
		case strings.HasPrefix(line, "#EXT-X-TARGETDURATION:"):
			if secs, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-TARGETDURATION:")); err == nil {
				pl.TargetDuration = time.Duration(secs) * time.Second
			}
			continue
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			if seq, err := strconv.ParseInt(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"), 10, 64); err == nil {
				pl.MediaSequence = seq
			}
			continue
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			if method := keyMethod(line); method != "" && method != "NONE" {
				return nil, fmt.Errorf("playlist uses %s encryption, decryption is not supported", method)
			}
			continue
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			if uri := quotedAttr(line, "URI"); uri != "" {
				resolved, err := resolveURL(baseURL, uri)
				if err != nil {
					return nil, fmt.Errorf("error resolving init segment URL: %v", err)
				}
				pl.InitSegment = resolved
			}
			continue
		case strings.HasPrefix(line, "#"):
			continue
		}
		resolved, err := resolveURL(baseURL, line)
		if err != nil {
			return nil, fmt.Errorf("error resolving URL: %v", err)
		}
		if isMaster {
			pl.Variants = append(pl.Variants, resolved)
		} else {
			pl.Fragments = append(pl.Fragments, fragment.Locator{URL: resolved})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning m3u8 content: %v", err)
	}
	if !isMaster {
		pl.Live = !ended && !vod
	}
	return pl, nil
}

func keyMethod(line string) string {
	attrs := strings.TrimPrefix(line, "#EXT-X-KEY:")
	for _, attr := range strings.Split(attrs, ",") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(attr), "METHOD="); ok {
			return v
		}
	}
	return ""
}

func quotedAttr(line, name string) string {
	idx := strings.Index(line, name+`="`)
	if idx == -1 {
		return ""
	}
	start := idx + len(name) + 2
	end := strings.Index(line[start:], `"`)
	if end == -1 {
		return ""
	}
	return line[start : start+end]
}

func resolveURL(baseURL *url.URL, urlStr string) (string, error) {
	if strings.HasPrefix(urlStr, "http://") || strings.HasPrefix(urlStr, "https://") {
		return urlStr, nil
	}
	relURL, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(relURL).String(), nil
}
