package hls

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tanq16/fragzo/internal/fragment"
	"github.com/tanq16/fragzo/internal/manifest"
	"github.com/tanq16/fragzo/internal/utils"
)

func testClient() *utils.FragzoHTTPClient {
	return utils.NewFragzoHTTPClient(utils.HTTPClientConfig{})
}

func TestFollowerServesInitialWindow(t *testing.T) {
	pl := &manifest.Playlist{
		MediaURL: "https://cdn.example.com/live.m3u8",
		Fragments: []fragment.Locator{
			{URL: "https://cdn.example.com/seg10.ts"},
			{URL: "https://cdn.example.com/seg11.ts"},
		},
		MediaSequence: 10,
		Live:          true,
	}
	f := newPlaylistFollower(pl, testClient())

	for i, want := range []string{"https://cdn.example.com/seg10.ts", "https://cdn.example.com/seg11.ts"} {
		loc, ok, err := f.next(context.Background(), i)
		if err != nil || !ok {
			t.Fatalf("next(%d): ok=%v err=%v", i, ok, err)
		}
		if loc.URL != want {
			t.Errorf("next(%d): got %q, want %q", i, loc.URL, want)
		}
	}
}

func TestFollowerPrependsInitSegment(t *testing.T) {
	pl := &manifest.Playlist{
		MediaURL:      "https://cdn.example.com/live.m3u8",
		Fragments:     []fragment.Locator{{URL: "https://cdn.example.com/seg0.m4s"}},
		InitSegment:   "https://cdn.example.com/init.mp4",
		MediaSequence: 0,
		Live:          true,
	}
	f := newPlaylistFollower(pl, testClient())

	loc, ok, err := f.next(context.Background(), 0)
	if err != nil || !ok {
		t.Fatalf("next(0): ok=%v err=%v", ok, err)
	}
	if loc.URL != "https://cdn.example.com/init.mp4" {
		t.Errorf("expected init segment first, got %q", loc.URL)
	}
	loc, _, _ = f.next(context.Background(), 1)
	if loc.URL != "https://cdn.example.com/seg0.m4s" {
		t.Errorf("expected media segment second, got %q", loc.URL)
	}
}

func TestFollowerDiscoversNewSegmentsUntilEnd(t *testing.T) {
	var refreshes atomic.Int64
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch refreshes.Add(1) {
		case 1:
			// Window slid by one: segB repeats, segC is new.
			w.Write([]byte("#EXTM3U\n#EXT-X-MEDIA-SEQUENCE:11\n#EXTINF:2.0,\nsegB.ts\n#EXTINF:2.0,\nsegC.ts\n"))
		default:
			// Window jumped past one unseen segment and the stream ended.
			w.Write([]byte("#EXTM3U\n#EXT-X-MEDIA-SEQUENCE:14\n#EXTINF:2.0,\nsegF.ts\n#EXT-X-ENDLIST\n"))
		}
	}))
	defer server.Close()

	pl := &manifest.Playlist{
		MediaURL: server.URL + "/live.m3u8",
		Fragments: []fragment.Locator{
			{URL: server.URL + "/segA.ts"},
			{URL: server.URL + "/segB.ts"},
		},
		MediaSequence:  10,
		TargetDuration: 10 * time.Millisecond,
		Live:           true,
	}
	f := newPlaylistFollower(pl, testClient())
	ctx := context.Background()

	var got []string
	for i := 0; ; i++ {
		loc, ok, err := f.next(ctx, i)
		if err != nil {
			t.Fatalf("next(%d): %v", i, err)
		}
		if !ok {
			break
		}
		got = append(got, loc.URL)
	}

	want := []string{
		server.URL + "/segA.ts",
		server.URL + "/segB.ts",
		server.URL + "/segC.ts",
		server.URL + "/segF.ts",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFollowerKeepsPollingAfterRefreshError(t *testing.T) {
	var refreshes atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refreshes.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("#EXTM3U\n#EXT-X-MEDIA-SEQUENCE:1\n#EXTINF:2.0,\nseg1.ts\n#EXT-X-ENDLIST\n"))
	}))
	defer server.Close()

	pl := &manifest.Playlist{
		MediaURL:       server.URL + "/live.m3u8",
		Fragments:      []fragment.Locator{{URL: server.URL + "/seg0.ts"}},
		MediaSequence:  0,
		TargetDuration: 10 * time.Millisecond,
		Live:           true,
	}
	f := newPlaylistFollower(pl, testClient())

	loc, ok, err := f.next(context.Background(), 1)
	if err != nil || !ok {
		t.Fatalf("next(1): ok=%v err=%v", ok, err)
	}
	if loc.URL != server.URL+"/seg1.ts" {
		t.Errorf("expected segment after transient error, got %q", loc.URL)
	}
	if refreshes.Load() < 2 {
		t.Errorf("expected at least 2 refresh attempts, got %d", refreshes.Load())
	}
}

func TestFollowerStopsOnContextCancel(t *testing.T) {
	pl := &manifest.Playlist{
		MediaURL:       "https://cdn.example.com/live.m3u8",
		MediaSequence:  0,
		TargetDuration: time.Hour,
		Live:           true,
	}
	f := newPlaylistFollower(pl, testClient())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok, err := f.next(ctx, 0)
	if ok {
		t.Error("expected no fragment after cancellation")
	}
	if err == nil {
		t.Error("expected context error")
	}
}
