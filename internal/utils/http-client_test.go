package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"
)

func doRequest(t *testing.T, client *FragzoHTTPClient, url string, setup func(*http.Request)) {
	t.Helper()
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if setup != nil {
		setup(req)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
}

func TestDoSetsDefaultUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{})
	doRequest(t, client, server.URL, nil)
	if gotUA != ToolUserAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, ToolUserAgent)
	}
}

func TestDoUsesConfiguredUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{UserAgent: "custom-agent/1.0"})
	doRequest(t, client, server.URL, nil)
	if gotUA != "custom-agent/1.0" {
		t.Errorf("User-Agent = %q, want custom-agent/1.0", gotUA)
	}
}

func TestDoAppliesConfigHeaders(t *testing.T) {
	var gotReferer string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{
		Headers: map[string]string{"Referer": "https://example.com/"},
	})
	doRequest(t, client, server.URL, nil)
	if gotReferer != "https://example.com/" {
		t.Errorf("Referer = %q, want config value", gotReferer)
	}
}

func TestDoRequestHeadersTakePrecedence(t *testing.T) {
	var gotAuth, gotRange string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("X-Auth")
		gotRange = r.Header.Get("Range")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{
		Headers: map[string]string{"X-Auth": "config-value"},
	})
	doRequest(t, client, server.URL, func(req *http.Request) {
		req.Header.Set("X-Auth", "request-value")
		req.Header.Set("Range", "bytes=6-")
	})
	if gotAuth != "request-value" {
		t.Errorf("X-Auth = %q, want the request-level value", gotAuth)
	}
	if gotRange != "bytes=6-" {
		t.Errorf("Range = %q, want bytes=6-", gotRange)
	}
}

func TestSetHeader(t *testing.T) {
	var gotCookie string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotCookie = r.Header.Get("Cookie")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{})
	client.SetHeader("Cookie", "session=xyz")
	doRequest(t, client, server.URL, nil)
	if gotCookie != "session=xyz" {
		t.Errorf("Cookie = %q, want session=xyz", gotCookie)
	}
}

func TestDoAddsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := NewFragzoHTTPClient(HTTPClientConfig{
		TokenSource: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-123"}),
	})
	doRequest(t, client, server.URL, nil)
	if gotAuth != "Bearer tok-123" {
		t.Errorf("Authorization = %q, want Bearer tok-123", gotAuth)
	}
}
