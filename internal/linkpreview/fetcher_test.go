package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/hitoshi/bookmarker/internal/model"
	"github.com/hitoshi/bookmarker/internal/security"
)

// --- モック ---

// mockValidator はhttptestサーバー(127.0.0.1)を許可するためのバリデータ。
type mockValidator struct {
	validateFn func(rawURL string) (*url.URL, error)
}

func (m *mockValidator) ValidateURL(rawURL string) (*url.URL, error) {
	if m.validateFn != nil {
		return m.validateFn(rawURL)
	}
	return url.Parse(rawURL)
}

func newTestFetcher(ts *httptest.Server, maxSize int64) *Fetcher {
	return NewFetcher(&mockValidator{}, ts.Client(), security.NewTextSanitizer(), maxSize)
}

func serveHTML(body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	}))
}

func assertCode(t *testing.T, err error, want string) {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *model.APIError with code %s, got %v", want, err)
	}
	if apiErr.Code != want {
		t.Fatalf("error code = %s, want %s", apiErr.Code, want)
	}
}

func TestFetch_Title(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			name: "title tag",
			html: `<html><head><title>The Go Programming Language</title></head><body></body></html>`,
			want: "The Go Programming Language",
		},
		{
			name: "og:title fallback",
			html: `<html><head><meta property="og:title" content="Open Graph Title"></head><body><title>ignored</title></body></html>`,
			want: "Open Graph Title",
		},
		{
			name: "title preferred over og:title",
			html: `<head><meta property="og:title" content="OG"><title>Real</title></head>`,
			want: "Real",
		},
		{
			name: "whitespace collapsed",
			html: "<head><title>\n  Go\n\t Blog  </title></head>",
			want: "Go Blog",
		},
		{
			name: "entities decoded",
			html: `<head><title>Tom &amp; Jerry</title></head>`,
			want: "Tom & Jerry",
		},
		{
			name: "markup inside title stripped",
			html: `<head><title>&lt;b&gt;Bold&lt;/b&gt; news</title></head>`,
			want: "Bold news",
		},
		{
			name: "no title",
			html: `<html><head></head><body><h1>Heading</h1></body></html>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := serveHTML(tt.html)
			defer ts.Close()

			p, err := newTestFetcher(ts, 0).Fetch(context.Background(), ts.URL)
			if err != nil {
				t.Fatalf("Fetch returned error: %v", err)
			}
			if p.Title != tt.want {
				t.Errorf("Title = %q, want %q", p.Title, tt.want)
			}
			if p.URL != ts.URL {
				t.Errorf("URL = %q, want %q", p.URL, ts.URL)
			}
		})
	}
}

func TestFetch_TruncatesLongTitle(t *testing.T) {
	ts := serveHTML("<head><title>" + strings.Repeat("あ", 300) + "</title></head>")
	defer ts.Close()

	p, err := newTestFetcher(ts, 0).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if got := len([]rune(p.Title)); got != maxTitleRunes {
		t.Errorf("title length = %d, want %d", got, maxTitleRunes)
	}
}

// 上限を超える部分は読まない
func TestFetch_RespectsMaxSize(t *testing.T) {
	page := "<head>" + strings.Repeat("<!-- padding -->", 100) + "<title>Late</title></head>"
	ts := serveHTML(page)
	defer ts.Close()

	p, err := newTestFetcher(ts, 64).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if p.Title != "" {
		t.Errorf("Title = %q, want empty because the title lies past the size limit", p.Title)
	}
}

func TestFetch_NonHTMLHasNoTitle(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer ts.Close()

	p, err := newTestFetcher(ts, 0).Fetch(context.Background(), ts.URL)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if p.Title != "" {
		t.Errorf("Title = %q, want empty", p.Title)
	}
}

func TestFetch_SendsUserAgent(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<title>x</title>")
	}))
	defer ts.Close()

	if _, err := newTestFetcher(ts, 0).Fetch(context.Background(), ts.URL); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if gotUA != userAgent {
		t.Errorf("User-Agent = %q, want %q", gotUA, userAgent)
	}
}

func TestFetch_UpstreamErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := newTestFetcher(ts, 0).Fetch(context.Background(), ts.URL)
	assertCode(t, err, model.ErrCodePreviewFetchFailed)
}

func TestFetch_ConnectionFailure(t *testing.T) {
	ts := serveHTML("<title>x</title>")
	target := ts.URL
	client := ts.Client()
	ts.Close()

	f := NewFetcher(&mockValidator{}, client, security.NewTextSanitizer(), 0)
	_, err := f.Fetch(context.Background(), target)
	assertCode(t, err, model.ErrCodePreviewFetchFailed)
}

func TestFetch_InvalidURL(t *testing.T) {
	f := NewFetcher(security.NewSSRFGuard(), http.DefaultClient, security.NewTextSanitizer(), 0)

	for _, u := range []string{"", "ftp://example.com", "http://127.0.0.1/", "http://localhost/"} {
		t.Run(u, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), u)
			assertCode(t, err, model.ErrCodeInvalidURL)

			var apiErr *model.APIError
			errors.As(err, &apiErr)
			if strings.Contains(apiErr.Message, "unsafe url:") {
				t.Errorf("message %q should not repeat the sentinel prefix", apiErr.Message)
			}
		})
	}
}

// SSRF対策済みクライアントはループバックへの接続を拒否する
func TestFetch_SafeClientBlocksLoopback(t *testing.T) {
	ts := serveHTML("<title>internal</title>")
	defer ts.Close()

	guard := security.NewSSRFGuard()
	f := NewFetcher(&mockValidator{}, guard.NewSafeClient(0), security.NewTextSanitizer(), 0)

	_, err := f.Fetch(context.Background(), ts.URL)
	assertCode(t, err, model.ErrCodePreviewFetchFailed)
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		ct   string
		want bool
	}{
		{"", true},
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"image/png", false},
		{";;;", false},
	}
	for _, tt := range tests {
		if got := isHTML(tt.ct); got != tt.want {
			t.Errorf("isHTML(%q) = %v, want %v", tt.ct, got, tt.want)
		}
	}
}
