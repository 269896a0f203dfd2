// Package linkpreview はブックマーク登録前にURLのページタイトルを取得する。
package linkpreview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/bookmarker/internal/model"
	"github.com/hitoshi/bookmarker/internal/security"
	"golang.org/x/net/html"
)

// DefaultMaxSize は読み込むレスポンスボディの上限。
const DefaultMaxSize int64 = 1 << 20

// maxTitleRunes は返すタイトルの最大文字数。
const maxTitleRunes = 256

const userAgent = "bookmarker-preview/1.0"

// URLValidator は取得先URLの静的検証を行う。security.SSRFGuardが実装する。
type URLValidator interface {
	ValidateURL(rawURL string) (*url.URL, error)
}

// TextSanitizer は取得したタイトルからマークアップを除去する。
type TextSanitizer interface {
	SanitizeText(s string) string
}

// Preview はプレビュー結果。
type Preview struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Fetcher はURLを取得してページタイトルを抽出する。
type Fetcher struct {
	validator URLValidator
	client    *http.Client
	sanitizer TextSanitizer
	maxSize   int64
}

// NewFetcher はFetcherを生成する。
// clientにはSSRF対策済みのクライアント（security.SSRFGuard.NewSafeClient）を渡す。
func NewFetcher(validator URLValidator, client *http.Client, sanitizer TextSanitizer, maxSize int64) *Fetcher {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Fetcher{
		validator: validator,
		client:    client,
		sanitizer: sanitizer,
		maxSize:   maxSize,
	}
}

// Fetch はrawURLのページを取得し、<title>（無ければog:title）を返す。
// URLが不正な場合はINVALID_URL、取得に失敗した場合はPREVIEW_FETCH_FAILEDを返す。
// タイトルが見つからない場合は空文字列のTitleを返す。
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	target, err := f.validator.ValidateURL(rawURL)
	if err != nil {
		return nil, model.NewInvalidURLError(reasonOf(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, model.NewInvalidURLError("malformed url")
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		slog.Warn("link preview fetch failed",
			slog.String("host", target.Host),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPreviewFetchFailedError()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("link preview returned non-2xx",
			slog.String("host", target.Host),
			slog.Int("status", resp.StatusCode),
		)
		return nil, model.NewPreviewFetchFailedError()
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		// 画像やPDFなどはタイトルなしとして扱う
		return &Preview{URL: target.String()}, nil
	}

	title, err := extractTitle(io.LimitReader(resp.Body, f.maxSize))
	if err != nil {
		slog.Warn("link preview parse failed",
			slog.String("host", target.Host),
			slog.String("error", err.Error()),
		)
		return nil, model.NewPreviewFetchFailedError()
	}

	return &Preview{
		URL:   target.String(),
		Title: truncateRunes(f.sanitizer.SanitizeText(title), maxTitleRunes),
	}, nil
}

// extractTitle はHTMLのhead部分から<title>とog:titleを読み取る。
// bodyに入った時点で解析を終了する。
func extractTitle(r io.Reader) (string, error) {
	tokenizer := html.NewTokenizer(r)

	var title, ogTitle string
	inTitle := false

	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			if err := tokenizer.Err(); err != nil && !errors.Is(err, io.EOF) {
				return "", fmt.Errorf("failed to parse html: %w", err)
			}
			return pickTitle(title, ogTitle), nil

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = title == ""
			case "body":
				return pickTitle(title, ogTitle), nil
			case "meta":
				if hasAttr && ogTitle == "" {
					ogTitle = ogTitleFromMeta(tokenizer)
				}
			}

		case html.TextToken:
			if inTitle {
				title += string(tokenizer.Text())
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			switch string(tn) {
			case "title":
				inTitle = false
			case "head":
				if title != "" || ogTitle != "" {
					return pickTitle(title, ogTitle), nil
				}
			}
		}
	}
}

func ogTitleFromMeta(tokenizer *html.Tokenizer) string {
	var property, content string
	for {
		key, val, more := tokenizer.TagAttr()
		switch strings.ToLower(string(key)) {
		case "property", "name":
			property = strings.ToLower(string(val))
		case "content":
			content = string(val)
		}
		if !more {
			break
		}
	}
	if property == "og:title" {
		return content
	}
	return ""
}

func pickTitle(title, ogTitle string) string {
	if t := collapseSpace(title); t != "" {
		return t
	}
	return collapseSpace(ogTitle)
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// reasonOf はErrUnsafeURLの接頭辞を除いた理由を返す。
func reasonOf(err error) string {
	msg := err.Error()
	if errors.Is(err, security.ErrUnsafeURL) {
		msg = strings.TrimPrefix(msg, security.ErrUnsafeURL.Error()+": ")
	}
	return msg
}
