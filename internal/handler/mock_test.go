package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/hitoshi/bookmarker/internal/auth"
	"github.com/hitoshi/bookmarker/internal/linkpreview"
	"github.com/hitoshi/bookmarker/internal/middleware"
	"github.com/hitoshi/bookmarker/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	registerFn       func(ctx context.Context, email, password string) error
	loginFn          func(ctx context.Context, email, password string) (*auth.LoginResult, error)
	currentAccountFn func(ctx context.Context, email string) (*model.Account, error)
}

func (m *mockAuthService) Register(ctx context.Context, email, password string) error {
	if m.registerFn != nil {
		return m.registerFn(ctx, email, password)
	}
	return nil
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*auth.LoginResult, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, email, password)
	}
	return nil, nil
}

func (m *mockAuthService) CurrentAccount(ctx context.Context, email string) (*model.Account, error) {
	if m.currentAccountFn != nil {
		return m.currentAccountFn(ctx, email)
	}
	return nil, nil
}

// mockBookmarkService はBookmarkServiceInterfaceのモック実装。
type mockBookmarkService struct {
	addFn    func(ctx context.Context, ownerID, title, url string) (*model.Bookmark, error)
	listFn   func(ctx context.Context, ownerID string) ([]*model.Bookmark, error)
	updateFn func(ctx context.Context, ownerID, bookmarkID string, patch model.BookmarkPatch) error
	deleteFn func(ctx context.Context, ownerID, bookmarkID string) error
}

func (m *mockBookmarkService) Add(ctx context.Context, ownerID, title, url string) (*model.Bookmark, error) {
	if m.addFn != nil {
		return m.addFn(ctx, ownerID, title, url)
	}
	return nil, nil
}

func (m *mockBookmarkService) List(ctx context.Context, ownerID string) ([]*model.Bookmark, error) {
	if m.listFn != nil {
		return m.listFn(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockBookmarkService) Update(ctx context.Context, ownerID, bookmarkID string, patch model.BookmarkPatch) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, ownerID, bookmarkID, patch)
	}
	return nil
}

func (m *mockBookmarkService) Delete(ctx context.Context, ownerID, bookmarkID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ownerID, bookmarkID)
	}
	return nil
}

// mockPreviewFetcher はPreviewFetcherのモック実装。
type mockPreviewFetcher struct {
	fetchFn func(ctx context.Context, rawURL string) (*linkpreview.Preview, error)
}

func (m *mockPreviewFetcher) Fetch(ctx context.Context, rawURL string) (*linkpreview.Preview, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, rawURL)
	}
	return &linkpreview.Preview{URL: rawURL}, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

// withEmail はリクエストコンテキストに認証済みメールアドレスを注入する。
func withEmail(r *http.Request, email string) *http.Request {
	return r.WithContext(middleware.ContextWithEmail(r.Context(), email))
}

// decodeErrorBody はエラーレスポンスのボディをデコードする。
func decodeErrorBody(t *testing.T, body []byte) middleware.ErrorResponseBody {
	t.Helper()
	var resp middleware.ErrorResponseBody
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("failed to decode error body: %v\nraw: %s", err, body)
	}
	return resp
}
