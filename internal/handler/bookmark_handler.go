package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/bookmarker/internal/linkpreview"
	"github.com/hitoshi/bookmarker/internal/model"
)

// BookmarkServiceInterface はブックマークハンドラーが必要とするサービスインターフェース。
type BookmarkServiceInterface interface {
	Add(ctx context.Context, ownerID, title, url string) (*model.Bookmark, error)
	List(ctx context.Context, ownerID string) ([]*model.Bookmark, error)
	Update(ctx context.Context, ownerID, bookmarkID string, patch model.BookmarkPatch) error
	Delete(ctx context.Context, ownerID, bookmarkID string) error
}

// PreviewFetcher はリンクプレビュー取得のインターフェース。
type PreviewFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*linkpreview.Preview, error)
}

// addBookmarkRequest はPOST /user-api/adduser のリクエストボディ。
type addBookmarkRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// updateBookmarkRequest は部分更新のリクエストボディ。
// 指定されなかったフィールドはnilのまま残る。
type updateBookmarkRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

// bookmarkResponse はフロントエンド互換のフィールド名でブックマークを表す。
type bookmarkResponse struct {
	ID        string    `json:"_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type addBookmarkResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type listBookmarksResponse struct {
	Message string             `json:"message"`
	Payload []bookmarkResponse `json:"payload"`
}

type previewResponse struct {
	Message string               `json:"message"`
	Payload *linkpreview.Preview `json:"payload"`
}

// BookmarkHandler はブックマーク関連のHTTPハンドラー。
type BookmarkHandler struct {
	service BookmarkServiceInterface
	preview PreviewFetcher
}

// NewBookmarkHandler はBookmarkHandlerを生成する。
func NewBookmarkHandler(service BookmarkServiceInterface, preview PreviewFetcher) *BookmarkHandler {
	return &BookmarkHandler{
		service: service,
		preview: preview,
	}
}

// AddBookmark はブックマークを追加する。
// POST /user-api/adduser
func (h *BookmarkHandler) AddBookmark(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	var req addBookmarkRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	bookmark, err := h.service.Add(r.Context(), email, req.Title, req.Content)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, addBookmarkResponse{
		Message: "Bookmark added successfully",
		ID:      bookmark.ID,
	})
}

// ListBookmarks は呼び出し元が所有するブックマーク一覧を返す。
// GET /user-api/get-bookmarks
func (h *BookmarkHandler) ListBookmarks(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	bookmarks, err := h.service.List(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	payload := make([]bookmarkResponse, 0, len(bookmarks))
	for _, b := range bookmarks {
		payload = append(payload, toBookmarkResponse(b))
	}

	writeJSON(w, http.StatusOK, listBookmarksResponse{
		Message: "Bookmarks retrieved",
		Payload: payload,
	})
}

// UpdateBookmark はブックマークのタイトル・URLを部分更新する。
// PUT /user-api/update-bookmark/{id}
func (h *BookmarkHandler) UpdateBookmark(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	var req updateBookmarkRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	patch := model.BookmarkPatch{Title: req.Title, Content: req.Content}
	if err := h.service.Update(r.Context(), email, chi.URLParam(r, "id"), patch); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Bookmark updated successfully"})
}

// DeleteBookmark はブックマークを削除する。
// DELETE /user-api/delete-bookmark/{id}
func (h *BookmarkHandler) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), email, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Bookmark deleted successfully"})
}

// Preview はURLのページタイトルを取得する。
// GET /user-api/preview?url=
func (h *BookmarkHandler) Preview(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireEmail(w, r); !ok {
		return
	}

	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		handleServiceError(w, r, model.NewValidationError("url query parameter is required"))
		return
	}

	preview, err := h.preview.Fetch(r.Context(), rawURL)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, previewResponse{
		Message: "Preview retrieved",
		Payload: preview,
	})
}

func toBookmarkResponse(b *model.Bookmark) bookmarkResponse {
	return bookmarkResponse{
		ID:        b.ID,
		Title:     b.Title,
		Content:   b.Content,
		UserID:    b.OwnerID,
		CreatedAt: b.CreatedAt,
		UpdatedAt: b.UpdatedAt,
	}
}
