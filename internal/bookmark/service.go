// Package bookmark はユーザーごとのブックマーク管理のドメインロジックを提供する。
package bookmark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarker/internal/model"
	"github.com/hitoshi/bookmarker/internal/repository"
)

// 操作名と結果（メトリクスのラベル値）
const (
	OpAdd    = "add"
	OpList   = "list"
	OpUpdate = "update"
	OpDelete = "delete"

	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// OperationRecorder はブックマーク操作の結果を記録する。
type OperationRecorder interface {
	RecordBookmarkOperation(operation, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordBookmarkOperation(operation, result string) {}

// Service はブックマークのサービス層。
// 全ての操作は所有者（トークンのemail）で絞り込む。
// タイトルとURLは入力のまま保存する。表示時のエスケープはクライアントの責務。
type Service struct {
	repo     repository.BookmarkRepository
	recorder OperationRecorder
	now      func() time.Time
}

// NewService はServiceを生成する。recorderはnil可。
func NewService(repo repository.BookmarkRepository, recorder OperationRecorder) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		repo:     repo,
		recorder: recorder,
		now:      time.Now,
	}
}

// Add はブックマークを作成して返す。同一内容の重複は許可する。
func (s *Service) Add(ctx context.Context, ownerID, title, url string) (*model.Bookmark, error) {
	if title == "" || url == "" {
		s.recorder.RecordBookmarkOperation(OpAdd, ResultRejected)
		return nil, model.NewValidationError(model.MsgBookmarkRequired)
	}

	now := s.now()
	b := &model.Bookmark{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   url,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		s.recorder.RecordBookmarkOperation(OpAdd, ResultError)
		return nil, fmt.Errorf("ブックマークの作成に失敗しました: %w", err)
	}

	s.recorder.RecordBookmarkOperation(OpAdd, ResultSuccess)
	return b, nil
}

// List は所有者のブックマーク一覧を返す。0件の場合は空スライス。
func (s *Service) List(ctx context.Context, ownerID string) ([]*model.Bookmark, error) {
	bookmarks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		s.recorder.RecordBookmarkOperation(OpList, ResultError)
		return nil, fmt.Errorf("ブックマーク一覧の取得に失敗しました: %w", err)
	}
	if bookmarks == nil {
		bookmarks = []*model.Bookmark{}
	}
	s.recorder.RecordBookmarkOperation(OpList, ResultSuccess)
	return bookmarks, nil
}

// Update はIDと所有者が一致するブックマークにpatchをマージする。
// 存在しない場合と他ユーザーの所有である場合は区別しない。
func (s *Service) Update(ctx context.Context, ownerID, bookmarkID string, patch model.BookmarkPatch) error {
	id, ok := canonicalID(bookmarkID)
	if !ok {
		s.recorder.RecordBookmarkOperation(OpUpdate, ResultRejected)
		return model.NewInvalidBookmarkIDError()
	}
	if patch.IsEmpty() {
		s.recorder.RecordBookmarkOperation(OpUpdate, ResultRejected)
		return model.NewValidationError("Title or Content (URL) is required")
	}
	if (patch.Title != nil && *patch.Title == "") || (patch.Content != nil && *patch.Content == "") {
		s.recorder.RecordBookmarkOperation(OpUpdate, ResultRejected)
		return model.NewValidationError("Title and Content (URL) must not be empty")
	}

	matched, err := s.repo.UpdateByIDAndOwner(ctx, id, ownerID, patch)
	if err != nil {
		s.recorder.RecordBookmarkOperation(OpUpdate, ResultError)
		return fmt.Errorf("ブックマークの更新に失敗しました: %w", err)
	}
	if !matched {
		s.recorder.RecordBookmarkOperation(OpUpdate, ResultRejected)
		return model.NewBookmarkNotOwnedError()
	}

	s.recorder.RecordBookmarkOperation(OpUpdate, ResultSuccess)
	return nil
}

// Delete はIDと所有者が一致するブックマークを削除する。
func (s *Service) Delete(ctx context.Context, ownerID, bookmarkID string) error {
	id, ok := canonicalID(bookmarkID)
	if !ok {
		s.recorder.RecordBookmarkOperation(OpDelete, ResultRejected)
		return model.NewInvalidBookmarkIDError()
	}

	deleted, err := s.repo.DeleteByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		s.recorder.RecordBookmarkOperation(OpDelete, ResultError)
		return fmt.Errorf("ブックマークの削除に失敗しました: %w", err)
	}
	if !deleted {
		s.recorder.RecordBookmarkOperation(OpDelete, ResultRejected)
		return model.NewBookmarkNotOwnedError()
	}

	s.recorder.RecordBookmarkOperation(OpDelete, ResultSuccess)
	return nil
}

// canonicalID はIDを解析し、ハイフン区切り小文字の正規形で返す。
// uuid.Parseはurn:uuid:形式も受け付けるが、uuid型のカラムは受け付けない。
func canonicalID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
