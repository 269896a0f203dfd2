// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/bookmarker/internal/model"
)

// ErrDuplicateEmail は同一メールアドレスのアカウントが既に存在する場合に返る。
// accounts.emailの一意制約違反から変換される。
var ErrDuplicateEmail = errors.New("account with this email already exists")

// AccountRepository はアカウント（認証情報）の永続化インターフェース。
type AccountRepository interface {
	// FindByEmail は指定メールアドレスのアカウントを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Create はアカウントを作成する。
	// 一意制約違反の場合はErrDuplicateEmailを返す。
	Create(ctx context.Context, account *model.Account) error
}

// BookmarkRepository はブックマークの永続化インターフェース。
// 更新・削除は常にIDと所有者の組で絞り込む。
type BookmarkRepository interface {
	// Create はブックマークを作成する。
	Create(ctx context.Context, bookmark *model.Bookmark) error

	// ListByOwner は所有者のブックマーク一覧を作成日時順で返す。
	ListByOwner(ctx context.Context, ownerID string) ([]*model.Bookmark, error)

	// UpdateByIDAndOwner はIDと所有者が一致するブックマークにpatchをマージする。
	// 一致する行があった場合にtrueを返す。
	UpdateByIDAndOwner(ctx context.Context, id, ownerID string, patch model.BookmarkPatch) (bool, error)

	// DeleteByIDAndOwner はIDと所有者が一致するブックマークを削除する。
	// 削除した行があった場合にtrueを返す。
	DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error)
}
