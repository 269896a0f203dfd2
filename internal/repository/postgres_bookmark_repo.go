package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookmarker/internal/model"
)

// PostgresBookmarkRepo はPostgreSQLを使用したブックマークリポジトリ。
type PostgresBookmarkRepo struct {
	db *sql.DB
}

// NewPostgresBookmarkRepo はPostgresBookmarkRepoを生成する。
func NewPostgresBookmarkRepo(db *sql.DB) *PostgresBookmarkRepo {
	return &PostgresBookmarkRepo{db: db}
}

// Create はブックマークを作成する。
func (r *PostgresBookmarkRepo) Create(ctx context.Context, bookmark *model.Bookmark) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bookmarks (id, title, content, owner_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		bookmark.ID, bookmark.Title, bookmark.Content, bookmark.OwnerID,
		bookmark.CreatedAt, bookmark.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert bookmark: %w", err)
	}
	return nil
}

// ListByOwner は所有者のブックマーク一覧を作成日時順で返す。
func (r *PostgresBookmarkRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Bookmark, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, content, owner_id, created_at, updated_at
		 FROM bookmarks
		 WHERE owner_id = $1
		 ORDER BY created_at, id`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookmarks: %w", err)
	}
	defer rows.Close()

	bookmarks := make([]*model.Bookmark, 0)
	for rows.Next() {
		b := &model.Bookmark{}
		if err := rows.Scan(&b.ID, &b.Title, &b.Content, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bookmark: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookmarks: %w", err)
	}

	return bookmarks, nil
}

// UpdateByIDAndOwner はIDと所有者が一致するブックマークにpatchをマージする。
// nilのフィールドはCOALESCEで既存値を保持する。
func (r *PostgresBookmarkRepo) UpdateByIDAndOwner(ctx context.Context, id, ownerID string, patch model.BookmarkPatch) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookmarks
		 SET title = COALESCE($3, title),
		     content = COALESCE($4, content),
		     updated_at = $5
		 WHERE id = $1 AND owner_id = $2`,
		id, ownerID, nullString(patch.Title), nullString(patch.Content), time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update bookmark: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// DeleteByIDAndOwner はIDと所有者が一致するブックマークを削除する。
func (r *PostgresBookmarkRepo) DeleteByIDAndOwner(ctx context.Context, id, ownerID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = $1 AND owner_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete bookmark: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// nullString は*stringをsql.NullStringに変換する。nilはNULLになる。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// compile-time interface check
var _ BookmarkRepository = (*PostgresBookmarkRepo)(nil)
