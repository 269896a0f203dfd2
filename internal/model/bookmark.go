package model

import "time"

// Bookmark はユーザーが保存したタイトルとURLの組を表す。
// OwnerIDは作成者のEmailで、所有範囲の絞り込みにのみ使う。
type Bookmark struct {
	ID        string
	Title     string
	Content   string // URL
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// BookmarkPatch はブックマーク更新時のフィールドマージ内容を表す。
// nilのフィールドは変更しない。
type BookmarkPatch struct {
	Title   *string
	Content *string
}

// IsEmpty は更新対象のフィールドが1つもない場合にtrueを返す。
func (p BookmarkPatch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil
}
