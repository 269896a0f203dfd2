// Package model はドメインモデルを定義する。
package model

import "time"

// Account はメールアドレスで識別される登録ユーザーを表す。
// Emailは正規化せず、登録時の文字列のまま一意とする。
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
