package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost はパスワードハッシュのワークファクタ（2^10ラウンド）。
const DefaultBcryptCost = 10

// ErrPasswordTooLong はbcryptの上限（72バイト）を超えるパスワードで返る。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// PasswordHasher はパスワードの一方向ハッシュと照合のインターフェース。
type PasswordHasher interface {
	// Hash はソルト付きハッシュを生成する。ソルトは呼び出しごとに生成される。
	Hash(password string) (string, error)
	// Compare はハッシュとパスワードが一致する場合にtrueを返す。
	Compare(hash, password string) bool
}

// BcryptHasher はbcryptを使用したPasswordHasherの実装。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher はBcryptHasherを生成する。
// costがbcryptの許容範囲外の場合はDefaultBcryptCostを使用する。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はパスワードのbcryptハッシュを生成する。
func (h *BcryptHasher) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", ErrPasswordTooLong
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Compare はbcryptハッシュとパスワードを照合する。
func (h *BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// compile-time interface check
var _ PasswordHasher = (*BcryptHasher)(nil)
