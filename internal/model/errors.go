// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// Categoryはエラー種別、Messageはクライアントにそのまま返す文言。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, conflict, auth, ownership, not_found, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation = "validation"
	CategoryConflict   = "conflict"
	CategoryAuth       = "auth"
	CategoryOwnership  = "ownership"
	CategoryNotFound   = "not_found"
	CategoryUpstream   = "upstream"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidBookmarkID  = "INVALID_BOOKMARK_ID"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeUserExists         = "USER_EXISTS"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeTokenMissing       = "TOKEN_MISSING"
	ErrCodeTokenInvalid       = "TOKEN_INVALID"
	ErrCodeBookmarkNotOwned   = "BOOKMARK_NOT_FOUND_OR_FORBIDDEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodePreviewFetchFailed = "PREVIEW_FETCH_FAILED"
	ErrCodeRateLimitExceeded  = "RATE_LIMIT_EXCEEDED"
	ErrCodeUnavailable        = "SERVICE_UNAVAILABLE"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// クライアントに返す固定メッセージ。
// ログイン失敗は原因（未登録/パスワード不一致）を区別しない。
const (
	MsgCredentialsRequired = "Email and password are required"
	MsgUserExists          = "User already exists"
	MsgInvalidCredentials  = "Invalid email or password"
	MsgTokenMissing        = "Access denied. No token provided."
	MsgTokenInvalid        = "Invalid token"
	MsgBookmarkRequired    = "Title and Content (URL) are required"
	MsgInvalidBookmarkID   = "Invalid bookmark ID"
	MsgBookmarkNotOwned    = "Bookmark not found or you do not have permission to modify it"
	MsgUserNotFound        = "User not found"
	MsgInternal            = "Internal server error"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailed,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Check the request fields and try again.",
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request body",
		Category: CategoryValidation,
		Action:   "Send a valid JSON body.",
	}
}

// NewInvalidBookmarkIDError はブックマークIDの形式エラーを生成する。
func NewInvalidBookmarkIDError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidBookmarkID,
		Message:  MsgInvalidBookmarkID,
		Category: CategoryValidation,
		Action:   "Use the id returned by get-bookmarks.",
	}
}

// NewInvalidURLError はプレビュー対象URLが不正な場合のエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("Invalid URL: %s", reason),
		Category: CategoryValidation,
		Action:   "Use a public http or https URL.",
	}
}

// NewUserExistsError は登録済みメールアドレスでの登録エラーを生成する。
func NewUserExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserExists,
		Message:  MsgUserExists,
		Category: CategoryConflict,
		Action:   "Log in instead, or register with another email.",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  MsgInvalidCredentials,
		Category: CategoryAuth,
		Action:   "Check your email and password.",
	}
}

// NewTokenMissingError はAuthorizationヘッダー未指定エラーを生成する。
func NewTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenMissing,
		Message:  MsgTokenMissing,
		Category: CategoryAuth,
		Action:   "Log in and send the token as a Bearer credential.",
	}
}

// NewTokenInvalidError は署名不正・期限切れトークンのエラーを生成する。
func NewTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenInvalid,
		Message:  MsgTokenInvalid,
		Category: CategoryAuth,
		Action:   "Log in again.",
	}
}

// NewBookmarkNotOwnedError は対象ブックマークが存在しない、
// または他ユーザーの所有である場合のエラーを生成する。両者は区別しない。
func NewBookmarkNotOwnedError() *APIError {
	return &APIError{
		Code:     ErrCodeBookmarkNotOwned,
		Message:  MsgBookmarkNotOwned,
		Category: CategoryOwnership,
		Action:   "Reload your bookmarks and try again.",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  MsgUserNotFound,
		Category: CategoryNotFound,
		Action:   "Log in again.",
	}
}

// NewPreviewFetchFailedError はリンクプレビュー取得失敗エラーを生成する。
func NewPreviewFetchFailedError() *APIError {
	return &APIError{
		Code:     ErrCodePreviewFetchFailed,
		Message:  "Could not fetch the page",
		Category: CategoryUpstream,
		Action:   "Enter the title manually.",
	}
}

// NewInternalError は内部エラーの汎用レスポンス用エラーを生成する。
// 原因はログにのみ記録し、ここには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  MsgInternal,
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}

// NewRateLimitExceededError はレート制限超過エラーを生成する。
func NewRateLimitExceededError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  message,
		Category: CategorySystem,
		Action:   "Wait and retry after the time given in Retry-After.",
	}
}

// NewUnavailableError はヘルスチェックで依存先に到達できない場合のエラーを生成する。
func NewUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeUnavailable,
		Message:  "Service unavailable",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}
