package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/bookmarker/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// messageは全レスポンス共通のキーで、クライアントはこれを表示する。
type ErrorResponseBody struct {
	Message  string `json:"message"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// StatusForAPIError はAPIErrorに対応するHTTPステータスコードを返す。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeTokenMissing:
		return http.StatusForbidden
	case model.ErrCodeTokenInvalid:
		return http.StatusUnauthorized
	case model.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	}

	switch apiErr.Category {
	case model.CategoryValidation, model.CategoryConflict, model.CategoryOwnership, model.CategoryAuth:
		// 所有者不一致・不存在も400で返す（存在の有無を区別しない）
		return http.StatusBadRequest
	case model.CategoryNotFound:
		return http.StatusNotFound
	case model.CategoryUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Message:  apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はAPIErrorをStatusForAPIErrorのステータスで書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
