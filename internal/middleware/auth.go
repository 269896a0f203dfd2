// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/bookmarker/internal/auth"
	"github.com/hitoshi/bookmarker/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// emailContextKey はリクエストコンテキストに認証済みメールアドレスを格納するためのキー。
var emailContextKey = contextKey("email")

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// auth.Serviceが実装する。
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証するミドルウェアを返す。
// トークンのemailクレームをリクエストコンテキストに注入する。
// トークンなしは403、検証失敗は401を返す。
func NewAuthMiddleware(verifier TokenVerifier) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteAPIError(w, model.NewTokenInvalidError())
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					WriteAPIError(w, apiErr)
					return
				}
				slog.Error("failed to verify token", slog.String("error", err.Error()))
				WriteInternalServerError(w)
				return
			}

			setAuthenticatedEmail(r.Context(), claims.Email)
			next.ServeHTTP(w, r.WithContext(ContextWithEmail(r.Context(), claims.Email)))
		})
	}
}

// bearerToken はAuthorizationヘッダーからトークンを取り出す。
// ヘッダーなし・値なしの場合は空文字列とtrue（トークン未指定）、
// Bearer以外のスキームの場合はfalseを返す。
func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", true
	}
	scheme, token, found := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	if !found {
		return "", true
	}
	return strings.TrimSpace(token), true
}

// EmailFromContext はリクエストコンテキストから認証済みメールアドレスを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func EmailFromContext(ctx context.Context) (string, error) {
	email, ok := ctx.Value(emailContextKey).(string)
	if !ok || email == "" {
		return "", fmt.Errorf("email not found in context")
	}
	return email, nil
}

// ContextWithEmail はコンテキストにメールアドレスを注入する。
func ContextWithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailContextKey, email)
}
