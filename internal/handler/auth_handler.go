// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/bookmarker/internal/auth"
	"github.com/hitoshi/bookmarker/internal/middleware"
	"github.com/hitoshi/bookmarker/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Register(ctx context.Context, email, password string) error
	Login(ctx context.Context, email, password string) (*auth.LoginResult, error)
	CurrentAccount(ctx context.Context, email string) (*model.Account, error)
}

// credentialsRequest は登録・ログインのリクエストボディ。
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse はクライアントに返すユーザー情報。パスワードハッシュは含めない。
type userResponse struct {
	Email string `json:"email"`
}

type loginResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type currentUserResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

// AuthHandler は登録・ログイン・プロフィール取得のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Register はアカウントを登録する。
// POST /auth-api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Register(r.Context(), req.Email, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "User registered successfully"})
}

// Login は資格情報を検証してトークンを発行する。
// POST /auth-api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		handleServiceError(w, r, err)
		return
	}

	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Message: "Success",
		Token:   result.Token,
		User:    userResponse{Email: result.Account.Email},
	})
}

// GetUser は認証済みユーザーのプロフィールを返す。
// GET /auth-api/get-user
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	email, ok := requireEmail(w, r)
	if !ok {
		return
	}

	account, err := h.service.CurrentAccount(r.Context(), email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, currentUserResponse{
		Message: "User retrieved",
		User:    userResponse{Email: account.Email},
	})
}

// requireEmail はコンテキストから認証済みメールアドレスを取り出す。
// 取得できない場合は403を書き込みfalseを返す。
func requireEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email, err := middleware.EmailFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewTokenMissingError())
		return "", false
	}
	return email, true
}
