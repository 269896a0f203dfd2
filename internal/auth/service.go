// Package auth はパスワード認証、セッショントークンの発行と検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/bookmarker/internal/model"
	"github.com/hitoshi/bookmarker/internal/repository"
)

// 認証イベント名と結果（メトリクスのラベル値）
const (
	EventRegister = "register"
	EventLogin    = "login"

	ResultSuccess  = "success"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// EventRecorder は認証イベントを記録するインターフェース。
// metrics.Collectorが実装する。
type EventRecorder interface {
	RecordAuthEvent(event, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuthEvent(event, result string) {}

// TokenIssuer はセッショントークンの発行・検証インターフェース。
type TokenIssuer interface {
	Issue(email string) (string, time.Time, error)
	Verify(token string) (*Claims, error)
}

// LoginResult はログイン成功時に返す値。
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *model.Account
}

// Service は登録・ログイン・トークン検証のビジネスロジックを提供する。
type Service struct {
	accounts repository.AccountRepository
	hasher   PasswordHasher
	tokens   TokenIssuer
	recorder EventRecorder

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。recorderがnilの場合は記録しない。
func NewService(
	accounts repository.AccountRepository,
	hasher PasswordHasher,
	tokens TokenIssuer,
	recorder EventRecorder,
) *Service {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Service{
		accounts: accounts,
		hasher:   hasher,
		tokens:   tokens,
		recorder: recorder,
	}
}

// Register はメールアドレスとパスワードでアカウントを登録する。
// 既存のアカウントがある場合、または同時登録で一意制約に違反した場合はUSER_EXISTSを返す。
func (s *Service) Register(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		s.recorder.RecordAuthEvent(EventRegister, ResultRejected)
		return model.NewValidationError(model.MsgCredentialsRequired)
	}

	existing, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		s.recorder.RecordAuthEvent(EventRegister, ResultError)
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if existing != nil {
		s.recorder.RecordAuthEvent(EventRegister, ResultRejected)
		return model.NewUserExistsError()
	}

	hash, err := s.hasher.Hash(password)
	if errors.Is(err, ErrPasswordTooLong) {
		s.recorder.RecordAuthEvent(EventRegister, ResultRejected)
		return model.NewValidationError("Password must be at most 72 bytes")
	}
	if err != nil {
		s.recorder.RecordAuthEvent(EventRegister, ResultError)
		return err
	}

	account := &model.Account{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now(),
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			s.recorder.RecordAuthEvent(EventRegister, ResultRejected)
			return model.NewUserExistsError()
		}
		s.recorder.RecordAuthEvent(EventRegister, ResultError)
		return fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("account registered", slog.String("account_id", account.ID))
	s.recorder.RecordAuthEvent(EventRegister, ResultSuccess)
	return nil
}

// Login はメールアドレスとパスワードを検証し、セッショントークンを発行する。
// 未登録とパスワード不一致は同一のエラーを返す。
// 未登録の場合もダミーハッシュとの照合を行い、応答時間の差を小さくする。
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if email == "" || password == "" {
		s.recorder.RecordAuthEvent(EventLogin, ResultRejected)
		return nil, model.NewValidationError(model.MsgCredentialsRequired)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		s.recorder.RecordAuthEvent(EventLogin, ResultError)
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil {
		s.hasher.Compare(s.dummyPasswordHash(), password)
		s.recorder.RecordAuthEvent(EventLogin, ResultRejected)
		return nil, model.NewInvalidCredentialsError()
	}

	if !s.hasher.Compare(account.PasswordHash, password) {
		s.recorder.RecordAuthEvent(EventLogin, ResultRejected)
		return nil, model.NewInvalidCredentialsError()
	}

	token, expiresAt, err := s.tokens.Issue(account.Email)
	if err != nil {
		s.recorder.RecordAuthEvent(EventLogin, ResultError)
		return nil, err
	}

	s.recorder.RecordAuthEvent(EventLogin, ResultSuccess)
	return &LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		Account:   account,
	}, nil
}

// VerifyToken はトークンを検証してクレームを返す。
// 空のトークンはTOKEN_MISSING、検証失敗はTOKEN_INVALIDを返す。
func (s *Service) VerifyToken(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.NewTokenMissingError()
	}

	claims, err := s.tokens.Verify(token)
	if err != nil {
		slog.Debug("token verification failed", slog.String("error", err.Error()))
		return nil, model.NewTokenInvalidError()
	}
	return claims, nil
}

// CurrentAccount はトークンのemailクレームからアカウントを再取得する。
// トークン発行後にアカウントが存在しなくなった場合はUSER_NOT_FOUNDを返す。
func (s *Service) CurrentAccount(ctx context.Context, email string) (*model.Account, error) {
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}
	if account == nil {
		return nil, model.NewUserNotFoundError()
	}
	return account, nil
}

// dummyPasswordHash は未登録ユーザーのログイン時に照合するハッシュを返す。
// 初回呼び出し時に1回だけ生成する。
func (s *Service) dummyPasswordHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			slog.Warn("failed to prepare dummy password hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
