package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/bookmarker/internal/model"
	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralMax       int           // クライアントIPあたりのウィンドウ内最大リクエスト数
	GeneralWindow    time.Duration // GeneralMaxを数えるウィンドウ
	PreviewPerMinute int           // ユーザーあたりのリンクプレビュー回数/分
	TrustProxy       bool          // X-Forwarded-Forの末尾をクライアントIPとして扱う
	CleanupInterval  time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// API全般 100 req/15min/IP、リンクプレビュー 10 req/min/user。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralMax:       100,
		GeneralWindow:    15 * time.Minute,
		PreviewPerMinute: 10,
		CleanupInterval:  5 * time.Minute,
	}
}

const (
	msgGeneralRateLimited = "Too many requests from this IP, please try again later."
	msgPreviewRateLimited = "Too many preview requests, please try again later."
)

// keyedLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyedLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は同一設定のリミッターをキー（IPまたはemail）ごとに管理する。
type limiterSet struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*keyedLimiter
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*keyedLimiter),
	}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if kl, ok := s.limiters[key]; ok {
		kl.lastAccess = now
		return kl.limiter
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &keyedLimiter{limiter: l, lastAccess: now}
	return l
}

func (s *limiterSet) evictOlderThan(cutoff time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if kl.lastAccess.Before(cutoff) {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// RateLimiter はクライアントIPごとのAPI全般の制限と、
// ユーザーごとのリンクプレビューの制限を管理する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	preview *limiterSet
	idleTTL time.Duration

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.GeneralMax <= 0 {
		config.GeneralMax = defaults.GeneralMax
	}
	if config.GeneralWindow <= 0 {
		config.GeneralWindow = defaults.GeneralWindow
	}
	if config.PreviewPerMinute <= 0 {
		config.PreviewPerMinute = defaults.PreviewPerMinute
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	generalRate := rate.Limit(float64(config.GeneralMax) / config.GeneralWindow.Seconds())
	previewRate := rate.Limit(float64(config.PreviewPerMinute) / 60.0)

	// idleTTL放置されたエントリはバケットが満タンに戻っている
	idleTTL := config.GeneralWindow
	if idleTTL < time.Minute {
		idleTTL = time.Minute
	}
	if idleTTL < config.CleanupInterval*2 {
		idleTTL = config.CleanupInterval * 2
	}

	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet(generalRate, config.GeneralMax),
		preview: newLimiterSet(previewRate, config.PreviewPerMinute),
		idleTTL: idleTTL,
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はクライアントIPごとのレート制限ミドルウェアを返す。
// 認証前のエンドポイント（登録・ログイン）も対象にするため、ルーター全体に適用する。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, rl.config.TrustProxy)

			if !rl.general.get(ip, time.Now()).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", "general"),
				)
				writeRateLimitResponse(w, rl.general.limit, msgGeneralRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PreviewMiddleware はリンクプレビュー用のユーザーごとのレート制限ミドルウェアを返す。
// 認証ミドルウェアの後に配置する。
func (rl *RateLimiter) PreviewMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			email, err := EmailFromContext(r.Context())
			if err != nil {
				WriteAPIError(w, model.NewTokenMissingError())
				return
			}

			if !rl.preview.get(email, time.Now()).Allow() {
				slog.Warn("rate limit exceeded",
					slog.String("email", email),
					slog.String("limit_type", "preview"),
				)
				writeRateLimitResponse(w, rl.preview.limit, msgPreviewRateLimited)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているIPごとのリミッター数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// PreviewLimiterCount は現在管理されているユーザーごとのプレビューリミッター数を返す。
func (rl *RateLimiter) PreviewLimiterCount() int {
	return rl.preview.len()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセスからidleTTL以上経過したエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.idleTTL)
	rl.general.evictOlderThan(cutoff)
	rl.preview.evictOlderThan(cutoff)
}

// ClientIP はリクエスト元のIPアドレスを返す。
// trustProxyがtrueの場合は直前のプロキシが付与したX-Forwarded-Forの末尾の値を使う。
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if ip := strings.TrimSpace(parts[len(parts)-1]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが1つ補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit, message string) {
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitExceededError(message))
}
