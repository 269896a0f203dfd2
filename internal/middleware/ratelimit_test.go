package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/hitoshi/bookmarker/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth-api/login", nil)
	req.RemoteAddr = remoteAddr
	return req
}

// --- GeneralMiddleware (クライアントIPごと) のテスト ---

func TestGeneralMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralMax: 5, GeneralWindow: time.Hour})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralMax: 2, GeneralWindow: 2048 * time.Second})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestFrom("203.0.113.1:1234"))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.1:5678"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 2件/2048秒 → 1トークン補充に1024秒
	if got := w.Header().Get("Retry-After"); got != strconv.Itoa(1024) {
		t.Errorf("Retry-After = %q, want %q", got, "1024")
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != model.ErrCodeRateLimitExceeded {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeRateLimitExceeded)
	}
	if body.Message != "Too many requests from this IP, please try again later." {
		t.Errorf("message = %q", body.Message)
	}
}

func TestGeneralMiddleware_IndependentPerIP(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralMax: 1, GeneralWindow: time.Hour})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.1:1"))
	if w.Code != http.StatusOK {
		t.Fatalf("first IP: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestFrom("203.0.113.2:1"))
	if w.Code != http.StatusOK {
		t.Errorf("second IP should have its own budget: status = %d", w.Code)
	}

	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

// TrustProxyが無効の場合、X-Forwarded-Forを偽装しても制限を回避できない
func TestGeneralMiddleware_IgnoresForwardedForByDefault(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{GeneralMax: 1, GeneralWindow: time.Hour})
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i, xff := range []string{"198.51.100.1", "198.51.100.2"} {
		req := requestFrom("203.0.113.1:1")
		req.Header.Set("X-Forwarded-For", xff)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		want := http.StatusOK
		if i == 1 {
			want = http.StatusTooManyRequests
		}
		if w.Code != want {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, want)
		}
	}
}

// --- PreviewMiddleware (ユーザーごと) のテスト ---

func TestPreviewMiddleware_PerUserLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{PreviewPerMinute: 2})
	defer rl.Stop()

	handler := rl.PreviewMiddleware()(okHandler())

	send := func(email string) int {
		req := httptest.NewRequest(http.MethodGet, "/user-api/preview", nil)
		req = req.WithContext(ContextWithEmail(req.Context(), email))
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	if c := send("a@x.com"); c != http.StatusOK {
		t.Fatalf("1st: status = %d", c)
	}
	if c := send("a@x.com"); c != http.StatusOK {
		t.Fatalf("2nd: status = %d", c)
	}
	if c := send("a@x.com"); c != http.StatusTooManyRequests {
		t.Errorf("3rd: status = %d, want %d", c, http.StatusTooManyRequests)
	}
	if c := send("b@x.com"); c != http.StatusOK {
		t.Errorf("other user: status = %d, want %d", c, http.StatusOK)
	}
	if n := rl.PreviewLimiterCount(); n != 2 {
		t.Errorf("PreviewLimiterCount = %d, want 2", n)
	}
}

func TestPreviewMiddleware_RequiresAuthenticatedContext(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	defer rl.Stop()

	handler := rl.PreviewMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/user-api/preview", nil))

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// --- 設定・クリーンアップ ---

func TestNewRateLimiter_AppliesDefaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	defer rl.Stop()

	want := DefaultRateLimiterConfig()
	if rl.config.GeneralMax != want.GeneralMax {
		t.Errorf("GeneralMax = %d, want %d", rl.config.GeneralMax, want.GeneralMax)
	}
	if rl.config.GeneralWindow != want.GeneralWindow {
		t.Errorf("GeneralWindow = %v, want %v", rl.config.GeneralWindow, want.GeneralWindow)
	}
	if rl.config.PreviewPerMinute != want.PreviewPerMinute {
		t.Errorf("PreviewPerMinute = %d, want %d", rl.config.PreviewPerMinute, want.PreviewPerMinute)
	}
	if rl.general.burst != 100 {
		t.Errorf("general burst = %d, want 100", rl.general.burst)
	}
}

func TestRateLimiter_CleanupRemovesIdleEntries(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		GeneralMax:      10,
		GeneralWindow:   time.Minute,
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	now := time.Now()
	rl.general.get("203.0.113.1", now.Add(-3*time.Hour))
	rl.general.get("203.0.113.2", now)
	rl.preview.get("old@x.com", now.Add(-3*time.Hour))

	rl.cleanup(now)

	if n := rl.GeneralLimiterCount(); n != 1 {
		t.Errorf("GeneralLimiterCount = %d, want 1", n)
	}
	if n := rl.PreviewLimiterCount(); n != 0 {
		t.Errorf("PreviewLimiterCount = %d, want 0", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimiterConfig())
	rl.Stop()
	rl.Stop()
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		trustProxy bool
		want       string
	}{
		{"remote addr", "203.0.113.9:4321", "", false, "203.0.113.9"},
		{"ipv6 remote addr", "[2001:db8::1]:4321", "", false, "2001:db8::1"},
		{"xff ignored without trust", "10.0.0.2:1", "198.51.100.7", false, "10.0.0.2"},
		{"xff last hop with trust", "10.0.0.2:1", "1.1.1.1, 198.51.100.7", true, "198.51.100.7"},
		{"trust without xff", "10.0.0.2:1", "", true, "10.0.0.2"},
		{"remote addr without port", "203.0.113.9", "", false, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(req, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
