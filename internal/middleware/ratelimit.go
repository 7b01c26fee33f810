package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	OrderRate       rate.Limit    // 注文作成のレート（req/sec）。10/60
	OrderBurst      int           // 注文作成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: API全般 120 req/min/user、注文作成 10 req/min/user
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		OrderRate:       rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		OrderBurst:      10,
		CleanupInterval: 5 * time.Minute,
	}
}

// userLimiter はユーザーごとのレートリミッターとアクセス時刻を保持する。
type userLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はユーザーごとのレート制限を管理する。
// API全般のレート制限と注文作成のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*userLimiter

	orderMu       sync.RWMutex
	orderLimiters map[string]*userLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:          config,
		generalLimiters: make(map[string]*userLimiter),
		orderLimiters:   make(map[string]*userLimiter),
		stopCh:          make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにアイデンティティIDが含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID, err := IdentityIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(identityID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("identity_id", identityID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// OrderCreationMiddleware は注文作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) OrderCreationMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identityID, err := IdentityIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateOrderLimiter(identityID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.OrderRate)
				slog.Warn("rate limit exceeded",
					slog.String("identity_id", identityID),
					slog.String("limit_type", "order_creation"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// OrderLimiterCount は現在管理されている注文作成リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) OrderLimiterCount() int {
	rl.orderMu.RLock()
	defer rl.orderMu.RUnlock()
	return len(rl.orderLimiters)
}

// getOrCreateGeneralLimiter はユーザーのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(identityID string) *rate.Limiter {
	rl.generalMu.RLock()
	ul, exists := rl.generalLimiters[identityID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		ul.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return ul.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.generalLimiters[identityID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[identityID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreateOrderLimiter はユーザーの注文作成リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateOrderLimiter(identityID string) *rate.Limiter {
	rl.orderMu.RLock()
	ul, exists := rl.orderLimiters[identityID]
	rl.orderMu.RUnlock()

	if exists {
		rl.orderMu.Lock()
		ul.lastAccess = time.Now()
		rl.orderMu.Unlock()
		return ul.limiter
	}

	rl.orderMu.Lock()
	defer rl.orderMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.orderLimiters[identityID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.OrderRate, rl.config.OrderBurst)
	rl.orderLimiters[identityID] = &userLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for identityID, ul := range rl.generalLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.generalLimiters, identityID)
		}
	}
	rl.generalMu.Unlock()

	rl.orderMu.Lock()
	for identityID, ul := range rl.orderLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.orderLimiters, identityID)
		}
	}
	rl.orderMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
