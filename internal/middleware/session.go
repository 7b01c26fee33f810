// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/proditifgorut/alatacraft/internal/model"
)

const sessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityIDContextKey はリクエストコンテキストにアイデンティティIDを格納するためのキー。
// プロフィールIDはアイデンティティIDと同一なので、認可の呼び出し主体IDとしてそのまま使える。
var identityIDContextKey = contextKey("identity_id")

// SessionFinder はセッションの検索に必要なインターフェース。
// repository.SessionRepositoryの部分集合として定義する。
type SessionFinder interface {
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取り、
// 有効性を検証するミドルウェアを返す。
// 認証済みアイデンティティIDをリクエストコンテキストに注入する。
// 未認証リクエストには401 Unauthorizedを返す。
func NewSessionMiddleware(sessionFinder SessionFinder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得
			cookie, err := r.Cookie(sessionCookieName)
			if err != nil || cookie.Value == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 2. セッションの有効性を検証
			session, err := sessionFinder.FindByID(r.Context(), cookie.Value)
			if err != nil {
				slog.Error("failed to find session",
					slog.String("error", err.Error()),
				)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			if session == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			// 3. 認証済みアイデンティティIDをコンテキストに注入
			ctx := context.WithValue(r.Context(), identityIDContextKey, session.IdentityID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityIDFromContext はリクエストコンテキストからアイデンティティIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func IdentityIDFromContext(ctx context.Context) (string, error) {
	identityID, ok := ctx.Value(identityIDContextKey).(string)
	if !ok || identityID == "" {
		return "", fmt.Errorf("identity ID not found in context")
	}
	return identityID, nil
}

// ContextWithIdentityID はコンテキストにアイデンティティIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDContextKey, identityID)
}
