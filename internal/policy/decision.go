// Package policy はテーブル×操作ごとの宣言的な認可規則と、その実行時評価を提供する。
package policy

import (
	"context"
	"errors"
	"fmt"
)

// 規則の判定結果を表す番兵エラー。
// 規則はこのいずれかを返し、判定はerrors.Is()で行う。
var (
	// Allow は評価を打ち切って操作を許可する判定。
	Allow = errors.New("policy: allow rule")

	// Deny は評価を打ち切って操作を拒否する判定。
	Deny = errors.New("policy: deny rule")

	// Skip は判定を保留し、連鎖内の次の規則へ評価を進める判定。
	Skip = errors.New("policy: skip rule")
)

// Allowf は理由付きのAllow判定を返す。errors.Is(err, Allow)で判定できる。
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf は理由付きのDeny判定を返す。errors.Is(err, Deny)で判定できる。
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf は理由付きのSkip判定を返す。errors.Is(err, Skip)で判定できる。
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

type decisionCtxKey struct{}

// DecisionContext は判定済みの結果をコンテキストに載せた新しいコンテキストを返す。
// プロフィール自動作成と期限切れ注文ワーカーだけが使うシステムバイパスであり、
// リクエスト経路から到達してはならない。
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext はコンテキストに載った判定結果を取り出す。
// Allowはnil（許可）に正規化して返す。
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}
