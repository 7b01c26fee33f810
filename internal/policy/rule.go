package policy

import (
	"context"
	"fmt"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// Caller は認可対象の操作を要求している主体。
// IDが空文字列なら未認証の呼び出しを表す。
type Caller struct {
	ID   string
	Role model.Role
}

// Authenticated は呼び出し主体が認証済みかどうかを返す。
func (c Caller) Authenticated() bool {
	return c.ID != ""
}

// Row は認可対象の行の属性。規則の評価に必要な列だけを持ち運ぶ。
// OwnerID は行を所有するプロフィールのID（orders.user_id、reviews.user_id など）。
// OrderID は注文明細の親注文のIDで、評価前に所有者解決に使われる。
type Row struct {
	ID      string
	OwnerID string
	OrderID string
}

// rule は1つの認可規則。実行時の評価関数と、同じ述語をSQLとして
// 表現するRLSポリシー断片を対で持つ。
type rule struct {
	name string
	eval func(ctx context.Context, c Caller, r Row) error
	// predicate は対象テーブルのRLSポリシーに埋め込むSQL述語を返す。
	predicate func(t Table) string
}

// callerExpr はセッション変数からUUIDとして呼び出し主体を取り出すSQL式。
// 未設定・空文字列はNULLになり、所有者比較は常に不成立となる。
const callerExpr = "NULLIF(current_setting('app.caller_id', true), '')::uuid"

// adminRule は管理者の無条件許可。置き換えではなくOR句として
// 全連鎖の先頭に追加される。
var adminRule = rule{
	name: "admin",
	eval: func(ctx context.Context, c Caller, r Row) error {
		if c.Authenticated() && c.Role == model.RoleAdmin {
			return Allowf("admin override")
		}
		return Skipf("caller is not admin")
	},
	predicate: func(t Table) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM profiles WHERE profiles.id = %s AND profiles.role = 'admin')", callerExpr)
	},
}

// selfRule は行のIDが呼び出し主体自身であるときに許可する。
// プロフィールのように主キーがIdentityを直接指すテーブル用。
var selfRule = rule{
	name: "self",
	eval: func(ctx context.Context, c Caller, r Row) error {
		if !c.Authenticated() {
			return Skipf("caller is not authenticated")
		}
		if c.ID == r.ID {
			return Allowf("row is caller's own profile")
		}
		return Skipf("row belongs to another profile")
	},
	predicate: func(t Table) string {
		return fmt.Sprintf("%s.id = %s", t, callerExpr)
	},
}

// ownerRule は行の所有者列が呼び出し主体を指すときに許可する。
// 未認証の呼び出しは所有者になり得ないため必ずSkipする。
var ownerRule = rule{
	name: "owner",
	eval: func(ctx context.Context, c Caller, r Row) error {
		if !c.Authenticated() {
			return Skipf("caller is not authenticated")
		}
		if c.ID == r.OwnerID {
			return Allowf("caller owns the row")
		}
		return Skipf("row is owned by another profile")
	},
	predicate: func(t Table) string {
		return fmt.Sprintf("%s.user_id = %s", t, callerExpr)
	},
}

// parentOrderOwnerRule は注文明細の親注文の所有者に許可する。
// 実行時はEvaluatorがorder_idから所有者を1回の索引付き検索で解決し、
// OwnerIDに載せてから評価するため、規則自体はownerRuleと同じ比較になる。
var parentOrderOwnerRule = rule{
	name: "parent_order_owner",
	eval: func(ctx context.Context, c Caller, r Row) error {
		if !c.Authenticated() {
			return Skipf("caller is not authenticated")
		}
		if c.ID == r.OwnerID {
			return Allowf("caller owns the parent order")
		}
		return Skipf("parent order is owned by another profile")
	},
	predicate: func(t Table) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM orders WHERE orders.id = %s.order_id AND orders.user_id = %s)", t, callerExpr)
	},
}

// anyoneRule は未認証を含む全ての呼び出しに許可する。公開読み取り用。
var anyoneRule = rule{
	name: "anyone",
	eval: func(ctx context.Context, c Caller, r Row) error {
		return Allowf("operation is public")
	},
	predicate: func(t Table) string {
		return "true"
	},
}
