package policy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// --- モック ---

type mockRoleResolver struct {
	resolveRoleFn func(ctx context.Context, profileID string) (model.Role, error)
	calls         int
}

func (m *mockRoleResolver) ResolveRole(ctx context.Context, profileID string) (model.Role, error) {
	m.calls++
	if m.resolveRoleFn != nil {
		return m.resolveRoleFn(ctx, profileID)
	}
	return model.RoleUser, nil
}

type mockOrderOwnerResolver struct {
	orderOwnerIDFn func(ctx context.Context, orderID string) (string, error)
	calls          int
}

func (m *mockOrderOwnerResolver) OrderOwnerID(ctx context.Context, orderID string) (string, error) {
	m.calls++
	if m.orderOwnerIDFn != nil {
		return m.orderOwnerIDFn(ctx, orderID)
	}
	return "", nil
}

type mockDecisionRecorder struct {
	decisions map[string]int
}

func (m *mockDecisionRecorder) RecordPolicyDecision(table, operation, decision string) {
	if m.decisions == nil {
		m.decisions = map[string]int{}
	}
	m.decisions[table+"/"+operation+"/"+decision]++
}

func testEvaluator(roles map[string]model.Role, owners map[string]string) *Evaluator {
	roleResolver := &mockRoleResolver{
		resolveRoleFn: func(ctx context.Context, profileID string) (model.Role, error) {
			role, ok := roles[profileID]
			if !ok {
				return "", model.NewProfileNotFoundError(profileID)
			}
			return role, nil
		},
	}
	ownerResolver := &mockOrderOwnerResolver{
		orderOwnerIDFn: func(ctx context.Context, orderID string) (string, error) {
			ownerID, ok := owners[orderID]
			if !ok {
				return "", model.NewOrderNotFoundError(orderID)
			}
			return ownerID, nil
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewEvaluator(roleResolver, ownerResolver, &mockDecisionRecorder{}, logger)
}

// --- テスト ---

// TestEvaluator_Authorize_Matrix はテーブル×操作ごとの判定をまとめて検証する。
func TestEvaluator_Authorize_Matrix(t *testing.T) {
	roles := map[string]model.Role{
		"admin-1": model.RoleAdmin,
		"user-1":  model.RoleUser,
		"user-2":  model.RoleUser,
		"mitra-1": model.RoleMitra,
	}

	tests := []struct {
		name      string
		callerID  string
		table     Table
		op        Operation
		row       Row
		wantAllow bool
	}{
		// 公開読み取り
		{"未認証がカテゴリを読める", "", TableCategories, OpRead, Row{ID: "cat-1"}, true},
		{"未認証が商品を読める", "", TableProducts, OpRead, Row{ID: "prod-1"}, true},
		{"未認証がレビューを読める", "", TableReviews, OpRead, Row{ID: "rev-1", OwnerID: "user-1"}, true},

		// カタログの書き込みは管理者のみ
		{"未認証は商品を作れない", "", TableProducts, OpCreate, Row{}, false},
		{"userは商品を作れない", "user-1", TableProducts, OpCreate, Row{}, false},
		{"mitraは商品を作れない", "mitra-1", TableProducts, OpCreate, Row{}, false},
		{"adminは商品を作れる", "admin-1", TableProducts, OpCreate, Row{}, true},
		{"userはカテゴリを更新できない", "user-1", TableCategories, OpUpdate, Row{ID: "cat-1"}, false},
		{"adminはカテゴリを削除できる", "admin-1", TableCategories, OpDelete, Row{ID: "cat-1"}, true},

		// プロフィール
		{"userは自分のプロフィールを読める", "user-1", TableProfiles, OpRead, Row{ID: "user-1"}, true},
		{"userは他人のプロフィールを読めない", "user-1", TableProfiles, OpRead, Row{ID: "user-2"}, false},
		{"adminは他人のプロフィールを読める", "admin-1", TableProfiles, OpRead, Row{ID: "user-1"}, true},
		{"userは自分のプロフィールを更新できる", "user-1", TableProfiles, OpUpdate, Row{ID: "user-1"}, true},
		{"userは自分のプロフィールでも削除できない", "user-1", TableProfiles, OpDelete, Row{ID: "user-1"}, false},
		{"adminはプロフィールを削除できる", "admin-1", TableProfiles, OpDelete, Row{ID: "user-1"}, true},
		{"プロフィールの作成はadminでも拒否される", "admin-1", TableProfiles, OpCreate, Row{ID: "user-9"}, false},

		// 注文
		{"userは自分の注文を読める", "user-1", TableOrders, OpRead, Row{ID: "order-1", OwnerID: "user-1"}, true},
		{"userは他人の注文を読めない", "user-1", TableOrders, OpRead, Row{ID: "order-2", OwnerID: "user-2"}, false},
		{"adminは他人の注文を読める", "admin-1", TableOrders, OpRead, Row{ID: "order-2", OwnerID: "user-2"}, true},
		{"mitraは他人の注文を読めない", "mitra-1", TableOrders, OpRead, Row{ID: "order-2", OwnerID: "user-2"}, false},
		{"userは自分名義の注文を作れる", "user-1", TableOrders, OpCreate, Row{OwnerID: "user-1"}, true},
		{"userは他人名義の注文を作れない", "user-1", TableOrders, OpCreate, Row{OwnerID: "user-2"}, false},
		{"未認証は注文を作れない", "", TableOrders, OpCreate, Row{OwnerID: ""}, false},
		{"userは自分の注文でも状態を更新できない", "user-1", TableOrders, OpUpdate, Row{ID: "order-1", OwnerID: "user-1"}, false},
		{"adminは注文の状態を更新できる", "admin-1", TableOrders, OpUpdate, Row{ID: "order-1", OwnerID: "user-1"}, true},
		{"adminは注文を削除できる", "admin-1", TableOrders, OpDelete, Row{ID: "order-1", OwnerID: "user-1"}, true},

		// レビュー
		{"userは自分名義のレビューを作れる", "user-1", TableReviews, OpCreate, Row{OwnerID: "user-1"}, true},
		{"未認証はレビューを作れない", "", TableReviews, OpCreate, Row{OwnerID: ""}, false},
		{"userは自分のレビューを更新できる", "user-1", TableReviews, OpUpdate, Row{ID: "rev-1", OwnerID: "user-1"}, true},
		{"userは他人のレビューを更新できない", "user-1", TableReviews, OpUpdate, Row{ID: "rev-2", OwnerID: "user-2"}, false},
		{"userは自分のレビューを削除できる", "user-1", TableReviews, OpDelete, Row{ID: "rev-1", OwnerID: "user-1"}, true},
		{"userは他人のレビューを削除できない", "user-1", TableReviews, OpDelete, Row{ID: "rev-2", OwnerID: "user-2"}, false},
		{"adminは他人のレビューを削除できる", "admin-1", TableReviews, OpDelete, Row{ID: "rev-2", OwnerID: "user-2"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEvaluator(roles, nil)
			err := e.Authorize(context.Background(), tt.callerID, tt.table, tt.op, tt.row)
			if tt.wantAllow {
				if err != nil {
					t.Errorf("Authorize returned error: %v, want allow", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Authorize returned nil, want Forbidden")
			}
			if !model.IsForbidden(err) {
				t.Errorf("expected Forbidden error, got %v", err)
			}
		})
	}
}

// TestEvaluator_Authorize_OrderItemResolvesParentOwner は注文明細の所有者が
// 親注文への1回の検索で解決されることを検証する。
func TestEvaluator_Authorize_OrderItemResolvesParentOwner(t *testing.T) {
	roles := map[string]model.Role{"user-1": model.RoleUser, "user-2": model.RoleUser}
	owners := map[string]string{"order-1": "user-1"}

	t.Run("親注文の所有者は明細を読める", func(t *testing.T) {
		ownerResolver := &mockOrderOwnerResolver{
			orderOwnerIDFn: func(ctx context.Context, orderID string) (string, error) {
				if orderID != "order-1" {
					t.Errorf("OrderOwnerID called with %q, want %q", orderID, "order-1")
				}
				return owners[orderID], nil
			},
		}
		e := testEvaluator(roles, nil)
		e.orders = ownerResolver

		err := e.Authorize(context.Background(), "user-1", TableOrderItems, OpRead, Row{ID: "item-1", OrderID: "order-1"})
		if err != nil {
			t.Fatalf("Authorize returned error: %v", err)
		}
		if ownerResolver.calls != 1 {
			t.Errorf("OrderOwnerID calls = %d, want 1", ownerResolver.calls)
		}
	})

	t.Run("他人の親注文の明細は読めない", func(t *testing.T) {
		e := testEvaluator(roles, owners)
		err := e.Authorize(context.Background(), "user-2", TableOrderItems, OpRead, Row{ID: "item-1", OrderID: "order-1"})
		if !model.IsForbidden(err) {
			t.Errorf("expected Forbidden error, got %v", err)
		}
	})

	t.Run("所有者が解決済みなら再検索しない", func(t *testing.T) {
		ownerResolver := &mockOrderOwnerResolver{}
		e := testEvaluator(roles, nil)
		e.orders = ownerResolver

		err := e.Authorize(context.Background(), "user-1", TableOrderItems, OpRead, Row{ID: "item-1", OwnerID: "user-1", OrderID: "order-1"})
		if err != nil {
			t.Fatalf("Authorize returned error: %v", err)
		}
		if ownerResolver.calls != 0 {
			t.Errorf("OrderOwnerID calls = %d, want 0", ownerResolver.calls)
		}
	})

	t.Run("親注文の解決エラーはそのまま返る", func(t *testing.T) {
		e := testEvaluator(roles, map[string]string{})
		err := e.Authorize(context.Background(), "user-1", TableOrderItems, OpRead, Row{ID: "item-1", OrderID: "order-gone"})
		if !model.IsNotFound(err) {
			t.Errorf("expected NotFound error, got %v", err)
		}
	})
}

// TestEvaluator_Authorize_SystemBypass はDecisionContext経由のシステムバイパスを検証する。
func TestEvaluator_Authorize_SystemBypass(t *testing.T) {
	t.Run("Allow判定を載せるとプロフィール作成も通る", func(t *testing.T) {
		roleResolver := &mockRoleResolver{}
		e := testEvaluator(nil, nil)
		e.roles = roleResolver

		ctx := DecisionContext(context.Background(), Allow)
		err := e.Authorize(ctx, "", TableProfiles, OpCreate, Row{ID: "user-9"})
		if err != nil {
			t.Fatalf("Authorize returned error: %v", err)
		}
		if roleResolver.calls != 0 {
			t.Errorf("ResolveRole calls = %d, want 0 (bypass skips the rule chain)", roleResolver.calls)
		}
	})

	t.Run("Deny判定を載せるとその判定が返る", func(t *testing.T) {
		e := testEvaluator(nil, nil)
		ctx := DecisionContext(context.Background(), Denyf("maintenance window"))
		err := e.Authorize(ctx, "admin-1", TableProducts, OpRead, Row{ID: "prod-1"})
		if !errors.Is(err, Deny) {
			t.Errorf("expected Deny decision, got %v", err)
		}
	})
}

// TestEvaluator_Authorize_RoleFetchedEveryCall は役割が呼び出しのたびに
// 取得し直されることを検証する。判定はリクエストを跨いで保持されない。
func TestEvaluator_Authorize_RoleFetchedEveryCall(t *testing.T) {
	roleResolver := &mockRoleResolver{
		resolveRoleFn: func(ctx context.Context, profileID string) (model.Role, error) {
			return model.RoleUser, nil
		},
	}
	e := testEvaluator(nil, nil)
	e.roles = roleResolver

	row := Row{ID: "rev-1", OwnerID: "user-1"}
	for i := 0; i < 3; i++ {
		if err := e.Authorize(context.Background(), "user-1", TableReviews, OpUpdate, row); err != nil {
			t.Fatalf("Authorize returned error: %v", err)
		}
	}
	if roleResolver.calls != 3 {
		t.Errorf("ResolveRole calls = %d, want 3", roleResolver.calls)
	}
}

// TestEvaluator_Authorize_MissingProfile は有効な呼び出し主体に
// プロフィールが無い場合にNotFoundが表面化することを検証する。
func TestEvaluator_Authorize_MissingProfile(t *testing.T) {
	e := testEvaluator(map[string]model.Role{}, nil)
	err := e.Authorize(context.Background(), "ghost-1", TableProducts, OpRead, Row{ID: "prod-1"})
	if !model.IsNotFound(err) {
		t.Errorf("expected NotFound error, got %v", err)
	}
}

// TestEvaluator_Authorize_UnauthenticatedSkipsRoleLookup は未認証の呼び出しで
// 役割検索が走らないことを検証する。
func TestEvaluator_Authorize_UnauthenticatedSkipsRoleLookup(t *testing.T) {
	roleResolver := &mockRoleResolver{}
	e := testEvaluator(nil, nil)
	e.roles = roleResolver

	if err := e.Authorize(context.Background(), "", TableProducts, OpRead, Row{ID: "prod-1"}); err != nil {
		t.Fatalf("Authorize returned error: %v", err)
	}
	if roleResolver.calls != 0 {
		t.Errorf("ResolveRole calls = %d, want 0", roleResolver.calls)
	}
}

// TestEvaluator_Authorize_RecordsDecisions は判定結果の計測を検証する。
func TestEvaluator_Authorize_RecordsDecisions(t *testing.T) {
	recorder := &mockDecisionRecorder{}
	e := testEvaluator(map[string]model.Role{"user-1": model.RoleUser}, nil)
	e.metrics = recorder

	_ = e.Authorize(context.Background(), "", TableProducts, OpRead, Row{ID: "prod-1"})
	_ = e.Authorize(context.Background(), "user-1", TableProducts, OpCreate, Row{})
	_ = e.Authorize(DecisionContext(context.Background(), Allow), "", TableProfiles, OpCreate, Row{})

	if got := recorder.decisions["products/read/allow"]; got != 1 {
		t.Errorf("products/read/allow = %d, want 1", got)
	}
	if got := recorder.decisions["products/create/deny"]; got != 1 {
		t.Errorf("products/create/deny = %d, want 1", got)
	}
	if got := recorder.decisions["profiles/create/bypass"]; got != 1 {
		t.Errorf("profiles/create/bypass = %d, want 1", got)
	}
}
