package policy

import (
	"context"
	"errors"
	"log/slog"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// RoleResolver は呼び出し主体の役割を解決する。
// 役割は昇格・降格が即時に反映されるよう、認可のたびに取得し直す。
type RoleResolver interface {
	ResolveRole(ctx context.Context, profileID string) (model.Role, error)
}

// OrderOwnerResolver は注文IDから所有プロフィールのIDを解決する。
// order_items の親注文join専用で、1回の索引付き検索で済む実装を想定する。
type OrderOwnerResolver interface {
	OrderOwnerID(ctx context.Context, orderID string) (string, error)
}

// DecisionRecorder は認可判定の結果を計測する。
type DecisionRecorder interface {
	RecordPolicyDecision(table, operation, decision string)
}

// Evaluator は規則表に基づいてテーブル×操作の認可判定を行う。
// 判定結果はリクエストを跨いで保持しない。
type Evaluator struct {
	roles   RoleResolver
	orders  OrderOwnerResolver
	metrics DecisionRecorder
	logger  *slog.Logger
}

// NewEvaluator はEvaluatorを生成する。
func NewEvaluator(roles RoleResolver, orders OrderOwnerResolver, metrics DecisionRecorder, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		roles:   roles,
		orders:  orders,
		metrics: metrics,
		logger:  logger,
	}
}

// Authorize はcallerIDで識別される主体がtableに対するopをrowへ実行できるか判定する。
// 許可ならnil、拒否ならForbiddenを返す。対象行の存在確認は呼び出し側の責務で、
// ここでは行の存在を隠さない（取得してから認可する）。
//
// callerIDが空文字列なら未認証の呼び出しとして評価する。
func (e *Evaluator) Authorize(ctx context.Context, callerID string, table Table, op Operation, row Row) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		e.record(table, op, "bypass")
		return decision
	}

	caller := Caller{ID: callerID}
	if caller.Authenticated() {
		role, err := e.roles.ResolveRole(ctx, callerID)
		if err != nil {
			if model.IsNotFound(err) {
				// 有効なIdentityにプロフィールが無いのは整合性違反。握り潰さず表面化させる。
				e.logger.Error("認可中に呼び出し主体のプロフィールが見つかりません",
					"caller_id", callerID,
					"table", table,
					"operation", op,
				)
			}
			return err
		}
		caller.Role = role
	}

	if table == TableOrderItems && row.OwnerID == "" && row.OrderID != "" {
		ownerID, err := e.orders.OrderOwnerID(ctx, row.OrderID)
		if err != nil {
			return err
		}
		row.OwnerID = ownerID
	}

	for _, rl := range policyTable[table][op] {
		switch decision := rl.eval(ctx, caller, row); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			e.record(table, op, "allow")
			e.logger.Debug("認可を許可しました",
				"caller_id", callerID,
				"table", table,
				"operation", op,
				"rule", rl.name,
			)
			return nil
		default:
			e.record(table, op, "deny")
			e.logger.Warn("認可を拒否しました",
				"caller_id", callerID,
				"table", table,
				"operation", op,
				"rule", rl.name,
			)
			return model.NewForbiddenError(string(table), string(op))
		}
	}

	// 連鎖が尽きたら拒否。
	e.record(table, op, "deny")
	e.logger.Warn("認可を拒否しました",
		"caller_id", callerID,
		"table", table,
		"operation", op,
		"rule", "exhausted",
	)
	return model.NewForbiddenError(string(table), string(op))
}

func (e *Evaluator) record(table Table, op Operation, decision string) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordPolicyDecision(string(table), string(op), decision)
}
