// Package schema はストアの構造を目標形状へ冪等に収束させるリコンサイラを提供する。
package schema

import (
	"context"
	"database/sql"
	"fmt"
)

// driftColumn は過去のリビジョンで型が揺れたことのある列の目録の1項目。
// 連番整数で宣言された所有・参照列をuuidへ作り直すのが再発パターンで、
// 参照整合性を壊さないために依存する外部キー制約を名前指定で先に落とす。
type driftColumn struct {
	table    string
	column   string
	wantType string

	// primaryKey の列は作り直し時にPRIMARY KEY DEFAULT gen_random_uuid()を付け直す。
	primaryKey bool

	// dependentFKs はこの列に依存する外部キー制約。制約の持ち主テーブルと制約名の組。
	dependentFKs []dependentFK

	// referencingColumns はこの列を参照する側の列。主キーを作り直す場合、
	// 参照側も同じトランザクションで必ず作り直す（lockstep修復）。
	referencingColumns []string

	// cleanup は作り直しで参照を失った行を取り除くSQL。空なら不要。
	cleanup string
}

type dependentFK struct {
	table      string
	constraint string
}

// driftTargets は検査対象の列とその目標型。
// ここに載る列だけが型検査と破壊的修復の対象になる。
var driftTargets = []driftColumn{
	{
		table: "products", column: "id", wantType: "uuid", primaryKey: true,
		dependentFKs: []dependentFK{
			{table: "order_items", constraint: "order_items_product_id_fkey"},
			{table: "reviews", constraint: "reviews_product_id_fkey"},
		},
		referencingColumns: []string{"order_items.product_id", "reviews.product_id"},
	},
	{
		table: "orders", column: "id", wantType: "uuid", primaryKey: true,
		dependentFKs: []dependentFK{
			{table: "order_items", constraint: "order_items_order_id_fkey"},
		},
		referencingColumns: []string{"order_items.order_id"},
	},
	{
		table: "orders", column: "user_id", wantType: "uuid",
		dependentFKs: []dependentFK{
			{table: "orders", constraint: "orders_user_id_fkey"},
		},
		cleanup: `DELETE FROM orders WHERE user_id IS NULL`,
	},
	{
		table: "order_items", column: "order_id", wantType: "uuid",
		dependentFKs: []dependentFK{
			{table: "order_items", constraint: "order_items_order_id_fkey"},
		},
		cleanup: `DELETE FROM order_items WHERE order_id IS NULL`,
	},
	{
		table: "order_items", column: "product_id", wantType: "uuid",
		dependentFKs: []dependentFK{
			{table: "order_items", constraint: "order_items_product_id_fkey"},
		},
		cleanup: `DELETE FROM order_items WHERE product_id IS NULL`,
	},
	{
		table: "reviews", column: "product_id", wantType: "uuid",
		dependentFKs: []dependentFK{
			{table: "reviews", constraint: "reviews_product_id_fkey"},
		},
		cleanup: `DELETE FROM reviews WHERE product_id IS NULL`,
	},
}

// Mismatch は目標と異なる型で存在している列。
type Mismatch struct {
	Table       string
	Column      string
	CurrentType string
	WantType    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s.%s: %s (want %s)", m.Table, m.Column, m.CurrentType, m.WantType)
}

// inspectDrift は目録上の各列の現在型をinformation_schemaで検査し、
// 目標型と食い違う列を返す。列や表が存在しない場合は不一致としない
// （台帳が後から正しい形で作るため）。
func inspectDrift(ctx context.Context, db *sql.DB) ([]Mismatch, error) {
	var mismatches []Mismatch
	for _, target := range driftTargets {
		var dataType string
		err := db.QueryRowContext(ctx,
			`SELECT data_type FROM information_schema.columns
			 WHERE table_schema = 'public' AND table_name = $1 AND column_name = $2`,
			target.table, target.column,
		).Scan(&dataType)

		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			// 現在状態を安全に判定できない場合は推測せず全体を中断する。
			return nil, fmt.Errorf("列型の検査に失敗しました (%s.%s): %w", target.table, target.column, err)
		}

		if dataType != target.wantType {
			mismatches = append(mismatches, Mismatch{
				Table:       target.table,
				Column:      target.column,
				CurrentType: dataType,
				WantType:    target.wantType,
			})
		}
	}
	return mismatches, nil
}

// expandLockstep は主キーの不一致に対して、その参照側の列を修復対象へ加える。
// 参照列だけ残すと外部キーの付け直しが型不一致で必ず失敗するため、
// 主キーと参照側は常に同時に作り直す。
func expandLockstep(mismatches []Mismatch) []Mismatch {
	selected := map[string]Mismatch{}
	for _, m := range mismatches {
		selected[m.Table+"."+m.Column] = m
	}

	for _, m := range mismatches {
		target, ok := findDriftTarget(m.Table, m.Column)
		if !ok || !target.primaryKey {
			continue
		}
		for _, ref := range target.referencingColumns {
			if _, exists := selected[ref]; exists {
				continue
			}
			refTarget, ok := findDriftTargetByKey(ref)
			if !ok {
				continue
			}
			selected[ref] = Mismatch{
				Table:       refTarget.table,
				Column:      refTarget.column,
				CurrentType: "(lockstep)",
				WantType:    refTarget.wantType,
			}
		}
	}

	// 目録順で安定させる
	var expanded []Mismatch
	for _, target := range driftTargets {
		if m, ok := selected[target.table+"."+target.column]; ok {
			expanded = append(expanded, m)
		}
	}
	return expanded
}

func findDriftTarget(table, column string) (driftColumn, bool) {
	return findDriftTargetByKey(table + "." + column)
}

func findDriftTargetByKey(key string) (driftColumn, bool) {
	for _, target := range driftTargets {
		if target.table+"."+target.column == key {
			return target, true
		}
	}
	return driftColumn{}, false
}

// repairStatements は不一致列の作り直しDDL一式を実行順で返す。
// 依存外部キーの削除 → 列の削除と作り直し → 参照を失った行の掃除、の順。
func repairStatements(mismatches []Mismatch) []string {
	var stmts []string

	// 依存制約を先に全て落とす。同じ制約が複数列から指されてもIF EXISTSで冪等。
	for _, m := range mismatches {
		target, ok := findDriftTarget(m.Table, m.Column)
		if !ok {
			continue
		}
		for _, fk := range target.dependentFKs {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", fk.table, fk.constraint))
		}
	}

	for _, m := range mismatches {
		target, ok := findDriftTarget(m.Table, m.Column)
		if !ok {
			continue
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN IF EXISTS %s", target.table, target.column))
		if target.primaryKey {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s uuid PRIMARY KEY DEFAULT gen_random_uuid()", target.table, target.column))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s uuid", target.table, target.column))
		}
	}

	for _, m := range mismatches {
		target, ok := findDriftTarget(m.Table, m.Column)
		if !ok || target.cleanup == "" {
			continue
		}
		stmts = append(stmts, target.cleanup)
	}

	return stmts
}
