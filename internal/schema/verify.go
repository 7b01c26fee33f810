package schema

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
)

// requiredConstraints は収束後に必ず存在しなければならない制約名。
// リコンサイラとシードローダーは制約を名前で検査するため、名前自体が契約になる。
var requiredConstraints = []string{
	"identities_provider_subject_key",
	"profiles_role_check",
	"categories_slug_key",
	"products_name_key",
	"products_price_check",
	"products_stock_check",
	"products_rating_check",
	"products_category_id_fkey",
	"orders_user_id_fkey",
	"orders_status_check",
	"orders_total_amount_check",
	"order_items_order_id_fkey",
	"order_items_product_id_fkey",
	"order_items_quantity_check",
	"order_items_price_check",
	"reviews_user_id_fkey",
	"reviews_product_id_fkey",
	"reviews_rating_check",
	"reviews_user_product_key",
}

// verifyConstraints は契約済みの制約名が全て存在することを確認する。
func verifyConstraints(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx,
		`SELECT conname FROM pg_constraint WHERE conname = ANY($1)`,
		pq.Array(requiredConstraints),
	)
	if err != nil {
		return fmt.Errorf("制約の検証に失敗しました: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("制約名の読み取りに失敗しました: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("制約の走査に失敗しました: %w", err)
	}

	for _, name := range requiredConstraints {
		if !found[name] {
			return model.NewSchemaIntegrityError(
				fmt.Sprintf("必須の制約 %s が存在しません", name))
		}
	}
	return nil
}

// verifyPolicies は規則表が要求する全ポリシーが存在することを確認する。
func verifyPolicies(ctx context.Context, db *sql.DB) error {
	expected := policy.ExpectedPolicyNames()

	rows, err := db.QueryContext(ctx,
		`SELECT policyname FROM pg_policies WHERE schemaname = 'public' AND policyname = ANY($1)`,
		pq.Array(expected),
	)
	if err != nil {
		return fmt.Errorf("ポリシーの検証に失敗しました: %w", err)
	}
	defer rows.Close()

	found := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("ポリシー名の読み取りに失敗しました: %w", err)
		}
		found[name] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ポリシーの走査に失敗しました: %w", err)
	}

	for _, name := range expected {
		if !found[name] {
			return model.NewSchemaIntegrityError(
				fmt.Sprintf("必須のポリシー %s が存在しません", name))
		}
	}
	return nil
}
