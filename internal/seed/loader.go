// Package seed は初期カタログの冪等な投入を提供する。
package seed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/shopspring/decimal"
)

// RowRecorder は投入結果の行数を計測する。
type RowRecorder interface {
	RecordSeedRow(entity, outcome string)
}

// seedPreconditions は投入の前提となる一意性制約。
// これらが無いとupsertの衝突キーが機能せず重複行が生まれるため、
// 欠けていれば1行も投入せずに中断する。
var seedPreconditions = []string{
	"categories_slug_key",
	"products_name_key",
}

// Loader は種データをリポジトリ経由で投入する。
// 全操作が冪等で、繰り返し実行しても行は増えない。
type Loader struct {
	db         *sql.DB
	categories repository.CategoryRepository
	products   repository.ProductRepository
	allowClear bool
	metrics    RowRecorder
	logger     *slog.Logger
}

// NewLoader はLoaderを生成する。
// allowClearはクリア再投入という破壊的操作に対する運用者の明示的な同意。
func NewLoader(db *sql.DB, categories repository.CategoryRepository, products repository.ProductRepository, allowClear bool, metrics RowRecorder, logger *slog.Logger) *Loader {
	return &Loader{
		db:         db,
		categories: categories,
		products:   products,
		allowClear: allowClear,
		metrics:    metrics,
		logger:     logger,
	}
}

// Run は種データを投入する。
// カテゴリはslugをキーに上書き投入し、商品はnameをキーに
// 存在しない行だけを挿入する。
func (l *Loader) Run(ctx context.Context) error {
	if err := l.checkPreconditions(ctx); err != nil {
		return err
	}

	categoryIDs, err := l.loadCategories(ctx)
	if err != nil {
		return err
	}
	if err := l.loadProducts(ctx, categoryIDs); err != nil {
		return err
	}

	l.logger.Info("種データの投入が完了しました",
		"categories", len(seedCategories), "products", len(seedProducts))
	return nil
}

// ClearAndReseed は種データ管理下の表を空にしてから投入し直す。
// カタログを参照する注文明細・注文・レビューも削除される破壊的な操作のため、
// 運用者の明示的な同意なしには実行しない。
func (l *Loader) ClearAndReseed(ctx context.Context) error {
	if !l.allowClear {
		return fmt.Errorf("クリア再投入はデータ損失を伴うため、SEED_ALLOW_CLEAR=true による明示的な同意が必要です")
	}
	if err := l.checkPreconditions(ctx); err != nil {
		return err
	}
	if err := l.clear(ctx); err != nil {
		return err
	}

	categoryIDs, err := l.loadCategories(ctx)
	if err != nil {
		return err
	}
	if err := l.loadProducts(ctx, categoryIDs); err != nil {
		return err
	}

	l.logger.Info("クリア再投入が完了しました",
		"categories", len(seedCategories), "products", len(seedProducts))
	return nil
}

// checkPreconditions は衝突キーとなる一意性制約の存在を名前で検査する。
func (l *Loader) checkPreconditions(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		`SELECT conname FROM pg_constraint WHERE conname = ANY($1)`,
		pq.Array(seedPreconditions),
	)
	if err != nil {
		return fmt.Errorf("前提制約の検査に失敗しました: %w", err)
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
		return fmt.Errorf("前提制約の走査に失敗しました: %w", err)
	}

	for _, name := range seedPreconditions {
		if !found[name] {
			return model.NewSchemaIntegrityError(
				fmt.Sprintf("シードの前提となる一意性制約 %s が存在しません。先にreconcileを実行してください", name))
		}
	}
	return nil
}

// loadCategories はカテゴリをslugキーで投入し、slug→IDの対応を返す。
func (l *Loader) loadCategories(ctx context.Context) (map[string]string, error) {
	now := time.Now()
	for _, c := range seedCategories {
		category := &model.Category{
			ID:          uuid.New().String(),
			Name:        c.name,
			Slug:        c.slug,
			Description: c.description,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		inserted, err := l.categories.UpsertBySlug(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("カテゴリの投入に失敗しました (slug=%s): %w", c.slug, err)
		}
		outcome := "refreshed"
		if inserted {
			outcome = "inserted"
		}
		l.record("category", outcome)
		l.logger.Info("カテゴリを投入しました", "slug", c.slug, "outcome", outcome)
	}

	// 既存行のIDはupsertでは変わらないため、投入後に改めて解決する。
	ids := make(map[string]string, len(seedCategories))
	for _, c := range seedCategories {
		category, err := l.categories.FindBySlug(ctx, c.slug)
		if err != nil {
			return nil, err
		}
		if category == nil {
			return nil, model.NewSchemaIntegrityError(
				fmt.Sprintf("投入直後のカテゴリ %s が見つかりません", c.slug))
		}
		ids[c.slug] = category.ID
	}
	return ids, nil
}

// loadProducts は商品をnameキーで投入する。既存nameの行には一切触れない。
func (l *Loader) loadProducts(ctx context.Context, categoryIDs map[string]string) error {
	now := time.Now()
	for _, p := range seedProducts {
		categoryID, ok := categoryIDs[p.categorySlug]
		if !ok {
			return fmt.Errorf("商品 %s のカテゴリ %s が種データに定義されていません", p.name, p.categorySlug)
		}

		product := &model.Product{
			ID:          uuid.New().String(),
			Name:        p.name,
			Description: p.description,
			Price:       decimal.NewFromInt(p.price),
			Stock:       p.stock,
			Rating:      decimal.Zero,
			ImageURLs:   p.imageURLs,
			CategoryID:  &categoryID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		inserted, err := l.products.InsertIgnoreByName(ctx, product)
		if err != nil {
			return fmt.Errorf("商品の投入に失敗しました (name=%s): %w", p.name, err)
		}
		outcome := "skipped"
		if inserted {
			outcome = "inserted"
		}
		l.record("product", outcome)
		l.logger.Info("商品を投入しました", "name", p.name, "outcome", outcome)
	}
	return nil
}

// clear はカタログと、それを参照する取引データを削除する。
// order_itemsの商品参照はRESTRICTのため、明細→注文→レビュー→商品→カテゴリの順で消す。
func (l *Loader) clear(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"order_items", "orders", "reviews", "products", "categories"} {
		result, err := tx.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return fmt.Errorf("%s の削除に失敗しました: %w", table, err)
		}
		deleted, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		l.logger.Warn("表を空にしました", "table", table, "rows", deleted)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *Loader) record(entity, outcome string) {
	if l.metrics == nil {
		return
	}
	l.metrics.RecordSeedRow(entity, outcome)
}
