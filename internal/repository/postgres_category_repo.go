package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	category := &model.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at
		 FROM categories WHERE id = $1`,
		id,
	).Scan(&category.ID, &category.Name, &category.Slug, &category.Description, &category.CreatedAt, &category.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}

	return category, nil
}

// FindBySlug はslugでカテゴリを検索する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindBySlug(ctx context.Context, slug string) (*model.Category, error) {
	category := &model.Category{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at
		 FROM categories WHERE slug = $1`,
		slug,
	).Scan(&category.ID, &category.Name, &category.Slug, &category.Description, &category.CreatedAt, &category.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("slugによるカテゴリの検索に失敗しました: %w", err)
	}

	return category, nil
}

// List は全カテゴリをname昇順で返す。
func (r *PostgresCategoryRepo) List(ctx context.Context) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, slug, description, created_at, updated_at
		 FROM categories ORDER BY name ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		category := &model.Category{}
		if err := rows.Scan(&category.ID, &category.Name, &category.Slug, &category.Description, &category.CreatedAt, &category.UpdatedAt); err != nil {
			return nil, fmt.Errorf("カテゴリの読み取りに失敗しました: %w", err)
		}
		categories = append(categories, category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の走査に失敗しました: %w", err)
	}

	return categories, nil
}

// Create はカテゴリを作成する。slug重複はConflictを返す。
func (r *PostgresCategoryRepo) Create(ctx context.Context, category *model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		category.ID, category.Name, category.Slug, category.Description, category.CreatedAt, category.UpdatedAt,
	)
	if isUniqueViolation(err, "categories_slug_key") {
		return model.NewDuplicateSlugError(category.Slug)
	}
	if err != nil {
		return fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はカテゴリを更新する。
func (r *PostgresCategoryRepo) Update(ctx context.Context, category *model.Category) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, slug = $3, description = $4, updated_at = now()
		 WHERE id = $1`,
		category.ID, category.Name, category.Slug, category.Description,
	)
	if isUniqueViolation(err, "categories_slug_key") {
		return model.NewDuplicateSlugError(category.Slug)
	}
	if err != nil {
		return fmt.Errorf("カテゴリの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewCategoryNotFoundError(category.ID)
	}
	return nil
}

// DeleteByID は指定IDのカテゴリを削除する。
// 参照する商品のcategory_idはNULLに落ちる（ON DELETE SET NULL）。
func (r *PostgresCategoryRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewCategoryNotFoundError(id)
	}
	return nil
}

// UpsertBySlug はslugをキーにカテゴリを冪等に投入する。
// 既存slugにはnameとdescriptionを上書きし、挿入したかどうかを返す。
// 並行投入と競合してもON CONFLICTにより必ず1行に収束する。
func (r *PostgresCategoryRepo) UpsertBySlug(ctx context.Context, category *model.Category) (bool, error) {
	existing, err := r.FindBySlug(ctx, category.Slug)
	if err != nil {
		return false, err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO categories (id, name, slug, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (slug) DO UPDATE SET
		     name = EXCLUDED.name,
		     description = EXCLUDED.description,
		     updated_at = EXCLUDED.updated_at`,
		category.ID, category.Name, category.Slug, category.Description, category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("カテゴリの投入に失敗しました: %w", err)
	}

	return existing == nil, nil
}

// isUniqueViolation はerrが指定名の一意制約違反かどうかを判定する。
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == constraint
}

// isForeignKeyViolation はerrが指定名の外部キー制約違反かどうかを判定する。
func isForeignKeyViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503" && pqErr.Constraint == constraint
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
