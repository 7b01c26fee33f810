package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// PostgresReviewRepo はPostgreSQLを使用したレビューリポジトリ。
type PostgresReviewRepo struct {
	db *sql.DB
}

// NewPostgresReviewRepo はPostgresReviewRepoを生成する。
func NewPostgresReviewRepo(db *sql.DB) *PostgresReviewRepo {
	return &PostgresReviewRepo{db: db}
}

// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
func (r *PostgresReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	review := &model.Review{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at, updated_at
		 FROM reviews WHERE id = $1`,
		id,
	).Scan(&review.ID, &review.UserID, &review.ProductID, &review.Rating, &review.Comment,
		&review.CreatedAt, &review.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("レビューの取得に失敗しました: %w", err)
	}

	return review, nil
}

// ListByProductID は商品のレビュー一覧をcreated_at降順で返す。
func (r *PostgresReviewRepo) ListByProductID(ctx context.Context, productID string) ([]*model.Review, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, product_id, rating, comment, created_at, updated_at
		 FROM reviews WHERE product_id = $1 ORDER BY created_at DESC`,
		productID,
	)
	if err != nil {
		return nil, fmt.Errorf("レビュー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var reviews []*model.Review
	for rows.Next() {
		review := &model.Review{}
		if err := rows.Scan(&review.ID, &review.UserID, &review.ProductID, &review.Rating,
			&review.Comment, &review.CreatedAt, &review.UpdatedAt); err != nil {
			return nil, fmt.Errorf("レビューの読み取りに失敗しました: %w", err)
		}
		reviews = append(reviews, review)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("レビュー一覧の走査に失敗しました: %w", err)
	}

	return reviews, nil
}

// Create はレビューを作成し、商品の平均評価を同一トランザクションで再計算する。
// 同一ユーザー×商品の重複はConflictを返す。
func (r *PostgresReviewRepo) Create(ctx context.Context, review *model.Review) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO reviews (id, user_id, product_id, rating, comment, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		review.ID, review.UserID, review.ProductID, review.Rating, review.Comment,
		review.CreatedAt, review.UpdatedAt,
	)
	if isUniqueViolation(err, "reviews_user_product_key") {
		return model.NewDuplicateReviewError()
	}
	if err != nil {
		return fmt.Errorf("レビューの作成に失敗しました: %w", err)
	}

	if err := recalcProductRating(ctx, tx, review.ProductID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update はレビューを更新し、商品の平均評価を再計算する。
func (r *PostgresReviewRepo) Update(ctx context.Context, review *model.Review) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE reviews SET rating = $2, comment = $3, updated_at = now() WHERE id = $1`,
		review.ID, review.Rating, review.Comment,
	)
	if err != nil {
		return fmt.Errorf("レビューの更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewReviewNotFoundError(review.ID)
	}

	if err := recalcProductRating(ctx, tx, review.ProductID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteByID はレビューを削除し、商品の平均評価を再計算する。
func (r *PostgresReviewRepo) DeleteByID(ctx context.Context, id, productID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`DELETE FROM reviews WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("レビューの削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewReviewNotFoundError(id)
	}

	if err := recalcProductRating(ctx, tx, productID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// recalcProductRating は商品の平均評価を現存レビューから計算し直す。
// レビューが1件も無ければ0.0に戻す。
func recalcProductRating(ctx context.Context, tx *sql.Tx, productID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET rating = COALESCE(
		     (SELECT ROUND(AVG(rating)::numeric, 1) FROM reviews WHERE product_id = $1),
		     0
		 ), updated_at = now()
		 WHERE id = $1`,
		productID,
	)
	if err != nil {
		return fmt.Errorf("商品評価の再計算に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ReviewRepository = (*PostgresReviewRepo)(nil)
