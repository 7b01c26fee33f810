package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile := &model.Profile{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, full_name, role, created_at, updated_at
		 FROM profiles WHERE id = $1`,
		id,
	).Scan(&profile.ID, &profile.FullName, &profile.Role, &profile.CreatedAt, &profile.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}

	return profile, nil
}

// ResolveRole は指定プロフィールの役割を取得する。
// 役割列だけを引く軽い検索で、認可のたびに呼ばれる。
func (r *PostgresProfileRepo) ResolveRole(ctx context.Context, profileID string) (model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx,
		`SELECT role FROM profiles WHERE id = $1`,
		profileID,
	).Scan(&role)

	if err == sql.ErrNoRows {
		return "", model.NewProfileNotFoundError(profileID)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}

	return role, nil
}

// Update はプロフィールの表示名を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET full_name = $2, updated_at = now() WHERE id = $1`,
		profile.ID, profile.FullName,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewProfileNotFoundError(profile.ID)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
