package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したidentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider, provider_subject, email, created_at
		 FROM identities WHERE id = $1`,
		id,
	).Scan(&identity.ID, &identity.Provider, &identity.ProviderSubject, &identity.Email, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}

	return identity, nil
}

// FindByProviderAndSubject はproviderとprovider_subjectでidentityを検索する。
// 見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, provider, provider_subject, email, created_at
		 FROM identities
		 WHERE provider = $1 AND provider_subject = $2`,
		provider, subject,
	).Scan(&identity.ID, &identity.Provider, &identity.ProviderSubject, &identity.Email, &identity.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	return identity, nil
}

// CreateWithProfile はidentityとプロフィールを同一トランザクションで作成する。
// どちらかの挿入が失敗すれば両方とも巻き戻る。プロフィールなしのidentityを
// 作る経路は存在しない。
func (r *PostgresIdentityRepo) CreateWithProfile(ctx context.Context, identity *model.Identity, profile *model.Profile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// identityを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, provider, provider_subject, email, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.Provider, identity.ProviderSubject, identity.Email, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	// プロフィールを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, full_name, role, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		profile.ID, profile.FullName, profile.Role, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteByID は指定IDのidentityを削除する。
// 関連するprofiles、sessions、orders、reviewsはCASCADE削除される。
func (r *PostgresIdentityRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM identities WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewIdentityNotFoundError()
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
