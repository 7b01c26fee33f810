// Package profile はプロフィールと役割モデルのドメインロジックを提供する。
//
// 役割は admin / user / mitra のフラットな集合で、階層的な継承は持たない。
// プロフィール行はIdentity作成の同期処理としてのみ生まれ、
// identityだけが存在してプロフィールが無い瞬間は存在しない。
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/security"
)

// Authorizer は操作ごとの認可判定インターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error
}

// Service はプロフィールと役割に関するビジネスロジックを提供する。
type Service struct {
	profileRepo  repository.ProfileRepository
	identityRepo repository.IdentityRepository
	sessionRepo  repository.SessionRepository
	authz        Authorizer
	sanitizer    security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	identityRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	authz Authorizer,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		profileRepo:  profileRepo,
		identityRepo: identityRepo,
		sessionRepo:  sessionRepo,
		authz:        authz,
		sanitizer:    sanitizer,
	}
}

// OnIdentityCreated は初回ログインの同期処理としてidentityとプロフィールを
// 同一トランザクションで作成する。
// 要求された役割が不正または空の場合はuserに畳む。エラーにはしない。
// プロフィール作成はシステムバイパスを積んだコンテキストからのみ許可される。
func (s *Service) OnIdentityCreated(ctx context.Context, identity *model.Identity, fullName, requestedRole string) (*model.Profile, error) {
	if err := s.authz.Authorize(ctx, "", policy.TableProfiles, policy.OpCreate, policy.Row{}); err != nil {
		return nil, err
	}

	name := s.sanitizer.SanitizePlainText(fullName)
	role := model.NormalizeRole(requestedRole)
	now := time.Now()

	prof := &model.Profile{
		ID:        identity.ID,
		FullName:  name,
		Role:      role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.identityRepo.CreateWithProfile(ctx, identity, prof); err != nil {
		return nil, fmt.Errorf("identityとプロフィールの作成に失敗しました: %w", err)
	}

	slog.Info("プロフィールを自動作成しました",
		slog.String("profile_id", prof.ID),
		slog.String("role", string(role)),
		slog.String("requested_role", requestedRole),
	)

	return prof, nil
}

// GetRole は指定identityの現在の役割を返す。
// identityが存在するのにプロフィールが無い状態は、作成の同期性が破れた
// 整合性違反であり、握り潰さずエラーログとともに表面化させる。
func (s *Service) GetRole(ctx context.Context, identityID string) (model.Role, error) {
	role, err := s.profileRepo.ResolveRole(ctx, identityID)
	if err != nil {
		if model.IsNotFound(err) {
			slog.Error("identityに対応するプロフィールが存在しません。整合性違反です",
				slog.String("identity_id", identityID),
			)
		}
		return "", err
	}
	return role, nil
}

// Get は指定IDのプロフィールを返す。
// 本人または管理者のみ参照できる。存在しない行はNotFound、
// 存在するが権限が無い行はForbiddenで、行の存在は隠さない。
func (s *Service) Get(ctx context.Context, callerID, profileID string) (*model.Profile, error) {
	prof, err := s.profileRepo.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return nil, model.NewProfileNotFoundError(profileID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProfiles, policy.OpRead, policy.Row{ID: prof.ID}); err != nil {
		return nil, err
	}

	return prof, nil
}

// UpdateFullName はプロフィールの表示名を更新する。
// 表示名はプレーンテキストへ無害化され、空になる入力は検証エラーになる。
func (s *Service) UpdateFullName(ctx context.Context, callerID, profileID, fullName string) (*model.Profile, error) {
	prof, err := s.profileRepo.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return nil, model.NewProfileNotFoundError(profileID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProfiles, policy.OpUpdate, policy.Row{ID: prof.ID}); err != nil {
		return nil, err
	}

	name := s.sanitizer.SanitizePlainText(fullName)
	if name == "" {
		return nil, model.NewValidationError("表示名を入力してください")
	}

	prof.FullName = name
	prof.UpdatedAt = time.Now()
	if err := s.profileRepo.Update(ctx, prof); err != nil {
		return nil, err
	}

	return prof, nil
}

// Withdraw はプロフィールとその主体を退会させる。管理者のみ実行できる。
// 削除順序: sessions → identity（CASCADE: profiles, orders, reviews）
func (s *Service) Withdraw(ctx context.Context, callerID, profileID string) error {
	prof, err := s.profileRepo.FindByID(ctx, profileID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if prof == nil {
		return model.NewProfileNotFoundError(profileID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProfiles, policy.OpDelete, policy.Row{ID: prof.ID}); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("profile_id", profileID),
	)

	// 1. セッションを削除してログイン状態を即時に無効化する
	if err := s.sessionRepo.DeleteByIdentityID(ctx, profileID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	// 2. identityを削除（profiles, orders, reviewsはCASCADE削除）
	if err := s.identityRepo.DeleteByID(ctx, profileID); err != nil {
		return fmt.Errorf("identityの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("profile_id", profileID),
	)

	return nil
}
