// Package auth はOAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderSubject string
	Email           string
	Name            string
	Provider        string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ProfileCreator は初回ログイン時のプロフィール自動作成インターフェース。
// identity作成と同期で呼ばれ、identityだけが存在する瞬間を作らない。
type ProfileCreator interface {
	OnIdentityCreated(ctx context.Context, identity *model.Identity, fullName, requestedRole string) (*model.Profile, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	identRepo   repository.IdentityRepository
	profileRepo repository.ProfileRepository
	sessionRepo repository.SessionRepository
	profiles    ProfileCreator
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	identRepo repository.IdentityRepository,
	profileRepo repository.ProfileRepository,
	sessionRepo repository.SessionRepository,
	profiles ProfileCreator,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		identRepo:   identRepo,
		profileRepo: profileRepo,
		sessionRepo: sessionRepo,
		profiles:    profiles,
		config:      config,
	}
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 初回ログインではidentityとプロフィールを同時に自動作成する。
// requestedRoleは初回作成でのみ反映され、再ログインでは無視される。
func (s *Service) HandleCallback(ctx context.Context, code, requestedRole string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報を取得
	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndSubject(ctx, userInfo.Provider, userInfo.ProviderSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var identityID string

	if identity != nil {
		// 3a. 既存ユーザー: 役割は初回ログイン時に確定済みで、ここでは変更しない
		identityID = identity.ID
		slog.Info("existing identity logged in",
			slog.String("identity_id", identityID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー: identityとプロフィールを同時に作成
		newIdentity := &model.Identity{
			ID:              uuid.New().String(),
			Provider:        userInfo.Provider,
			ProviderSubject: userInfo.ProviderSubject,
			Email:           userInfo.Email,
			CreatedAt:       time.Now(),
		}

		// プロフィール作成はシステム経路のみが通過できるバイパスの下で行う
		createCtx := policy.DecisionContext(ctx, policy.Allow)
		profile, err := s.profiles.OnIdentityCreated(createCtx, newIdentity, userInfo.Name, requestedRole)
		if err != nil {
			return nil, fmt.Errorf("failed to create identity and profile: %w", err)
		}

		identityID = newIdentity.ID
		slog.Info("new identity created",
			slog.String("identity_id", identityID),
			slog.String("provider", userInfo.Provider),
			slog.String("role", string(profile.Role)),
		)
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("identity logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentIdentity はセッションから現在のidentityとプロフィールを取得する。
// セッションが無効・期限切れの場合は認証エラーを返す。
func (s *Service) GetCurrentIdentity(ctx context.Context, sessionID string) (*model.Identity, *model.Profile, error) {
	if sessionID == "" {
		return nil, nil, model.NewIdentityNotFoundError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil, model.NewIdentityNotFoundError()
	}

	identity, err := s.identRepo.FindByID(ctx, session.IdentityID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, nil, model.NewIdentityNotFoundError()
	}

	profile, err := s.profileRepo.FindByID(ctx, identity.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find profile: %w", err)
	}
	if profile == nil {
		// identityがあるのにプロフィールが無いのは作成同期性の破れ
		slog.Error("identityに対応するプロフィールが存在しません。整合性違反です",
			slog.String("identity_id", identity.ID),
		)
		return nil, nil, model.NewProfileNotFoundError(identity.ID)
	}

	return identity, profile, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, identityID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:         sessionID,
		IdentityID: identityID,
		ExpiresAt:  time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:  time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
