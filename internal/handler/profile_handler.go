package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proditifgorut/alatacraft/internal/middleware"
	"github.com/proditifgorut/alatacraft/internal/model"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	// Get はプロフィールを取得する。本人または管理者のみ参照できる。
	Get(ctx context.Context, callerID, profileID string) (*model.Profile, error)
	// UpdateFullName はプロフィールの表示名を更新する。
	UpdateFullName(ctx context.Context, callerID, profileID, fullName string) (*model.Profile, error)
	// Withdraw はプロフィールを退会処理する。identity、プロフィール、
	// セッションを削除し、注文とレビューは記録として残す。
	Withdraw(ctx context.Context, callerID, profileID string) error
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{
		service: service,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	FullName string `json:"full_name"`
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetProfile は呼び出し主体自身のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	prof, err := h.service.Get(r.Context(), callerID, callerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(prof))
}

// UpdateProfile は呼び出し主体自身の表示名を更新する。
// PUT /api/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	prof, err := h.service.UpdateFullName(r.Context(), callerID, callerID, req.FullName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProfileResponse(prof))
}

// DeleteProfile はプロフィールを退会処理する。管理者のみ実行できる。
// DELETE /api/profiles/:id
func (h *ProfileHandler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	callerID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	if err := h.service.Withdraw(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupProfileRoutes はプロフィール管理関連のルーティングを設定したchi.Routerを返す。
func SetupProfileRoutes(service ProfileServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewProfileHandler(service)

	r.Get("/api/profile", h.GetProfile)
	r.Put("/api/profile", h.UpdateProfile)
	r.Delete("/api/profiles/{id}", h.DeleteProfile)

	return r
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:        p.ID,
		FullName:  p.FullName,
		Role:      string(p.Role),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
