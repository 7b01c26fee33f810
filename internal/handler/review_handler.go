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

// ReviewServiceInterface はレビューハンドラーが必要とするサービスインターフェース。
type ReviewServiceInterface interface {
	// ListByProduct は商品のレビュー一覧を返す。
	ListByProduct(ctx context.Context, callerID, productID string) ([]*model.Review, error)
	// Create は呼び出し主体自身の名義でレビューを投稿する。
	Create(ctx context.Context, callerID, productID string, rating int, comment string) (*model.Review, error)
	// Update は自分のレビューを更新する。
	Update(ctx context.Context, callerID, reviewID string, rating int, comment string) (*model.Review, error)
	// Delete は自分のレビューを削除する。
	Delete(ctx context.Context, callerID, reviewID string) error
}

// ReviewHandler は商品レビューのHTTPハンドラー。
// 一覧取得は未認証アクセスを許容する。
type ReviewHandler struct {
	service ReviewServiceInterface
}

// NewReviewHandler はReviewHandlerを生成する。
func NewReviewHandler(service ReviewServiceInterface) *ReviewHandler {
	return &ReviewHandler{service: service}
}

// reviewRequest はレビュー投稿・更新リクエストのボディ。
type reviewRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// reviewResponse はレビュー情報のAPIレスポンス。
type reviewResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListReviews は商品のレビュー一覧を返す。
// GET /api/products/:id/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	reviews, err := h.service.ListByProduct(r.Context(), callerIDFromRequest(r), productID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]reviewResponse, 0, len(reviews))
	for _, review := range reviews {
		res = append(res, toReviewResponse(review))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// CreateReview はレビューを投稿する。
// POST /api/products/:id/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
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

	productID := chi.URLParam(r, "id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	review, err := h.service.Create(r.Context(), callerID, productID, req.Rating, req.Comment)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toReviewResponse(review))
}

// UpdateReview はレビューを更新する。
// PUT /api/reviews/:id
func (h *ReviewHandler) UpdateReview(w http.ResponseWriter, r *http.Request) {
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

	reviewID := chi.URLParam(r, "id")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	review, err := h.service.Update(r.Context(), callerID, reviewID, req.Rating, req.Comment)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toReviewResponse(review))
}

// DeleteReview はレビューを削除する。
// DELETE /api/reviews/:id
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.Delete(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupReviewRoutes はレビュー関連のルーティングを設定したchi.Routerを返す。
func SetupReviewRoutes(service ReviewServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewReviewHandler(service)

	r.Route("/api/products/{id}/reviews", func(r chi.Router) {
		r.Get("/", h.ListReviews)
		r.Post("/", h.CreateReview)
	})

	r.Route("/api/reviews/{id}", func(r chi.Router) {
		r.Put("/", h.UpdateReview)
		r.Delete("/", h.DeleteReview)
	})

	return r
}

// toReviewResponse はmodel.ReviewからAPIレスポンスに変換する。
func toReviewResponse(review *model.Review) reviewResponse {
	return reviewResponse{
		ID:        review.ID,
		UserID:    review.UserID,
		ProductID: review.ProductID,
		Rating:    review.Rating,
		Comment:   review.Comment,
		CreatedAt: review.CreatedAt,
		UpdatedAt: review.UpdatedAt,
	}
}
