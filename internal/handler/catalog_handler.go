package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/proditifgorut/alatacraft/internal/catalog"
	"github.com/proditifgorut/alatacraft/internal/middleware"
	"github.com/proditifgorut/alatacraft/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	// ListCategories はカテゴリ一覧を返す。
	ListCategories(ctx context.Context, callerID string) ([]*model.Category, error)
	// CreateCategory はカテゴリを作成する。
	CreateCategory(ctx context.Context, callerID string, input catalog.CategoryInput) (*model.Category, error)
	// UpdateCategory はカテゴリを更新する。
	UpdateCategory(ctx context.Context, callerID, categoryID string, input catalog.CategoryInput) (*model.Category, error)
	// DeleteCategory はカテゴリを削除する。所属商品のカテゴリはNULLになる。
	DeleteCategory(ctx context.Context, callerID, categoryID string) error
	// ListProducts は商品一覧を返す。categorySlugが空でなければ絞り込む。
	ListProducts(ctx context.Context, callerID, categorySlug string) ([]*model.Product, error)
	// GetProduct は商品詳細を取得する。
	GetProduct(ctx context.Context, callerID, productID string) (*model.Product, error)
	// CreateProduct は商品を作成する。
	CreateProduct(ctx context.Context, callerID string, input catalog.ProductInput) (*model.Product, error)
	// UpdateProduct は商品を更新する。
	UpdateProduct(ctx context.Context, callerID, productID string, input catalog.ProductInput) (*model.Product, error)
	// DeleteProduct は商品を削除する。注文明細から参照されている商品は削除できない。
	DeleteProduct(ctx context.Context, callerID, productID string) error
}

// CatalogHandler はカテゴリ・商品管理のHTTPハンドラー。
// 閲覧系のエンドポイントは未認証アクセスを許容し、匿名の呼び出し主体として
// サービス層のポリシー評価に委ねる。
type CatalogHandler struct {
	service CatalogServiceInterface
}

// NewCatalogHandler はCatalogHandlerを生成する。
func NewCatalogHandler(service CatalogServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// categoryRequest はカテゴリ作成・更新リクエストのボディ。
type categoryRequest struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// productRequest は商品作成・更新リクエストのボディ。
// 価格は浮動小数の誤差を避けるため文字列で受け取る。
type productRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       string   `json:"price"`
	Stock       int      `json:"stock"`
	ImageURLs   []string `json:"image_urls"`
	CategoryID  *string  `json:"category_id"`
}

// categoryResponse はカテゴリ情報のAPIレスポンス。
type categoryResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// productResponse は商品情報のAPIレスポンス。
// 価格と評価は文字列表現で返す。
type productResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       string    `json:"price"`
	Stock       int       `json:"stock"`
	Rating      string    `json:"rating"`
	ImageURLs   []string  `json:"image_urls"`
	CategoryID  *string   `json:"category_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListCategories はカテゴリ一覧を返す。
// GET /api/categories
func (h *CatalogHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context(), callerIDFromRequest(r))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]categoryResponse, 0, len(categories))
	for _, c := range categories {
		res = append(res, toCategoryResponse(c))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// CreateCategory はカテゴリを作成する。
// POST /api/categories
func (h *CatalogHandler) CreateCategory(w http.ResponseWriter, r *http.Request) {
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

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	category, err := h.service.CreateCategory(r.Context(), callerID, catalog.CategoryInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toCategoryResponse(category))
}

// UpdateCategory はカテゴリを更新する。
// PUT /api/categories/:id
func (h *CatalogHandler) UpdateCategory(w http.ResponseWriter, r *http.Request) {
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

	categoryID := chi.URLParam(r, "id")

	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	category, err := h.service.UpdateCategory(r.Context(), callerID, categoryID, catalog.CategoryInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toCategoryResponse(category))
}

// DeleteCategory はカテゴリを削除する。
// DELETE /api/categories/:id
func (h *CatalogHandler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteCategory(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListProducts は商品一覧を返す。
// GET /api/products?category=slug
func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	categorySlug := r.URL.Query().Get("category")

	products, err := h.service.ListProducts(r.Context(), callerIDFromRequest(r), categorySlug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	res := make([]productResponse, 0, len(products))
	for _, p := range products {
		res = append(res, toProductResponse(p))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

// GetProduct は商品詳細を取得する。
// GET /api/products/:id
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.service.GetProduct(r.Context(), callerIDFromRequest(r), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// CreateProduct は商品を作成する。
// POST /api/products
func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
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

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	input, err := toProductInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	product, err := h.service.CreateProduct(r.Context(), callerID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// UpdateProduct は商品を更新する。
// PUT /api/products/:id
func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
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

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	input, err := toProductInput(req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), callerID, productID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toProductResponse(product))
}

// DeleteProduct は商品を削除する。
// DELETE /api/products/:id
func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.DeleteProduct(r.Context(), callerID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetupCatalogRoutes はカタログ関連のルーティングを設定したchi.Routerを返す。
// 閲覧系は認証なしで到達できる。
func SetupCatalogRoutes(service CatalogServiceInterface) http.Handler {
	r := chi.NewRouter()
	h := NewCatalogHandler(service)

	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", h.ListCategories)
		r.Post("/", h.CreateCategory)
		r.Put("/{id}", h.UpdateCategory)
		r.Delete("/{id}", h.DeleteCategory)
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	return r
}

// --- ヘルパー関数 ---

// callerIDFromRequest はリクエストから呼び出し主体のIDを取り出す。
// セッションミドルウェアを経由しない公開エンドポイントでは空文字列を返し、
// ポリシー評価は匿名の呼び出しとして扱われる。
func callerIDFromRequest(r *http.Request) string {
	identityID, err := middleware.IdentityIDFromContext(r.Context())
	if err != nil {
		return ""
	}
	return identityID
}

// toCategoryResponse はmodel.CategoryからAPIレスポンスに変換する。
func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}

// toProductResponse はmodel.ProductからAPIレスポンスに変換する。
func toProductResponse(p *model.Product) productResponse {
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	return productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.String(),
		Stock:       p.Stock,
		Rating:      p.Rating.String(),
		ImageURLs:   images,
		CategoryID:  p.CategoryID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// toProductInput はリクエストボディをサービス入力に変換する。
// 価格文字列が十進数として解釈できない場合はValidationFailureを返す。
func toProductInput(req productRequest) (catalog.ProductInput, error) {
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		return catalog.ProductInput{}, model.NewValidationError("価格は十進数の文字列で指定してください")
	}
	return catalog.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Price:       price,
		Stock:       req.Stock,
		ImageURLs:   req.ImageURLs,
		CategoryID:  req.CategoryID,
	}, nil
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeIdentityNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden, model.ErrCodeSSRFBlocked:
		return http.StatusForbidden
	case model.ErrCodeProfileNotFound, model.ErrCodeCategoryNotFound,
		model.ErrCodeProductNotFound, model.ErrCodeOrderNotFound,
		model.ErrCodeReviewNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateSlug, model.ErrCodeDuplicateProduct,
		model.ErrCodeDuplicateReview, model.ErrCodeProductInUse,
		model.ErrCodeInsufficientStock:
		return http.StatusConflict
	case model.ErrCodeInvalidTransition:
		return http.StatusUnprocessableEntity
	case model.ErrCodeValidationFailure, model.ErrCodeEmptyOrder, model.ErrCodeInvalidURL:
		return http.StatusBadRequest
	case model.ErrCodeSchemaIntegrity:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
