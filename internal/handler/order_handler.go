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

// OrderServiceInterface は注文ハンドラーが必要とするサービスインターフェース。
type OrderServiceInterface interface {
	// Create は呼び出し主体自身の名義で注文を作成する。
	Create(ctx context.Context, callerID, shippingAddress string, lines []model.OrderLine) (*model.Order, error)
	// Get は注文を明細付きで取得する。
	Get(ctx context.Context, callerID, orderID string) (*model.Order, error)
	// ListMine は呼び出し主体自身の注文一覧を返す。
	ListMine(ctx context.Context, callerID string) ([]*model.Order, error)
	// ListAll は全注文の一覧を返す。管理者のみ実行できる。
	ListAll(ctx context.Context, callerID string, status model.OrderStatus) ([]*model.Order, error)
	// UpdateStatus は注文の状態を遷移させる。管理者のみ実行できる。
	UpdateStatus(ctx context.Context, callerID, orderID string, to model.OrderStatus) (*model.Order, error)
}

// OrderHandler は注文管理のHTTPハンドラー。
type OrderHandler struct {
	service OrderServiceInterface
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(service OrderServiceInterface) *OrderHandler {
	return &OrderHandler{service: service}
}

// orderLineRequest は注文作成リクエストの明細行。
type orderLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// createOrderRequest は注文作成リクエストのボディ。
type createOrderRequest struct {
	ShippingAddress string             `json:"shipping_address"`
	Items           []orderLineRequest `json:"items"`
}

// updateOrderStatusRequest は注文ステータス更新リクエストのボディ。
type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// orderItemResponse は注文明細のAPIレスポンス。
type orderItemResponse struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
	Subtotal  string `json:"subtotal"`
}

// orderResponse は注文情報のAPIレスポンス。
type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	TotalAmount     string              `json:"total_amount"`
	Status          string              `json:"status"`
	ShippingAddress string              `json:"shipping_address"`
	Items           []orderItemResponse `json:"items"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// CreateOrder は注文を作成する。
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
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

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	lines := make([]model.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, model.OrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.service.Create(r.Context(), callerID, req.ShippingAddress, lines)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toOrderResponse(order))
}

// ListOrders は呼び出し主体自身の注文一覧を返す。
// GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
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

	orders, err := h.service.ListMine(r.Context(), callerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toOrderListResponse(orders))
}

// ListAllOrders は全注文の一覧を返す。管理者のみ実行できる。
// GET /api/orders/all?status=pending
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
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

	status := model.OrderStatus(r.URL.Query().Get("status"))

	orders, err := h.service.ListAll(r.Context(), callerID, status)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toOrderListResponse(orders))
}

// GetOrder は注文詳細を明細付きで取得する。
// GET /api/orders/:id
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
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

	order, err := h.service.Get(r.Context(), callerID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toOrderResponse(order))
}

// UpdateOrderStatus は注文ステータスを遷移させる。管理者のみ実行できる。
// PATCH /api/orders/:id/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
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

	orderID := chi.URLParam(r, "id")

	var req updateOrderStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), callerID, orderID, model.OrderStatus(req.Status))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toOrderResponse(order))
}

// SetupOrderRoutes は注文関連のルーティングを設定したchi.Routerを返す。
// orderCreationMiddleware が nil でない場合、POST /api/orders に注文作成専用レート制限を適用する。
func SetupOrderRoutes(service OrderServiceInterface, orderCreationMiddleware func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	h := NewOrderHandler(service)

	r.Route("/api/orders", func(r chi.Router) {
		if orderCreationMiddleware != nil {
			r.With(orderCreationMiddleware).Post("/", h.CreateOrder)
		} else {
			r.Post("/", h.CreateOrder)
		}

		r.Get("/", h.ListOrders)
		r.Get("/all", h.ListAllOrders)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Patch("/status", h.UpdateOrderStatus)
		})
	})

	return r
}

// --- ヘルパー関数 ---

// toOrderResponse はmodel.OrderからAPIレスポンスに変換する。
func toOrderResponse(o *model.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price.String(),
			Subtotal:  item.LineTotal().String(),
		})
	}
	return orderResponse{
		ID:              o.ID,
		UserID:          o.UserID,
		TotalAmount:     o.TotalAmount.String(),
		Status:          string(o.Status),
		ShippingAddress: o.ShippingAddress,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// toOrderListResponse は注文スライスをAPIレスポンスに変換する。
func toOrderListResponse(orders []*model.Order) []orderResponse {
	res := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		res = append(res, toOrderResponse(o))
	}
	return res
}
