// Package order は注文のドメインロジックを提供する。
//
// 注文は所有者本人だけが自分の名義で作成できる。明細の価格は作成時点の
// 商品価格のスナップショットで、合計金額は明細の総和として保存される。
// 状態遷移は管理者のみが行い、キャンセル時の在庫戻しはリポジトリの
// トランザクション内で行われる。
package order

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/security"
)

// Authorizer は操作ごとの認可判定インターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error
}

// Service は注文のビジネスロジックを提供する。
type Service struct {
	orderRepo repository.OrderRepository
	authz     Authorizer
	sanitizer security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(orderRepo repository.OrderRepository, authz Authorizer, sanitizer security.ContentSanitizerService) *Service {
	return &Service{
		orderRepo: orderRepo,
		authz:     authz,
		sanitizer: sanitizer,
	}
}

// Create は呼び出し主体自身の注文を作成する。
// 明細が空の注文は受け付けない。同一商品の明細は数量を合算して1行に畳む。
func (s *Service) Create(ctx context.Context, callerID, shippingAddress string, lines []model.OrderLine) (*model.Order, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableOrders, policy.OpCreate, policy.Row{OwnerID: callerID}); err != nil {
		return nil, err
	}

	address := s.sanitizer.SanitizePlainText(shippingAddress)
	if address == "" {
		return nil, model.NewValidationError("配送先住所を入力してください")
	}
	if len(lines) == 0 {
		return nil, model.NewEmptyOrderError()
	}

	merged, err := mergeLines(lines)
	if err != nil {
		return nil, err
	}

	order, err := s.orderRepo.CreateWithItems(ctx, callerID, address, merged)
	if err != nil {
		return nil, err
	}

	slog.Info("注文を作成しました",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("total_amount", order.TotalAmount.String()),
		slog.Int("items", len(order.Items)),
	)

	return order, nil
}

// Get は注文を明細付きで返す。
// 注文本体と明細はそれぞれ認可される。明細の所有者は親注文のuser_idを
// 1回のjoinで解決して判定され、明細側には所有者を持たない。
func (s *Service) Get(ctx context.Context, callerID, orderID string) (*model.Order, error) {
	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableOrders, policy.OpRead, policy.Row{ID: order.ID, OwnerID: order.UserID}); err != nil {
		return nil, err
	}
	if err := s.authz.Authorize(ctx, callerID, policy.TableOrderItems, policy.OpRead, policy.Row{OrderID: order.ID}); err != nil {
		return nil, err
	}

	items, err := s.orderRepo.FindItemsByOrderID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// ListMine は呼び出し主体自身の注文一覧を返す。
func (s *Service) ListMine(ctx context.Context, callerID string) ([]*model.Order, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableOrders, policy.OpRead, policy.Row{OwnerID: callerID}); err != nil {
		return nil, err
	}
	return s.orderRepo.ListByUserID(ctx, callerID)
}

// ListAll は全注文の一覧を返す。管理者のみ実行できる。
// statusが空でなければそのステータスに絞り込む。
func (s *Service) ListAll(ctx context.Context, callerID string, status model.OrderStatus) ([]*model.Order, error) {
	if status != "" && !status.IsValid() {
		return nil, model.NewValidationError(fmt.Sprintf("不明な注文ステータスです: %s", status))
	}
	if err := s.authz.Authorize(ctx, callerID, policy.TableOrders, policy.OpRead, policy.Row{}); err != nil {
		return nil, err
	}
	return s.orderRepo.ListAll(ctx, status)
}

// UpdateStatus は注文の状態を遷移させる。管理者のみ実行できる。
// 遷移の妥当性検査と、cancelledへの遷移に伴う在庫戻しはリポジトリが
// 行ロック下で行う。
func (s *Service) UpdateStatus(ctx context.Context, callerID, orderID string, to model.OrderStatus) (*model.Order, error) {
	if !to.IsValid() {
		return nil, model.NewValidationError(fmt.Sprintf("不明な注文ステータスです: %s", to))
	}

	order, err := s.orderRepo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, model.NewOrderNotFoundError(orderID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableOrders, policy.OpUpdate, policy.Row{ID: order.ID, OwnerID: order.UserID}); err != nil {
		return nil, err
	}

	updated, err := s.orderRepo.UpdateStatus(ctx, orderID, to)
	if err != nil {
		return nil, err
	}

	slog.Info("注文ステータスを更新しました",
		slog.String("order_id", orderID),
		slog.String("from", string(order.Status)),
		slog.String("to", string(to)),
	)

	return updated, nil
}

// mergeLines は明細の妥当性を検査し、同一商品の行を数量合算で1行に畳む。
// 行の順序は初出順を保つ。
func mergeLines(lines []model.OrderLine) ([]model.OrderLine, error) {
	merged := make([]model.OrderLine, 0, len(lines))
	index := make(map[string]int, len(lines))

	for _, line := range lines {
		if line.ProductID == "" {
			return nil, model.NewValidationError("商品IDを指定してください")
		}
		if line.Quantity <= 0 {
			return nil, model.NewValidationError("数量は1以上で指定してください")
		}
		if i, ok := index[line.ProductID]; ok {
			merged[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	return merged, nil
}
