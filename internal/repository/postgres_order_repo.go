package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/shopspring/decimal"
)

// PostgresOrderRepo はPostgreSQLを使用した注文リポジトリ。
type PostgresOrderRepo struct {
	db *sql.DB
}

// NewPostgresOrderRepo はPostgresOrderRepoを生成する。
func NewPostgresOrderRepo(db *sql.DB) *PostgresOrderRepo {
	return &PostgresOrderRepo{db: db}
}

// CreateWithItems は注文と明細を同一トランザクションで作成する。
// 商品行をロックして現在価格を明細に固定し、在庫を引き落とす。
// 合計金額は固定した明細価格×数量の総和として計算する。
func (r *PostgresOrderRepo) CreateWithItems(ctx context.Context, userID, shippingAddress string, lines []model.OrderLine) (*model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// 商品はID順にロックする。
	sorted := make([]model.OrderLine, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	now := time.Now().UTC()
	order := &model.Order{
		ID:              uuid.New().String(),
		UserID:          userID,
		Status:          model.OrderStatusPending,
		ShippingAddress: shippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(sorted))
	for _, line := range sorted {
		var name string
		var price decimal.Decimal
		var stock int

		err := tx.QueryRowContext(ctx,
			`SELECT name, price, stock FROM products WHERE id = $1 FOR UPDATE`,
			line.ProductID,
		).Scan(&name, &price, &stock)
		if err == sql.ErrNoRows {
			return nil, model.NewProductNotFoundError(line.ProductID)
		}
		if err != nil {
			return nil, fmt.Errorf("注文対象商品の取得に失敗しました: %w", err)
		}

		if stock < line.Quantity {
			return nil, model.NewInsufficientStockError(name, stock)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE products SET stock = stock - $2, updated_at = now() WHERE id = $1`,
			line.ProductID, line.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("在庫の引き落としに失敗しました: %w", err)
		}

		item := model.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   order.ID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			Price:     price,
			CreatedAt: now,
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	order.TotalAmount = total

	_, err = tx.ExecContext(ctx,
		`INSERT INTO orders (id, user_id, total_amount, status, shipping_address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		order.ID, order.UserID, order.TotalAmount, order.Status, order.ShippingAddress,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("注文の作成に失敗しました: %w", err)
	}

	for _, item := range items {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, product_id, quantity, price, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			item.ID, item.OrderID, item.ProductID, item.Quantity, item.Price, item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("注文明細の作成に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	order.Items = items
	return order, nil
}

// FindByID は指定IDの注文を明細なしで取得する。見つからない場合はnilを返す。
func (r *PostgresOrderRepo) FindByID(ctx context.Context, id string) (*model.Order, error) {
	order := &model.Order{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, status, shipping_address, created_at, updated_at
		 FROM orders WHERE id = $1`,
		id,
	).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.ShippingAddress,
		&order.CreatedAt, &order.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("注文の取得に失敗しました: %w", err)
	}

	return order, nil
}

// FindItemsByOrderID は注文の明細一覧を返す。
func (r *PostgresOrderRepo) FindItemsByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, order_id, product_id, quantity, price, created_at
		 FROM order_items WHERE order_id = $1 ORDER BY created_at ASC`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文明細の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	for rows.Next() {
		var item model.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("注文明細の読み取りに失敗しました: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文明細の走査に失敗しました: %w", err)
	}

	return items, nil
}

// OrderOwnerID は注文の所有プロフィールIDを返す。
// idx_orders_user_idではなく主キー検索1回で済み、明細側に所有者を
// 持たせる非正規化を不要にする。注文が存在しない場合はNotFoundを返す。
func (r *PostgresOrderRepo) OrderOwnerID(ctx context.Context, orderID string) (string, error) {
	var ownerID string
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id FROM orders WHERE id = $1`,
		orderID,
	).Scan(&ownerID)

	if err == sql.ErrNoRows {
		return "", model.NewOrderNotFoundError(orderID)
	}
	if err != nil {
		return "", fmt.Errorf("注文所有者の解決に失敗しました: %w", err)
	}

	return ownerID, nil
}

// ListByUserID は指定ユーザーの注文一覧をcreated_at降順で返す。
func (r *PostgresOrderRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, total_amount, status, shipping_address, created_at, updated_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

// ListAll は全注文をcreated_at降順で返す。statusが空でなければ絞り込む。
func (r *PostgresOrderRepo) ListAll(ctx context.Context, status model.OrderStatus) ([]*model.Order, error) {
	var rows *sql.Rows
	var err error

	if status == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, total_amount, status, shipping_address, created_at, updated_at
			 FROM orders ORDER BY created_at DESC`,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT id, user_id, total_amount, status, shipping_address, created_at, updated_at
			 FROM orders WHERE status = $1 ORDER BY created_at DESC`,
			status,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("注文一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return scanOrders(rows)
}

func scanOrders(rows *sql.Rows) ([]*model.Order, error) {
	var orders []*model.Order
	for rows.Next() {
		order := &model.Order{}
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status,
			&order.ShippingAddress, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, fmt.Errorf("注文の読み取りに失敗しました: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("注文一覧の走査に失敗しました: %w", err)
	}

	return orders, nil
}

// UpdateStatus は注文の状態を遷移させる。
// 現在状態を行ロックしたうえで遷移の妥当性を検査し、
// cancelledへの遷移では明細分の在庫を同一トランザクションで戻す。
func (r *PostgresOrderRepo) UpdateStatus(ctx context.Context, orderID string, to model.OrderStatus) (*model.Order, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var from model.OrderStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM orders WHERE id = $1 FOR UPDATE`,
		orderID,
	).Scan(&from)
	if err == sql.ErrNoRows {
		return nil, model.NewOrderNotFoundError(orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("注文状態の取得に失敗しました: %w", err)
	}

	if !from.CanTransitionTo(to) {
		return nil, model.NewInvalidTransitionError(from, to)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`,
		orderID, to,
	)
	if err != nil {
		return nil, fmt.Errorf("注文状態の更新に失敗しました: %w", err)
	}

	if to == model.OrderStatusCancelled {
		if err := restockItems(ctx, tx, orderID); err != nil {
			return nil, err
		}
	}

	order := &model.Order{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, user_id, total_amount, status, shipping_address, created_at, updated_at
		 FROM orders WHERE id = $1`,
		orderID,
	).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.ShippingAddress,
		&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("更新後の注文の取得に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return order, nil
}

// ExpireStalePending はbeforeより古いpendingの注文をまとめてキャンセルし、
// 明細分の在庫を戻す。複数インスタンスの同時実行と衝突しないよう
// FOR UPDATE SKIP LOCKEDで対象を確保する。処理した注文数を返す。
func (r *PostgresOrderRepo) ExpireStalePending(ctx context.Context, before time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM orders
		 WHERE status = 'pending' AND created_at < $1
		 ORDER BY created_at ASC
		 FOR UPDATE SKIP LOCKED`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ注文の取得に失敗しました: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("期限切れ注文の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("期限切れ注文の走査に失敗しました: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return 0, tx.Commit()
	}

	for _, id := range ids {
		if err := restockItems(ctx, tx, id); err != nil {
			return 0, err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET status = 'cancelled', updated_at = now() WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れ注文のキャンセルに失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return int64(len(ids)), nil
}

// restockItems は注文の明細分の在庫を商品に戻す。
func restockItems(ctx context.Context, tx *sql.Tx, orderID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE products p
		 SET stock = p.stock + oi.quantity, updated_at = now()
		 FROM order_items oi
		 WHERE oi.order_id = $1 AND oi.product_id = p.id`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("在庫の払い戻しに失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ OrderRepository = (*PostgresOrderRepo)(nil)
