// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus は注文のライフサイクル状態を表す。
type OrderStatus string

const (
	// OrderStatusPending は支払い待ちの初期状態。
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid は支払い確認済みの状態。
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusProcessing は出荷準備中の状態。
	OrderStatusProcessing OrderStatus = "processing"
	// OrderStatusShipped は出荷済みの状態。
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered は配達完了の終端状態。
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled はキャンセルされた終端状態。
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsValid は既知のステータスかどうかを判定する。
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusPending, OrderStatusPaid, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal は以降の遷移が存在しない終端状態かどうかを判定する。
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo は現在の状態からnextへの遷移が正当かどうかを判定する。
// 通常の進行は pending→paid→processing→shipped→delivered の一方向で、
// キャンセルはdelivered以前の任意の状態から可能。
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if next == OrderStatusCancelled {
		return !s.IsTerminal()
	}
	switch s {
	case OrderStatusPending:
		return next == OrderStatusPaid
	case OrderStatusPaid:
		return next == OrderStatusProcessing
	case OrderStatusProcessing:
		return next == OrderStatusShipped
	case OrderStatusShipped:
		return next == OrderStatusDelivered
	}
	return false
}

// Order は注文を表す。
// TotalAmountは作成時に明細の合計から算出され、以降は変更されない。
type Order struct {
	ID              string
	UserID          string
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	ShippingAddress string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	Items           []OrderItem
}

// OrderItem は注文の明細行を表す。
// Priceは注文時点の商品価格のスナップショットで、商品の価格改定の影響を受けない。
type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Price     decimal.Decimal
	CreatedAt time.Time
}

// LineTotal は明細行の小計（単価×数量）を返す。
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderLine は注文作成リクエストの未保存の明細行を表す。
// 価格は含まない。価格は注文作成時に商品マスタからスナップショットされる。
type OrderLine struct {
	ProductID string
	Quantity  int
}
