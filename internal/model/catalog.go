// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category は商品カテゴリを表す。
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Product は販売商品を表す。
type Product struct {
	ID          string
	Name        string
	Description string // サニタイズ済み
	Price       decimal.Decimal
	Stock       int
	Rating      decimal.Decimal
	ImageURLs   []string
	CategoryID  *string // カテゴリ削除時はNULLになる
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
