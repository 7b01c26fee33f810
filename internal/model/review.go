// Package model はドメインモデルを定義する。
package model

import "time"

// Review は商品レビューを表す。
type Review struct {
	ID        string
	UserID    string
	ProductID string
	Rating    int    // 1〜5
	Comment   string // サニタイズ済みプレーンテキスト
	CreatedAt time.Time
	UpdatedAt time.Time
}
