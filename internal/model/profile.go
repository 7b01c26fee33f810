// Package model はドメインモデルを定義する。
package model

import "time"

// Role はプロフィールの役割を表す。
// 役割はフラットな集合であり、階層的な継承は持たない。
type Role string

const (
	// RoleAdmin は管理者。全テーブルの管理操作が許可される。
	RoleAdmin Role = "admin"
	// RoleUser は一般ユーザー。既定の役割。
	RoleUser Role = "user"
	// RoleMitra は提携パートナー。現行のポリシー表ではuserと同じ権限を持つ。
	RoleMitra Role = "mitra"
)

// IsValid は既知の役割かどうかを判定する。
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleMitra:
		return true
	}
	return false
}

// NormalizeRole は要求された役割を検証し、不明または空の場合はRoleUserに畳む。
// 初回ログインのプロフィール自動作成で使用される。
func NormalizeRole(requested string) Role {
	r := Role(requested)
	if !r.IsValid() {
		return RoleUser
	}
	return r
}

// Identity は外部IdPのログイン主体を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID              string
	Provider        string
	ProviderSubject string
	Email           string
	CreatedAt       time.Time
}

// Profile はアプリケーション側のユーザープロフィールを表す。
// identitiesと1対1で対応し、IDは参照先identityのIDと一致する。
type Profile struct {
	ID        string
	FullName  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID         string
	IdentityID string
	ExpiresAt  time.Time
	CreatedAt  time.Time
}
