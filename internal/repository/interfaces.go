// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/proditifgorut/alatacraft/internal/model"
)

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのidentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByProviderAndSubject はproviderとprovider_subjectでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndSubject(ctx context.Context, provider, subject string) (*model.Identity, error)

	// CreateWithProfile はidentityとプロフィールを同一トランザクションで作成する。
	// プロフィール行はIdentity作成の同期処理としてのみ生まれる。
	CreateWithProfile(ctx context.Context, identity *model.Identity, profile *model.Profile) error

	// DeleteByID は指定IDのidentityを削除する。
	// 関連するprofiles、sessions、orders、reviewsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// ProfileRepository はプロフィールデータの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// ResolveRole は指定プロフィールの役割を取得する。
	// 認可のたびに呼ばれるため、結果を保持してはならない。
	// プロフィールが存在しない場合はNotFoundを返す。
	ResolveRole(ctx context.Context, profileID string) (model.Role, error)

	// Update はプロフィールの表示名を更新する。
	// 役割は初回ログイン時に確定し、この経路では変更できない。
	Update(ctx context.Context, profile *model.Profile) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByIdentityID は指定identityの全セッションを削除する。
	DeleteByIdentityID(ctx context.Context, identityID string) error
	// DeleteExpired は期限切れセッションを削除し、削除数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)

	// FindBySlug はslugでカテゴリを検索する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Category, error)

	// List は全カテゴリをname昇順で返す。
	List(ctx context.Context) ([]*model.Category, error)

	// Create はカテゴリを作成する。slug重複はConflictを返す。
	Create(ctx context.Context, category *model.Category) error

	// Update はカテゴリを更新する。
	Update(ctx context.Context, category *model.Category) error

	// DeleteByID は指定IDのカテゴリを削除する。
	// 参照する商品のcategory_idはNULLに落ちる。
	DeleteByID(ctx context.Context, id string) error

	// UpsertBySlug はslugをキーにカテゴリを冪等に投入する。
	// 既存slugにはname、descriptionを上書きし、挿入したかどうかを返す。
	UpsertBySlug(ctx context.Context, category *model.Category) (inserted bool, err error)
}

// ProductRepository は商品データの永続化インターフェース。
type ProductRepository interface {
	// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Product, error)

	// List は商品一覧をcreated_at降順で返す。
	// categorySlugが空でなければそのカテゴリの商品に絞り込む。
	List(ctx context.Context, categorySlug string) ([]*model.Product, error)

	// Create は商品を作成する。name重複はConflictを返す。
	Create(ctx context.Context, product *model.Product) error

	// Update は商品を更新する。
	Update(ctx context.Context, product *model.Product) error

	// DeleteByID は指定IDの商品を削除する。
	DeleteByID(ctx context.Context, id string) error

	// InsertIgnoreByName はnameをキーに商品を投入する。
	// 既存nameの行には一切触れず、挿入したかどうかを返す。
	InsertIgnoreByName(ctx context.Context, product *model.Product) (inserted bool, err error)
}

// OrderRepository は注文データの永続化インターフェース。
type OrderRepository interface {
	// CreateWithItems は注文と明細を同一トランザクションで作成する。
	// 商品行をロックして現在価格を明細に固定し、在庫を引き落とし、
	// 合計金額を明細の総和として計算する。
	CreateWithItems(ctx context.Context, userID, shippingAddress string, lines []model.OrderLine) (*model.Order, error)

	// FindByID は指定IDの注文を明細なしで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Order, error)

	// FindItemsByOrderID は注文の明細一覧を返す。
	FindItemsByOrderID(ctx context.Context, orderID string) ([]model.OrderItem, error)

	// OrderOwnerID は注文の所有プロフィールIDを返す。
	// 注文明細の認可で親注文の所有者を解決するための単一検索。
	// 注文が存在しない場合はNotFoundを返す。
	OrderOwnerID(ctx context.Context, orderID string) (string, error)

	// ListByUserID は指定ユーザーの注文一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Order, error)

	// ListAll は全注文をcreated_at降順で返す。statusが空でなければ絞り込む。
	ListAll(ctx context.Context, status model.OrderStatus) ([]*model.Order, error)

	// UpdateStatus は注文の状態を遷移させる。
	// 現在状態を行ロックしたうえで遷移の妥当性を検査し、
	// cancelledへの遷移では明細分の在庫を戻す。
	UpdateStatus(ctx context.Context, orderID string, to model.OrderStatus) (*model.Order, error)

	// ExpireStalePending はbeforeより古いpendingの注文をまとめてキャンセルし、
	// 在庫を戻す。処理した注文数を返す。
	ExpireStalePending(ctx context.Context, before time.Time) (int64, error)
}

// ReviewRepository はレビューデータの永続化インターフェース。
type ReviewRepository interface {
	// FindByID は指定IDのレビューを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Review, error)

	// ListByProductID は商品のレビュー一覧をcreated_at降順で返す。
	ListByProductID(ctx context.Context, productID string) ([]*model.Review, error)

	// Create はレビューを作成し、商品の平均評価を同一トランザクションで再計算する。
	// 同一ユーザー×商品の重複はConflictを返す。
	Create(ctx context.Context, review *model.Review) error

	// Update はレビューを更新し、商品の平均評価を再計算する。
	Update(ctx context.Context, review *model.Review) error

	// DeleteByID はレビューを削除し、商品の平均評価を再計算する。
	DeleteByID(ctx context.Context, id, productID string) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
