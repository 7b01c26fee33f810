// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, forbidden, not_found, conflict, schema, validation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryForbidden  = "forbidden"
	CategoryNotFound   = "not_found"
	CategoryConflict   = "conflict"
	CategorySchema     = "schema"
	CategoryValidation = "validation"
	CategorySystem     = "system"
)

// 定義済みエラーコード
const (
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeIdentityNotFound   = "IDENTITY_NOT_FOUND"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeCategoryNotFound   = "CATEGORY_NOT_FOUND"
	ErrCodeProductNotFound    = "PRODUCT_NOT_FOUND"
	ErrCodeOrderNotFound      = "ORDER_NOT_FOUND"
	ErrCodeReviewNotFound     = "REVIEW_NOT_FOUND"
	ErrCodeDuplicateSlug      = "DUPLICATE_SLUG"
	ErrCodeDuplicateProduct   = "DUPLICATE_PRODUCT"
	ErrCodeDuplicateReview    = "DUPLICATE_REVIEW"
	ErrCodeProductInUse       = "PRODUCT_IN_USE"
	ErrCodeInsufficientStock  = "INSUFFICIENT_STOCK"
	ErrCodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	ErrCodeSchemaIntegrity    = "SCHEMA_INTEGRITY_VIOLATION"
	ErrCodeValidationFailure  = "VALIDATION_FAILURE"
	ErrCodeEmptyOrder         = "EMPTY_ORDER"
	ErrCodeInvalidURL         = "INVALID_URL"
	ErrCodeSSRFBlocked        = "SSRF_BLOCKED"
)

// categoryOf はerrがAPIErrorの場合にそのカテゴリを返す。
func categoryOf(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category
	}
	return ""
}

// IsForbidden は権限拒否エラーかどうかを判定する。
func IsForbidden(err error) bool { return categoryOf(err) == CategoryForbidden }

// IsNotFound は対象未検出エラーかどうかを判定する。
func IsNotFound(err error) bool { return categoryOf(err) == CategoryNotFound }

// IsConflict は一意性衝突エラーかどうかを判定する。
func IsConflict(err error) bool { return categoryOf(err) == CategoryConflict }

// IsSchemaViolation はスキーマ整合性違反エラーかどうかを判定する。
func IsSchemaViolation(err error) bool { return categoryOf(err) == CategorySchema }

// IsValidation は入力検証エラーかどうかを判定する。
func IsValidation(err error) bool { return categoryOf(err) == CategoryValidation }

// NewForbiddenError は権限拒否エラーを生成する。
// どの規則にも許可されなかった操作は一律このエラーになる。
func NewForbiddenError(table, operation string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  fmt.Sprintf("この操作を実行する権限がありません: %s %s", table, operation),
		Category: CategoryForbidden,
		Action:   "ログイン中のアカウントでは実行できない操作です。管理者に問い合わせてください。",
	}
}

// NewIdentityNotFoundError はログイン主体が見つからない場合のエラーを生成する。
func NewIdentityNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeIdentityNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "ログインし直してください。",
	}
}

// NewProfileNotFoundError はプロフィール未検出エラーを生成する。
func NewProfileNotFoundError(profileID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("指定されたプロフィールが見つかりません: %s", profileID),
		Category: CategoryNotFound,
		Action:   "プロフィールIDを確認してください。",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError(categoryID string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリが見つかりません: %s", categoryID),
		Category: CategoryNotFound,
		Action:   "カテゴリIDを確認してください。",
	}
}

// NewProductNotFoundError は商品未検出エラーを生成する。
func NewProductNotFoundError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", productID),
		Category: CategoryNotFound,
		Action:   "商品IDを確認してください。",
	}
}

// NewOrderNotFoundError は注文未検出エラーを生成する。
func NewOrderNotFoundError(orderID string) *APIError {
	return &APIError{
		Code:     ErrCodeOrderNotFound,
		Message:  fmt.Sprintf("指定された注文が見つかりません: %s", orderID),
		Category: CategoryNotFound,
		Action:   "注文IDを確認してください。",
	}
}

// NewReviewNotFoundError はレビュー未検出エラーを生成する。
func NewReviewNotFoundError(reviewID string) *APIError {
	return &APIError{
		Code:     ErrCodeReviewNotFound,
		Message:  fmt.Sprintf("指定されたレビューが見つかりません: %s", reviewID),
		Category: CategoryNotFound,
		Action:   "レビューIDを確認してください。",
	}
}

// NewDuplicateSlugError はスラッグ重複エラーを生成する。
func NewDuplicateSlugError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateSlug,
		Message:  fmt.Sprintf("このスラッグは既に使用されています: %s", slug),
		Category: CategoryConflict,
		Action:   "別のスラッグを指定してください。",
	}
}

// NewDuplicateProductError は商品名重複エラーを生成する。
func NewDuplicateProductError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateProduct,
		Message:  fmt.Sprintf("この商品名は既に登録されています: %s", name),
		Category: CategoryConflict,
		Action:   "別の商品名を指定してください。",
	}
}

// NewDuplicateReviewError は同一商品への重複レビューエラーを生成する。
func NewDuplicateReviewError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateReview,
		Message:  "この商品には既にレビューを投稿しています。",
		Category: CategoryConflict,
		Action:   "既存のレビューを編集してください。",
	}
}

// NewProductInUseError は注文実績のある商品の削除エラーを生成する。
func NewProductInUseError(productID string) *APIError {
	return &APIError{
		Code:     ErrCodeProductInUse,
		Message:  fmt.Sprintf("注文実績のある商品は削除できません: %s", productID),
		Category: CategoryConflict,
		Action:   "過去の注文が参照しているため、商品は削除ではなく在庫0での非表示を検討してください。",
	}
}

// NewInsufficientStockError は在庫不足エラーを生成する。
func NewInsufficientStockError(productName string, stock int) *APIError {
	return &APIError{
		Code:     ErrCodeInsufficientStock,
		Message:  fmt.Sprintf("商品の在庫が不足しています: %s（残り%d点）", productName, stock),
		Category: CategoryConflict,
		Action:   "数量を減らすか、在庫が補充されるまでお待ちください。",
	}
}

// NewInvalidTransitionError は注文ステータスの不正遷移エラーを生成する。
func NewInvalidTransitionError(from, to OrderStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("無効なステータス遷移です: %s から %s", from, to),
		Category: CategoryValidation,
		Action:   "注文のライフサイクル（pending→paid→processing→shipped→delivered）に沿った遷移を指定してください。",
	}
}

// NewSchemaIntegrityError はスキーマ整合性違反エラーを生成する。
// 検出された不整合は自動では修復されず、リコンサイル全体を中断させる。
func NewSchemaIntegrityError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeSchemaIntegrity,
		Message:  fmt.Sprintf("スキーマ整合性違反を検出しました: %s", detail),
		Category: CategorySchema,
		Action:   "reconcileコマンドの実行ログを確認し、必要なら破壊的修復オプションの適用を運用者と協議してください。",
	}
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidationFailure,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: CategoryValidation,
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewEmptyOrderError は明細のない注文エラーを生成する。
func NewEmptyOrderError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyOrder,
		Message:  "注文には少なくとも1つの商品が必要です。",
		Category: CategoryValidation,
		Action:   "商品をカートに追加してから注文してください。",
	}
}

// NewInvalidURLError は無効なURLエラーを生成する。
func NewInvalidURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidURL,
		Message:  fmt.Sprintf("無効なURLです: %s", reason),
		Category: CategoryValidation,
		Action:   "正しいURL形式（http:// または https:// で始まるURL）を入力してください。",
	}
}

// NewSSRFBlockedError はSSRFブロックエラーを生成する。
func NewSSRFBlockedError() *APIError {
	return &APIError{
		Code:     ErrCodeSSRFBlocked,
		Message:  "セキュリティポリシーにより、指定されたURLへのアクセスがブロックされました。",
		Category: CategoryValidation,
		Action:   "公開されているWebサイトのURLを入力してください。ローカルネットワークやプライベートIPへのアクセスは許可されていません。",
	}
}
