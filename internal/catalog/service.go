// Package catalog はカテゴリと商品のカタログ管理ロジックを提供する。
//
// 読み取りは未認証でも可能な公開操作で、作成・更新・削除は管理者のみが行う。
// 商品の評価(rating)はレビューから再計算される導出値であり、この層からは変更できない。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/security"
	"github.com/shopspring/decimal"
)

// Authorizer は操作ごとの認可判定インターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error
}

// slugPattern はカテゴリslugの形式。小文字英数をハイフンで繋いだ形のみ許可する。
var slugPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// validate はカタログ入力の検証器。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("slug", func(fl validator.FieldLevel) bool {
		return slugPattern.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return v
}

// CategoryInput はカテゴリ作成・更新の入力。
type CategoryInput struct {
	Name        string `validate:"required,max=100"`
	Slug        string `validate:"required,max=100,slug"`
	Description string `validate:"max=1000"`
}

// ProductInput は商品作成・更新の入力。
// Priceは十進数のまま扱うためタグ検証の対象外で、validateProductが個別に検証する。
type ProductInput struct {
	Name        string          `validate:"required,max=150"`
	Description string          `validate:"max=5000"`
	Price       decimal.Decimal `validate:"-"`
	Stock       int             `validate:"gte=0"`
	ImageURLs   []string        `validate:"max=10,dive,required"`
	CategoryID  *string         `validate:"omitempty,uuid"`
}

// Service はカタログのビジネスロジックを提供する。
type Service struct {
	categoryRepo repository.CategoryRepository
	productRepo  repository.ProductRepository
	authz        Authorizer
	sanitizer    security.ContentSanitizerService
	urlGuard     security.URLGuardService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	categoryRepo repository.CategoryRepository,
	productRepo repository.ProductRepository,
	authz Authorizer,
	sanitizer security.ContentSanitizerService,
	urlGuard security.URLGuardService,
) *Service {
	return &Service{
		categoryRepo: categoryRepo,
		productRepo:  productRepo,
		authz:        authz,
		sanitizer:    sanitizer,
		urlGuard:     urlGuard,
	}
}

// ListCategories は全カテゴリを返す。
func (s *Service) ListCategories(ctx context.Context, callerID string) ([]*model.Category, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableCategories, policy.OpRead, policy.Row{}); err != nil {
		return nil, err
	}
	return s.categoryRepo.List(ctx)
}

// CreateCategory はカテゴリを作成する。管理者のみ実行できる。
func (s *Service) CreateCategory(ctx context.Context, callerID string, input CategoryInput) (*model.Category, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableCategories, policy.OpCreate, policy.Row{}); err != nil {
		return nil, err
	}

	input.Name = s.sanitizer.SanitizePlainText(input.Name)
	input.Description = s.sanitizer.SanitizePlainText(input.Description)
	if err := validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	now := time.Now()
	category := &model.Category{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Slug:        input.Slug,
		Description: input.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, err
	}

	slog.Info("カテゴリを作成しました",
		slog.String("category_id", category.ID),
		slog.String("slug", category.Slug),
	)

	return category, nil
}

// UpdateCategory はカテゴリを更新する。管理者のみ実行できる。
func (s *Service) UpdateCategory(ctx context.Context, callerID, categoryID string, input CategoryInput) (*model.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, model.NewCategoryNotFoundError(categoryID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableCategories, policy.OpUpdate, policy.Row{ID: category.ID}); err != nil {
		return nil, err
	}

	input.Name = s.sanitizer.SanitizePlainText(input.Name)
	input.Description = s.sanitizer.SanitizePlainText(input.Description)
	if err := validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	category.Name = input.Name
	category.Slug = input.Slug
	category.Description = input.Description
	category.UpdatedAt = time.Now()
	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, err
	}

	return category, nil
}

// DeleteCategory はカテゴリを削除する。管理者のみ実行できる。
// 参照する商品のcategory_idはNULLに落ち、商品自体は残る。
func (s *Service) DeleteCategory(ctx context.Context, callerID, categoryID string) error {
	category, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		return err
	}
	if category == nil {
		return model.NewCategoryNotFoundError(categoryID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableCategories, policy.OpDelete, policy.Row{ID: category.ID}); err != nil {
		return err
	}

	if err := s.categoryRepo.DeleteByID(ctx, categoryID); err != nil {
		return err
	}

	slog.Info("カテゴリを削除しました",
		slog.String("category_id", categoryID),
		slog.String("slug", category.Slug),
	)

	return nil
}

// ListProducts は商品一覧を返す。categorySlugが空でなければ絞り込む。
func (s *Service) ListProducts(ctx context.Context, callerID, categorySlug string) ([]*model.Product, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableProducts, policy.OpRead, policy.Row{}); err != nil {
		return nil, err
	}
	return s.productRepo.List(ctx, categorySlug)
}

// GetProduct は指定IDの商品を返す。
func (s *Service) GetProduct(ctx context.Context, callerID, productID string) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProducts, policy.OpRead, policy.Row{ID: product.ID}); err != nil {
		return nil, err
	}

	return product, nil
}

// CreateProduct は商品を作成する。管理者のみ実行できる。
// 評価は0で始まり、以後はレビューの平均から再計算される。
func (s *Service) CreateProduct(ctx context.Context, callerID string, input ProductInput) (*model.Product, error) {
	if err := s.authz.Authorize(ctx, callerID, policy.TableProducts, policy.OpCreate, policy.Row{}); err != nil {
		return nil, err
	}

	input.Name = s.sanitizer.SanitizePlainText(input.Name)
	input.Description = s.sanitizer.SanitizePlainText(input.Description)
	if err := s.validateProduct(ctx, &input); err != nil {
		return nil, err
	}

	now := time.Now()
	product := &model.Product{
		ID:          uuid.New().String(),
		Name:        input.Name,
		Description: input.Description,
		Price:       input.Price,
		Stock:       input.Stock,
		Rating:      decimal.Zero,
		ImageURLs:   input.ImageURLs,
		CategoryID:  input.CategoryID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, err
	}

	slog.Info("商品を作成しました",
		slog.String("product_id", product.ID),
		slog.String("name", product.Name),
	)

	return product, nil
}

// UpdateProduct は商品を更新する。管理者のみ実行できる。
func (s *Service) UpdateProduct(ctx context.Context, callerID, productID string, input ProductInput) (*model.Product, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProducts, policy.OpUpdate, policy.Row{ID: product.ID}); err != nil {
		return nil, err
	}

	input.Name = s.sanitizer.SanitizePlainText(input.Name)
	input.Description = s.sanitizer.SanitizePlainText(input.Description)
	if err := s.validateProduct(ctx, &input); err != nil {
		return nil, err
	}

	product.Name = input.Name
	product.Description = input.Description
	product.Price = input.Price
	product.Stock = input.Stock
	product.ImageURLs = input.ImageURLs
	product.CategoryID = input.CategoryID
	product.UpdatedAt = time.Now()
	if err := s.productRepo.Update(ctx, product); err != nil {
		return nil, err
	}

	return product, nil
}

// DeleteProduct は商品を削除する。管理者のみ実行できる。
// 注文明細から参照されている商品は削除できずConflictになる。
func (s *Service) DeleteProduct(ctx context.Context, callerID, productID string) error {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return err
	}
	if product == nil {
		return model.NewProductNotFoundError(productID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableProducts, policy.OpDelete, policy.Row{ID: product.ID}); err != nil {
		return err
	}

	if err := s.productRepo.DeleteByID(ctx, productID); err != nil {
		return err
	}

	slog.Info("商品を削除しました",
		slog.String("product_id", productID),
		slog.String("name", product.Name),
	)

	return nil
}

// validateProduct はタグ検証に加えて、価格・画像URL・カテゴリ参照を検証する。
func (s *Service) validateProduct(ctx context.Context, input *ProductInput) error {
	if err := validate.Struct(*input); err != nil {
		return validationError(err)
	}
	if input.Price.IsNegative() {
		return model.NewValidationError("価格は0以上で指定してください")
	}
	for _, rawURL := range input.ImageURLs {
		if err := s.urlGuard.ValidateImageURL(rawURL); err != nil {
			return err
		}
	}
	if input.CategoryID != nil {
		category, err := s.categoryRepo.FindByID(ctx, *input.CategoryID)
		if err != nil {
			return err
		}
		if category == nil {
			return model.NewValidationError(fmt.Sprintf("指定されたカテゴリが存在しません: %s", *input.CategoryID))
		}
	}
	return nil
}

// validationError はvalidatorの検証結果を統一エラーフォーマットへ変換する。
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		first := verrs[0]
		return model.NewValidationError(fmt.Sprintf("%s が %s の制約を満たしていません", first.Field(), first.Tag()))
	}
	return model.NewValidationError(err.Error())
}
