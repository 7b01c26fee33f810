// Package review は商品レビューのドメインロジックを提供する。
//
// レビューは誰でも読めるが、投稿は認証済み本人の名義に限られ、
// 更新・削除は投稿者本人と管理者のみが行える。
// 商品の平均評価の再計算はリポジトリのトランザクション内で行われる。
package review

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/security"
)

// Authorizer は操作ごとの認可判定インターフェース。
type Authorizer interface {
	Authorize(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error
}

// Service はレビューのビジネスロジックを提供する。
type Service struct {
	reviewRepo  repository.ReviewRepository
	productRepo repository.ProductRepository
	authz       Authorizer
	sanitizer   security.ContentSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	reviewRepo repository.ReviewRepository,
	productRepo repository.ProductRepository,
	authz Authorizer,
	sanitizer security.ContentSanitizerService,
) *Service {
	return &Service{
		reviewRepo:  reviewRepo,
		productRepo: productRepo,
		authz:       authz,
		sanitizer:   sanitizer,
	}
}

// ListByProduct は商品のレビュー一覧を返す。
func (s *Service) ListByProduct(ctx context.Context, callerID, productID string) ([]*model.Review, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableReviews, policy.OpRead, policy.Row{}); err != nil {
		return nil, err
	}

	return s.reviewRepo.ListByProductID(ctx, productID)
}

// Create は呼び出し主体自身の名義でレビューを投稿する。
// 同一商品への2件目の投稿はConflictになる。
func (s *Service) Create(ctx context.Context, callerID, productID string, rating int, comment string) (*model.Review, error) {
	product, err := s.productRepo.FindByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, model.NewProductNotFoundError(productID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableReviews, policy.OpCreate, policy.Row{OwnerID: callerID}); err != nil {
		return nil, err
	}

	if rating < 1 || rating > 5 {
		return nil, model.NewValidationError("評価は1から5で指定してください")
	}

	now := time.Now()
	review := &model.Review{
		ID:        uuid.New().String(),
		UserID:    callerID,
		ProductID: productID,
		Rating:    rating,
		Comment:   s.sanitizer.SanitizePlainText(comment),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.reviewRepo.Create(ctx, review); err != nil {
		return nil, err
	}

	slog.Info("レビューを投稿しました",
		slog.String("review_id", review.ID),
		slog.String("product_id", productID),
		slog.Int("rating", rating),
	)

	return review, nil
}

// Update はレビューを更新する。投稿者本人と管理者のみ実行できる。
func (s *Service) Update(ctx context.Context, callerID, reviewID string, rating int, comment string) (*model.Review, error) {
	review, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review == nil {
		return nil, model.NewReviewNotFoundError(reviewID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableReviews, policy.OpUpdate, policy.Row{ID: review.ID, OwnerID: review.UserID}); err != nil {
		return nil, err
	}

	if rating < 1 || rating > 5 {
		return nil, model.NewValidationError("評価は1から5で指定してください")
	}

	review.Rating = rating
	review.Comment = s.sanitizer.SanitizePlainText(comment)
	review.UpdatedAt = time.Now()
	if err := s.reviewRepo.Update(ctx, review); err != nil {
		return nil, err
	}

	return review, nil
}

// Delete はレビューを削除する。投稿者本人と管理者のみ実行できる。
func (s *Service) Delete(ctx context.Context, callerID, reviewID string) error {
	review, err := s.reviewRepo.FindByID(ctx, reviewID)
	if err != nil {
		return err
	}
	if review == nil {
		return model.NewReviewNotFoundError(reviewID)
	}

	if err := s.authz.Authorize(ctx, callerID, policy.TableReviews, policy.OpDelete, policy.Row{ID: review.ID, OwnerID: review.UserID}); err != nil {
		return err
	}

	if err := s.reviewRepo.DeleteByID(ctx, reviewID, review.ProductID); err != nil {
		return err
	}

	slog.Info("レビューを削除しました",
		slog.String("review_id", reviewID),
		slog.String("product_id", review.ProductID),
	)

	return nil
}
