package review

import (
	"context"
	"testing"

	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/proditifgorut/alatacraft/internal/policy"
	"github.com/proditifgorut/alatacraft/internal/repository"
	"github.com/proditifgorut/alatacraft/internal/security"
)

// --- モック ---

type mockReviewRepo struct {
	findByIDFn        func(ctx context.Context, id string) (*model.Review, error)
	listByProductIDFn func(ctx context.Context, productID string) ([]*model.Review, error)
	createFn          func(ctx context.Context, review *model.Review) error
	updateFn          func(ctx context.Context, review *model.Review) error
	deleteFn          func(ctx context.Context, id, productID string) error
	createCalls       int
	deleteCalls       int
}

func (m *mockReviewRepo) FindByID(ctx context.Context, id string) (*model.Review, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockReviewRepo) ListByProductID(ctx context.Context, productID string) ([]*model.Review, error) {
	if m.listByProductIDFn != nil {
		return m.listByProductIDFn(ctx, productID)
	}
	return nil, nil
}
func (m *mockReviewRepo) Create(ctx context.Context, review *model.Review) error {
	m.createCalls++
	if m.createFn != nil {
		return m.createFn(ctx, review)
	}
	return nil
}
func (m *mockReviewRepo) Update(ctx context.Context, review *model.Review) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, review)
	}
	return nil
}
func (m *mockReviewRepo) DeleteByID(ctx context.Context, id, productID string) error {
	m.deleteCalls++
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id, productID)
	}
	return nil
}

type mockProductRepo struct {
	findByIDFn func(ctx context.Context, id string) (*model.Product, error)
}

func (m *mockProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockProductRepo) List(ctx context.Context, categorySlug string) ([]*model.Product, error) {
	return nil, nil
}
func (m *mockProductRepo) Create(ctx context.Context, product *model.Product) error { return nil }
func (m *mockProductRepo) Update(ctx context.Context, product *model.Product) error { return nil }
func (m *mockProductRepo) DeleteByID(ctx context.Context, id string) error          { return nil }
func (m *mockProductRepo) InsertIgnoreByName(ctx context.Context, product *model.Product) (bool, error) {
	return false, nil
}

type authorizeCall struct {
	callerID string
	table    policy.Table
	op       policy.Operation
	row      policy.Row
}

type mockAuthorizer struct {
	authorizeFn func(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error
	calls       []authorizeCall
}

func (m *mockAuthorizer) Authorize(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error {
	m.calls = append(m.calls, authorizeCall{callerID: callerID, table: table, op: op, row: row})
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx, callerID, table, op, row)
	}
	return nil
}

func denyAll() *mockAuthorizer {
	return &mockAuthorizer{
		authorizeFn: func(ctx context.Context, callerID string, table policy.Table, op policy.Operation, row policy.Row) error {
			return model.NewForbiddenError(string(table), string(op))
		},
	}
}

func existingProduct() *mockProductRepo {
	return &mockProductRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Product, error) {
			return &model.Product{ID: id, Name: "Tas Tote Premium"}, nil
		},
	}
}

func newTestService(reviews *mockReviewRepo, products *mockProductRepo, authz *mockAuthorizer) *Service {
	return NewService(reviews, products, authz, security.NewContentSanitizer())
}

// --- テスト ---

// TestService_ListByProduct は商品レビュー一覧の取得を検証する。
func TestService_ListByProduct(t *testing.T) {
	reviews := &mockReviewRepo{
		listByProductIDFn: func(ctx context.Context, productID string) ([]*model.Review, error) {
			return []*model.Review{
				{ID: "rev-1", ProductID: productID, Rating: 5, Comment: "Bagus sekali"},
			}, nil
		},
	}
	svc := newTestService(reviews, existingProduct(), &mockAuthorizer{})

	results, err := svc.ListByProduct(context.Background(), "", "prod-1")
	if err != nil {
		t.Fatalf("ListByProduct returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 review, got %d", len(results))
	}
}

// TestService_ListByProduct_MissingProduct は存在しない商品のレビュー一覧を検証する。
func TestService_ListByProduct_MissingProduct(t *testing.T) {
	svc := newTestService(&mockReviewRepo{}, &mockProductRepo{}, &mockAuthorizer{})

	_, err := svc.ListByProduct(context.Background(), "", "ghost-1")
	if !model.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

// TestService_Create はレビュー投稿を検証する。
func TestService_Create(t *testing.T) {
	var created *model.Review
	reviews := &mockReviewRepo{
		createFn: func(ctx context.Context, review *model.Review) error {
			created = review
			return nil
		},
	}
	authz := &mockAuthorizer{}
	svc := newTestService(reviews, existingProduct(), authz)

	review, err := svc.Create(context.Background(), "user-1", "prod-1", 4, "<b>Bagus</b> dan kuat")
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if created == nil {
		t.Fatal("expected review Create to be called")
	}
	if review.UserID != "user-1" {
		t.Errorf("UserID = %q, want %q", review.UserID, "user-1")
	}
	if review.Comment != "Bagus dan kuat" {
		t.Errorf("Comment = %q, want sanitized %q", review.Comment, "Bagus dan kuat")
	}
	if len(authz.calls) != 1 || authz.calls[0].row.OwnerID != "user-1" {
		t.Errorf("Authorize row = %+v, want OwnerID user-1", authz.calls[0].row)
	}
}

// TestService_Create_InvalidRating は評価の範囲検証を網羅する。
func TestService_Create_InvalidRating(t *testing.T) {
	for _, rating := range []int{0, -1, 6} {
		reviews := &mockReviewRepo{}
		svc := newTestService(reviews, existingProduct(), &mockAuthorizer{})

		_, err := svc.Create(context.Background(), "user-1", "prod-1", rating, "Bagus")
		if !model.IsValidation(err) {
			t.Fatalf("rating %d: expected ValidationFailure, got %v", rating, err)
		}
		if reviews.createCalls != 0 {
			t.Errorf("rating %d: Create calls = %d, want 0", rating, reviews.createCalls)
		}
	}
}

// TestService_Create_Duplicate は同一商品への重複投稿がConflictになることを検証する。
func TestService_Create_Duplicate(t *testing.T) {
	reviews := &mockReviewRepo{
		createFn: func(ctx context.Context, review *model.Review) error {
			return model.NewDuplicateReviewError()
		},
	}
	svc := newTestService(reviews, existingProduct(), &mockAuthorizer{})

	_, err := svc.Create(context.Background(), "user-1", "prod-1", 4, "Bagus")
	if !model.IsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

// TestService_Create_Unauthenticated は未認証の投稿が拒否されることを検証する。
func TestService_Create_Unauthenticated(t *testing.T) {
	reviews := &mockReviewRepo{}
	svc := newTestService(reviews, existingProduct(), denyAll())

	_, err := svc.Create(context.Background(), "", "prod-1", 4, "Bagus")
	if !model.IsForbidden(err) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if reviews.createCalls != 0 {
		t.Errorf("Create calls = %d, want 0", reviews.createCalls)
	}
}

// TestService_Update は投稿者本人によるレビュー更新を検証する。
func TestService_Update(t *testing.T) {
	var updated *model.Review
	reviews := &mockReviewRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, UserID: "user-1", ProductID: "prod-1", Rating: 2, Comment: "Biasa"}, nil
		},
		updateFn: func(ctx context.Context, review *model.Review) error {
			updated = review
			return nil
		},
	}
	authz := &mockAuthorizer{}
	svc := newTestService(reviews, existingProduct(), authz)

	review, err := svc.Update(context.Background(), "user-1", "rev-1", 5, "Setelah dipakai sebulan, sangat awet")
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if review.Rating != 5 {
		t.Errorf("Rating = %d, want 5", review.Rating)
	}
	if updated == nil {
		t.Fatal("expected review Update to be called")
	}
	// 所有判定は保存済みレビューの投稿者で行う
	if len(authz.calls) != 1 || authz.calls[0].row.OwnerID != "user-1" {
		t.Errorf("Authorize row = %+v, want OwnerID user-1", authz.calls[0].row)
	}
}

// TestService_Update_NotFound は存在しないレビューの更新を検証する。
func TestService_Update_NotFound(t *testing.T) {
	authz := &mockAuthorizer{}
	svc := newTestService(&mockReviewRepo{}, existingProduct(), authz)

	_, err := svc.Update(context.Background(), "user-1", "ghost-1", 5, "Bagus")
	if !model.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if len(authz.calls) != 0 {
		t.Errorf("Authorize calls = %d, want 0", len(authz.calls))
	}
}

// TestService_Update_OtherUser は他人のレビュー更新が拒否されることを検証する。
func TestService_Update_OtherUser(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, UserID: "user-2", ProductID: "prod-1"}, nil
		},
	}
	svc := newTestService(reviews, existingProduct(), denyAll())

	_, err := svc.Update(context.Background(), "user-1", "rev-1", 5, "Bagus")
	if !model.IsForbidden(err) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

// TestService_Delete はレビュー削除を検証する。
// 平均評価の再計算のため、リポジトリには商品IDも渡す。
func TestService_Delete(t *testing.T) {
	var gotID, gotProductID string
	reviews := &mockReviewRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, UserID: "user-1", ProductID: "prod-1"}, nil
		},
		deleteFn: func(ctx context.Context, id, productID string) error {
			gotID = id
			gotProductID = productID
			return nil
		},
	}
	svc := newTestService(reviews, existingProduct(), &mockAuthorizer{})

	if err := svc.Delete(context.Background(), "user-1", "rev-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if gotID != "rev-1" || gotProductID != "prod-1" {
		t.Errorf("DeleteByID(%q, %q), want (rev-1, prod-1)", gotID, gotProductID)
	}
}

// TestService_Delete_Denied は権限のないレビュー削除を検証する。
func TestService_Delete_Denied(t *testing.T) {
	reviews := &mockReviewRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Review, error) {
			return &model.Review{ID: id, UserID: "user-2", ProductID: "prod-1"}, nil
		},
	}
	svc := newTestService(reviews, existingProduct(), denyAll())

	err := svc.Delete(context.Background(), "user-1", "rev-1")
	if !model.IsForbidden(err) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if reviews.deleteCalls != 0 {
		t.Errorf("DeleteByID calls = %d, want 0", reviews.deleteCalls)
	}
}

var (
	_ repository.ReviewRepository  = (*mockReviewRepo)(nil)
	_ repository.ProductRepository = (*mockProductRepo)(nil)
	_ Authorizer                   = (*mockAuthorizer)(nil)
)
