package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
	"github.com/shopspring/decimal"
)

// PostgresCategoryRepoはCategoryRepositoryインターフェースを満たすことを検証
func TestPostgresCategoryRepo_ImplementsInterface(t *testing.T) {
	var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
}

// PostgresProductRepoはProductRepositoryインターフェースを満たすことを検証
func TestPostgresProductRepo_ImplementsInterface(t *testing.T) {
	var _ ProductRepository = (*PostgresProductRepo)(nil)
}

// TestPostgresCategoryRepo_UpsertBySlug_Insert は新規slugの挿入を検証する。
func TestPostgresCategoryRepo_UpsertBySlug_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, slug, description, created_at, updated_at").
		WithArgs("anyaman").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "description", "created_at", "updated_at"}))
	mock.ExpectExec("INSERT INTO categories").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresCategoryRepo(db)
	now := time.Now().UTC()
	inserted, err := repo.UpsertBySlug(context.Background(), &model.Category{
		ID: "cat-1", Name: "Anyaman", Slug: "anyaman",
		Description: "Produk anyaman tangan dari eceng gondok",
		CreatedAt:   now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertBySlug returned error: %v", err)
	}
	if !inserted {
		t.Error("expected inserted = true for a new slug")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestPostgresCategoryRepo_UpsertBySlug_Refresh は既存slugのdescription更新を検証する。
func TestPostgresCategoryRepo_UpsertBySlug_Refresh(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, slug, description, created_at, updated_at").
		WithArgs("anyaman").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "slug", "description", "created_at", "updated_at"}).
			AddRow("cat-1", "Anyaman", "anyaman", "古い説明", now, now))
	mock.ExpectExec("INSERT INTO categories").
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgresCategoryRepo(db)
	inserted, err := repo.UpsertBySlug(context.Background(), &model.Category{
		ID: "cat-new", Name: "Anyaman", Slug: "anyaman",
		Description: "新しい説明",
		CreatedAt:   now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertBySlug returned error: %v", err)
	}
	if inserted {
		t.Error("expected inserted = false for an existing slug")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

// TestPostgresCategoryRepo_Create_DuplicateSlug は一意制約違反が
// Conflictへ写されることを検証する。
func TestPostgresCategoryRepo_Create_DuplicateSlug(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO categories").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "categories_slug_key"})

	repo := NewPostgresCategoryRepo(db)
	now := time.Now().UTC()
	err = repo.Create(context.Background(), &model.Category{
		ID: "cat-1", Name: "Anyaman", Slug: "anyaman", CreatedAt: now, UpdatedAt: now,
	})
	if !model.IsConflict(err) {
		t.Errorf("expected Conflict error, got %v", err)
	}
}

// TestPostgresProductRepo_FindByID は配列列とNULL許容列の読み取りを検証する。
func TestPostgresProductRepo_FindByID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("SELECT id, name, description, price, stock, rating, image_urls, category_id").
		WithArgs("prod-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "price", "stock", "rating", "image_urls", "category_id", "created_at", "updated_at"}).
			AddRow("prod-1", "Tas Tote Premium", "Tas tote anyaman premium", "125000.00", 10, "4.5",
				"{https://images.example.com/tas-tote-1.jpg,https://images.example.com/tas-tote-2.jpg}", nil, now, now))

	repo := NewPostgresProductRepo(db)
	product, err := repo.FindByID(context.Background(), "prod-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if product == nil {
		t.Fatal("expected non-nil product")
	}
	if !product.Price.Equal(decimal.RequireFromString("125000.00")) {
		t.Errorf("Price = %s, want 125000.00", product.Price)
	}
	if len(product.ImageURLs) != 2 {
		t.Errorf("len(ImageURLs) = %d, want 2", len(product.ImageURLs))
	}
	if product.CategoryID != nil {
		t.Errorf("CategoryID = %v, want nil", *product.CategoryID)
	}
}

// TestPostgresProductRepo_FindByID_NotFound は未登録IDでnilを返すことを検証する。
func TestPostgresProductRepo_FindByID_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id, name, description, price, stock, rating, image_urls, category_id").
		WithArgs("prod-gone").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "price", "stock", "rating", "image_urls", "category_id", "created_at", "updated_at"}))

	repo := NewPostgresProductRepo(db)
	product, err := repo.FindByID(context.Background(), "prod-gone")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if product != nil {
		t.Errorf("expected nil product, got %+v", product)
	}
}

// TestPostgresProductRepo_InsertIgnoreByName は既存nameへの投入が
// 行に触れず挿入なしと報告されることを検証する。
func TestPostgresProductRepo_InsertIgnoreByName(t *testing.T) {
	tests := []struct {
		name         string
		rowsAffected int64
		wantInserted bool
	}{
		{"新規nameは挿入される", 1, true},
		{"既存nameは何もしない", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("sqlmock.New returned error: %v", err)
			}
			defer db.Close()

			mock.ExpectExec("INSERT INTO products").
				WillReturnResult(sqlmock.NewResult(0, tt.rowsAffected))

			repo := NewPostgresProductRepo(db)
			now := time.Now().UTC()
			inserted, err := repo.InsertIgnoreByName(context.Background(), &model.Product{
				ID: "prod-1", Name: "Tas Tote Premium",
				Price: decimal.RequireFromString("125000.00"), Stock: 10,
				CreatedAt: now, UpdatedAt: now,
			})
			if err != nil {
				t.Fatalf("InsertIgnoreByName returned error: %v", err)
			}
			if inserted != tt.wantInserted {
				t.Errorf("inserted = %v, want %v", inserted, tt.wantInserted)
			}
		})
	}
}

// TestPostgresProductRepo_List_FilterByCategorySlug はカテゴリ絞り込みが
// slugのjoinで行われることを検証する。
func TestPostgresProductRepo_List_FilterByCategorySlug(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New returned error: %v", err)
	}
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INNER JOIN categories c ON p.category_id = c.id").
		WithArgs("anyaman").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "price", "stock", "rating", "image_urls", "category_id", "created_at", "updated_at"}).
			AddRow("prod-1", "Tas Tote Premium", "", "125000.00", 10, "0.0", "{}", "cat-1", now, now))

	repo := NewPostgresProductRepo(db)
	products, err := repo.List(context.Background(), "anyaman")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(products) != 1 {
		t.Fatalf("len(products) = %d, want 1", len(products))
	}
	if products[0].CategoryID == nil || *products[0].CategoryID != "cat-1" {
		t.Errorf("CategoryID = %v, want cat-1", products[0].CategoryID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
