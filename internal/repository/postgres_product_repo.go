package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/proditifgorut/alatacraft/internal/model"
)

// PostgresProductRepo はPostgreSQLを使用した商品リポジトリ。
type PostgresProductRepo struct {
	db *sql.DB
}

// NewPostgresProductRepo はPostgresProductRepoを生成する。
func NewPostgresProductRepo(db *sql.DB) *PostgresProductRepo {
	return &PostgresProductRepo{db: db}
}

const productColumns = `id, name, description, price, stock, rating, image_urls, category_id, created_at, updated_at`

// scanProduct は1行分の商品を読み取る。
func scanProduct(scan func(dest ...any) error) (*model.Product, error) {
	product := &model.Product{}
	var imageURLs pq.StringArray
	var categoryID sql.NullString

	if err := scan(
		&product.ID, &product.Name, &product.Description,
		&product.Price, &product.Stock, &product.Rating,
		&imageURLs, &categoryID,
		&product.CreatedAt, &product.UpdatedAt,
	); err != nil {
		return nil, err
	}

	product.ImageURLs = []string(imageURLs)
	if categoryID.Valid {
		product.CategoryID = &categoryID.String
	}

	return product, nil
}

// FindByID は指定IDの商品を取得する。見つからない場合はnilを返す。
func (r *PostgresProductRepo) FindByID(ctx context.Context, id string) (*model.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`,
		id,
	)
	product, err := scanProduct(row.Scan)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("商品の取得に失敗しました: %w", err)
	}

	return product, nil
}

// List は商品一覧をcreated_at降順で返す。
// categorySlugが空でなければそのカテゴリの商品に絞り込む。
func (r *PostgresProductRepo) List(ctx context.Context, categorySlug string) ([]*model.Product, error) {
	var rows *sql.Rows
	var err error

	if categorySlug == "" {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+productColumns+` FROM products ORDER BY created_at DESC`,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT p.id, p.name, p.description, p.price, p.stock, p.rating,
			        p.image_urls, p.category_id, p.created_at, p.updated_at
			 FROM products p
			 INNER JOIN categories c ON p.category_id = c.id
			 WHERE c.slug = $1
			 ORDER BY p.created_at DESC`,
			categorySlug,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("商品一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		product, err := scanProduct(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("商品の読み取りに失敗しました: %w", err)
		}
		products = append(products, product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("商品一覧の走査に失敗しました: %w", err)
	}

	return products, nil
}

// Create は商品を作成する。name重複はConflictを返す。
func (r *PostgresProductRepo) Create(ctx context.Context, product *model.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price, stock, rating, image_urls, category_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		product.ID, product.Name, product.Description,
		product.Price, product.Stock, product.Rating,
		pq.Array(product.ImageURLs), product.CategoryID,
		product.CreatedAt, product.UpdatedAt,
	)
	if isUniqueViolation(err, "products_name_key") {
		return model.NewDuplicateProductError(product.Name)
	}
	if err != nil {
		return fmt.Errorf("商品の作成に失敗しました: %w", err)
	}
	return nil
}

// Update は商品を更新する。
func (r *PostgresProductRepo) Update(ctx context.Context, product *model.Product) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE products SET
		    name = $2, description = $3, price = $4, stock = $5,
		    image_urls = $6, category_id = $7, updated_at = now()
		 WHERE id = $1`,
		product.ID, product.Name, product.Description,
		product.Price, product.Stock,
		pq.Array(product.ImageURLs), product.CategoryID,
	)
	if isUniqueViolation(err, "products_name_key") {
		return model.NewDuplicateProductError(product.Name)
	}
	if err != nil {
		return fmt.Errorf("商品の更新に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewProductNotFoundError(product.ID)
	}
	return nil
}

// DeleteByID は指定IDの商品を削除する。
// 注文明細から参照されている商品（ON DELETE RESTRICT）はConflictを返す。
func (r *PostgresProductRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM products WHERE id = $1`,
		id,
	)
	if isForeignKeyViolation(err, "order_items_product_id_fkey") {
		return model.NewProductInUseError(id)
	}
	if err != nil {
		return fmt.Errorf("商品の削除に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.NewProductNotFoundError(id)
	}
	return nil
}

// InsertIgnoreByName はnameをキーに商品を投入する。
// 既存nameの行には一切触れず（ON CONFLICT DO NOTHING）、挿入したかどうかを返す。
func (r *PostgresProductRepo) InsertIgnoreByName(ctx context.Context, product *model.Product) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, name, description, price, stock, rating, image_urls, category_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (name) DO NOTHING`,
		product.ID, product.Name, product.Description,
		product.Price, product.Stock, product.Rating,
		pq.Array(product.ImageURLs), product.CategoryID,
		product.CreatedAt, product.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("商品の投入に失敗しました: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}

// compile-time interface check
var _ ProductRepository = (*PostgresProductRepo)(nil)
