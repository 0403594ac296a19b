package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const productColumns = `id, name, description, price, stock, sku, status, category, brand,
	images, tags, discount_percentage, discount_starts_at, discount_ends_at,
	created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	var createdBy sql.NullInt64
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.Stock,
		&p.SKU,
		&p.Status,
		&p.Category,
		&p.Brand,
		pq.Array(&p.Images),
		pq.Array(&p.Tags),
		&p.DiscountPercentage,
		&p.DiscountStartsAt,
		&p.DiscountEndsAt,
		&createdBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdBy.Valid {
		p.CreatedBy = &createdBy.Int64
	}
	return p, nil
}

type ProductInput struct {
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	Price              decimal.Decimal      `json:"price"`
	Stock              int                  `json:"stock"`
	SKU                string               `json:"sku"`
	Status             models.ProductStatus `json:"status"`
	Category           string               `json:"category"`
	Brand              string               `json:"brand"`
	Images             []string             `json:"images"`
	Tags               []string             `json:"tags"`
	DiscountPercentage decimal.Decimal      `json:"discount_percentage"`
	DiscountStartsAt   *time.Time           `json:"discount_starts_at"`
	DiscountEndsAt     *time.Time           `json:"discount_ends_at"`
}

func (in *ProductInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = strings.TrimSpace(in.Category)
	in.Brand = strings.TrimSpace(in.Brand)
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	if in.Status == "" {
		in.Status = models.ProductActive
	}
	if in.Images == nil {
		in.Images = []string{}
	}
	if in.Tags == nil {
		in.Tags = []string{}
	}
}

func (in *ProductInput) Validate() error {
	in.normalize()
	switch {
	case in.Name == "":
		return database.NewValidationError("name", "is required")
	case in.Description == "":
		return database.NewValidationError("description", "is required")
	case in.Category == "":
		return database.NewValidationError("category", "is required")
	case in.SKU == "":
		return database.NewValidationError("sku", "is required")
	case in.Price.IsNegative():
		return database.NewValidationError("price", "must not be negative")
	case in.Stock < 0:
		return database.NewValidationError("stock", "must not be negative")
	case !in.Status.Valid():
		return database.NewValidationError("status", "must be active, inactive or discontinued")
	case in.DiscountPercentage.IsNegative() || in.DiscountPercentage.GreaterThan(decimal.NewFromInt(100)):
		return database.NewValidationError("discount_percentage", "must be between 0 and 100")
	case in.DiscountStartsAt != nil && in.DiscountEndsAt != nil && in.DiscountEndsAt.Before(*in.DiscountStartsAt):
		return database.NewValidationError("discount_ends_at", "must not be before discount_starts_at")
	}
	return nil
}

func CreateProduct(ctx context.Context, q DBTX, in ProductInput, createdBy int64) (*models.Product, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO products (name, description, price, stock, sku, status, category, brand,
			images, tags, discount_percentage, discount_starts_at, discount_ends_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		in.Name, in.Description, in.Price, in.Stock, in.SKU, in.Status, in.Category, in.Brand,
		pq.Array(in.Images), pq.Array(in.Tags), in.DiscountPercentage, in.DiscountStartsAt, in.DiscountEndsAt,
		createdBy))
	if err != nil {
		if database.IsUniqueViolation(err, "products_sku_key") {
			return nil, database.ErrDuplicateSKU
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q DBTX, id int64) (*models.Product, error) {
	product, err := scanProduct(q.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return product, nil
}

func lockProduct(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("lock product: %w", err)
	}
	return product, nil
}

// ProductPatch carries a partial update; nil fields are left unchanged.
type ProductPatch struct {
	Name               *string               `json:"name"`
	Description        *string               `json:"description"`
	Price              *decimal.Decimal      `json:"price"`
	Stock              *int                  `json:"stock"`
	SKU                *string               `json:"sku"`
	Status             *models.ProductStatus `json:"status"`
	Category           *string               `json:"category"`
	Brand              *string               `json:"brand"`
	Images             *[]string             `json:"images"`
	Tags               *[]string             `json:"tags"`
	DiscountPercentage *decimal.Decimal      `json:"discount_percentage"`
	DiscountStartsAt   *time.Time            `json:"discount_starts_at"`
	DiscountEndsAt     *time.Time            `json:"discount_ends_at"`
}

func (p ProductPatch) apply(cur *models.Product) ProductInput {
	in := ProductInput{
		Name:               cur.Name,
		Description:        cur.Description,
		Price:              cur.Price,
		Stock:              cur.Stock,
		SKU:                cur.SKU,
		Status:             cur.Status,
		Category:           cur.Category,
		Brand:              cur.Brand,
		Images:             cur.Images,
		Tags:               cur.Tags,
		DiscountPercentage: cur.DiscountPercentage,
		DiscountStartsAt:   cur.DiscountStartsAt,
		DiscountEndsAt:     cur.DiscountEndsAt,
	}
	if p.Name != nil {
		in.Name = *p.Name
	}
	if p.Description != nil {
		in.Description = *p.Description
	}
	if p.Price != nil {
		in.Price = *p.Price
	}
	if p.Stock != nil {
		in.Stock = *p.Stock
	}
	if p.SKU != nil {
		in.SKU = *p.SKU
	}
	if p.Status != nil {
		in.Status = *p.Status
	}
	if p.Category != nil {
		in.Category = *p.Category
	}
	if p.Brand != nil {
		in.Brand = *p.Brand
	}
	if p.Images != nil {
		in.Images = *p.Images
	}
	if p.Tags != nil {
		in.Tags = *p.Tags
	}
	if p.DiscountPercentage != nil {
		in.DiscountPercentage = *p.DiscountPercentage
	}
	if p.DiscountStartsAt != nil {
		in.DiscountStartsAt = p.DiscountStartsAt
	}
	if p.DiscountEndsAt != nil {
		in.DiscountEndsAt = p.DiscountEndsAt
	}
	return in
}

// UpdateProduct applies patch under a row lock. Raising stock from zero
// queues back-in-stock notices for every waiting subscriber.
func UpdateProduct(ctx context.Context, db *sql.DB, id int64, patch ProductPatch) (*models.Product, error) {
	var updated *models.Product

	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cur, err := lockProduct(ctx, tx, id)
		if err != nil {
			return err
		}

		in := patch.apply(cur)
		if err := in.Validate(); err != nil {
			return err
		}

		updated, err = scanProduct(tx.QueryRowContext(ctx, `
			UPDATE products
			SET name = $1, description = $2, price = $3, stock = $4, sku = $5, status = $6,
			    category = $7, brand = $8, images = $9, tags = $10, discount_percentage = $11,
			    discount_starts_at = $12, discount_ends_at = $13, updated_at = NOW()
			WHERE id = $14
			RETURNING `+productColumns,
			in.Name, in.Description, in.Price, in.Stock, in.SKU, in.Status, in.Category, in.Brand,
			pq.Array(in.Images), pq.Array(in.Tags), in.DiscountPercentage, in.DiscountStartsAt, in.DiscountEndsAt,
			id))
		if err != nil {
			if database.IsUniqueViolation(err, "products_sku_key") {
				return database.ErrDuplicateSKU
			}
			return fmt.Errorf("update product: %w", err)
		}

		if cur.Stock == 0 && updated.Stock > 0 {
			if _, err := notifyBackInStock(ctx, tx, updated); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return updated, nil
}

// DeleteProduct removes the product, pulls it from every cart and
// deactivates pending stock notifications. Order lines keep their snapshot.
func DeleteProduct(ctx context.Context, db *sql.DB, id int64) error {
	return database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete product: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrProductNotFound
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM cart_items WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("remove product from carts: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE stock_notifications SET is_active = FALSE WHERE product_id = $1`, id); err != nil {
			return fmt.Errorf("deactivate stock notifications: %w", err)
		}
		return nil
	})
}

// DecrementStock takes quantity units only if that many are on hand.
func DecrementStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE products
		 SET stock = stock - $1,
		     updated_at = NOW()
		 WHERE id = $2
		   AND stock >= $1`,
		quantity, productID)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return &database.InsufficientStockError{ProductID: productID, Requested: quantity}
	}

	return nil
}

// RestoreStock returns quantity units to the product. A product deleted
// since the order was placed is skipped.
func RestoreStock(ctx context.Context, tx *sql.Tx, productID int64, quantity int) error {
	var stock int
	err := tx.QueryRowContext(ctx,
		`UPDATE products
		 SET stock = stock + $1, updated_at = NOW()
		 WHERE id = $2
		 RETURNING stock`,
		quantity, productID).Scan(&stock)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore stock: %w", err)
	}

	if stock == quantity {
		product, err := GetProduct(ctx, tx, productID)
		if err != nil {
			return err
		}
		if _, err := notifyBackInStock(ctx, tx, product); err != nil {
			return err
		}
	}
	return nil
}

type ProductFilter struct {
	Category        string
	Search          string
	MinPrice        *decimal.Decimal
	MaxPrice        *decimal.Decimal
	InStock         bool
	SortBy          string
	SortOrder       string
	IncludeInactive bool
	Page            PageRequest
}

var productSortColumns = map[string]string{
	"":           "created_at",
	"created_at": "created_at",
	"createdAt":  "created_at",
	"price":      "price",
	"name":       "name",
	"stock":      "stock",
}

func ListProducts(ctx context.Context, q DBTX, f ProductFilter) (*OffsetPage, error) {
	page := f.Page.Normalize(12)

	var c conditions
	if !f.IncludeInactive {
		c.add("status = ?", models.ProductActive)
	}
	if f.Category != "" {
		c.add("category = ?", f.Category)
	}
	if f.Search != "" {
		c.add("(name ILIKE ? OR description ILIKE ? OR category ILIKE ?)",
			likePattern(f.Search), likePattern(f.Search), likePattern(f.Search))
	}
	if f.MinPrice != nil {
		c.add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		c.add("price <= ?", *f.MaxPrice)
	}
	if f.InStock {
		c.add("stock > 0")
	}

	column, ok := productSortColumns[f.SortBy]
	if !ok {
		return nil, database.NewValidationError("sort_by", "must be one of created_at, price, name, stock")
	}
	direction := "DESC"
	if strings.EqualFold(f.SortOrder, "asc") {
		direction = "ASC"
	}

	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+c.where(), c.args...).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	args := append([]interface{}{}, c.args...)
	limitPos := len(args) + 1
	args = append(args, page.PageSize, page.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d`,
		productColumns, c.where(), column, direction, direction, limitPos, limitPos+1)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page), nil
}

// notifyBackInStock queues one email per waiting subscriber and marks the
// requests notified. It returns the number of subscribers queued.
func notifyBackInStock(ctx context.Context, tx *sql.Tx, product *models.Product) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, email, name
		 FROM stock_notifications
		 WHERE product_id = $1 AND is_active AND NOT notified
		 FOR UPDATE`, product.ID)
	if err != nil {
		return 0, fmt.Errorf("load stock notifications: %w", err)
	}

	type waiter struct {
		id          int64
		email, name string
	}
	var waiters []waiter
	for rows.Next() {
		var w waiter
		if err := rows.Scan(&w.id, &w.email, &w.name); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan stock notification: %w", err)
		}
		waiters = append(waiters, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	description := product.Description
	if r := []rune(description); len(r) > 150 {
		description = string(r[:150]) + "..."
	}

	for _, w := range waiters {
		err := Enqueue(ctx, tx, events.KindBackInStock, w.email, events.BackInStock{
			ProductID:    product.ID,
			ProductName:  product.Name,
			Description:  description,
			Price:        product.Price,
			Stock:        product.Stock,
			CustomerName: w.name,
		})
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE stock_notifications SET notified = TRUE, notified_at = NOW() WHERE id = $1`, w.id); err != nil {
			return 0, fmt.Errorf("mark stock notification: %w", err)
		}
	}

	return len(waiters), nil
}
