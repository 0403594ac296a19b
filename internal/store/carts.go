package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

func emptyCart(accountID int64) *models.Cart {
	return &models.Cart{AccountID: accountID, Items: []models.CartItem{}, TotalAmount: decimal.Zero}
}

func findCartID(ctx context.Context, tx *sql.Tx, accountID int64, lock bool) (int64, error) {
	query := `SELECT id FROM carts WHERE account_id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var id int64
	err := tx.QueryRowContext(ctx, query, accountID).Scan(&id)
	return id, err
}

func ensureCart(ctx context.Context, tx *sql.Tx, accountID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO carts (account_id) VALUES ($1)
		 ON CONFLICT (account_id) DO UPDATE SET updated_at = NOW()
		 RETURNING id`, accountID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure cart: %w", err)
	}
	return id, nil
}

// loadCart reads the cart with product details joined. Lines whose product
// is gone or no longer active are deleted when prune is set and otherwise
// returned with a nil Product.
func loadCart(ctx context.Context, tx *sql.Tx, accountID int64, prune bool) (*models.Cart, error) {
	cartID, err := findCartID(ctx, tx, accountID, true)
	if err == sql.ErrNoRows {
		return emptyCart(accountID), nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	query := `
		SELECT ci.product_id, ci.quantity, ci.price, ci.added_at, p.id IS NOT NULL,
		       p.id, p.name, p.description, p.price, p.stock, p.sku, p.status, p.category, p.brand,
		       p.images, p.tags, p.discount_percentage, p.discount_starts_at, p.discount_ends_at,
		       p.created_by, p.created_at, p.updated_at
		FROM cart_items ci
		LEFT JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.added_at, ci.product_id`

	rows, err := tx.QueryContext(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("load cart items: %w", err)
	}

	cart := emptyCart(accountID)
	cart.ID = cartID
	var stale []int64
	for rows.Next() {
		var item models.CartItem
		var found bool
		var p nullableProduct
		err := rows.Scan(append([]interface{}{&item.ProductID, &item.Quantity, &item.Price, &item.AddedAt, &found}, p.dest()...)...)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		if found {
			item.Product = p.product()
		}
		if prune && (item.Product == nil || item.Product.Status != models.ProductActive) {
			stale = append(stale, item.ProductID)
			continue
		}
		cart.Items = append(cart.Items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for _, productID := range stale {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID); err != nil {
			return nil, fmt.Errorf("prune cart item: %w", err)
		}
	}

	cart.Recount()
	return cart, nil
}

// GetCart returns the account's cart. Lines for missing or inactive
// products are dropped from the stored cart as a side effect.
func GetCart(ctx context.Context, db *sql.DB, accountID int64) (*models.Cart, error) {
	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		cart, err = loadCart(ctx, tx, accountID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func availableProduct(ctx context.Context, tx *sql.Tx, productID int64) (*models.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1 FOR SHARE`, productID))
	if err == sql.ErrNoRows {
		return nil, database.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	if product.Status != models.ProductActive {
		return nil, database.ErrProductNotFound
	}
	return product, nil
}

// AddToCart adds quantity units of the product, merging with an existing
// line. The merged quantity must not exceed current stock.
func AddToCart(ctx context.Context, db *sql.DB, accountID, productID int64, quantity int) (*models.Cart, error) {
	if quantity < 1 {
		return nil, database.NewValidationError("quantity", "must be at least 1")
	}

	var cart *models.Cart
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := availableProduct(ctx, tx, productID)
		if err != nil {
			return err
		}

		cartID, err := ensureCart(ctx, tx, accountID)
		if err != nil {
			return err
		}

		var existing int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2 FOR UPDATE`,
			cartID, productID).Scan(&existing)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("get cart item: %w", err)
		}

		total := existing + quantity
		if total > product.Stock {
			return &database.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Stock,
				Requested:   total,
			}
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO cart_items (cart_id, product_id, quantity, price)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (cart_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
			cartID, productID, total, product.Price)
		if err != nil {
			return fmt.Errorf("upsert cart item: %w", err)
		}

		cart, err = loadCart(ctx, tx, accountID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// UpdateCartItem sets the line quantity. A quantity of zero or less removes the line.
func UpdateCartItem(ctx context.Context, db *sql.DB, accountID, productID int64, quantity int) (*models.Cart, error) {
	var cart *models.Cart
	err := database.WithRetry(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		cartID, err := findCartID(ctx, tx, accountID, true)
		if err == sql.ErrNoRows {
			return database.ErrCartItemNotFound
		}
		if err != nil {
			return fmt.Errorf("find cart: %w", err)
		}

		var existing int
		err = tx.QueryRowContext(ctx,
			`SELECT quantity FROM cart_items WHERE cart_id = $1 AND product_id = $2 FOR UPDATE`,
			cartID, productID).Scan(&existing)
		if err == sql.ErrNoRows {
			return database.ErrCartItemNotFound
		}
		if err != nil {
			return fmt.Errorf("get cart item: %w", err)
		}

		if quantity <= 0 {
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID); err != nil {
				return fmt.Errorf("remove cart item: %w", err)
			}
		} else {
			product, err := availableProduct(ctx, tx, productID)
			if err != nil {
				return err
			}
			if quantity > product.Stock {
				return &database.InsufficientStockError{
					ProductID:   product.ID,
					ProductName: product.Name,
					Available:   product.Stock,
					Requested:   quantity,
				}
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE cart_items SET quantity = $1 WHERE cart_id = $2 AND product_id = $3`,
				quantity, cartID, productID); err != nil {
				return fmt.Errorf("update cart item: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, cartID); err != nil {
			return fmt.Errorf("touch cart: %w", err)
		}

		cart, err = loadCart(ctx, tx, accountID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func RemoveFromCart(ctx context.Context, db *sql.DB, accountID, productID int64) (*models.Cart, error) {
	var cart *models.Cart
	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM cart_items
			 WHERE product_id = $2
			   AND cart_id = (SELECT id FROM carts WHERE account_id = $1)`,
			accountID, productID)
		if err != nil {
			return fmt.Errorf("remove cart item: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return database.ErrCartItemNotFound
		}

		cart, err = loadCart(ctx, tx, accountID, true)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// nullableProduct receives the LEFT JOINed product columns of a cart line.
type nullableProduct struct {
	id                 sql.NullInt64
	name, description  sql.NullString
	price              decimal.NullDecimal
	stock              sql.NullInt64
	sku, status        sql.NullString
	category, brand    sql.NullString
	images, tags       pq.StringArray
	discountPercentage decimal.NullDecimal
	discountStartsAt   sql.NullTime
	discountEndsAt     sql.NullTime
	createdBy          sql.NullInt64
	createdAt          sql.NullTime
	updatedAt          sql.NullTime
}

func (n *nullableProduct) dest() []interface{} {
	return []interface{}{
		&n.id, &n.name, &n.description, &n.price, &n.stock, &n.sku, &n.status, &n.category, &n.brand,
		&n.images, &n.tags, &n.discountPercentage, &n.discountStartsAt, &n.discountEndsAt,
		&n.createdBy, &n.createdAt, &n.updatedAt,
	}
}

func (n *nullableProduct) product() *models.Product {
	p := &models.Product{
		ID:                 n.id.Int64,
		Name:               n.name.String,
		Description:        n.description.String,
		Price:              n.price.Decimal,
		Stock:              int(n.stock.Int64),
		SKU:                n.sku.String,
		Status:             models.ProductStatus(n.status.String),
		Category:           n.category.String,
		Brand:              n.brand.String,
		Images:             []string(n.images),
		Tags:               []string(n.tags),
		DiscountPercentage: n.discountPercentage.Decimal,
		CreatedAt:          n.createdAt.Time,
		UpdatedAt:          n.updatedAt.Time,
	}
	if n.discountStartsAt.Valid {
		t := n.discountStartsAt.Time
		p.DiscountStartsAt = &t
	}
	if n.discountEndsAt.Valid {
		t := n.discountEndsAt.Time
		p.DiscountEndsAt = &t
	}
	if n.createdBy.Valid {
		id := n.createdBy.Int64
		p.CreatedBy = &id
	}
	return p
}
