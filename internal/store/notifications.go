package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// RequestStockNotification subscribes the account to a back-in-stock notice
// for the product. Only one waiting request per account and product is kept.
func RequestStockNotification(ctx context.Context, q DBTX, account *models.Account, productID int64) (*models.StockNotification, error) {
	if _, err := GetProduct(ctx, q, productID); err != nil {
		return nil, err
	}

	n := &models.StockNotification{}
	err := q.QueryRowContext(ctx,
		`INSERT INTO stock_notifications (account_id, product_id, email, name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, account_id, product_id, email, name, is_active, notified, notified_at, created_at`,
		account.ID, productID, account.Email, account.Name).Scan(
		&n.ID,
		&n.AccountID,
		&n.ProductID,
		&n.Email,
		&n.Name,
		&n.IsActive,
		&n.Notified,
		&n.NotifiedAt,
		&n.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "stock_notifications_active_key") {
			return nil, database.ErrAlreadySubscribed
		}
		return nil, fmt.Errorf("create stock notification: %w", err)
	}
	return n, nil
}

type StockRequest struct {
	AccountID   int64     `json:"account_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	RequestedAt time.Time `json:"requested_at"`
}

type ProductStockRequests struct {
	ProductID int64          `json:"product_id"`
	Name      string         `json:"name"`
	Image     string         `json:"image"`
	Stock     int            `json:"stock"`
	Requests  []StockRequest `json:"requests"`
}

// ListStockRequests groups waiting requests by product, newest request first.
// A productID of zero lists every product.
func ListStockRequests(ctx context.Context, q DBTX, productID int64) ([]ProductStockRequests, error) {
	var c conditions
	c.add("n.is_active AND NOT n.notified")
	if productID != 0 {
		c.add("n.product_id = ?", productID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT n.product_id, p.name, p.images, p.stock, n.account_id, n.name, n.email, n.created_at
		 FROM stock_notifications n
		 JOIN products p ON p.id = n.product_id`+c.where()+`
		 ORDER BY n.created_at DESC, n.id DESC`, c.args...)
	if err != nil {
		return nil, fmt.Errorf("list stock notifications: %w", err)
	}
	defer rows.Close()

	groups := []ProductStockRequests{}
	index := map[int64]int{}
	for rows.Next() {
		var g ProductStockRequests
		var p models.Product
		var r StockRequest
		if err := rows.Scan(&g.ProductID, &g.Name, pq.Array(&p.Images), &g.Stock,
			&r.AccountID, &r.Name, &r.Email, &r.RequestedAt); err != nil {
			return nil, fmt.Errorf("scan stock notification: %w", err)
		}
		i, ok := index[g.ProductID]
		if !ok {
			g.Image = p.MainImage()
			groups = append(groups, g)
			i = len(groups) - 1
			index[g.ProductID] = i
		}
		groups[i].Requests = append(groups[i].Requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return groups, nil
}
