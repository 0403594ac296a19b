package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
)

const (
	orderNumberAttempts   = 5
	estimatedDeliveryDays = 7
	defaultCancelReason   = "Cancelled by customer"
)

const orderColumns = `o.id, o.order_number, o.account_id, o.shipping_address,
	o.subtotal, o.shipping_cost, o.tax, o.discount, o.total_amount,
	o.status, o.payment_method, o.payment_status, o.notes, o.tracking_number,
	o.estimated_delivery, o.delivered_at, o.cancelled_at, o.cancellation_reason,
	o.created_at, o.updated_at`

func scanOrder(row rowScanner, extra ...interface{}) (*models.Order, error) {
	o := &models.Order{}
	var accountID sql.NullInt64
	dest := []interface{}{
		&o.ID,
		&o.OrderNumber,
		&accountID,
		&o.ShippingAddress,
		&o.Summary.Subtotal,
		&o.Summary.ShippingCost,
		&o.Summary.Tax,
		&o.Summary.Discount,
		&o.Summary.TotalAmount,
		&o.Status,
		&o.PaymentMethod,
		&o.PaymentStatus,
		&o.Notes,
		&o.TrackingNumber,
		&o.EstimatedDelivery,
		&o.DeliveredAt,
		&o.CancelledAt,
		&o.CancellationReason,
		&o.CreatedAt,
		&o.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if accountID.Valid {
		o.AccountID = &accountID.Int64
	}
	return o, nil
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func generateOrderNumber() string {
	var suffix [6]byte
	for i := range suffix {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(base36))))
		if err != nil {
			panic(fmt.Sprintf("read random: %v", err))
		}
		suffix[i] = base36[n.Int64()]
	}
	ts := strconv.FormatInt(time.Now().UnixMilli(), 36)
	return strings.ToUpper(fmt.Sprintf("ORD-%s-%s", ts, suffix[:]))
}

// nextOrderNumber is swapped in tests to force collisions.
var nextOrderNumber = generateOrderNumber

type PlaceOrderRequest struct {
	AccountID       int64
	ShippingAddress models.ShippingAddress
	PaymentMethod   models.PaymentMethod
	Notes           string
}

func (r *PlaceOrderRequest) Validate() error {
	a := &r.ShippingAddress
	err := required(
		[2]string{"shipping_address.full_name", a.FullName},
		[2]string{"shipping_address.phone", a.Phone},
		[2]string{"shipping_address.address_line1", a.AddressLine1},
		[2]string{"shipping_address.city", a.City},
		[2]string{"shipping_address.state", a.State},
		[2]string{"shipping_address.pincode", a.Pincode},
	)
	if err != nil {
		return err
	}
	if r.PaymentMethod == "" {
		return database.NewValidationError("payment_method", "is required")
	}
	if !r.PaymentMethod.Valid() {
		return database.NewValidationError("payment_method", "must be cod, online or wallet")
	}
	return validateLength("notes", r.Notes, 2000)
}

// PlaceOrder converts the account's cart into an order in one serializable
// transaction: stock is checked and decremented, the cart is deleted and an
// order.placed notification is queued. Nothing is written on failure.
func PlaceOrder(ctx context.Context, db *sql.DB, rules models.PricingRules, req PlaceOrderRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		account, err := GetAccount(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}

		cart, err := loadCart(ctx, tx, req.AccountID, false)
		if err != nil {
			return err
		}
		if len(cart.Items) == 0 {
			return database.ErrCartEmpty
		}

		now := time.Now()
		lines := make([]models.PricedLine, 0, len(cart.Items))
		for _, item := range cart.Items {
			p := item.Product
			if p == nil || p.Status != models.ProductActive || p.Stock < item.Quantity {
				stockErr := &database.InsufficientStockError{ProductID: item.ProductID, Requested: item.Quantity}
				if p != nil {
					stockErr.ProductName = p.Name
					stockErr.Available = p.Stock
				}
				return stockErr
			}
			lines = append(lines, models.PricedLine{
				UnitPrice: item.Price,
				Quantity:  item.Quantity,
			})
		}

		summary := models.ComputeSummary(lines, rules)
		estimated := now.Add(estimatedDeliveryDays * 24 * time.Hour)

		order = &models.Order{
			AccountID:         &account.ID,
			ShippingAddress:   req.ShippingAddress,
			Summary:           summary,
			Status:            models.OrderStatusPending,
			PaymentMethod:     req.PaymentMethod,
			PaymentStatus:     models.PaymentPending,
			Notes:             strings.TrimSpace(req.Notes),
			EstimatedDelivery: &estimated,
		}
		if err := insertOrder(ctx, tx, order); err != nil {
			return err
		}

		for i, item := range cart.Items {
			line := models.OrderItem{
				OrderID:   order.ID,
				ProductID: item.ProductID,
				Name:      item.Product.Name,
				Image:     item.Product.MainImage(),
				Quantity:  item.Quantity,
				UnitPrice: item.Price,
				LineTotal: lines[i].Total(),
			}
			err := tx.QueryRowContext(ctx,
				`INSERT INTO order_items (order_id, product_id, name, image, quantity, unit_price, line_total)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)
				 RETURNING id`,
				line.OrderID, line.ProductID, line.Name, line.Image, line.Quantity, line.UnitPrice, line.LineTotal).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("create order item: %w", err)
			}
			order.Items = append(order.Items, line)
		}

		for _, item := range cart.Items {
			if err := DecrementStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				if stockErr, ok := err.(*database.InsufficientStockError); ok {
					stockErr.ProductName = item.Product.Name
				}
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM carts WHERE id = $1`, cart.ID); err != nil {
			return fmt.Errorf("delete cart: %w", err)
		}

		return Enqueue(ctx, tx, events.KindOrderPlaced, account.Email, events.NewOrderPlaced(order, account.Name))
	})

	if err != nil {
		return nil, err
	}

	return order, nil
}

// insertOrder writes the order row under a freshly generated number,
// drawing a new number when the previous one is already taken.
func insertOrder(ctx context.Context, tx *sql.Tx, o *models.Order) error {
	for attempt := 0; attempt < orderNumberAttempts; attempt++ {
		number := nextOrderNumber()
		err := tx.QueryRowContext(ctx,
			`INSERT INTO orders (order_number, account_id, shipping_address, subtotal, shipping_cost, tax,
				discount, total_amount, status, payment_method, payment_status, notes, estimated_delivery)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			 ON CONFLICT (order_number) DO NOTHING
			 RETURNING id, created_at, updated_at`,
			number, o.AccountID, o.ShippingAddress, o.Summary.Subtotal, o.Summary.ShippingCost, o.Summary.Tax,
			o.Summary.Discount, o.Summary.TotalAmount, o.Status, o.PaymentMethod, o.PaymentStatus, o.Notes,
			o.EstimatedDelivery).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		o.OrderNumber = number
		return nil
	}
	return database.ErrOrderNumberExhaust
}

func loadOrderItems(ctx context.Context, q DBTX, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Order, len(orders))
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		o.Items = []models.OrderItem{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, product_id, name, image, quantity, unit_price, line_total
		 FROM order_items
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, id`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.ProductID,
			&item.Name,
			&item.Image,
			&item.Quantity,
			&item.UnitPrice,
			&item.LineTotal,
		)
		if err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if o, ok := byID[item.OrderID]; ok {
			o.Items = append(o.Items, item)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}
	return nil
}

func getOrder(ctx context.Context, q DBTX, where string, args ...interface{}) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders o WHERE `+where, args...))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}
	if err := loadOrderItems(ctx, q, []*models.Order{order}); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns the order with the given number regardless of owner.
func GetOrder(ctx context.Context, q DBTX, orderNumber string) (*models.Order, error) {
	order, err := getOrder(ctx, q, `o.order_number = $1`, orderNumber)
	if err != nil {
		return nil, err
	}
	if order.AccountID != nil {
		if customer, err := GetAccount(ctx, q, *order.AccountID); err == nil {
			order.Customer = customer
		}
	}
	return order, nil
}

// GetAccountOrder returns the order only if it belongs to accountID.
func GetAccountOrder(ctx context.Context, q DBTX, accountID int64, orderNumber string) (*models.Order, error) {
	return getOrder(ctx, q, `o.order_number = $1 AND o.account_id = $2`, orderNumber, accountID)
}

type UpdateStatusRequest struct {
	OrderNumber    string
	Status         models.OrderStatus
	TrackingNumber string
	Reason         string
}

func (r *UpdateStatusRequest) Validate() error {
	r.TrackingNumber = strings.TrimSpace(r.TrackingNumber)
	r.Reason = strings.TrimSpace(r.Reason)
	if !r.Status.Valid() {
		return database.NewValidationError("status", "invalid status")
	}
	if r.Status == models.OrderStatusShipped && r.TrackingNumber == "" {
		return database.NewValidationError("tracking_number", "is required when shipping an order")
	}
	if r.Status == models.OrderStatusCancelled && r.Reason == "" {
		return database.NewValidationError("cancellation_reason", "is required when cancelling an order")
	}
	return nil
}

// UpdateOrderStatus moves an order along its lifecycle on behalf of an
// admin. Setting the current status again is a no-op.
func UpdateOrderStatus(ctx context.Context, db *sql.DB, req UpdateStatusRequest) (*models.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		cur, err := getOrder(ctx, tx, `o.order_number = $1 FOR UPDATE`, req.OrderNumber)
		if err != nil {
			return err
		}

		if cur.Status == req.Status {
			order = cur
			return nil
		}
		if !models.CanTransition(cur.Status, req.Status) {
			return &database.TransitionError{From: string(cur.Status), To: string(req.Status)}
		}

		order, err = applyTransition(ctx, tx, cur, req.Status, req.TrackingNumber, req.Reason)
		if err != nil {
			return err
		}

		if order.AccountID == nil {
			return nil
		}
		customer, err := GetAccount(ctx, tx, *order.AccountID)
		if err == database.ErrAccountNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		return Enqueue(ctx, tx, events.KindOrderStatusChanged, customer.Email, events.OrderStatusChanged{
			OrderNumber:    order.OrderNumber,
			CustomerName:   customer.Name,
			Status:         order.Status,
			TrackingNumber: order.TrackingNumber,
			Reason:         order.CancellationReason,
		})
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// CancelOrder cancels the account's own order while it is still pending or
// confirmed. Cancelling an already cancelled order returns it unchanged.
func CancelOrder(ctx context.Context, db *sql.DB, accountID int64, orderNumber, reason string) (*models.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultCancelReason
	}

	var order *models.Order
	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		cur, err := getOrder(ctx, tx, `o.order_number = $1 AND o.account_id = $2 FOR UPDATE`, orderNumber, accountID)
		if err != nil {
			return err
		}

		if cur.Status == models.OrderStatusCancelled {
			order = cur
			return nil
		}
		if !cur.Status.CustomerCancellable() {
			return database.ErrOrderNotCancellable
		}

		order, err = applyTransition(ctx, tx, cur, models.OrderStatusCancelled, "", reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

// applyTransition writes the status edge guarded on the previous status, so
// the stock restore attached to cancellation runs at most once per order.
func applyTransition(ctx context.Context, tx *sql.Tx, cur *models.Order, to models.OrderStatus, tracking, reason string) (*models.Order, error) {
	var query string
	args := []interface{}{to, cur.ID, cur.Status}

	switch to {
	case models.OrderStatusShipped:
		query = `UPDATE orders o SET status = $1, tracking_number = $4, updated_at = NOW()`
		args = append(args, tracking)
	case models.OrderStatusDelivered:
		query = `UPDATE orders o SET status = $1, delivered_at = NOW(),
			payment_status = CASE WHEN payment_method = $4 THEN $5 ELSE payment_status END,
			updated_at = NOW()`
		args = append(args, models.PaymentCOD, models.PaymentPaid)
	case models.OrderStatusCancelled:
		query = `UPDATE orders o SET status = $1, cancelled_at = NOW(), cancellation_reason = $4, updated_at = NOW()`
		args = append(args, reason)
	default:
		query = `UPDATE orders o SET status = $1, updated_at = NOW()`
	}
	query += ` WHERE o.id = $2 AND o.status = $3 RETURNING ` + orderColumns

	order, err := scanOrder(tx.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, &database.TransitionError{From: string(cur.Status), To: string(to)}
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}
	order.Items = cur.Items

	if to == models.OrderStatusCancelled {
		for _, item := range order.Items {
			if err := RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return nil, err
			}
		}
	}

	return order, nil
}

func listOrders(ctx context.Context, q DBTX, c *conditions, page PageRequest) ([]*models.Order, int64, error) {
	var total int64
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders o`+c.where(), c.args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count orders: %w", err)
	}

	where := c.where()
	limit := c.next(page.PageSize)
	offset := c.next(page.Offset())
	query := `SELECT ` + orderColumns + `, a.name, a.email FROM orders o
		LEFT JOIN accounts a ON a.id = o.account_id` + where +
		` ORDER BY o.created_at DESC, o.id DESC LIMIT ` + limit + ` OFFSET ` + offset

	rows, err := q.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		var name, email sql.NullString
		order, err := scanOrder(rows, &name, &email)
		if err != nil {
			return nil, 0, fmt.Errorf("scan order: %w", err)
		}
		if order.AccountID != nil && email.Valid {
			order.Customer = &models.Account{ID: *order.AccountID, Name: name.String, Email: email.String}
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("rows error: %w", err)
	}

	if err := loadOrderItems(ctx, q, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func derefOrders(in []*models.Order) []models.Order {
	out := make([]models.Order, 0, len(in))
	for _, o := range in {
		out = append(out, *o)
	}
	return out
}

// ListAccountOrders returns the account's orders, newest first.
func ListAccountOrders(ctx context.Context, q DBTX, accountID int64, status models.OrderStatus, page PageRequest) (*OffsetPage, error) {
	page = page.Normalize(DefaultPageSize)

	var c conditions
	c.add("o.account_id = ?", accountID)
	if status != "" {
		if !status.Valid() {
			return nil, database.NewValidationError("status", "invalid status")
		}
		c.add("o.status = ?", status)
	}

	orders, total, err := listOrders(ctx, q, &c, page)
	if err != nil {
		return nil, err
	}
	for _, o := range orders {
		o.Customer = nil
	}
	return newOffsetPage(derefOrders(orders), total, page), nil
}

// ListAccountOrdersCursor pages the account's orders by (created_at, id).
func ListAccountOrdersCursor(ctx context.Context, q DBTX, accountID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.NewValidationError("cursor", "is malformed")
	}
	if limit < 1 || limit > MaxPageSize {
		limit = DefaultPageSize
	}

	rows, err := q.QueryContext(ctx,
		`SELECT `+orderColumns+`
		 FROM orders o
		 WHERE o.account_id = $1
		   AND (o.created_at, o.id) < ($2, $3)
		 ORDER BY o.created_at DESC, o.id DESC
		 LIMIT $4`,
		accountID, cursorData.CreatedAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}
	if err := loadOrderItems(ctx, q, orders); err != nil {
		return nil, err
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	return &CursorPage{
		Items:      derefOrders(orders),
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	From          *time.Time
	To            *time.Time
	Search        string
	Page          PageRequest
}

type OrderStats struct {
	TotalOrders      int64           `json:"total_orders"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	PendingOrders    int64           `json:"pending_orders"`
	ConfirmedOrders  int64           `json:"confirmed_orders"`
	ProcessingOrders int64           `json:"processing_orders"`
	ShippedOrders    int64           `json:"shipped_orders"`
	DeliveredOrders  int64           `json:"delivered_orders"`
	CancelledOrders  int64           `json:"cancelled_orders"`
}

// ListOrders is the admin order search. Stats count every order; TotalOrders
// matches the filtered total.
func ListOrders(ctx context.Context, q DBTX, f OrderFilter) (*OffsetPage, *OrderStats, error) {
	page := f.Page.Normalize(20)

	var c conditions
	if f.Status != "" {
		if !f.Status.Valid() {
			return nil, nil, database.NewValidationError("status", "invalid status")
		}
		c.add("o.status = ?", f.Status)
	}
	if f.PaymentStatus != "" {
		if !f.PaymentStatus.Valid() {
			return nil, nil, database.NewValidationError("payment_status", "invalid payment status")
		}
		c.add("o.payment_status = ?", f.PaymentStatus)
	}
	if f.From != nil {
		c.add("o.created_at >= ?", *f.From)
	}
	if f.To != nil {
		c.add("o.created_at <= ?", *f.To)
	}
	if f.Search != "" {
		c.add("(o.order_number ILIKE ? OR o.shipping_address->>'full_name' ILIKE ?)",
			likePattern(f.Search), likePattern(f.Search))
	}

	orders, total, err := listOrders(ctx, q, &c, page)
	if err != nil {
		return nil, nil, err
	}

	stats, err := orderStats(ctx, q)
	if err != nil {
		return nil, nil, err
	}
	stats.TotalOrders = total

	return newOffsetPage(derefOrders(orders), total, page), stats, nil
}

func orderStats(ctx context.Context, q DBTX) (*OrderStats, error) {
	stats := &OrderStats{}
	err := q.QueryRowContext(ctx,
		`SELECT
			COUNT(*),
			COALESCE(SUM(total_amount) FILTER (WHERE payment_status = 'paid'), 0),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'confirmed'),
			COUNT(*) FILTER (WHERE status = 'processing'),
			COUNT(*) FILTER (WHERE status = 'shipped'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'cancelled')
		 FROM orders`).Scan(
		&stats.TotalOrders,
		&stats.TotalRevenue,
		&stats.PendingOrders,
		&stats.ConfirmedOrders,
		&stats.ProcessingOrders,
		&stats.ShippedOrders,
		&stats.DeliveredOrders,
		&stats.CancelledOrders,
	)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return stats, nil
}
