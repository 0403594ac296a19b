package store

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestPlaceOrderTotals() {
	t := s.T()
	client := s.newAccount("asha@example.com", models.RoleClient)
	product := s.newProduct("kb-100", "100.00", 10)

	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 2)
	require.NoError(t, err)

	order, err := s.placeOrder(client)
	require.NoError(t, err)

	require.Regexp(t, `^ORD-[0-9A-Z]+-[0-9A-Z]{6}$`, order.OrderNumber)
	require.Equal(t, models.OrderStatusPending, order.Status)
	require.Equal(t, models.PaymentPending, order.PaymentStatus)
	require.True(t, order.Summary.Subtotal.Equal(decimal.NewFromInt(200)))
	require.True(t, order.Summary.ShippingCost.Equal(decimal.NewFromInt(50)))
	require.True(t, order.Summary.Tax.Equal(decimal.NewFromInt(36)))
	require.True(t, order.Summary.TotalAmount.Equal(decimal.NewFromInt(286)), "total %s", order.Summary.TotalAmount)
	require.Len(t, order.Items, 1)
	require.Equal(t, "Product kb-100", order.Items[0].Name)
	require.Equal(t, product.MainImage(), order.Items[0].Image)

	require.Equal(t, 8, s.stockOf(product.ID))
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM carts WHERE account_id = $1`, client.ID))

	placed := s.eventsOfKind(events.KindOrderPlaced)
	require.Len(t, placed, 1)
	require.Equal(t, client.Email, placed[0].Recipient)

	var payload events.OrderPlaced
	require.NoError(t, json.Unmarshal(placed[0].Payload, &payload))
	require.Equal(t, order.OrderNumber, payload.OrderNumber)

	stored, err := GetOrder(s.ctx, s.db, order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, validAddress(), stored.ShippingAddress)
	require.NotNil(t, stored.Customer)
	require.Equal(t, client.Email, stored.Customer.Email)
	require.True(t, stored.Summary.TotalAmount.Equal(order.Summary.TotalAmount))
}

func (s *StoreSuite) TestPlaceOrderIgnoresProductDiscount() {
	t := s.T()
	client := s.newAccount("nisha@example.com", models.RoleClient)
	product := s.newProduct("disc-100", "100.00", 10)

	discount := decimal.NewFromInt(10)
	product, err := UpdateProduct(s.ctx, s.db, product.ID, ProductPatch{DiscountPercentage: &discount})
	require.NoError(t, err)
	require.True(t, product.ActiveDiscount(time.Now()).Equal(discount))

	_, err = AddToCart(s.ctx, s.db, client.ID, product.ID, 2)
	require.NoError(t, err)

	order, err := s.placeOrder(client)
	require.NoError(t, err)

	sum := order.Summary
	require.True(t, sum.Discount.IsZero(), "discount %s", sum.Discount)
	require.True(t, sum.TotalAmount.Equal(decimal.NewFromInt(286)), "total %s", sum.TotalAmount)
	require.True(t, sum.Subtotal.Add(sum.ShippingCost).Add(sum.Tax).Equal(sum.TotalAmount))
}

func (s *StoreSuite) TestPlaceOrderFreeShipping() {
	t := s.T()
	client := s.newAccount("ravi@example.com", models.RoleClient)
	product := s.newProduct("tv-600", "600.00", 3)

	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)

	order, err := s.placeOrder(client)
	require.NoError(t, err)
	require.True(t, order.Summary.ShippingCost.IsZero())
	require.True(t, order.Summary.TotalAmount.Equal(decimal.NewFromInt(708)), "total %s", order.Summary.TotalAmount)
}

func (s *StoreSuite) TestPlaceOrderEmptyCart() {
	client := s.newAccount("empty@example.com", models.RoleClient)

	_, err := s.placeOrder(client)
	require.ErrorIs(s.T(), err, database.ErrCartEmpty)
}

func (s *StoreSuite) TestPlaceOrderValidatesAddress() {
	client := s.newAccount("noaddr@example.com", models.RoleClient)

	_, err := PlaceOrder(s.ctx, s.db, models.DefaultPricingRules(), PlaceOrderRequest{
		AccountID:     client.ID,
		PaymentMethod: models.PaymentCOD,
	})
	var verr *database.ValidationError
	require.ErrorAs(s.T(), err, &verr)
}

func (s *StoreSuite) TestPlaceOrderInsufficientStockLeavesNoTrace() {
	t := s.T()
	client := s.newAccount("short@example.com", models.RoleClient)
	plenty := s.newProduct("plenty", "10.00", 50)
	scarce := s.newProduct("scarce", "10.00", 5)

	_, err := AddToCart(s.ctx, s.db, client.ID, plenty.ID, 2)
	require.NoError(t, err)
	_, err = AddToCart(s.ctx, s.db, client.ID, scarce.ID, 5)
	require.NoError(t, err)

	three := 3
	_, err = UpdateProduct(s.ctx, s.db, scarce.ID, ProductPatch{Stock: &three})
	require.NoError(t, err)

	_, err = s.placeOrder(client)
	require.ErrorIs(t, err, database.ErrInsufficientStock)

	var stockErr *database.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, scarce.ID, stockErr.ProductID)
	require.Equal(t, "Product scarce", stockErr.ProductName)
	require.Equal(t, 3, stockErr.Available)
	require.Equal(t, 5, stockErr.Requested)

	require.Equal(t, 50, s.stockOf(plenty.ID))
	require.Equal(t, 3, s.stockOf(scarce.ID))
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM orders`))
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM order_items`))
	require.Empty(t, s.eventsOfKind(events.KindOrderPlaced))

	cart, err := GetCart(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 2)
}

func (s *StoreSuite) TestPlaceOrderRejectsInactiveProduct() {
	t := s.T()
	client := s.newAccount("inactive@example.com", models.RoleClient)
	product := s.newProduct("retired", "10.00", 5)

	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)

	inactive := models.ProductInactive
	_, err = UpdateProduct(s.ctx, s.db, product.ID, ProductPatch{Status: &inactive})
	require.NoError(t, err)

	_, err = s.placeOrder(client)
	require.ErrorIs(t, err, database.ErrInsufficientStock)
	require.Equal(t, 5, s.stockOf(product.ID))
}

func (s *StoreSuite) TestConcurrentOrdersNeverOversell() {
	t := s.T()
	const buyers = 8
	product := s.newProduct("hot-item", "20.00", 3)

	accounts := make([]*models.Account, buyers)
	for i := range accounts {
		accounts[i] = s.newAccount("buyer"+string(rune('a'+i))+"@example.com", models.RoleClient)
		_, err := AddToCart(s.ctx, s.db, accounts[i].ID, product.ID, 1)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, a := range accounts {
		wg.Add(1)
		go func(a *models.Account) {
			defer wg.Done()
			if _, err := s.placeOrder(a); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(a)
	}
	wg.Wait()

	require.LessOrEqual(t, succeeded, 3)
	require.GreaterOrEqual(t, succeeded, 1)
	require.Equal(t, 3-succeeded, s.stockOf(product.ID))
	require.Equal(t, succeeded, s.countRows(`SELECT COUNT(*) FROM orders`))
}

func (s *StoreSuite) TestPlaceOrderRetriesOrderNumberCollision() {
	t := s.T()
	original := nextOrderNumber
	defer func() { nextOrderNumber = original }()

	numbers := []string{"ORD-FIXED-AAAAAA", "ORD-FIXED-AAAAAA", "ORD-FIXED-BBBBBB"}
	calls := 0
	nextOrderNumber = func() string {
		n := numbers[calls%len(numbers)]
		calls++
		return n
	}

	product := s.newProduct("collide", "10.00", 10)
	first := s.newAccount("first@example.com", models.RoleClient)
	second := s.newAccount("second@example.com", models.RoleClient)

	_, err := AddToCart(s.ctx, s.db, first.ID, product.ID, 1)
	require.NoError(t, err)
	_, err = AddToCart(s.ctx, s.db, second.ID, product.ID, 1)
	require.NoError(t, err)

	a, err := s.placeOrder(first)
	require.NoError(t, err)
	require.Equal(t, "ORD-FIXED-AAAAAA", a.OrderNumber)

	b, err := s.placeOrder(second)
	require.NoError(t, err)
	require.Equal(t, "ORD-FIXED-BBBBBB", b.OrderNumber)
	require.Equal(t, 3, calls)
}

func (s *StoreSuite) TestPlaceOrderGivesUpAfterRepeatedCollisions() {
	t := s.T()
	original := nextOrderNumber
	defer func() { nextOrderNumber = original }()
	nextOrderNumber = func() string { return "ORD-SAME-000000" }

	product := s.newProduct("exhaust", "10.00", 10)
	first := s.newAccount("one@example.com", models.RoleClient)
	second := s.newAccount("two@example.com", models.RoleClient)

	_, err := AddToCart(s.ctx, s.db, first.ID, product.ID, 1)
	require.NoError(t, err)
	_, err = AddToCart(s.ctx, s.db, second.ID, product.ID, 2)
	require.NoError(t, err)

	_, err = s.placeOrder(first)
	require.NoError(t, err)

	_, err = s.placeOrder(second)
	require.ErrorIs(t, err, database.ErrOrderNumberExhaust)
	require.Equal(t, 9, s.stockOf(product.ID))
	require.Equal(t, 1, s.countRows(`SELECT COUNT(*) FROM orders`))
}

func (s *StoreSuite) orderWith(email, sku string, stock, qty int) (*models.Account, *models.Product, *models.Order) {
	client := s.newAccount(email, models.RoleClient)
	product := s.newProduct(sku, "100.00", stock)
	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, qty)
	require.NoError(s.T(), err)
	order, err := s.placeOrder(client)
	require.NoError(s.T(), err)
	return client, product, order
}

func (s *StoreSuite) TestCancelOrderRestoresStockOnce() {
	t := s.T()
	client, product, order := s.orderWith("cancel@example.com", "cnl-1", 5, 2)
	require.Equal(t, 3, s.stockOf(product.ID))

	cancelled, err := CancelOrder(s.ctx, s.db, client.ID, order.OrderNumber, "")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	require.Equal(t, "Cancelled by customer", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)
	require.Equal(t, 5, s.stockOf(product.ID))

	again, err := CancelOrder(s.ctx, s.db, client.ID, order.OrderNumber, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, again.Status)
	require.Equal(t, 5, s.stockOf(product.ID))

	require.Empty(t, s.eventsOfKind(events.KindOrderStatusChanged))
}

func (s *StoreSuite) TestCancelOrderAfterShippingIsRejected() {
	t := s.T()
	client, product, order := s.orderWith("late@example.com", "late-1", 5, 1)

	_, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber:    order.OrderNumber,
		Status:         models.OrderStatusShipped,
		TrackingNumber: "TRK123",
	})
	require.NoError(t, err)

	_, err = CancelOrder(s.ctx, s.db, client.ID, order.OrderNumber, "too slow")
	require.ErrorIs(t, err, database.ErrOrderNotCancellable)
	require.Equal(t, 4, s.stockOf(product.ID))
}

func (s *StoreSuite) TestCancelOrderOfAnotherAccount() {
	_, _, order := s.orderWith("owner@example.com", "own-1", 5, 1)
	stranger := s.newAccount("stranger@example.com", models.RoleClient)

	_, err := CancelOrder(s.ctx, s.db, stranger.ID, order.OrderNumber, "")
	require.ErrorIs(s.T(), err, database.ErrOrderNotFound)

	_, err = GetAccountOrder(s.ctx, s.db, stranger.ID, order.OrderNumber)
	require.ErrorIs(s.T(), err, database.ErrOrderNotFound)
}

func (s *StoreSuite) TestUpdateOrderStatusLifecycle() {
	t := s.T()
	client, product, order := s.orderWith("life@example.com", "life-1", 5, 1)

	processing, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusProcessing,
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusProcessing, processing.Status)

	_, err = UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusConfirmed,
	})
	require.ErrorIs(t, err, database.ErrInvalidTransition)

	_, err = UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusShipped,
	})
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "tracking_number", verr.Field)

	shipped, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber:    order.OrderNumber,
		Status:         models.OrderStatusShipped,
		TrackingNumber: " TRK-9 ",
	})
	require.NoError(t, err)
	require.Equal(t, "TRK-9", shipped.TrackingNumber)

	delivered, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusDelivered,
	})
	require.NoError(t, err)
	require.Equal(t, models.PaymentPaid, delivered.PaymentStatus)
	require.NotNil(t, delivered.DeliveredAt)

	_, err = UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusCancelled,
		Reason:      "lost",
	})
	require.ErrorIs(t, err, database.ErrInvalidTransition)
	require.Equal(t, 4, s.stockOf(product.ID))

	changes := s.eventsOfKind(events.KindOrderStatusChanged)
	require.Len(t, changes, 3)
	for _, e := range changes {
		require.Equal(t, client.Email, e.Recipient)
	}
}

func (s *StoreSuite) TestUpdateOrderStatusSameStatusIsNoop() {
	t := s.T()
	_, _, order := s.orderWith("noop@example.com", "noop-1", 5, 1)

	same, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusPending,
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPending, same.Status)
	require.Empty(t, s.eventsOfKind(events.KindOrderStatusChanged))
}

func (s *StoreSuite) TestAdminCancelRestoresStockOnce() {
	t := s.T()
	_, product, order := s.orderWith("admincancel@example.com", "adm-1", 4, 4)
	require.Equal(t, 0, s.stockOf(product.ID))

	waiter := s.newAccount("waiter@example.com", models.RoleClient)
	_, err := RequestStockNotification(s.ctx, s.db, waiter, product.ID)
	require.NoError(t, err)

	req := UpdateStatusRequest{
		OrderNumber: order.OrderNumber,
		Status:      models.OrderStatusCancelled,
		Reason:      "payment failed",
	}
	cancelled, err := UpdateOrderStatus(s.ctx, s.db, req)
	require.NoError(t, err)
	require.Equal(t, "payment failed", cancelled.CancellationReason)
	require.Equal(t, 4, s.stockOf(product.ID))

	_, err = UpdateOrderStatus(s.ctx, s.db, req)
	require.NoError(t, err)
	require.Equal(t, 4, s.stockOf(product.ID))

	require.Len(t, s.eventsOfKind(events.KindOrderStatusChanged), 1)

	notices := s.eventsOfKind(events.KindBackInStock)
	require.Len(t, notices, 1)
	require.Equal(t, waiter.Email, notices[0].Recipient)
}

func (s *StoreSuite) TestUpdateOrderStatusUnknownOrder() {
	_, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: "ORD-NOPE-000000",
		Status:      models.OrderStatusConfirmed,
	})
	require.ErrorIs(s.T(), err, database.ErrOrderNotFound)
}

func (s *StoreSuite) TestListOrdersWithStats() {
	t := s.T()
	_, _, first := s.orderWith("list1@example.com", "lst-1", 5, 1)
	_, _, second := s.orderWith("list2@example.com", "lst-2", 5, 1)

	_, err := UpdateOrderStatus(s.ctx, s.db, UpdateStatusRequest{
		OrderNumber: second.OrderNumber,
		Status:      models.OrderStatusDelivered,
	})
	require.NoError(t, err)

	page, stats, err := ListOrders(s.ctx, s.db, OrderFilter{Status: models.OrderStatusPending})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)
	orders := page.Items.([]models.Order)
	require.Len(t, orders, 1)
	require.Equal(t, first.OrderNumber, orders[0].OrderNumber)
	require.NotNil(t, orders[0].Customer)
	require.Equal(t, "list1@example.com", orders[0].Customer.Email)
	require.Len(t, orders[0].Items, 1)

	require.Equal(t, int64(1), stats.TotalOrders)
	require.Equal(t, int64(1), stats.PendingOrders)
	require.Equal(t, int64(1), stats.DeliveredOrders)
	require.True(t, stats.TotalRevenue.Equal(second.Summary.TotalAmount), "revenue %s", stats.TotalRevenue)

	page, _, err = ListOrders(s.ctx, s.db, OrderFilter{Search: second.OrderNumber[len(second.OrderNumber)-6:]})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)

	_, _, err = ListOrders(s.ctx, s.db, OrderFilter{Status: "bogus"})
	var verr *database.ValidationError
	require.True(t, errors.As(err, &verr))
}

func (s *StoreSuite) TestListAccountOrdersCursor() {
	t := s.T()
	client := s.newAccount("pager@example.com", models.RoleClient)
	product := s.newProduct("page-1", "10.00", 20)

	placed := make([]string, 0, 5)
	for i := 0; i < 5; i++ {
		_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
		require.NoError(t, err)
		order, err := s.placeOrder(client)
		require.NoError(t, err)
		placed = append(placed, order.OrderNumber)
	}

	var seen []string
	cursor := ""
	for {
		page, err := ListAccountOrdersCursor(s.ctx, s.db, client.ID, cursor, 2)
		require.NoError(t, err)
		for _, o := range page.Items.([]models.Order) {
			seen = append(seen, o.OrderNumber)
		}
		if !page.HasMore {
			require.Empty(t, page.NextCursor)
			break
		}
		cursor = page.NextCursor
	}

	require.Len(t, seen, 5)
	for i := range placed {
		require.Equal(t, placed[len(placed)-1-i], seen[i])
	}

	offset, err := ListAccountOrders(s.ctx, s.db, client.ID, "", PageRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), offset.Total)
	require.Equal(t, 3, offset.TotalPages)
	require.Len(t, offset.Items.([]models.Order), 2)

	_, err = ListAccountOrdersCursor(s.ctx, s.db, client.ID, "%%%", 2)
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)
}
