package store

import (
	"encoding/json"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/events"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestCreateProductNormalizesAndRejectsDuplicateSKU() {
	t := s.T()
	p := s.newProduct(" lamp-01 ", "49.99", 7)
	require.Equal(t, "LAMP-01", p.SKU)
	require.Equal(t, models.ProductActive, p.Status)
	require.Empty(t, p.Tags)
	require.NotNil(t, p.CreatedBy)
	require.Equal(t, s.admin.ID, *p.CreatedBy)

	_, err := CreateProduct(s.ctx, s.db, ProductInput{
		Name:        "Other lamp",
		Description: "Same SKU",
		Price:       decimal.NewFromInt(10),
		SKU:         "LAMP-01",
		Category:    "lighting",
	}, s.admin.ID)
	require.ErrorIs(t, err, database.ErrDuplicateSKU)
}

func (s *StoreSuite) TestCreateProductValidation() {
	_, err := CreateProduct(s.ctx, s.db, ProductInput{
		Name:        "Negative",
		Description: "Bad stock",
		Price:       decimal.NewFromInt(10),
		Stock:       -1,
		SKU:         "NEG",
		Category:    "misc",
	}, s.admin.ID)

	var verr *database.ValidationError
	require.ErrorAs(s.T(), err, &verr)
	require.Equal(s.T(), "stock", verr.Field)
}

func (s *StoreSuite) TestListProductsFilters() {
	t := s.T()
	cheap := s.newProduct("cheap", "5.00", 10)
	s.newProduct("mid", "50.00", 0)
	s.newProduct("pricey", "500.00", 2)
	hidden := s.newProduct("hidden", "20.00", 4)

	inactive := models.ProductInactive
	_, err := UpdateProduct(s.ctx, s.db, hidden.ID, ProductPatch{Status: &inactive})
	require.NoError(t, err)

	page, err := ListProducts(s.ctx, s.db, ProductFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(3), page.Total)
	require.Equal(t, 12, page.PageSize)

	page, err = ListProducts(s.ctx, s.db, ProductFilter{IncludeInactive: true})
	require.NoError(t, err)
	require.Equal(t, int64(4), page.Total)

	page, err = ListProducts(s.ctx, s.db, ProductFilter{InStock: true, SortBy: "price", SortOrder: "asc"})
	require.NoError(t, err)
	products := page.Items.([]models.Product)
	require.Len(t, products, 2)
	require.Equal(t, cheap.ID, products[0].ID)

	lo, hi := decimal.NewFromInt(10), decimal.NewFromInt(100)
	page, err = ListProducts(s.ctx, s.db, ProductFilter{MinPrice: &lo, MaxPrice: &hi})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)

	page, err = ListProducts(s.ctx, s.db, ProductFilter{Search: "PRICEY"})
	require.NoError(t, err)
	require.Equal(t, int64(1), page.Total)

	_, err = ListProducts(s.ctx, s.db, ProductFilter{SortBy: "rating; DROP TABLE products"})
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)
}

func (s *StoreSuite) TestRestockNotifiesWaitersOnce() {
	t := s.T()
	product := s.newProduct("sold-out", "30.00", 0)
	asha := s.newAccount("asha@example.com", models.RoleClient)
	ravi := s.newAccount("ravi@example.com", models.RoleClient)

	_, err := RequestStockNotification(s.ctx, s.db, asha, product.ID)
	require.NoError(t, err)
	_, err = RequestStockNotification(s.ctx, s.db, asha, product.ID)
	require.ErrorIs(t, err, database.ErrAlreadySubscribed)
	_, err = RequestStockNotification(s.ctx, s.db, ravi, product.ID)
	require.NoError(t, err)

	groups, err := ListStockRequests(s.ctx, s.db, 0)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Len(t, groups[0].Requests, 2)
	require.Equal(t, product.MainImage(), groups[0].Image)

	five := 5
	_, err = UpdateProduct(s.ctx, s.db, product.ID, ProductPatch{Stock: &five})
	require.NoError(t, err)

	notices := s.eventsOfKind(events.KindBackInStock)
	require.Len(t, notices, 2)
	var payload events.BackInStock
	require.NoError(t, json.Unmarshal(notices[0].Payload, &payload))
	require.Equal(t, product.ID, payload.ProductID)
	require.Equal(t, 5, payload.Stock)

	groups, err = ListStockRequests(s.ctx, s.db, product.ID)
	require.NoError(t, err)
	require.Empty(t, groups)

	eight := 8
	_, err = UpdateProduct(s.ctx, s.db, product.ID, ProductPatch{Stock: &eight})
	require.NoError(t, err)
	require.Len(t, s.eventsOfKind(events.KindBackInStock), 2)

	_, err = RequestStockNotification(s.ctx, s.db, asha, product.ID)
	require.NoError(t, err)
}

func (s *StoreSuite) TestUpdateProductUnknown() {
	name := "ghost"
	_, err := UpdateProduct(s.ctx, s.db, 9999, ProductPatch{Name: &name})
	require.ErrorIs(s.T(), err, database.ErrProductNotFound)
}

func (s *StoreSuite) TestDeleteProductKeepsOrderSnapshot() {
	t := s.T()
	client, product, order := s.orderWith("snap@example.com", "gone-1", 5, 1)

	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)
	waiter := s.newAccount("waiter@example.com", models.RoleClient)
	_, err = RequestStockNotification(s.ctx, s.db, waiter, product.ID)
	require.NoError(t, err)

	require.NoError(t, DeleteProduct(s.ctx, s.db, product.ID))
	require.ErrorIs(t, DeleteProduct(s.ctx, s.db, product.ID), database.ErrProductNotFound)

	_, err = GetProduct(s.ctx, s.db, product.ID)
	require.ErrorIs(t, err, database.ErrProductNotFound)
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM cart_items WHERE product_id = $1`, product.ID))
	require.Equal(t, 0, s.countRows(`SELECT COUNT(*) FROM stock_notifications WHERE is_active`))

	stored, err := GetOrder(s.ctx, s.db, order.OrderNumber)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.Equal(t, "Product gone-1", stored.Items[0].Name)

	cancelled, err := CancelOrder(s.ctx, s.db, client.ID, order.OrderNumber, "")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCancelled, cancelled.Status)
}
