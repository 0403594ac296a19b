package store

import (
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func (s *StoreSuite) TestCartMergesLinesUpToStock() {
	t := s.T()
	client := s.newAccount("cart@example.com", models.RoleClient)
	product := s.newProduct("mug", "12.50", 4)

	cart, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)

	cart, err = AddToCart(s.ctx, s.db, client.ID, product.ID, 2)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, 3, cart.Items[0].Quantity)
	require.Equal(t, 3, cart.TotalItems)
	require.True(t, cart.TotalAmount.Equal(decimal.RequireFromString("37.50")))
	require.NotNil(t, cart.Items[0].Product)

	_, err = AddToCart(s.ctx, s.db, client.ID, product.ID, 2)
	var stockErr *database.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, 4, stockErr.Available)
	require.Equal(t, 5, stockErr.Requested)

	_, err = AddToCart(s.ctx, s.db, client.ID, product.ID, 0)
	var verr *database.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = AddToCart(s.ctx, s.db, client.ID, 9999, 1)
	require.ErrorIs(t, err, database.ErrProductNotFound)
}

func (s *StoreSuite) TestCartKeepsPriceAtAddTime() {
	t := s.T()
	client := s.newAccount("price@example.com", models.RoleClient)
	product := s.newProduct("book", "10.00", 10)

	_, err := AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)

	newPrice := decimal.NewFromInt(15)
	_, err = UpdateProduct(s.ctx, s.db, product.ID, ProductPatch{Price: &newPrice})
	require.NoError(t, err)

	cart, err := GetCart(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.True(t, cart.Items[0].Price.Equal(decimal.NewFromInt(10)))
	require.True(t, cart.Items[0].Product.Price.Equal(newPrice))
}

func (s *StoreSuite) TestUpdateCartItem() {
	t := s.T()
	client := s.newAccount("update@example.com", models.RoleClient)
	product := s.newProduct("pen", "2.00", 5)

	_, err := UpdateCartItem(s.ctx, s.db, client.ID, product.ID, 1)
	require.ErrorIs(t, err, database.ErrCartItemNotFound)

	_, err = AddToCart(s.ctx, s.db, client.ID, product.ID, 1)
	require.NoError(t, err)

	cart, err := UpdateCartItem(s.ctx, s.db, client.ID, product.ID, 5)
	require.NoError(t, err)
	require.Equal(t, 5, cart.TotalItems)

	_, err = UpdateCartItem(s.ctx, s.db, client.ID, product.ID, 6)
	require.ErrorIs(t, err, database.ErrInsufficientStock)

	cart, err = UpdateCartItem(s.ctx, s.db, client.ID, product.ID, 0)
	require.NoError(t, err)
	require.Empty(t, cart.Items)
	require.True(t, cart.TotalAmount.IsZero())
}

func (s *StoreSuite) TestRemoveFromCart() {
	t := s.T()
	client := s.newAccount("remove@example.com", models.RoleClient)
	keep := s.newProduct("keep", "3.00", 5)
	drop := s.newProduct("drop", "4.00", 5)

	_, err := AddToCart(s.ctx, s.db, client.ID, keep.ID, 1)
	require.NoError(t, err)
	_, err = AddToCart(s.ctx, s.db, client.ID, drop.ID, 2)
	require.NoError(t, err)

	cart, err := RemoveFromCart(s.ctx, s.db, client.ID, drop.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, keep.ID, cart.Items[0].ProductID)

	_, err = RemoveFromCart(s.ctx, s.db, client.ID, drop.ID)
	require.ErrorIs(t, err, database.ErrCartItemNotFound)
}

func (s *StoreSuite) TestGetCartPrunesUnavailableProducts() {
	t := s.T()
	client := s.newAccount("prune@example.com", models.RoleClient)
	active := s.newProduct("active", "3.00", 5)
	retired := s.newProduct("retired", "4.00", 5)

	_, err := AddToCart(s.ctx, s.db, client.ID, active.ID, 1)
	require.NoError(t, err)
	_, err = AddToCart(s.ctx, s.db, client.ID, retired.ID, 1)
	require.NoError(t, err)

	discontinued := models.ProductDiscontinued
	_, err = UpdateProduct(s.ctx, s.db, retired.ID, ProductPatch{Status: &discontinued})
	require.NoError(t, err)

	cart, err := GetCart(s.ctx, s.db, client.ID)
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	require.Equal(t, active.ID, cart.Items[0].ProductID)
	require.Equal(t, 1, s.countRows(`SELECT COUNT(*) FROM cart_items`))

	empty, err := GetCart(s.ctx, s.db, s.admin.ID)
	require.NoError(t, err)
	require.Empty(t, empty.Items)
	require.Zero(t, empty.ID)
}
