package api

import (
	"net/http"
	"strings"

	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

func productFilter(r *http.Request) (store.ProductFilter, error) {
	q := r.URL.Query()
	f := store.ProductFilter{
		Category:  strings.TrimSpace(q.Get("category")),
		Search:    strings.TrimSpace(q.Get("search")),
		InStock:   queryBool(r, "in_stock"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      pageFrom(r),
	}

	var err error
	if f.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return f, err
	}
	return f, nil
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := store.ListProducts(r.Context(), s.db, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", page)
}

// adminListProducts also shows inactive and discontinued products.
func (s *Server) adminListProducts(w http.ResponseWriter, r *http.Request) {
	f, err := productFilter(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	f.IncludeInactive = true
	page, err := store.ListProducts(r.Context(), s.db, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", page)
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	product, err := store.GetProduct(r.Context(), s.db, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if product.Status != models.ProductActive && !auth.PrincipalFrom(r.Context()).IsAdmin() {
		s.fail(w, r, database.ErrProductNotFound)
		return
	}
	respondOK(w, http.StatusOK, "", product)
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var in store.ProductInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	product, err := store.CreateProduct(r.Context(), s.db, in, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Int64("product_id", product.ID).Str("sku", product.SKU).Msg("product created")
	respondOK(w, http.StatusCreated, "Product added successfully", product)
}

func (s *Server) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var patch store.ProductPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}

	product, err := store.UpdateProduct(r.Context(), s.db, id, patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Product updated successfully", product)
}

func (s *Server) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := store.DeleteProduct(r.Context(), s.db, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Int64("product_id", id).Msg("product deleted")
	respondOK(w, http.StatusOK, "Product deleted successfully", nil)
}

func (s *Server) requestStockNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID int64 `json:"product_id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.ProductID <= 0 {
		s.fail(w, r, database.NewValidationError("product_id", "is required"))
		return
	}

	ctx := r.Context()
	account, err := store.GetAccount(ctx, s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	n, err := store.RequestStockNotification(ctx, s.db, account, req.ProductID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, "You will be notified when this product is back in stock", n)
}

func (s *Server) listStockRequests(w http.ResponseWriter, r *http.Request) {
	var productID int64
	if raw := r.URL.Query().Get("product_id"); raw != "" {
		var err error
		if productID, err = parsePositive(raw, "product_id"); err != nil {
			s.fail(w, r, err)
			return
		}
	}

	groups, err := store.ListStockRequests(r.Context(), s.db, productID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", groups)
}
