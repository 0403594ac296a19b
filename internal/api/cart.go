package api

import (
	"net/http"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/store"
)

type cartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (s *Server) decodeCartLine(w http.ResponseWriter, r *http.Request, defaultQty int) (cartLine, error) {
	line := cartLine{Quantity: defaultQty}
	if err := decodeJSON(w, r, &line); err != nil {
		return line, err
	}
	if line.ProductID <= 0 {
		return line, database.NewValidationError("product_id", "is required")
	}
	return line, nil
}

func (s *Server) getCart(w http.ResponseWriter, r *http.Request) {
	cart, err := store.GetCart(r.Context(), s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", cart)
}

func (s *Server) addToCart(w http.ResponseWriter, r *http.Request) {
	line, err := s.decodeCartLine(w, r, 1)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cart, err := store.AddToCart(r.Context(), s.db, principal(r).AccountID, line.ProductID, line.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Item added to cart", cart)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	line, err := s.decodeCartLine(w, r, 0)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cart, err := store.UpdateCartItem(r.Context(), s.db, principal(r).AccountID, line.ProductID, line.Quantity)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Cart updated", cart)
}

func (s *Server) removeFromCart(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "productID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cart, err := store.RemoveFromCart(r.Context(), s.db, principal(r).AccountID, productID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Item removed from cart", cart)
}
