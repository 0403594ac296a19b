package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ShippingAddress models.ShippingAddress `json:"shipping_address"`
		PaymentMethod   models.PaymentMethod   `json:"payment_method"`
		Notes           string                 `json:"notes"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.PaymentMethod == "" {
		req.PaymentMethod = models.PaymentCOD
	}

	order, err := store.PlaceOrder(r.Context(), s.db, s.pricing, store.PlaceOrderRequest{
		AccountID:       principal(r).AccountID,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.requestLogger(r).Info().
		Str("order_number", order.OrderNumber).
		Str("total", order.Summary.TotalAmount.StringFixed(2)).
		Msg("order placed")
	respondOK(w, http.StatusCreated, "Order placed successfully", order)
}

// listMyOrders pages by offset, or by cursor when the cursor parameter is
// present (an empty cursor starts from the newest order).
func (s *Server) listMyOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	accountID := principal(r).AccountID

	if q.Has("cursor") {
		limit, _ := strconv.Atoi(q.Get("limit"))
		page, err := store.ListAccountOrdersCursor(r.Context(), s.db, accountID, q.Get("cursor"), limit)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		respondOK(w, http.StatusOK, "", page)
		return
	}

	page, err := store.ListAccountOrders(r.Context(), s.db, accountID, models.OrderStatus(q.Get("status")), pageFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", page)
}

// getOrder lets admins read any order; everyone else only their own.
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "orderNumber")
	p := principal(r)

	var (
		order *models.Order
		err   error
	)
	if p.IsAdmin() {
		order, err = store.GetOrder(r.Context(), s.db, number)
	} else {
		order, err = store.GetAccountOrder(r.Context(), s.db, p.AccountID, number)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", order)
}

func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	number := chi.URLParam(r, "orderNumber")
	order, err := store.CancelOrder(r.Context(), s.db, principal(r).AccountID, number, req.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Str("order_number", number).Msg("order cancelled by customer")
	respondOK(w, http.StatusOK, "Order cancelled successfully", order)
}

func (s *Server) adminListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.OrderFilter{
		Status:        models.OrderStatus(q.Get("status")),
		PaymentStatus: models.PaymentStatus(q.Get("payment_status")),
		Search:        strings.TrimSpace(q.Get("search")),
		Page:          pageFrom(r),
	}

	var err error
	if f.From, err = queryDate(r, "from", false); err != nil {
		s.fail(w, r, err)
		return
	}
	if f.To, err = queryDate(r, "to", true); err != nil {
		s.fail(w, r, err)
		return
	}

	page, stats, err := store.ListOrders(r.Context(), s.db, f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", struct {
		*store.OffsetPage
		Stats *store.OrderStats `json:"stats"`
	}{page, stats})
}

func (s *Server) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status         models.OrderStatus `json:"status"`
		TrackingNumber string             `json:"tracking_number"`
		Reason         string             `json:"reason"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	number := chi.URLParam(r, "orderNumber")
	order, err := store.UpdateOrderStatus(r.Context(), s.db, store.UpdateStatusRequest{
		OrderNumber:    number,
		Status:         req.Status,
		TrackingNumber: req.TrackingNumber,
		Reason:         req.Reason,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Str("order_number", number).Str("status", string(order.Status)).Msg("order status updated")
	respondOK(w, http.StatusOK, "Order status updated successfully", order)
}

func (s *Server) pendingOutbox(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > store.MaxPageSize {
		limit = store.DefaultPageSize
	}
	events, err := s.outbox.Pending(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", events)
}
