package api

import (
	"net/http"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/store"
)

func (s *Server) submitContact(w http.ResponseWriter, r *http.Request) {
	var in store.ContactInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.fail(w, r, err)
		return
	}

	msg, err := store.CreateContact(r.Context(), s.db, principal(r).AccountID, in, s.adminInbox)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusCreated, "Your message has been sent successfully", msg)
}

func (s *Server) listMyContacts(w http.ResponseWriter, r *http.Request) {
	msgs, err := store.ListAccountContacts(r.Context(), s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", msgs)
}

func (s *Server) adminListContacts(w http.ResponseWriter, r *http.Request) {
	status := models.ContactStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		s.fail(w, r, database.NewValidationError("status", "must be pending, in-progress or resolved"))
		return
	}

	page, err := store.ListContacts(r.Context(), s.db, status, pageFrom(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", page)
}

func (s *Server) updateContact(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "contactID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Status   models.ContactStatus `json:"status"`
		Response *string              `json:"response"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	msg, err := store.UpdateContact(r.Context(), s.db, id, req.Status, req.Response)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Contact message updated", msg)
}

func (s *Server) dashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetDashboardStats(r.Context(), s.db)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", stats)
}
