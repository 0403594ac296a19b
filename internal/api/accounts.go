package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/ratelimit"
	"github.com/safar/go-storefront/internal/store"
)

type authResponse struct {
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
	User      *models.Account `json:"user"`
}

func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, status int, message string, account *models.Account) {
	token, expiresAt, err := s.tokens.Create(account)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, status, message, authResponse{Token: token, ExpiresAt: expiresAt, User: account})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		s.fail(w, r, database.NewValidationError("name", "is required"))
		return
	}
	if !store.ValidEmail(store.NormalizeEmail(req.Email)) {
		s.fail(w, r, database.NewValidationError("email", "is not a valid email address"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	account, err := store.CreateAccount(r.Context(), s.db, req.Name, req.Email, req.Phone, hash, models.RoleClient)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.requestLogger(r).Info().Int64("account_id", account.ID).Msg("account registered")
	s.issueToken(w, r, http.StatusCreated, "Registration successful", account)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		s.fail(w, r, database.NewValidationError("", "email and password are required"))
		return
	}

	account, err := store.GetAccountByEmail(r.Context(), s.db, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrAccountNotFound) {
			err = database.ErrInvalidCredentials
		}
		s.fail(w, r, err)
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.Password); err != nil {
		s.fail(w, r, err)
		return
	}

	if s.limiter != nil {
		if err := s.limiter.Reset(r.Context(), ratelimit.Key(r)); err != nil {
			s.requestLogger(r).Warn().Err(err).Msg("reset login rate limit")
		}
	}
	s.issueToken(w, r, http.StatusOK, "Login successful", account)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	account, err := store.GetAccount(r.Context(), s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", account)
}

func (s *Server) updateProfile(w http.ResponseWriter, r *http.Request) {
	var req store.ProfileUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	account, err := store.UpdateProfile(r.Context(), s.db, principal(r).AccountID, req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Profile updated successfully", account)
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	ctx := r.Context()
	account, err := store.GetAccount(ctx, s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := auth.CheckPassword(account.PasswordHash, req.CurrentPassword); err != nil {
		s.fail(w, r, database.NewValidationError("current_password", "is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := store.UpdatePasswordHash(ctx, s.db, account.ID, hash); err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "Password changed successfully", nil)
}

func (s *Server) profileStats(w http.ResponseWriter, r *http.Request) {
	stats, err := store.GetAccountStats(r.Context(), s.db, principal(r).AccountID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", stats)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	role := models.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		s.fail(w, r, database.NewValidationError("role", "must be admin or client"))
		return
	}

	page, err := store.ListAccounts(r.Context(), s.db, store.AccountFilter{
		Role:   role,
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
		Page:   pageFrom(r),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondOK(w, http.StatusOK, "", page)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "accountID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req struct {
		Role models.Role `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}

	account, err := store.UpdateRole(r.Context(), s.db, principal(r).AccountID, id, req.Role)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Int64("target_account", id).Str("role", string(req.Role)).Msg("role updated")
	respondOK(w, http.StatusOK, "User role updated successfully", account)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "accountID")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := store.DeleteAccount(r.Context(), s.db, principal(r).AccountID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.requestLogger(r).Info().Int64("target_account", id).Msg("account deleted")
	respondOK(w, http.StatusOK, "User deleted successfully", nil)
}
