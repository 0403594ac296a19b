package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/safar/go-storefront/internal/auth"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/ratelimit"
	"github.com/safar/go-storefront/internal/store"
)

type Options struct {
	DB         *sql.DB
	Tokens     *auth.TokenMaker
	Pricing    models.PricingRules
	AdminInbox string
	// Limiter guards login and registration. Nil disables rate limiting.
	Limiter *ratelimit.Limiter
	Logger  zerolog.Logger
}

type Server struct {
	db         *sql.DB
	tokens     *auth.TokenMaker
	pricing    models.PricingRules
	adminInbox string
	limiter    *ratelimit.Limiter
	outbox     *store.Outbox
	logger     zerolog.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		db:         opts.DB,
		tokens:     opts.Tokens,
		pricing:    opts.Pricing,
		adminInbox: opts.AdminInbox,
		limiter:    opts.Limiter,
		outbox:     store.NewOutbox(opts.DB),
		logger:     opts.Logger,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(Authenticate(s.tokens))
	r.Use(Logger(s.logger))
	r.Use(Recoverer(s.logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if s.limiter != nil {
					r.Use(ratelimit.Middleware(s.limiter, s.logger, tooManyRequests))
				}
				r.Post("/register", s.register)
				r.Post("/login", s.login)
			})
			r.With(RequireAuth).Get("/me", s.me)
		})

		r.Get("/products", s.listProducts)
		r.Get("/products/{productID}", s.getProduct)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Route("/profile", func(r chi.Router) {
				r.Get("/", s.me)
				r.Put("/", s.updateProfile)
				r.Post("/password", s.changePassword)
				r.Get("/stats", s.profileStats)
			})

			r.Get("/orders", s.listMyOrders)
			r.Get("/orders/{orderNumber}", s.getOrder)

			r.Group(func(r chi.Router) {
				r.Use(RequireRole(models.RoleClient))

				r.Route("/cart", func(r chi.Router) {
					r.Get("/", s.getCart)
					r.Post("/", s.addToCart)
					r.Put("/", s.updateCartItem)
					r.Delete("/{productID}", s.removeFromCart)
				})

				r.Post("/orders", s.placeOrder)
				r.Post("/orders/{orderNumber}/cancel", s.cancelOrder)

				r.Post("/contact", s.submitContact)
				r.Get("/contact", s.listMyContacts)

				r.Post("/stock-notifications", s.requestStockNotification)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireRole(models.RoleAdmin))

				r.Get("/stats", s.dashboardStats)

				r.Get("/products", s.adminListProducts)
				r.Post("/products", s.createProduct)
				r.Put("/products/{productID}", s.updateProduct)
				r.Delete("/products/{productID}", s.deleteProduct)

				r.Get("/orders", s.adminListOrders)
				r.Put("/orders/{orderNumber}/status", s.updateOrderStatus)

				r.Get("/contacts", s.adminListContacts)
				r.Put("/contacts/{contactID}", s.updateContact)

				r.Get("/users", s.listUsers)
				r.Put("/users/{accountID}/role", s.updateRole)
				r.Delete("/users/{accountID}", s.deleteUser)

				r.Get("/stock-notifications", s.listStockRequests)
				r.Get("/outbox", s.pendingOutbox)
			})
		})
	})

	return r
}

func tooManyRequests(w http.ResponseWriter, r *http.Request) {
	respondError(w, http.StatusTooManyRequests, "Too many attempts, please try again later")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.PingContext(ctx); err != nil {
		s.requestLogger(r).Error().Err(err).Msg("health check failed")
		respondError(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}
	respondOK(w, http.StatusOK, "ok", nil)
}
