// Package handler serves the orders HTTP API.
package handler

import (
	"net/http"

	"github.com/xenking/market-orders/internal/domain/order"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
)

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// TokenPepper keys the HMAC used to hash API tokens before lookup.
	TokenPepper []byte
}

// Handler serves orders, products and accounts, delegating business logic to
// the order service and the repositories.
type Handler struct {
	orderService *order.Service
	products     product.Repository
	users        user.Repository
	pepper       []byte
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	orderService *order.Service,
	products product.Repository,
	users user.Repository,
) *Handler {
	return &Handler{
		orderService: orderService,
		products:     products,
		users:        users,
		pepper:       cfg.TokenPepper,
	}
}

// Register mounts every route on mux. Order and account routes require a
// token; the catalog is public.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.Handle("GET /orders", h.authenticated(h.ListOrders))
	mux.Handle("GET /orders/{id}", h.authenticated(h.GetOrder))
	mux.Handle("POST /orders", h.authenticated(h.PlaceOrder))
	mux.Handle("DELETE /users/me", h.authenticated(h.DeleteAccount))

	mux.HandleFunc("GET /products", h.ListProducts)
	mux.HandleFunc("GET /products/{id}", h.GetProduct)
}
