package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/storefront-cart/internal/cart"
	"github.com/fjod/go_cart/storefront-cart/internal/domain"
	"github.com/fjod/go_cart/storefront-cart/internal/inventory"
	"github.com/fjod/go_cart/storefront-cart/internal/notify"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// CartStore is the subset of cart.Store the handlers drive.
type CartStore interface {
	Cart() domain.Cart
	AddProduct(ctx context.Context, productID int64) error
	RemoveProduct(ctx context.Context, productID int64) error
	UpdateProductAmount(ctx context.Context, req cart.UpdateProductAmount) error
	Clear(ctx context.Context) error
}

type NotificationSource interface {
	Recent() []notify.Notification
}

type CartHandler struct {
	store         CartStore
	notifications NotificationSource
	timeout       time.Duration
	log           logrus.FieldLogger
}

func NewCartHandler(store CartStore, notifications NotificationSource, timeout time.Duration, log logrus.FieldLogger) *CartHandler {
	return &CartHandler{
		store:         store,
		notifications: notifications,
		timeout:       timeout,
		log:           log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
}

type UpdateAmountRequestDTO struct {
	Amount *int `json:"amount"`
}

type CartResponse struct {
	Items []CartItemResponse `json:"items"`
	Size  int                `json:"size"`
	Total decimal.Decimal    `json:"total"`
}

type CartItemResponse struct {
	domain.CartItem
	Subtotal decimal.Decimal `json:"subtotal"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	if err := h.store.AddProduct(ctx, req.ProductID); err != nil {
		h.handleCartError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, toCartResponse(h.store.Cart()))
}

func (h *CartHandler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateAmountRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Amount == nil {
		respondError(w, http.StatusBadRequest, "invalid_amount", "amount is required")
		return
	}

	err := h.store.UpdateProductAmount(ctx, cart.UpdateProductAmount{ProductID: productID, Amount: *req.Amount})
	if err != nil {
		h.handleCartError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.store.RemoveProduct(ctx, productID); err != nil {
		h.handleCartError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Clear(ctx); err != nil {
		h.handleCartError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, toCartResponse(h.store.Cart()))
}

func (h *CartHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.notifications.Recent(),
	})
}

func toCartResponse(c domain.Cart) CartResponse {
	items := make([]CartItemResponse, len(c))
	for i, item := range c {
		items[i] = CartItemResponse{CartItem: item, Subtotal: item.Subtotal()}
	}
	return CartResponse{
		Items: items,
		Size:  c.Size(),
		Total: c.Total(),
	}
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

// handleCartError converts store errors to HTTP status codes.
// The message is the same text the user was notified with.
func (h *CartHandler) handleCartError(w http.ResponseWriter, r *http.Request, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, cart.ErrOutOfStock):
		httpStatus = http.StatusConflict
		code = "out_of_stock"
	case errors.Is(err, cart.ErrItemNotFound):
		httpStatus = http.StatusNotFound
		code = "item_not_found"
	case errors.Is(err, inventory.ErrProductNotFound), errors.Is(err, inventory.ErrStockNotFound):
		httpStatus = http.StatusNotFound
		code = "product_not_found"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	case errors.Is(err, cart.ErrPersist), errors.Is(err, cart.ErrCartClear):
		httpStatus = http.StatusInternalServerError
		code = "internal_error"
	default:
		httpStatus = http.StatusBadGateway
		code = "upstream_error"
	}

	h.log.WithError(err).WithFields(logrus.Fields{
		"status":     httpStatus,
		"request_id": getRequestID(r.Context()),
	}).Info("cart operation rejected")

	respondError(w, httpStatus, code, userMessage(err))
}

func userMessage(err error) string {
	for _, kind := range []error{
		cart.ErrOutOfStock,
		cart.ErrProductAddition,
		cart.ErrProductRemoval,
		cart.ErrQuantityUpdate,
		cart.ErrCartClear,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
