package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopcore/storefront/internal/checkout"
	"github.com/shopcore/storefront/internal/orders"
)

type OrdersHandler struct {
	Checkout *checkout.Service
	Ledger   orders.Ledger
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.placeSingle)
	r.Post("/orders/cart", h.placeCart)
	r.Delete("/orders/{orderID}/cancel", h.cancel)
	r.Get("/orders", h.list)
	r.Get("/orders/{orderID}", h.get)
}

// placeSingleReq mirrors the flat single-product purchase form.
type placeSingleReq struct {
	ExternalID    string `json:"external_id,omitempty"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
	CardNumber    string `json:"card_number"`
	Expiry        string `json:"expiry"`
	CVV           string `json:"cvv"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
}

func (h *OrdersHandler) placeSingle(w http.ResponseWriter, r *http.Request) {
	var req placeSingleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	h.place(w, r, checkout.PlaceRequest{
		ExternalID: req.ExternalID,
		Customer: orders.Customer{
			Name: req.Name, Email: req.Email, Phone: req.Phone, Address: req.Address,
		},
		Payment: checkout.PaymentInput{
			Method: req.PaymentMethod, CardNumber: req.CardNumber, Expiry: req.Expiry, CVV: req.CVV,
		},
		Items:   []checkout.CartItem{{ProductID: req.ProductID, Qty: req.Quantity}},
		TraceID: r.Header.Get("X-Request-Id"),
	})
}

// placeCartReq carries a checkout cart: one customer, many items. The
// item name and price fields a client may send are ignored; snapshots
// come from the catalog.
type placeCartReq struct {
	ExternalID string        `json:"external_id,omitempty"`
	User       cartUser      `json:"user"`
	Products   []cartProduct `json:"products"`
}

type cartUser struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	Address       string `json:"address"`
	PaymentMethod string `json:"payment_method"`
	CardNumber    string `json:"card_number"`
	Expiry        string `json:"expiry"`
	CVV           string `json:"cvv"`
}

type cartProduct struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
}

func (h *OrdersHandler) placeCart(w http.ResponseWriter, r *http.Request) {
	var req placeCartReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	items := make([]checkout.CartItem, 0, len(req.Products))
	for _, p := range req.Products {
		items = append(items, checkout.CartItem{ProductID: p.ID, Qty: p.Quantity})
	}

	h.place(w, r, checkout.PlaceRequest{
		ExternalID: req.ExternalID,
		Customer: orders.Customer{
			Name: req.User.Name, Email: req.User.Email, Phone: req.User.Phone, Address: req.User.Address,
		},
		Payment: checkout.PaymentInput{
			Method: req.User.PaymentMethod, CardNumber: req.User.CardNumber, Expiry: req.User.Expiry, CVV: req.User.CVV,
		},
		Items:   items,
		TraceID: r.Header.Get("X-Request-Id"),
	})
}

func (h *OrdersHandler) place(w http.ResponseWriter, r *http.Request, req checkout.PlaceRequest) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		writeError(w, err)
		return
	}

	code := http.StatusCreated
	if res.Idempotent {
		code = http.StatusOK
	}
	writeJSON(w, code, map[string]any{"order": res.Order, "idempotent": res.Idempotent})
}

func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Checkout.CancelOrder(ctx, orderID, r.Header.Get("X-Request-Id"))
	if errors.Is(err, orders.ErrAlreadyCancelled) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "order already cancelled", "order": o})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "order cancelled and stock restored", "order": o})
}

func (h *OrdersHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	os, err := h.Ledger.ListAll(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, os)
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Ledger.Get(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// writeError maps the error taxonomy onto HTTP statuses. Business-rule
// failures get specific 4xx codes; everything else is a storage fault.
func writeError(w http.ResponseWriter, err error) {
	var stockErr *orders.InsufficientStockError
	switch {
	case errors.Is(err, orders.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": stockErr.Error(), "details": stockErr.Shortages})
	case errors.Is(err, orders.ErrProductNotFound), errors.Is(err, orders.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrConsistency):
		log.Printf("consistency violation: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal inconsistency, operator notified"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "server error"})
	}
}
