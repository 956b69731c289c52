package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shopcore/storefront/internal/cache"
	"github.com/shopcore/storefront/internal/catalog"
	"github.com/shopcore/storefront/internal/inventory"
)

type ProductsHandler struct {
	Catalog   catalog.Reader
	Inventory inventory.Store
	Cache     cache.Cache
}

func (h *ProductsHandler) Register(r *chi.Mux) {
	r.Get("/products", h.list)
	r.Get("/products/{slug}", h.getBySlug)
	r.Patch("/products/{slug}/decrement", h.decrement)
}

func (h *ProductsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.List(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *ProductsHandler) getBySlug(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(cache.KeyProductSlug, slug)
	if s, err := h.Cache.Get(ctx, key); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	p, err := h.Catalog.GetBySlug(ctx, slug)
	if err != nil {
		writeError(w, err)
		return
	}
	b, _ := json.Marshal(p)
	if err := h.Cache.Set(ctx, key, string(b), cache.TTLProductCache); err != nil {
		log.Printf("product cache set: %v", err)
	}
	writeJSON(w, http.StatusOK, json.RawMessage(b))
}

type decrementReq struct {
	Quantity int `json:"quantity"`
}

func (h *ProductsHandler) decrement(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req decrementReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Quantity <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid quantity"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	newStock, err := h.Inventory.ReserveBySlug(ctx, slug, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	// the cached copy now carries a stale stock count
	if err := h.Cache.Delete(ctx, fmt.Sprintf(cache.KeyProductSlug, slug)); err != nil {
		log.Printf("product cache delete: %v", err)
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "stock updated", "stock": newStock})
}
