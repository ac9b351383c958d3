package order

import (
	"net/http"

	"storefront-be/internal/auth"
	"storefront-be/internal/httpx"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// Routes mounts the customer endpoints. Callers must already be
// authenticated.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/me", h.ListMine)
	r.Get("/{id}", h.Get)
	r.Put("/{id}/cancel", h.Cancel)
}

// AdminRoutes mounts the admin endpoints under /admin/orders.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Put("/{id}/status", h.UpdateStatus)
}

// POST /orders
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var in CreateOrderInput
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	o, err := h.svc.Create(r.Context(), p.UserID, in)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, o)
}

// GET /orders/me
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	orders, err := h.svc.ListMine(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orders)
}

// GET /orders/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	o, err := h.svc.Get(r.Context(), p.UserID, chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// PUT /orders/{id}/cancel
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req, true); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	o, err := h.svc.Cancel(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

type statusRequest struct {
	Status string `json:"status"`
}

// PUT /admin/orders/{id}/status
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req statusRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	o, err := h.svc.UpdateStatus(r.Context(), p.UserID, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}
