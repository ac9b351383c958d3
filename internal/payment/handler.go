package payment

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

// Routes mounts the Khalti endpoints under /payments/khalti.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/initiate", h.Initiate)
	r.Post("/verify", h.Verify)
}

// AdminRoutes mounts the audit endpoints under /admin/payments.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/logs/{orderId}", h.Logs)
}

type initiateRequest struct {
	OrderID string `json:"orderId"`
}

// POST /payments/khalti/initiate
func (h *Handler) Initiate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req initiateRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	res, err := h.svc.Initiate(r.Context(), p.UserID, req.OrderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

type verifyRequest struct {
	OrderID string `json:"orderId"`
	Pidx    string `json:"pidx"`
}

// POST /payments/khalti/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var req verifyRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	o, err := h.svc.Verify(r.Context(), p.UserID, req.OrderID, req.Pidx)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, o)
}

// GET /admin/payments/logs/{orderId}
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.svc.Logs(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, logs)
}
