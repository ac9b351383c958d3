package refund

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

// Routes mounts the customer endpoints under /payments/refunds.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Request)
	r.Get("/me", h.ListMine)
}

// AdminRoutes mounts the review endpoints under /admin/payments/refunds.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Put("/{id}/approve", h.Approve)
	r.Put("/{id}/reject", h.Reject)
	r.Put("/{id}/processed", h.MarkProcessed)
}

// POST /payments/refunds
func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	var in RequestInput
	if err := httpx.DecodeJSON(r, &in, false); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	req, err := h.svc.Request(r.Context(), p.UserID, in)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, req)
}

// GET /payments/refunds/me
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())

	list, err := h.svc.ListMine(r.Context(), p.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// GET /admin/payments/refunds?status=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

type noteRequest struct {
	Note string `json:"note"`
}

type transitionFunc func(svc Service, r *http.Request, adminID, id, note string) (*Request, error)

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	p, _ := auth.PrincipalFrom(r.Context())

	var body noteRequest
	if err := httpx.DecodeJSON(r, &body, true); err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}

	req, err := fn(h.svc, r, p.UserID, chi.URLParam(r, "id"), body.Note)
	if err != nil {
		httpx.WriteError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, req)
}

// PUT /admin/payments/refunds/{id}/approve
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(svc Service, r *http.Request, adminID, id, note string) (*Request, error) {
		return svc.Approve(r.Context(), adminID, id, note)
	})
}

// PUT /admin/payments/refunds/{id}/reject
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(svc Service, r *http.Request, adminID, id, note string) (*Request, error) {
		return svc.Reject(r.Context(), adminID, id, note)
	})
}

// PUT /admin/payments/refunds/{id}/processed
func (h *Handler) MarkProcessed(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, func(svc Service, r *http.Request, adminID, id, note string) (*Request, error) {
		return svc.MarkProcessed(r.Context(), adminID, id, note)
	})
}
