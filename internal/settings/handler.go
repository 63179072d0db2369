package settings

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type Store interface {
	Provider
	Update(ctx context.Context, s Settings) (Settings, error)
}

type Handler struct {
	store    Store
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /settings", h.HandleGet)
	mux.HandleFunc("PUT /settings", h.HandleUpdate)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, s)
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	caller, err := httpx.CallerFrom(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if !caller.IsAdmin() {
		httpx.WriteError(w, h.logger, domain.ErrForbidden)
		return
	}

	var req Settings
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if req.DefaultFreight.IsNegative() {
		httpx.WriteError(w, h.logger, fmt.Errorf("%w: default_freight must not be negative", domain.ErrInvalidInput))
		return
	}

	updated, err := h.store.Update(r.Context(), req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("settings updated",
		"user_id", caller.UserID,
		"order_cancel_hours", updated.OrderCancelHours,
		"order_confirm_days", updated.OrderConfirmDays,
	)
	httpx.WriteJSON(w, h.logger, http.StatusOK, updated)
}
