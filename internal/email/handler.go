package email

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/joao-fontenele/shopflow/internal/httpx"
)

// Handler is a stand-in mail relay: it validates and logs outgoing messages.
type Handler struct {
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(logger *slog.Logger) *Handler {
	return &Handler{
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /send", h.HandleSend)
}

type sendRequest struct {
	To      string `json:"to" validate:"required,email"`
	Subject string `json:"subject" validate:"required,max=200"`
	Body    string `json:"body"`
}

type sendResponse struct {
	Status string `json:"status"`
}

func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.InfoContext(r.Context(), "email sent", "to", req.To, "subject", req.Subject)

	httpx.WriteJSON(w, h.logger, http.StatusOK, sendResponse{Status: "sent"})
}
