package gateway

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type Handler struct {
	ordersProxy    *ServiceProxy
	inventoryProxy *ServiceProxy
	logger         *slog.Logger
}

func NewHandler(ordersProxy, inventoryProxy *ServiceProxy, logger *slog.Logger) *Handler {
	return &Handler{
		ordersProxy:    ordersProxy,
		inventoryProxy: inventoryProxy,
		logger:         logger,
	}
}

// Register mounts the public routes. Everything order, refund and settings
// related goes to the orders service; catalog and stock routes live under
// /inventory.
func (h *Handler) Register(mux *http.ServeMux) {
	for _, prefix := range []string{"/orders", "/orders/", "/refunds", "/refunds/", "/settings", "/admin/"} {
		mux.HandleFunc(prefix, h.HandleOrders)
	}
	mux.HandleFunc("/inventory/", h.HandleInventory)
}

func (h *Handler) HandleOrders(w http.ResponseWriter, r *http.Request) {
	h.proxyRequest(w, r, h.ordersProxy, r.URL.Path)
}

func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/inventory")
	h.proxyRequest(w, r, h.inventoryProxy, path)
}

func (h *Handler) proxyRequest(w http.ResponseWriter, r *http.Request, proxy *ServiceProxy, path string) {
	resp, err := proxy.ForwardRequest(r.Context(), r, path)
	if err != nil {
		h.logger.Error("failed to forward request", "error", err, "path", path)
		httpx.WriteJSON(w, h.logger, http.StatusBadGateway, map[string]string{"error": "service unavailable"})
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	w.WriteHeader(resp.StatusCode)

	h.logger.Info("request proxied", "method", r.Method, "path", path, "status", resp.StatusCode)

	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger.Error("failed to copy response body", "error", err)
	}
}
