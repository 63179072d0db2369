package orders

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/httpx"
)

type Handler struct {
	svc      *Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandler(svc *Service, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.HandleCheckout)
	mux.HandleFunc("GET /orders", h.HandleList)
	mux.HandleFunc("GET /orders/counts", h.HandleCounts)
	mux.HandleFunc("GET /orders/{orderNo}", h.HandleGet)
	mux.HandleFunc("DELETE /orders/{orderNo}", h.HandleDelete)
	mux.HandleFunc("PUT /orders/{orderNo}/pay", h.HandlePay)
	mux.HandleFunc("PUT /orders/{orderNo}/ship", h.HandleShip)
	mux.HandleFunc("PUT /orders/{orderNo}/receive", h.HandleReceive)
	mux.HandleFunc("PUT /orders/{orderNo}/cancel", h.HandleCancel)
	mux.HandleFunc("PUT /admin/orders/{orderNo}/cancel", h.HandleAdminCancel)

	mux.HandleFunc("POST /refunds", h.HandleApplyRefund)
	mux.HandleFunc("GET /refunds/{id}", h.HandleGetRefund)
	mux.HandleFunc("PUT /refunds/{id}/review", h.HandleReviewRefund)
	mux.HandleFunc("PUT /refunds/{id}/cancel", h.HandleCancelRefund)
	mux.HandleFunc("GET /orders/by-id/{orderId}/refund", h.HandleLatestRefund)
}

type checkoutItem struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	VariantID *int64 `json:"variant_id" validate:"omitempty,gt=0"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

type checkoutRequest struct {
	AddressID    int64          `json:"address_id" validate:"required,gt=0"`
	CartEntryIDs []int64        `json:"cart_entry_ids" validate:"omitempty,dive,gt=0"`
	Items        []checkoutItem `json:"items" validate:"omitempty,dive"`
	Note         string         `json:"note" validate:"max=500"`
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	items := make([]CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, CheckoutItem{
			ProductID: item.ProductID,
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.svc.Checkout(r.Context(), CheckoutRequest{
		UserID:       caller.UserID,
		AddressID:    req.AddressID,
		CartEntryIDs: req.CartEntryIDs,
		Items:        items,
		Note:         req.Note,
	})
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var status *domain.OrderStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || !domain.OrderStatus(n).Valid() {
			httpx.WriteError(w, h.logger, fmt.Errorf("%w: invalid status", domain.ErrInvalidInput))
			return
		}
		status = statusPtr(domain.OrderStatus(n))
	}

	orders, err := h.svc.List(r.Context(), caller.UserID, status)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "user_id", caller.UserID, "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleCounts(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	counts, err := h.svc.Counts(r.Context(), caller.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, counts)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	order, err := h.svc.Get(r.Context(), r.PathValue("orderNo"), viewerOf(caller))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), r.PathValue("orderNo"), caller.UserID); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type payRequest struct {
	PaymentMethod int `json:"payment_method" validate:"required,oneof=1 2"`
}

func (h *Handler) HandlePay(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req payRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	order, err := h.svc.Pay(r.Context(), r.PathValue("orderNo"), caller.UserID, domain.PaymentMethod(req.PaymentMethod))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type shipRequest struct {
	ExpressCompany string `json:"express_company" validate:"required,max=64"`
	TrackingNo     string `json:"tracking_no" validate:"required,max=64"`
}

func (h *Handler) HandleShip(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}

	var req shipRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	order, err := h.svc.Ship(r.Context(), r.PathValue("orderNo"), req.ExpressCompany, req.TrackingNo)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	order, err := h.svc.ConfirmReceive(r.Context(), r.PathValue("orderNo"), caller.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, h.validate, &req); err != nil {
			httpx.WriteError(w, h.logger, err)
			return
		}
	}

	order, err := h.svc.Cancel(r.Context(), r.PathValue("orderNo"), caller.UserID, req.Reason)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleAdminCancel(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}

	var req cancelRequest
	if r.ContentLength != 0 {
		if err := httpx.Decode(r, h.validate, &req); err != nil {
			httpx.WriteError(w, h.logger, err)
			return
		}
	}

	order, err := h.svc.AdminCancel(r.Context(), r.PathValue("orderNo"), req.Reason)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type applyRefundRequest struct {
	OrderID int64           `json:"order_id" validate:"required,gt=0"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason" validate:"required,max=500"`
}

func (h *Handler) HandleApplyRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req applyRefundRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	refund, err := h.svc.ApplyRefund(r.Context(), caller.UserID, req.OrderID, req.Amount, req.Reason)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusCreated, refund)
}

func (h *Handler) HandleGetRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	refund, err := h.svc.GetRefund(r.Context(), id, viewerOf(caller))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, refund)
}

func (h *Handler) HandleLatestRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	orderID, err := httpx.PathInt64(r, "orderId")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	refund, err := h.svc.LatestRefund(r.Context(), orderID, viewerOf(caller))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, refund)
}

type reviewRequest struct {
	Approve *bool `json:"approve" validate:"required"`
}

func (h *Handler) HandleReviewRefund(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.admin(w, r); !ok {
		return
	}

	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	var req reviewRequest
	if err := httpx.Decode(r, h.validate, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	refund, err := h.svc.ReviewRefund(r.Context(), id, *req.Approve)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, refund)
}

func (h *Handler) HandleCancelRefund(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}

	id, err := httpx.PathInt64(r, "id")
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	refund, err := h.svc.CancelRefund(r.Context(), id, caller.UserID)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, h.logger, http.StatusOK, refund)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (httpx.Caller, bool) {
	caller, err := httpx.CallerFrom(r)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return httpx.Caller{}, false
	}
	return caller, true
}

func (h *Handler) admin(w http.ResponseWriter, r *http.Request) (httpx.Caller, bool) {
	caller, ok := h.caller(w, r)
	if !ok {
		return caller, false
	}
	if !caller.IsAdmin() {
		httpx.WriteError(w, h.logger, domain.ErrForbidden)
		return caller, false
	}
	return caller, true
}

func viewerOf(c httpx.Caller) Viewer {
	return Viewer{UserID: c.UserID, Admin: c.IsAdmin()}
}
