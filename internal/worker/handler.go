package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/shopflow/internal/domain"
	"github.com/joao-fontenele/shopflow/internal/messaging"
)

// NotificationHandler turns shipment notifications into buyer emails.
type NotificationHandler struct {
	emailServiceURL string
	httpClient      *http.Client
	logger          *slog.Logger
}

func NewNotificationHandler(emailServiceURL string, client *http.Client, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{
		emailServiceURL: emailServiceURL,
		httpClient:      client,
		logger:          logger,
	}
}

type emailMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (h *NotificationHandler) Handle(ctx context.Context, payload []byte) error {
	var n domain.ShipmentNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return messaging.Permanent(fmt.Errorf("unmarshal shipment notification: %w", err))
	}

	if n.Email == "" {
		h.logger.Warn("shipment notification without recipient", "order_no", n.OrderNo)
		return nil
	}

	h.logger.Info("processing shipment notification", "order_no", n.OrderNo, "event_id", n.EventID)

	if err := h.sendEmail(ctx, shipmentEmail(n)); err != nil {
		h.logger.Error("failed to send shipment email", "error", err, "order_no", n.OrderNo)
		return fmt.Errorf("send shipment email: %w", err)
	}

	h.logger.Info("shipment email sent", "order_no", n.OrderNo)
	return nil
}

func shipmentEmail(n domain.ShipmentNotification) emailMessage {
	return emailMessage{
		To:      n.Email,
		Subject: "Your order " + n.OrderNo + " has shipped",
		Body: fmt.Sprintf("Your order %s was handed to %s. Tracking number: %s.",
			n.OrderNo, n.ExpressCompany, n.TrackingNo),
	}
}

func (h *NotificationHandler) sendEmail(ctx context.Context, msg emailMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.emailServiceURL+"/send", bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return messaging.Permanent(fmt.Errorf("email service rejected message with status %d", resp.StatusCode))
	default:
		return fmt.Errorf("email service returned status %d", resp.StatusCode)
	}
}
