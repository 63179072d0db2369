package messaging

import (
	"context"

	"github.com/joao-fontenele/shopflow/internal/domain"
)

type publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// ShipmentNotifier hands shipment notifications to the notification worker
// through the shipment topic.
type ShipmentNotifier struct {
	producer publisher
}

func NewShipmentNotifier(producer publisher) *ShipmentNotifier {
	return &ShipmentNotifier{producer: producer}
}

func (n *ShipmentNotifier) NotifyShipment(ctx context.Context, msg domain.ShipmentNotification) error {
	return n.producer.Publish(ctx, msg.OrderNo, msg)
}
