package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/joao-fontenele/shopflow"

// ShopMetrics records order lifecycle counters. Instruments come from the
// global MeterProvider, so they are no-ops until InitMeterProvider runs.
type ShopMetrics struct {
	ordersCreated metric.Int64Counter
	transitions   metric.Int64Counter
	sweeps        metric.Int64Counter
	refunds       metric.Int64Counter
}

func NewShopMetrics() *ShopMetrics {
	meter := otel.Meter(meterName)

	ordersCreated, _ := meter.Int64Counter("shop.orders.created",
		metric.WithDescription("Orders created by checkout"),
	)
	transitions, _ := meter.Int64Counter("shop.order.transitions",
		metric.WithDescription("Order status transitions attempted, by operation and result"),
	)
	sweeps, _ := meter.Int64Counter("shop.sweeper.orders",
		metric.WithDescription("Orders processed by the background sweepers"),
	)
	refunds, _ := meter.Int64Counter("shop.refunds",
		metric.WithDescription("Refund operations, by operation and result"),
	)

	return &ShopMetrics{
		ordersCreated: ordersCreated,
		transitions:   transitions,
		sweeps:        sweeps,
		refunds:       refunds,
	}
}

func (m *ShopMetrics) OrderCreated(ctx context.Context) {
	m.ordersCreated.Add(ctx, 1)
}

func (m *ShopMetrics) Transition(ctx context.Context, op string, err error) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result(err)),
	))
}

func (m *ShopMetrics) Swept(ctx context.Context, job string, err error) {
	m.sweeps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("result", result(err)),
	))
}

func (m *ShopMetrics) Refund(ctx context.Context, op string, err error) {
	m.refunds.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("result", result(err)),
	))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
