package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/comanda-pos/comanda/internal/interfaces"
)

const (
	orderStatusExchange    = "orders.status"
	paymentSettledExchange = "payments.settled"
)

type publisher struct {
	conn Connection
}

func NewPublisher(conn Connection) interfaces.EventPublisher {
	return &publisher{conn: conn}
}

// PublishOrderStatus fans out every status transition; printers and
// notification dispatch subscribe downstream.
func (p *publisher) PublishOrderStatus(ctx context.Context, event interfaces.OrderStatusEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(orderStatusExchange, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.Publish(orderStatusExchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish order status event: %w", err)
	}
	return nil
}

// PublishPaymentSettled routes by method so cash-desk consumers can
// bind selectively, e.g. "payments.settled.pix".
func (p *publisher) PublishPaymentSettled(ctx context.Context, event interfaces.PaymentSettledEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(paymentSettledExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	routingKey := fmt.Sprintf("payments.settled.%s", event.Method)
	err = ch.Publish(paymentSettledExchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish payment event: %w", err)
	}
	return nil
}
