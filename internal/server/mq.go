package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const changeExchange = "trolley.changes"

// changeBridge replicates change events between server instances over a
// RabbitMQ topic exchange, so a client connected to one instance hears
// about writes that landed on another.
type changeBridge struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	origin string
	cancel context.CancelFunc
}

func newChangeBridge(url string, h *hub) (*changeBridge, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(changeExchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	// Auto-named exclusive queue: every instance gets its own copy of
	// each event, and the queue dies with the connection.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "change.#", changeExchange, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, false, false, false, nil)
	if err != nil {
		cancel()
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	b := &changeBridge{conn: conn, ch: ch, origin: uuid.NewString(), cancel: cancel}
	go b.relay(deliveries, h)
	return b, nil
}

// relay feeds foreign events into the local hub. Events this instance
// published come back around the exchange; Origin filters them out.
func (b *changeBridge) relay(deliveries <-chan amqp.Delivery, h *hub) {
	for d := range deliveries {
		var ev changeEvent
		if err := json.Unmarshal(d.Body, &ev); err != nil {
			log.Println("change bridge: bad payload:", err)
			continue
		}
		if ev.Origin == b.origin {
			continue
		}
		h.deliver(ev)
	}
}

func (b *changeBridge) publish(ctx context.Context, ev changeEvent) error {
	ev.Origin = b.origin
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.ch.PublishWithContext(ctx, changeExchange, "change."+ev.Table, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}

func (b *changeBridge) Close() error {
	b.cancel()
	if b.ch != nil {
		_ = b.ch.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}
