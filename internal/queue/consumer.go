package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/model"
)

// HandlerFunc processes one decoded booking event.
type HandlerFunc func(ctx context.Context, ev model.BookingEvent) error

// Consumer reads booking events from the booking.events queue and hands each
// one to a handler.  Messages that fail are rejected without requeue so a
// poison message cannot spin the loop.
type Consumer struct {
	URL      string
	Queue    string
	Prefetch int
	Log      *zap.Logger
	Handle   HandlerFunc
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff (capped at 30s) whenever the connection drops.
func (c *Consumer) Run(ctx context.Context) error {
	if c.Handle == nil {
		return errors.New("queue consumer: nil handler")
	}
	log := c.Log
	if log == nil {
		log = zap.NewNop()
	}
	queue := c.Queue
	if queue == "" {
		queue = BookingEventsQueue
	}

	backoff := time.Second
	for {
		conn, err := amqp.DialConfig(c.URL, amqp.Config{Dial: amqp.DefaultDial(defaultDialTimeout)})
		if err != nil {
			log.Warn("dial broker failed", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consumeLoop(ctx, conn, queue, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	prefetch := c.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("consuming", zap.String("queue", queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handleDelivery(ctx, d.Body); err != nil {
				log.Error("handle message failed", zap.Error(err), zap.String("message_type", d.Type))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, body []byte) error {
	ev, err := DecodeEvent(body)
	if err != nil {
		return err
	}
	return c.Handle(ctx, ev)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
