package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/model"
)

const (
	defaultBuffer         = 1024
	defaultDialTimeout    = 5 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultDrainTimeout   = 10 * time.Second
)

var (
	// ErrBufferFull is returned by Notify when events arrive faster than the
	// broker takes them.  The event is dropped.
	ErrBufferFull = errors.New("publish buffer full")
	// ErrPublisherClosed is returned by Notify after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher sends booking events to the booking.events queue.  Notify only
// enqueues; one goroutine owns the broker connection, dials it lazily with
// a bounded handshake and redials after a failure.  A broker outage costs
// the events published while it lasts, never request latency.
type Publisher struct {
	url            string
	queue          string
	log            *zap.Logger
	dialTimeout    time.Duration
	publishTimeout time.Duration
	onFailure      func()

	mu     sync.RWMutex
	closed bool
	events chan amqp.Publishing
	done   chan struct{}

	// owned by run
	conn *amqp.Connection
	ch   *amqp.Channel
}

// PublisherOption customises a Publisher.
type PublisherOption func(*Publisher)

// WithBuffer sets how many events may wait for the broker.
func WithBuffer(n int) PublisherOption {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan amqp.Publishing, n)
		}
	}
}

// WithDialTimeout bounds the TCP dial and the AMQP handshake.
func WithDialTimeout(d time.Duration) PublisherOption {
	return func(p *Publisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// WithFailureHook is called once for every event the background sender
// could not deliver.
func WithFailureHook(fn func()) PublisherOption {
	return func(p *Publisher) { p.onFailure = fn }
}

// NewPublisher returns a publisher for url and starts its sender.  No
// connection is made until the first event arrives.
func NewPublisher(url string, log *zap.Logger, opts ...PublisherOption) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Publisher{
		url:            url,
		queue:          BookingEventsQueue,
		log:            log,
		dialTimeout:    defaultDialTimeout,
		publishTimeout: defaultPublishTimeout,
		onFailure:      func() {},
		events:         make(chan amqp.Publishing, defaultBuffer),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.onFailure == nil {
		p.onFailure = func() {}
	}
	go p.run()
	return p
}

// Notify queues ev as a persistent JSON message and returns at once.  It
// fails only when the event cannot be queued.
func (p *Publisher) Notify(ctx context.Context, ev model.BookingEvent) error {
	body, err := EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Type:         string(ev.Type),
		MessageId:    fmt.Sprintf("%s-%d", ev.Type, ev.BookingID),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}
	select {
	case p.events <- pub:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("publish %s for booking %d: %w", ev.Type, ev.BookingID, ErrBufferFull)
	}
}

func (p *Publisher) run() {
	defer close(p.done)
	for pub := range p.events {
		if err := p.publish(pub); err != nil {
			p.onFailure()
			p.log.Warn("booking event dropped",
				zap.String("event", pub.Type), zap.String("message_id", pub.MessageId), zap.Error(err))
		}
	}
	p.reset()
}

func (p *Publisher) publish(pub amqp.Publishing) error {
	ch, err := p.channel()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", pub.Type, err)
	}
	return nil
}

// channel returns an open channel, dialling the broker when needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(p.dialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	p.log.Info("connected to broker", zap.String("queue", p.queue))
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil && !p.conn.IsClosed() {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close stops accepting events and waits up to ten seconds for the queued
// ones to be sent.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.events)
	p.mu.Unlock()

	t := time.NewTimer(defaultDrainTimeout)
	defer t.Stop()
	select {
	case <-p.done:
		return nil
	case <-t.C:
		return fmt.Errorf("publisher: %d events not sent before shutdown", len(p.events))
	}
}
