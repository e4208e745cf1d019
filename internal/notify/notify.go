// Package notify turns booking events taken off the queue into guest
// notifications.  Delivery channels are out of scope; every event is
// appended to an outbox file and confirmed bookings also get a PDF voucher.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/model"
	"github.com/iliyamo/tourism-booking/internal/voucher"
)

// VoucherRenderer renders a voucher for an event and returns where it went.
type VoucherRenderer interface {
	Render(ev model.BookingEvent) (string, error)
}

// Handler writes one outbox line per event.
type Handler struct {
	mu      sync.Mutex
	path    string
	voucher VoucherRenderer
	log     *zap.Logger
}

// NewHandler returns a Handler appending to path.  v may be nil to skip
// vouchers.
func NewHandler(path string, v VoucherRenderer, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{path: path, voucher: v, log: log}
}

// outboxLine is the JSON written per event.
type outboxLine struct {
	Event     string `json:"event"`
	BookingID int64  `json:"booking_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	Voucher   string `json:"voucher,omitempty"`
	SentAt    string `json:"sent_at"`
}

// Handle is a queue.HandlerFunc.
func (h *Handler) Handle(ctx context.Context, ev model.BookingEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line := outboxLine{
		Event:     string(ev.Type),
		BookingID: ev.BookingID,
		To:        ev.Guest.Email,
		Subject:   Subject(ev),
		Body:      Body(ev),
		SentAt:    time.Now().UTC().Format(time.RFC3339),
	}
	if ev.Type == model.EventBookingConfirmed && h.voucher != nil {
		path, err := h.voucher.Render(ev)
		if err != nil {
			return fmt.Errorf("render voucher: %w", err)
		}
		line.Voucher = path
	}
	if err := h.append(line); err != nil {
		return err
	}
	h.log.Info("notification written",
		zap.String("event", string(ev.Type)),
		zap.Int64("booking_id", ev.BookingID),
		zap.String("to", ev.Guest.Email),
	)
	return nil
}

func (h *Handler) append(line outboxLine) error {
	b, err := json.Marshal(line)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if dir := filepath.Dir(h.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create outbox dir: %w", err)
		}
	}
	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(b, '\n')); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

// Subject is the notification subject for ev.
func Subject(ev model.BookingEvent) string {
	switch ev.Type {
	case model.EventBookingCreated:
		return fmt.Sprintf("Booking #%d received", ev.BookingID)
	case model.EventBookingConfirmed:
		return fmt.Sprintf("Booking #%d confirmed", ev.BookingID)
	case model.EventBookingCompleted:
		return fmt.Sprintf("Thanks for travelling with us (booking #%d)", ev.BookingID)
	case model.EventBookingCancelled:
		return fmt.Sprintf("Booking #%d cancelled", ev.BookingID)
	}
	return fmt.Sprintf("Booking #%d updated", ev.BookingID)
}

// Body is the plain text notification body for ev.
func Body(ev model.BookingEvent) string {
	name := ev.ResourceName
	if name == "" {
		name = ev.ResourceID
	}
	return fmt.Sprintf("Hello %s, your booking for %s from %s to %s (%d x) is now %s. Total %s.",
		ev.Guest.Name, name, model.FormatDate(ev.Range.Start), model.FormatDate(ev.Range.End),
		ev.Quantity, ev.Status, voucher.FormatCents(ev.TotalPriceCents))
}
