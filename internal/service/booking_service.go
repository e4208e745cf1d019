package service

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/tourism-booking/internal/apperr"
	"github.com/iliyamo/tourism-booking/internal/clock"
	"github.com/iliyamo/tourism-booking/internal/metrics"
	"github.com/iliyamo/tourism-booking/internal/model"
)

const (
	defaultMaxRetries    = 3
	defaultRetryBackoff  = 50 * time.Millisecond
	defaultMaxStayNights = 30
	defaultMaxQuantity   = 20
	defaultMaxAvailDays  = 366
	defaultNotifyTimeout = 3 * time.Second
	defaultListLimit     = 20
	maxListLimit         = 100
)

// BookingService is the entry point for booking operations.  It prices and
// validates requests, runs reserve and insert in one transaction, drives the
// state machine and emits events once the change is durable.
type BookingService struct {
	store    Store
	checker  *AvailabilityChecker
	coord    *Coordinator
	machine  *StateMachine
	notifier Notifier
	idem     IdempotencyStore
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *zap.Logger

	maxRetries    int
	retryBackoff  time.Duration
	maxStayNights int
	maxQuantity   int
	maxAvailDays  int
	notifyTimeout time.Duration
}

// Option customises a BookingService.
type Option func(*BookingService)

// WithNotifier sets the collaborator that receives committed booking events.
func WithNotifier(n Notifier) Option {
	return func(s *BookingService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithIdempotency enables Idempotency-Key handling on CreateBooking.
func WithIdempotency(store IdempotencyStore) Option {
	return func(s *BookingService) { s.idem = store }
}

func WithLogger(log *zap.Logger) Option {
	return func(s *BookingService) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *BookingService) { s.metrics = m }
}

// WithRetry bounds how often a transaction that hit a lock conflict is
// retried, and the first backoff between attempts.  The backoff doubles.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *BookingService) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if backoff > 0 {
			s.retryBackoff = backoff
		}
	}
}

// WithLimits caps hotel stay length and quantity per booking.
func WithLimits(maxStayNights, maxQuantity int) Option {
	return func(s *BookingService) {
		if maxStayNights > 0 {
			s.maxStayNights = maxStayNights
		}
		if maxQuantity > 0 {
			s.maxQuantity = maxQuantity
		}
	}
}

// WithAvailabilityWindow caps how many days one availability query may span.
func WithAvailabilityWindow(days int) Option {
	return func(s *BookingService) {
		if days > 0 {
			s.maxAvailDays = days
		}
	}
}

func WithNotifyTimeout(d time.Duration) Option {
	return func(s *BookingService) {
		if d > 0 {
			s.notifyTimeout = d
		}
	}
}

// NewBookingService wires the checker, coordinator and state machine over
// store.
func NewBookingService(store Store, clk clock.Clock, opts ...Option) *BookingService {
	s := &BookingService{
		store:         store,
		notifier:      nopNotifier{},
		clock:         clk,
		log:           zap.NewNop(),
		maxRetries:    defaultMaxRetries,
		retryBackoff:  defaultRetryBackoff,
		maxStayNights: defaultMaxStayNights,
		maxQuantity:   defaultMaxQuantity,
		maxAvailDays:  defaultMaxAvailDays,
		notifyTimeout: defaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.checker = NewAvailabilityChecker(store)
	s.coord = NewCoordinator(store, clk, s.metrics, s.log)
	s.machine = NewStateMachine(store, s.coord, clk, s.metrics)
	return s
}

// Coordinator exposes the reservation coordinator used by the service.
func (s *BookingService) Coordinator() *Coordinator { return s.coord }

// CreateBookingInput is a request for a new booking.  For a trip Range must
// cover exactly the departure date.
type CreateBookingInput struct {
	UserID         int64
	Kind           model.ResourceKind
	ResourceID     string
	Range          model.DateRange
	Quantity       int
	Guest          model.Guest
	IdempotencyKey string
}

// CreateBookingResult is the booking created, or replayed for a repeated
// idempotency key.
type CreateBookingResult struct {
	Booking  model.Booking
	Replayed bool
}

// Price returns the total for qty units of base over r: base × qty for a
// trip, base × nights × qty for a hotel.
func Price(kind model.ResourceKind, base int64, r model.DateRange, qty int) int64 {
	if kind == model.KindHotel {
		return base * int64(r.Nights()) * int64(qty)
	}
	return base * int64(qty)
}

// CreateBooking reserves capacity and records a PENDING booking.  The
// reservation comes first and both writes share one transaction, so a
// booking never exists without its holds and a capacity failure leaves no
// record behind.
func (s *BookingService) CreateBooking(ctx context.Context, in CreateBookingInput) (CreateBookingResult, error) {
	if err := s.validateCreate(in); err != nil {
		return CreateBookingResult{}, err
	}

	if in.IdempotencyKey == "" || s.idem == nil {
		b, err := s.createWithRetry(ctx, in)
		return CreateBookingResult{Booking: b}, err
	}

	key := fmt.Sprintf("booking:%d:%s", in.UserID, in.IdempotencyKey)
	bookingID, claimed, err := s.idem.Claim(ctx, key)
	if err != nil {
		return CreateBookingResult{}, apperr.Wrap(apperr.Internal, err, "claim idempotency key")
	}
	if !claimed {
		if bookingID == 0 {
			return CreateBookingResult{}, apperr.New(apperr.TransactionConflict, "a request with this idempotency key is in progress")
		}
		b, err := s.store.GetBooking(ctx, bookingID)
		if err != nil {
			return CreateBookingResult{}, err
		}
		s.metrics.ObserveIdempotentReplay()
		return CreateBookingResult{Booking: b, Replayed: true}, nil
	}

	b, err := s.createWithRetry(ctx, in)
	if err != nil {
		if aerr := s.idem.Abandon(context.WithoutCancel(ctx), key); aerr != nil {
			s.log.Warn("abandon idempotency key", zap.String("key", key), zap.Error(aerr))
		}
		return CreateBookingResult{}, err
	}
	if cerr := s.idem.Complete(context.WithoutCancel(ctx), key, b.ID); cerr != nil {
		s.log.Warn("complete idempotency key", zap.String("key", key), zap.Error(cerr))
	}
	return CreateBookingResult{Booking: b}, nil
}

func (s *BookingService) createWithRetry(ctx context.Context, in CreateBookingInput) (model.Booking, error) {
	var (
		b   model.Booking
		res model.Resource
	)
	err := s.withRetry(ctx, "create", func() error {
		var err error
		b, res, err = s.createOnce(ctx, in)
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.Info("booking created",
		zap.Int64("booking_id", b.ID),
		zap.Int64("user_id", b.UserID),
		zap.String("resource", string(b.Kind)+"/"+b.ResourceID),
		zap.Stringer("range", b.Range),
		zap.Int("quantity", b.Quantity),
	)
	s.publish(ctx, model.EventBookingCreated, b, res.Name)
	return b, nil
}

func (s *BookingService) createOnce(ctx context.Context, in CreateBookingInput) (model.Booking, model.Resource, error) {
	var (
		b   model.Booking
		res model.Resource
	)
	err := runTx(ctx, s.store, func(txCtx context.Context) error {
		var err error
		res, err = s.bookableResource(txCtx, in.Kind, in.ResourceID)
		if err != nil {
			return err
		}
		h, err := s.coord.Reserve(txCtx, ReserveRequest{
			Kind:       in.Kind,
			ResourceID: in.ResourceID,
			Range:      in.Range,
			Quantity:   in.Quantity,
		})
		if err != nil {
			return err
		}

		now := s.clock.Now()
		b = model.Booking{
			UserID:          in.UserID,
			Kind:            in.Kind,
			ResourceID:      in.ResourceID,
			Range:           in.Range,
			Quantity:        in.Quantity,
			Status:          model.BookingPending,
			BasePriceCents:  res.BasePriceCents,
			TotalPriceCents: Price(in.Kind, res.BasePriceCents, in.Range, in.Quantity),
			HandleID:        h.ID,
			Guest:           in.Guest,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		id, err := s.store.CreateBooking(txCtx, b)
		if err != nil {
			return err
		}
		b.ID = id
		return nil
	})
	return b, res, err
}

// ConfirmBooking moves a PENDING booking to CONFIRMED.
func (s *BookingService) ConfirmBooking(ctx context.Context, id int64) (model.Booking, error) {
	var b model.Booking
	err := s.withRetry(ctx, "confirm", func() error {
		var err error
		b, err = s.machine.Confirm(ctx, id)
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.Info("booking confirmed", zap.Int64("booking_id", id))
	s.publish(ctx, model.EventBookingConfirmed, b, s.resourceName(ctx, b))
	return b, nil
}

// CompleteBooking moves a PENDING or CONFIRMED booking to COMPLETED.
func (s *BookingService) CompleteBooking(ctx context.Context, id int64) (model.Booking, error) {
	var b model.Booking
	err := s.withRetry(ctx, "complete", func() error {
		var err error
		b, err = s.machine.Complete(ctx, id)
		return err
	})
	if err != nil {
		return model.Booking{}, err
	}
	s.log.Info("booking completed", zap.Int64("booking_id", id))
	s.publish(ctx, model.EventBookingCompleted, b, s.resourceName(ctx, b))
	return b, nil
}

// CancelBooking cancels a booking and returns its capacity.  Repeating the
// call for a cancelled booking returns it as is, without a second release.
func (s *BookingService) CancelBooking(ctx context.Context, id int64) (model.Booking, error) {
	var (
		b       model.Booking
		changed bool
	)
	err := s.withRetry(ctx, "cancel", func() error {
		var err error
		b, changed, err = s.machine.Cancel(ctx, id)
		return err
	})
	if err != nil {
		if apperr.Is(err, apperr.ReleaseFailure) {
			s.log.Error("cancellation aborted: capacity could not be released",
				zap.Int64("booking_id", id), zap.Error(err))
		}
		return model.Booking{}, err
	}
	if changed {
		s.log.Info("booking cancelled", zap.Int64("booking_id", id))
		s.publish(ctx, model.EventBookingCancelled, b, s.resourceName(ctx, b))
	}
	return b, nil
}

// GetBooking loads a booking by id.
func (s *BookingService) GetBooking(ctx context.Context, id int64) (model.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

// ListUserBookings pages through a user's bookings, newest first.
func (s *BookingService) ListUserBookings(ctx context.Context, userID int64, limit, offset int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListBookingsByUser(ctx, userID, limit, offset)
}

// CheckAvailability reports free capacity for a bookable resource.  Missing
// or inactive resources are apperr.NotProvisioned; ranges longer than the
// availability window are apperr.Invalid.
func (s *BookingService) CheckAvailability(ctx context.Context, kind model.ResourceKind, id string, r model.DateRange) (model.Availability, error) {
	if n := r.Nights(); n > s.maxAvailDays {
		return model.Availability{}, apperr.New(apperr.Invalid, "availability can span at most %d days, got %d", s.maxAvailDays, n)
	}
	if _, err := s.bookableResource(ctx, kind, id); err != nil {
		return model.Availability{}, err
	}
	return s.checker.Check(ctx, kind, id, r)
}

func (s *BookingService) bookableResource(ctx context.Context, kind model.ResourceKind, id string) (model.Resource, error) {
	res, err := s.store.GetResource(ctx, kind, id)
	if err != nil {
		if apperr.Is(err, apperr.NotFound) {
			return model.Resource{}, apperr.New(apperr.NotProvisioned, "%s %s is not provisioned", kind, id)
		}
		return model.Resource{}, err
	}
	if !res.Bookable() {
		return model.Resource{}, apperr.New(apperr.NotProvisioned, "%s %s is not open for booking", kind, id)
	}
	return res, nil
}

func (s *BookingService) validateCreate(in CreateBookingInput) error {
	if in.UserID <= 0 {
		return apperr.New(apperr.Invalid, "user id is required")
	}
	if strings.TrimSpace(in.ResourceID) == "" {
		return apperr.New(apperr.Invalid, "resource id is required")
	}
	if in.Quantity <= 0 || in.Quantity > s.maxQuantity {
		return apperr.New(apperr.Invalid, "quantity must be between 1 and %d", s.maxQuantity)
	}
	nights := in.Range.Nights()
	switch in.Kind {
	case model.KindTrip:
		if nights != 1 {
			return apperr.New(apperr.Invalid, "a trip booking covers exactly one departure date")
		}
	case model.KindHotel:
		if nights < 1 || nights > s.maxStayNights {
			return apperr.New(apperr.Invalid, "a stay must be between 1 and %d nights", s.maxStayNights)
		}
	default:
		return apperr.New(apperr.Invalid, "unknown resource kind %q", in.Kind)
	}
	if strings.TrimSpace(in.Guest.Name) == "" {
		return apperr.New(apperr.Invalid, "guest name is required")
	}
	if _, err := mail.ParseAddress(in.Guest.Email); err != nil {
		return apperr.New(apperr.Invalid, "guest email is invalid")
	}
	return nil
}

// withRetry runs fn until it succeeds, fails with a non-retryable error or
// maxRetries retries are spent.
func (s *BookingService) withRetry(ctx context.Context, op string, fn func() error) error {
	backoff := s.retryBackoff
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil || !apperr.KindOf(err).Retryable() || attempt >= s.maxRetries {
			return err
		}
		s.metrics.ObserveRetry(op)
		s.log.Warn("transaction conflict, retrying",
			zap.String("op", op), zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))
		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return apperr.Wrap(apperr.TransactionConflict, ctx.Err(), "%s gave up waiting to retry", op)
		case <-t.C:
		}
		backoff *= 2
	}
}

func (s *BookingService) resourceName(ctx context.Context, b model.Booking) string {
	res, err := s.store.GetResource(ctx, b.Kind, b.ResourceID)
	if err != nil {
		return ""
	}
	return res.Name
}

// publish hands a committed change to the notifier.  It never fails the
// caller: errors are logged and counted.
func (s *BookingService) publish(ctx context.Context, t model.EventType, b model.Booking, resourceName string) {
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	ev := model.NewBookingEvent(t, b, resourceName, s.clock.Now())
	if err := s.notifier.Notify(nctx, ev); err != nil {
		s.metrics.ObserveNotificationFailure()
		s.log.Warn("booking notification failed",
			zap.String("event", string(t)), zap.Int64("booking_id", b.ID), zap.Error(err))
	}
}
