// Package notify drains the outbox into messages, notifications, the audit
// log, the realtime bus and the maintenance sink. A failing side effect marks
// the event for retry; the committed transition is never touched.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"lablink/apperr"
	"lablink/audit"
	"lablink/maintenance"
	"lablink/models"
	"lablink/realtime"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

type Store interface {
	DueOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64, at time.Time) error
	MarkFailed(ctx context.Context, id int64, cause error, next time.Time) error
	FindItemByID(ctx context.Context, id string) (*models.Item, error)
}

// NotificationSink stores inbox rows; a repeated source event must be a no-op.
type NotificationSink interface {
	InsertMessage(ctx context.Context, m *models.BorrowMessage) error
	InsertNotification(ctx context.Context, n *models.Notification) error
}

type Auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type Dispatcher struct {
	store   Store
	sink    NotificationSink
	audit   Auditor
	pub     realtime.Publisher
	maint   maintenance.Sink
	log     *slog.Logger
	tracer  trace.Tracer
	limiter *rate.Limiter
	now     func() time.Time

	backoffBase time.Duration
	backoffMax  time.Duration
}

type Option func(*Dispatcher)

// WithRate caps deliveries per second.
func WithRate(perSecond float64) Option {
	return func(d *Dispatcher) {
		if perSecond > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

func WithClock(now func() time.Time) Option { return func(d *Dispatcher) { d.now = now } }

func WithBackoff(base, max time.Duration) Option {
	return func(d *Dispatcher) { d.backoffBase, d.backoffMax = base, max }
}

func NewDispatcher(store Store, sink NotificationSink, auditor Auditor, pub realtime.Publisher, maint maintenance.Sink, log *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:       store,
		sink:        sink,
		audit:       auditor,
		pub:         pub,
		maint:       maint,
		log:         log,
		tracer:      otel.Tracer("lablink/notify"),
		now:         func() time.Time { return time.Now().UTC() },
		backoffBase: 5 * time.Second,
		backoffMax:  30 * time.Minute,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Drain delivers up to batch due events and reports how many succeeded.
func (d *Dispatcher) Drain(ctx context.Context, batch int) (delivered int, err error) {
	ctx, span := d.tracer.Start(ctx, "notify.drain", trace.WithAttributes(attribute.Int("batch.size", batch)))
	defer span.End()

	evs, err := d.store.DueOutbox(ctx, d.now(), batch)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("load outbox: %w", err)
	}
	failed := 0
	for _, ev := range evs {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return delivered, err
			}
		}
		if derr := d.deliver(ctx, ev); derr != nil {
			failed++
			next := d.now().Add(d.backoff(ev.Attempts + 1))
			d.log.WarnContext(ctx, "outbox delivery failed",
				"event_id", ev.ID, "event_type", ev.EventType, "attempts", ev.Attempts+1,
				"next_attempt_at", next, "error", derr)
			if err := d.store.MarkFailed(ctx, ev.ID, derr, next); err != nil {
				return delivered, fmt.Errorf("mark event %d failed: %w", ev.ID, err)
			}
			continue
		}
		if err := d.store.MarkDispatched(ctx, ev.ID, d.now()); err != nil {
			return delivered, fmt.Errorf("mark event %d dispatched: %w", ev.ID, err)
		}
		delivered++
	}
	span.SetAttributes(
		attribute.Int("events.delivered", delivered),
		attribute.Int("events.failed", failed))
	return delivered, nil
}

// Run drains on every tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, interval time.Duration, batch int) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if _, err := d.Drain(ctx, batch); err != nil && !errors.Is(err, context.Canceled) {
			d.log.ErrorContext(ctx, "outbox drain failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (d *Dispatcher) backoff(attempt int) time.Duration {
	b := d.backoffBase
	for i := 1; i < attempt && b < d.backoffMax; i++ {
		b *= 2
	}
	if b > d.backoffMax {
		b = d.backoffMax
	}
	return b
}

func (d *Dispatcher) deliver(ctx context.Context, ev models.OutboxEvent) error {
	var p models.EventPayload
	if err := jsoniter.ConfigFastest.UnmarshalFromString(ev.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if mt, ok := messageTypes[ev.EventType]; ok && ev.RecipientID != "" {
		if err := d.writeInbox(ctx, ev, mt, p); err != nil {
			return err
		}
	}

	entityType, entityID := entityOf(ev, p)
	if err := d.audit.Record(ctx, audit.Entry{
		ActorID:       ev.ActorID,
		Action:        ev.EventType,
		EntityType:    entityType,
		EntityID:      entityID,
		Old:           map[string]string{"status": p.OldStatus},
		New:           p,
		SourceEventID: &ev.ID,
		At:            ev.CreatedAt,
	}); err != nil {
		return apperr.Unavailable("audit log", err)
	}

	if ev.EventType == models.EventDamageReported {
		if err := d.maint.Report(ctx, maintenance.Signal{
			EventID:    ev.ID,
			ItemID:     p.ItemID,
			RequestID:  p.RequestID,
			ReturnID:   p.ReturnID,
			UnitIDs:    p.UnitIDs,
			Quantity:   p.Quantity,
			Condition:  p.Condition,
			Bucket:     p.Bucket,
			ReportedBy: ev.ActorID,
			Notes:      p.Notes,
			At:         ev.CreatedAt,
		}); err != nil {
			return err
		}
	}

	if err := d.pub.Publish(ctx, realtime.Event{
		ID:          ev.ID,
		Type:        ev.EventType,
		AggregateID: ev.AggregateID,
		RequestID:   p.RequestID,
		ItemID:      p.ItemID,
		Department:  p.DepartmentID,
		Status:      p.Status,
		At:          ev.CreatedAt,
	}); err != nil {
		return apperr.Unavailable("realtime bus", err)
	}
	return nil
}

func (d *Dispatcher) writeInbox(ctx context.Context, ev models.OutboxEvent, messageType string, p models.EventPayload) error {
	name := "item"
	if it, err := d.store.FindItemByID(ctx, p.ItemID); err == nil {
		name = it.Name
	}
	subject, body := compose(ev.EventType, name, p)

	msg := &models.BorrowMessage{
		ID:                 uuid.NewString(),
		BorrowRequestID:    p.RequestID,
		SourceEventID:      ev.ID,
		SenderID:           ev.ActorID,
		RecipientID:        ev.RecipientID,
		MessageType:        messageType,
		Subject:            subject,
		Body:               body,
		CollectionDatetime: p.CollectionDatetime,
		PickupLocation:     p.PickupLocation,
		Conditions:         p.Conditions,
		CreatedAt:          ev.CreatedAt,
	}
	if err := d.sink.InsertMessage(ctx, msg); err != nil {
		return apperr.Unavailable("message store", err)
	}
	n := &models.Notification{
		ID:                uuid.NewString(),
		SourceEventID:     ev.ID,
		UserID:            ev.RecipientID,
		Title:             subject,
		Message:           body,
		Type:              messageType,
		RelatedEntityID:   p.RequestID,
		RelatedEntityType: "borrow_request",
		CreatedAt:         ev.CreatedAt,
	}
	if err := d.sink.InsertNotification(ctx, n); err != nil {
		return apperr.Unavailable("notification sink", err)
	}
	return nil
}
