// Package audit writes the append-only activity log.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lablink/apperr"
	"lablink/db"
	"lablink/models"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

type Store interface {
	AppendActivity(ctx context.Context, a *models.ActivityLog) error
	ListActivity(ctx context.Context, q db.ActivityQuery) (*db.PagedActivity, error)
}

// Entry is one audited mutation. Old and New are encoded as JSON; strings are stored as-is.
type Entry struct {
	ActorID       string
	Action        string
	EntityType    string
	EntityID      string
	Old           any
	New           any
	SourceEventID *int64
	At            time.Time
}

type Recorder struct {
	store Store
	log   *slog.Logger
}

func NewRecorder(store Store, log *slog.Logger) *Recorder {
	return &Recorder{store: store, log: log}
}

func (r *Recorder) Record(ctx context.Context, e Entry) error {
	if e.Action == "" || e.EntityType == "" || e.EntityID == "" {
		return apperr.Validationf("audit entry needs action and entity")
	}
	oldV, err := encode(e.Old)
	if err != nil {
		return err
	}
	newV, err := encode(e.New)
	if err != nil {
		return err
	}
	row := &models.ActivityLog{
		ID:            uuid.NewString(),
		SourceEventID: e.SourceEventID,
		ActorID:       e.ActorID,
		Action:        e.Action,
		EntityType:    e.EntityType,
		EntityID:      e.EntityID,
		OldValues:     oldV,
		NewValues:     newV,
		CreatedAt:     e.At,
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.store.AppendActivity(ctx, row); err != nil {
		return apperr.Unavailable("audit log", err)
	}
	return nil
}

// RecordBestEffort is for callers whose primary write already committed.
func (r *Recorder) RecordBestEffort(ctx context.Context, e Entry) {
	if err := r.Record(ctx, e); err != nil {
		r.log.WarnContext(ctx, "audit write failed",
			"action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID, "error", err)
	}
}

type Filter = db.ActivityQuery

func (r *Recorder) List(ctx context.Context, f Filter) (*db.PagedActivity, error) {
	return r.store.ListActivity(ctx, f)
}

func encode(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	}
	b, err := jsoniter.ConfigFastest.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode audit values: %w", err)
	}
	return string(b), nil
}
