// db/repo_outbox.go
package db

import (
	"context"
	"time"

	"lablink/models"

	"gorm.io/gorm"
)

// AppendOutbox must be called on the transaction that performs the transition.
func (r *Repo) AppendOutbox(ctx context.Context, ev *models.OutboxEvent) error {
	if ev.NextAttemptAt.IsZero() {
		ev.NextAttemptAt = time.Now().UTC()
	}
	return r.DB.WithContext(ctx).Create(ev).Error
}

// DueOutbox returns undispatched events whose next attempt is due, oldest first.
func (r *Repo) DueOutbox(ctx context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var evs []models.OutboxEvent
	err := r.DB.WithContext(ctx).
		Where("dispatched_at IS NULL AND next_attempt_at <= ?", now).
		Order("id ASC").
		Limit(limit).
		Find(&evs).Error
	return evs, err
}

func (r *Repo) MarkDispatched(ctx context.Context, id int64, at time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ? AND dispatched_at IS NULL", id).
		Updates(map[string]any{"dispatched_at": at, "last_error": ""}).Error
}

func (r *Repo) MarkFailed(ctx context.Context, id int64, cause error, next time.Time) error {
	return r.DB.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts":        gorm.Expr("attempts + 1"),
			"last_error":      cause.Error(),
			"next_attempt_at": next,
		}).Error
}

func (r *Repo) OutboxForAggregate(ctx context.Context, aggregateID string) ([]models.OutboxEvent, error) {
	var evs []models.OutboxEvent
	err := r.DB.WithContext(ctx).Where("aggregate_id = ?", aggregateID).Order("id ASC").Find(&evs).Error
	return evs, err
}
