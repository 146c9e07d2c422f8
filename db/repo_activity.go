// db/repo_activity.go
package db

import (
	"context"
	"time"

	"lablink/apperr"
	"lablink/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendActivity writes an audit row. Rows carrying a SourceEventID are
// written at most once.
func (r *Repo) AppendActivity(ctx context.Context, a *models.ActivityLog) error {
	q := r.DB.WithContext(ctx)
	if a.SourceEventID != nil {
		q = q.Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_event_id"}}, DoNothing: true})
	}
	return q.Create(a).Error
}

type ActivityQuery struct {
	EntityType string
	EntityID   string
	ActorID    string
	Since      time.Time
	Page       int
	Size       int
}

type PagedActivity struct {
	Total int64                `json:"total"`
	Items []models.ActivityLog `json:"items"`
}

func (r *Repo) ListActivity(ctx context.Context, q ActivityQuery) (*PagedActivity, error) {
	offset, limit := page(q.Page, q.Size, 200)
	base := func() *gorm.DB {
		qry := r.DB.WithContext(ctx).Model(&models.ActivityLog{})
		if q.EntityType != "" {
			qry = qry.Where("entity_type = ?", q.EntityType)
		}
		if q.EntityID != "" {
			qry = qry.Where("entity_id = ?", q.EntityID)
		}
		if q.ActorID != "" {
			qry = qry.Where("actor_id = ?", q.ActorID)
		}
		if !q.Since.IsZero() {
			qry = qry.Where("created_at >= ?", q.Since)
		}
		return qry
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.ActivityLog
	if err := base().Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedActivity{Total: total, Items: items}, nil
}

func (r *Repo) AppendScan(ctx context.Context, s *models.ScanLog) error {
	return r.DB.WithContext(ctx).Create(s).Error
}

func (r *Repo) ScansForItem(ctx context.Context, itemID string, limit int) ([]models.ScanLog, error) {
	_, limit = page(1, limit, 200)
	var out []models.ScanLog
	err := r.DB.WithContext(ctx).Where("item_id = ?", itemID).Order("scanned_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func markRead(q *gorm.DB, what string) error {
	res := q.Update("is_read", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.NotFoundf("%s not found", what)
	}
	return nil
}
