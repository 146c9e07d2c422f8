// db/repo_messages.go
package db

import (
	"context"

	"lablink/models"

	"gorm.io/gorm/clause"
)

// InsertMessage is a no-op when the source event was already delivered.
func (r *Repo) InsertMessage(ctx context.Context, m *models.BorrowMessage) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_event_id"}}, DoNothing: true}).
		Create(m).Error
}

func (r *Repo) InsertNotification(ctx context.Context, n *models.Notification) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "source_event_id"}}, DoNothing: true}).
		Create(n).Error
}

func (r *Repo) MessagesFor(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.BorrowMessage, error) {
	_, limit = page(1, limit, 200)
	q := r.DB.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.BorrowMessage
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repo) MessagesForRequest(ctx context.Context, requestID string) ([]models.BorrowMessage, error) {
	var out []models.BorrowMessage
	err := r.DB.WithContext(ctx).Where("borrow_request_id = ?", requestID).Order("created_at ASC").Find(&out).Error
	return out, err
}

// MarkMessageRead only touches rows addressed to recipientID.
func (r *Repo) MarkMessageRead(ctx context.Context, id, recipientID string) error {
	return markRead(r.DB.WithContext(ctx).Model(&models.BorrowMessage{}).
		Where("id = ? AND recipient_id = ?", id, recipientID), "message")
}

func (r *Repo) NotificationsFor(ctx context.Context, userID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	_, limit = page(1, limit, 200)
	q := r.DB.WithContext(ctx).Where("user_id = ?", userID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

func (r *Repo) MarkNotificationRead(ctx context.Context, id, userID string) error {
	return markRead(r.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID), "notification")
}
