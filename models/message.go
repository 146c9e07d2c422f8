// models/message.go
package models

import "time"

const (
	MessageTable      = "lsb_borrow_messages"
	NotificationTable = "lsb_notifications"
)

const (
	MessageSubmitted       = "submitted"
	MessageApproval        = "approval"
	MessageRejection       = "rejection"
	MessageReturnSubmitted = "return_submitted"
	MessageReturnVerified  = "return_verified"
	MessageReturnRejected  = "return_rejected"
)

// BorrowMessage is immutable once written, except IsRead.
type BorrowMessage struct {
	ID                 string     `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowRequestID    string     `gorm:"type:uuid;index;not null" json:"borrowRequestId"`
	SourceEventID      int64      `gorm:"uniqueIndex;not null" json:"-"`
	SenderID           string     `gorm:"type:uuid" json:"senderId"`
	RecipientID        string     `gorm:"type:uuid;index;not null" json:"recipientId"`
	MessageType        string     `gorm:"size:30;not null" json:"messageType"`
	Subject            string     `gorm:"size:255;not null" json:"subject"`
	Body               string     `gorm:"type:text" json:"body"`
	IsRead             bool       `gorm:"not null;default:false" json:"isRead"`
	CollectionDatetime *time.Time `json:"collectionDatetime,omitempty"`
	PickupLocation     string     `gorm:"size:255" json:"pickupLocation,omitempty"`
	Conditions         string     `gorm:"type:text" json:"conditions,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
}

func (BorrowMessage) TableName() string { return MessageTable }

type Notification struct {
	ID                string    `gorm:"type:uuid;primaryKey" json:"id"`
	SourceEventID     int64     `gorm:"uniqueIndex;not null" json:"-"`
	UserID            string    `gorm:"type:uuid;index;not null" json:"userId"`
	Title             string    `gorm:"size:255;not null" json:"title"`
	Message           string    `gorm:"type:text" json:"message"`
	Type              string    `gorm:"size:30;not null" json:"type"`
	RelatedEntityID   string    `gorm:"type:uuid" json:"relatedEntityId"`
	RelatedEntityType string    `gorm:"size:40" json:"relatedEntityType"`
	IsRead            bool      `gorm:"not null;default:false" json:"isRead"`
	CreatedAt         time.Time `json:"createdAt"`
}

func (Notification) TableName() string { return NotificationTable }
