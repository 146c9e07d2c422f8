package models

import "time"

// ActivityLog 审计日志，只追加不修改。
// SourceEventID is set when the row came from the outbox so redelivery stays idempotent.
type ActivityLog struct {
	ID            string    `gorm:"type:uuid;primaryKey" json:"id"`
	SourceEventID *int64    `gorm:"uniqueIndex" json:"-"`
	ActorID       string    `gorm:"size:36;index" json:"actorId"`
	Action        string    `gorm:"size:60;index;not null" json:"action"`
	EntityType    string    `gorm:"size:40;index;not null" json:"entityType"`
	EntityID      string    `gorm:"type:uuid;index;not null" json:"entityId"`
	OldValues     string    `gorm:"type:text" json:"oldValues,omitempty"`
	NewValues     string    `gorm:"type:text" json:"newValues,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}

func (ActivityLog) TableName() string { return "lsb_activity_logs" }

// ScanLog records every successful QR resolution.
type ScanLog struct {
	ID         string    `gorm:"type:uuid;primaryKey" json:"id"`
	ActorID    string    `gorm:"size:36;index" json:"actorId"`
	ItemID     string    `gorm:"type:uuid;index;not null" json:"itemId"`
	ItemUnitID *string   `gorm:"type:uuid" json:"itemUnitId,omitempty"`
	RawPayload string    `gorm:"type:text" json:"rawPayload"`
	DeviceInfo string    `gorm:"size:255" json:"deviceInfo,omitempty"`
	ScannedAt  time.Time `gorm:"index;not null" json:"scannedAt"`
}

func (ScanLog) TableName() string { return "lsb_scan_logs" }
