// models/item.go
package models

import "time"

const (
	ItemTable = "lsb_items"
	UnitTable = "lsb_item_units"
)

// Unit statuses. reserved = held for a pending/approved request before handoff.
const (
	UnitAvailable   = "available"
	UnitReserved    = "reserved"
	UnitIssued      = "issued"
	UnitMaintenance = "maintenance"
	UnitDamaged     = "damaged"
	UnitArchived    = "archived"
)

// Item display states, derived from the buckets.
const (
	ItemStatusAvailable  = "available"
	ItemStatusLowStock   = "low_stock"
	ItemStatusOutOfStock = "out_of_stock"
)

type Item struct {
	ID           string  `gorm:"type:uuid;primaryKey" json:"id"`
	Code         string  `gorm:"size:120;uniqueIndex;not null" json:"code"` // 唯一编号，可扫码
	Name         string  `gorm:"size:200;not null" json:"name"`
	CategoryID   *string `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	DepartmentID string  `gorm:"type:uuid;index;not null" json:"departmentId"`

	// current + reserved + issued + maintenance + damaged == total
	TotalQuantity       int `gorm:"not null;default:0" json:"totalQuantity"`
	CurrentQuantity     int `gorm:"not null;default:0;check:current_quantity >= 0" json:"currentQuantity"`
	ReservedQuantity    int `gorm:"not null;default:0;check:reserved_quantity >= 0" json:"reservedQuantity"`
	IssuedQuantity      int `gorm:"not null;default:0;check:issued_quantity >= 0" json:"issuedQuantity"`
	MaintenanceQuantity int `gorm:"not null;default:0" json:"maintenanceQuantity"`
	DamagedQuantity     int `gorm:"not null;default:0" json:"damagedQuantity"`
	ReorderThreshold    int `gorm:"not null;default:0" json:"reorderThreshold"`

	Status       string    `gorm:"size:20;not null;default:'available'" json:"status"`
	IsBorrowable bool      `gorm:"not null" json:"isBorrowable"`
	IsUnitized   bool      `gorm:"not null;default:false" json:"isUnitized"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (Item) TableName() string { return ItemTable }

// BucketSum is what the total must always equal.
func (it Item) BucketSum() int {
	return it.CurrentQuantity + it.ReservedQuantity + it.IssuedQuantity + it.MaintenanceQuantity + it.DamagedQuantity
}

func (it Item) DisplayStatus() string {
	switch {
	case it.CurrentQuantity <= 0:
		return ItemStatusOutOfStock
	case it.CurrentQuantity <= it.ReorderThreshold:
		return ItemStatusLowStock
	default:
		return ItemStatusAvailable
	}
}

type ItemUnit struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID           string     `gorm:"type:uuid;index;not null" json:"itemId"`
	Serial           string     `gorm:"size:120;uniqueIndex;not null" json:"serial"`
	Status           string     `gorm:"size:20;index;not null;default:'available'" json:"status"`
	Condition        string     `gorm:"size:30" json:"condition,omitempty"`
	CurrentHolderID  *string    `gorm:"type:uuid" json:"currentHolderId,omitempty"`
	CurrentRequestID *string    `gorm:"type:uuid;index" json:"currentRequestId,omitempty"`
	DueDate          *time.Time `json:"dueDate,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (ItemUnit) TableName() string { return UnitTable }
