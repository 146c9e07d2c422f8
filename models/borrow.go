// models/borrow.go
package models

import "time"

const (
	BorrowTable = "lsb_borrow_requests"
	IssuedTable = "lsb_issued_items"
	ReturnTable = "lsb_return_requests"
)

const (
	RequestPending       = "pending"
	RequestApproved      = "approved"
	RequestRejected      = "rejected"
	RequestReturnPending = "return_pending"
	RequestReturned      = "returned"
)

const (
	IssuedActive   = "active"
	IssuedReturned = "returned"
)

const (
	ReturnPending  = "pending"
	ReturnApproved = "approved"
	ReturnRejected = "rejected"
)

const (
	ConditionGood         = "good"
	ConditionMinorWear    = "minor_wear"
	ConditionDamaged      = "damaged"
	ConditionMissingParts = "missing_parts"
	ConditionLost         = "lost"
)

type BorrowRequest struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	ItemID      string `gorm:"type:uuid;index;not null" json:"itemId"`
	RequesterID string `gorm:"type:uuid;index;not null" json:"requesterId"`
	// snapshot at creation, not re-synced when the item moves
	ItemDepartmentID string `gorm:"type:uuid;index;not null" json:"itemDepartmentId"`

	Quantity           int       `gorm:"not null" json:"quantity"`
	RequestedStartDate time.Time `gorm:"not null" json:"requestedStartDate"`
	RequestedEndDate   time.Time `gorm:"not null" json:"requestedEndDate"`
	Purpose            string    `gorm:"size:500" json:"purpose,omitempty"`

	Status          string     `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	ApprovedBy      *string    `gorm:"type:uuid" json:"approvedBy,omitempty"`
	ApprovedDate    *time.Time `json:"approvedDate,omitempty"`
	RejectedBy      *string    `gorm:"type:uuid" json:"rejectedBy,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejectionReason,omitempty"`

	PickupLocation     string     `gorm:"size:255" json:"pickupLocation,omitempty"`
	CollectionDatetime *time.Time `json:"collectionDatetime,omitempty"`
	Conditions         string     `gorm:"type:text" json:"conditions,omitempty"`
	ReturnedDate       *time.Time `json:"returnedDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (BorrowRequest) TableName() string { return BorrowTable }

func (r BorrowRequest) IsTerminal() bool {
	return r.Status == RequestRejected || r.Status == RequestReturned
}

type IssuedItem struct {
	ID               string     `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowRequestID  string     `gorm:"type:uuid;index;not null" json:"borrowRequestId"`
	ItemID           string     `gorm:"type:uuid;index;not null" json:"itemId"`
	ItemUnitID       *string    `gorm:"type:uuid;index" json:"itemUnitId,omitempty"`
	Quantity         int        `gorm:"not null" json:"quantity"`
	ReturnedQuantity int        `gorm:"not null;default:0" json:"returnedQuantity"`
	IssuedTo         string     `gorm:"type:uuid;index;not null" json:"issuedTo"`
	IssuedBy         string     `gorm:"type:uuid;not null" json:"issuedBy"`
	IssuedDate       time.Time  `gorm:"not null" json:"issuedDate"`
	DueDate          time.Time  `gorm:"index;not null" json:"dueDate"`
	ReturnedDate     *time.Time `gorm:"index" json:"returnedDate,omitempty"`
	Status           string     `gorm:"size:20;index;not null;default:'active'" json:"status"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

func (IssuedItem) TableName() string { return IssuedTable }

func (i IssuedItem) Outstanding() int { return i.Quantity - i.ReturnedQuantity }

// IsOverdue is derived at read time; it is never stored.
func (i IssuedItem) IsOverdue(now time.Time) bool {
	return i.Status == IssuedActive && i.ReturnedDate == nil && i.DueDate.Before(now)
}

type ReturnRequest struct {
	ID              string     `gorm:"type:uuid;primaryKey" json:"id"`
	BorrowRequestID string     `gorm:"type:uuid;index;not null" json:"borrowRequestId"`
	SubmittedBy     string     `gorm:"type:uuid;not null" json:"submittedBy"`
	Quantity        int        `gorm:"not null" json:"quantity"`
	ReturnDatetime  time.Time  `gorm:"not null" json:"returnDatetime"`
	ItemCondition   string     `gorm:"size:20;not null" json:"itemCondition"`
	ReturnImageURL  string     `gorm:"size:500;not null" json:"returnImageUrl"`
	Notes           string     `gorm:"type:text" json:"notes,omitempty"`
	Status          string     `gorm:"size:20;index;not null;default:'pending'" json:"status"`
	VerifiedBy      *string    `gorm:"type:uuid" json:"verifiedBy,omitempty"`
	VerifiedAt      *time.Time `json:"verifiedAt,omitempty"`
	RejectionReason string     `gorm:"type:text" json:"rejectionReason,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (ReturnRequest) TableName() string { return ReturnTable }

// BucketForCondition maps a verified return condition to the stock bucket it lands in.
func BucketForCondition(cond string) string {
	switch cond {
	case ConditionGood, ConditionMinorWear:
		return UnitAvailable
	case ConditionMissingParts:
		return UnitMaintenance
	default:
		return UnitDamaged
	}
}

func ValidCondition(cond string) bool {
	switch cond {
	case ConditionGood, ConditionMinorWear, ConditionDamaged, ConditionMissingParts, ConditionLost:
		return true
	}
	return false
}
