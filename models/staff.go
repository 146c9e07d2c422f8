package models

// StaffAssignment grants a user a role in a department. An empty DepartmentID
// with role admin is a global admin.
type StaffAssignment struct {
	UserID       string `gorm:"type:uuid;primaryKey" json:"userId"`
	DepartmentID string `gorm:"size:36;primaryKey" json:"departmentId"`
	Role         string `gorm:"size:20;not null" json:"role"`
}

func (StaffAssignment) TableName() string { return "lsb_staff_assignments" }
