// db/repo_staff.go
package db

import (
	"context"

	"lablink/models"

	"gorm.io/gorm/clause"
)

func (r *Repo) StaffAssignments(ctx context.Context, userID string) ([]models.StaffAssignment, error) {
	var out []models.StaffAssignment
	err := r.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&out).Error
	return out, err
}

// AssignStaff upserts the role for (user, department).
func (r *Repo) AssignStaff(ctx context.Context, a models.StaffAssignment) error {
	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "department_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(&a).Error
}
