// app/bootstrap.go
package app

import (
	"context"
	"log/slog"

	"lablink/db"
)

// BootstrapStaff upserts the STAFF_ASSIGNMENTS seed so a fresh database has
// someone who can approve requests.
func BootstrapStaff(ctx context.Context, cfg Config, repo *db.Repo, log *slog.Logger) error {
	for _, a := range cfg.StaffSeed {
		if err := repo.AssignStaff(ctx, a); err != nil {
			return err
		}
		log.InfoContext(ctx, "staff assignment seeded",
			"user_id", a.UserID, "department_id", a.DepartmentID, "role", a.Role)
	}
	return nil
}
