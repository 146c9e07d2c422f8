// Package dbtest opens a throwaway sqlite database with the full schema.
package dbtest

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"lablink/db"
	"lablink/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm/logger"
)

// NewRepo returns a migrated Repo backed by a file in t.TempDir().
func NewRepo(t testing.TB) *db.Repo {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000&_foreign_keys=1"
	conn, err := db.Open(sqlite.Open(dsn), logger.Silent)
	require.NoError(t, err, "open sqlite")

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	// sqlite 单写者，串行化所有连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.Migrate(conn), "migrate")
	return db.NewRepo(conn)
}

// GivenItem stores a counter-tracked borrowable item with qty on the shelf.
func GivenItem(t testing.TB, r *db.Repo, departmentID string, qty int) *models.Item {
	t.Helper()
	it := &models.Item{
		Code:          "ITEM-" + uuid.NewString()[:8],
		Name:          "Oscilloscope",
		DepartmentID:  departmentID,
		TotalQuantity: qty,
		IsBorrowable:  true,
	}
	require.NoError(t, r.CreateItem(context.Background(), it), "error in arranging test data")
	return it
}

// GivenUnitizedItem stores an item with n serialized units.
func GivenUnitizedItem(t testing.TB, r *db.Repo, departmentID string, n int) (*models.Item, []models.ItemUnit) {
	t.Helper()
	it := GivenItem(t, r, departmentID, 0)
	serials := make([]string, n)
	for i := range serials {
		serials[i] = fmt.Sprintf("%s-%03d", it.Code, i+1)
	}
	units, err := r.AddUnits(context.Background(), it.ID, serials)
	require.NoError(t, err, "error in arranging test data")

	it, err = r.FindItemByID(context.Background(), it.ID)
	require.NoError(t, err)
	return it, units
}

// RequireBalanced asserts the bucket sum equals total and, for unitized
// items, that unit counts mirror the buckets.
func RequireBalanced(t testing.TB, r *db.Repo, itemID string) *models.Item {
	t.Helper()
	ctx := context.Background()
	it, err := r.FindItemByID(ctx, itemID)
	require.NoError(t, err)
	require.Equal(t, it.TotalQuantity, it.BucketSum(), "bucket sum for %s", it.Code)
	require.GreaterOrEqual(t, it.CurrentQuantity, 0)
	if it.IsUnitized {
		counts, err := r.UnitCounts(ctx, itemID)
		require.NoError(t, err)
		require.Equal(t, it.CurrentQuantity, counts[models.UnitAvailable], "available units")
		require.Equal(t, it.ReservedQuantity, counts[models.UnitReserved], "reserved units")
		require.Equal(t, it.IssuedQuantity, counts[models.UnitIssued], "issued units")
		require.Equal(t, it.MaintenanceQuantity, counts[models.UnitMaintenance], "maintenance units")
		require.Equal(t, it.DamagedQuantity, counts[models.UnitDamaged], "damaged units")
	}
	return it
}
