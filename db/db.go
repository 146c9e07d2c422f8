package db

import (
	"fmt"

	"lablink/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDB opens Postgres and applies migrations.
func ConnectDB(dsn string) (*gorm.DB, error) {
	conn, err := Open(postgres.Open(dsn), logger.Warn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := Migrate(conn); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return conn, nil
}

// Open is shared by ConnectDB and the sqlite-backed tests. Duplicate-key and
// foreign-key errors are translated into gorm sentinels for every dialect.
func Open(dialector gorm.Dialector, level logger.LogLevel) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(level),
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Item{}, &models.ItemUnit{},
		&models.BorrowRequest{}, &models.IssuedItem{}, &models.ReturnRequest{},
		&models.BorrowMessage{}, &models.Notification{},
		&models.ActivityLog{}, &models.ScanLog{},
		&models.OutboxEvent{}, &models.LedgerEntry{},
		&models.StaffAssignment{},
	); err != nil {
		return err
	}

	stmts := []string{
		// 每个借用申请最多一条待审核的归还
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_pending
		  ON %s (borrow_request_id) WHERE status = 'pending'`, models.ReturnTable, models.ReturnTable),
		// 同一件实物最多一条未归还的发放记录
		fmt.Sprintf(`CREATE UNIQUE INDEX IF NOT EXISTS %s_one_open_per_unit
		  ON %s (item_unit_id) WHERE returned_date IS NULL AND item_unit_id IS NOT NULL`, models.IssuedTable, models.IssuedTable),
		// 逾期查询
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_open_due
		  ON %s (due_date) WHERE returned_date IS NULL`, models.IssuedTable, models.IssuedTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_undispatched
		  ON %s (next_attempt_at) WHERE dispatched_at IS NULL`, models.OutboxTable, models.OutboxTable),
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
