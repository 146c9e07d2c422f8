// db/repo_items.go
package db

import (
	"context"
	"strings"
	"time"

	"lablink/apperr"
	"lablink/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Items

// CreateItem stores a new catalog entry. Initial stock lands in the available bucket.
func (r *Repo) CreateItem(ctx context.Context, it *models.Item) error {
	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.TotalQuantity < 0 || it.ReorderThreshold < 0 {
		return apperr.Validationf("quantities must not be negative")
	}
	it.CurrentQuantity = it.TotalQuantity
	it.ReservedQuantity, it.IssuedQuantity, it.MaintenanceQuantity, it.DamagedQuantity = 0, 0, 0, 0
	it.Status = it.DisplayStatus()
	return translate(r.DB.WithContext(ctx).Create(it).Error, "item code")
}

func (r *Repo) FindItemByID(ctx context.Context, id string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "id = ?", id).Error; err != nil {
		return nil, translate(err, "item")
	}
	return &it, nil
}

func (r *Repo) FindItemByCode(ctx context.Context, code string) (*models.Item, error) {
	var it models.Item
	if err := r.DB.WithContext(ctx).First(&it, "code = ?", code).Error; err != nil {
		return nil, translate(err, "item")
	}
	return &it, nil
}

func (r *Repo) FindUnitByID(ctx context.Context, id string) (*models.ItemUnit, error) {
	var u models.ItemUnit
	if err := r.DB.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, translate(err, "unit")
	}
	return &u, nil
}

func (r *Repo) FindUnitBySerial(ctx context.Context, serial string) (*models.ItemUnit, error) {
	var u models.ItemUnit
	if err := r.DB.WithContext(ctx).First(&u, "serial = ?", serial).Error; err != nil {
		return nil, translate(err, "unit")
	}
	return &u, nil
}

// AddUnits registers serialized units for an item. Counter-only items that
// already hold stock cannot be unitized, the unit counts would not match.
func (r *Repo) AddUnits(ctx context.Context, itemID string, serials []string) ([]models.ItemUnit, error) {
	if len(serials) == 0 {
		return nil, apperr.Validationf("at least one serial is required")
	}
	var units []models.ItemUnit
	err := r.Transaction(ctx, func(tx *Repo) error {
		it, err := tx.FindItemByID(ctx, itemID)
		if err != nil {
			return err
		}
		if !it.IsUnitized && it.TotalQuantity > 0 {
			return apperr.Validationf("item %s already tracks stock as a counter", it.Code)
		}
		for _, s := range serials {
			s = strings.TrimSpace(s)
			if s == "" {
				return apperr.Validationf("serial must not be empty")
			}
			units = append(units, models.ItemUnit{
				ID:     uuid.NewString(),
				ItemID: itemID,
				Serial: s,
				Status: models.UnitAvailable,
			})
		}
		if err := tx.DB.Create(&units).Error; err != nil {
			return translate(err, "unit serial")
		}
		n := len(units)
		return tx.DB.Model(&models.Item{}).
			Where("id = ?", itemID).
			Updates(map[string]any{
				"is_unitized":      true,
				"total_quantity":   gorm.Expr("total_quantity + ?", n),
				"current_quantity": gorm.Expr("current_quantity + ?", n),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return units, r.RefreshItemStatus(ctx, itemID)
}

// ArchiveUnit retires an available unit and removes it from the totals.
func (r *Repo) ArchiveUnit(ctx context.Context, unitID string) error {
	return r.Transaction(ctx, func(tx *Repo) error {
		u, err := tx.FindUnitByID(ctx, unitID)
		if err != nil {
			return err
		}
		res := tx.DB.Model(&models.ItemUnit{}).
			Where("id = ? AND status = ?", unitID, models.UnitAvailable).
			Update("status", models.UnitArchived)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Transition(u.Status, "only available units can be archived")
		}
		res = tx.DB.Model(&models.Item{}).
			Where("id = ? AND current_quantity >= 1", u.ItemID).
			Updates(map[string]any{
				"total_quantity":   gorm.Expr("total_quantity - 1"),
				"current_quantity": gorm.Expr("current_quantity - 1"),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflictf("item stock changed while archiving unit")
		}
		return tx.RefreshItemStatus(ctx, u.ItemID)
	})
}

// RefreshItemStatus recomputes the stored display status from the buckets.
func (r *Repo) RefreshItemStatus(ctx context.Context, itemID string) error {
	it, err := r.FindItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if s := it.DisplayStatus(); s != it.Status {
		return r.DB.WithContext(ctx).Model(&models.Item{}).Where("id = ?", itemID).Update("status", s).Error
	}
	return nil
}

// UnitCounts returns the number of non-archived units per status.
func (r *Repo) UnitCounts(ctx context.Context, itemID string) (map[string]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := r.DB.WithContext(ctx).Model(&models.ItemUnit{}).
		Select("status, COUNT(*) AS n").
		Where("item_id = ? AND status <> ?", itemID, models.UnitArchived).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.N
	}
	return out, nil
}

type AdminItemRow struct {
	ID                  string    `json:"id"`
	Code                string    `json:"code"`
	Name                string    `json:"name"`
	DepartmentID        string    `json:"departmentId"`
	TotalQuantity       int       `json:"totalQuantity"`
	CurrentQuantity     int       `json:"currentQuantity"`
	ReservedQuantity    int       `json:"reservedQuantity"`
	IssuedQuantity      int       `json:"issuedQuantity"`
	MaintenanceQuantity int       `json:"maintenanceQuantity"`
	DamagedQuantity     int       `json:"damagedQuantity"`
	ReorderThreshold    int       `json:"reorderThreshold"`
	Status              string    `json:"status"`
	IsBorrowable        bool      `json:"isBorrowable"`
	IsUnitized          bool      `json:"isUnitized"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`

	OpenIssued int `json:"openIssued"`
	Overdue    int `json:"overdue"` // 查询时计算，不落库
}

type AdminItemsQuery struct {
	Q            string // 模糊搜索：code/name
	Status       string // "", "available", "low_stock", "out_of_stock", "overdue", "inactive"
	DepartmentID string
	Now          time.Time
	Page         int
	Size         int
}

type PagedAdminItems struct {
	Total int64          `json:"total"`
	Items []AdminItemRow `json:"items"`
}

// ListItemsWithStock returns the stock view with open/overdue issue counts.
func (r *Repo) ListItemsWithStock(ctx context.Context, q AdminItemsQuery) (*PagedAdminItems, error) {
	offset, limit := page(q.Page, q.Size, 200)
	if q.Now.IsZero() {
		q.Now = time.Now().UTC()
	}
	db := r.DB.WithContext(ctx)

	// 子查询：每件物品未归还的发放数 / 逾期数
	sub := db.
		Table(models.IssuedTable).
		Select(`item_id,
			SUM(quantity - returned_quantity) AS open_count,
			SUM(CASE WHEN due_date < ? THEN quantity - returned_quantity ELSE 0 END) AS overdue_count`, q.Now).
		Where("returned_date IS NULL").
		Group("item_id")

	base := func() *gorm.DB {
		qry := db.Table(models.ItemTable + " i").
			Joins("LEFT JOIN (?) AS oi ON oi.item_id = i.id", sub)
		if s := strings.TrimSpace(q.Q); s != "" {
			pat := "%" + strings.ToLower(s) + "%"
			qry = qry.Where("LOWER(i.code) LIKE ? OR LOWER(i.name) LIKE ?", pat, pat)
		}
		if q.DepartmentID != "" {
			qry = qry.Where("i.department_id = ?", q.DepartmentID)
		}
		switch q.Status {
		case models.ItemStatusAvailable:
			qry = qry.Where("i.current_quantity > i.reorder_threshold")
		case models.ItemStatusLowStock:
			qry = qry.Where("i.current_quantity > 0 AND i.current_quantity <= i.reorder_threshold")
		case models.ItemStatusOutOfStock:
			qry = qry.Where("i.current_quantity = 0")
		case "overdue":
			qry = qry.Where("COALESCE(oi.overdue_count, 0) > 0")
		case "inactive":
			qry = qry.Where("i.is_borrowable = ?", false)
		}
		return qry
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}

	var rows []AdminItemRow
	err := base().
		Select(`i.id, i.code, i.name, i.department_id,
			i.total_quantity, i.current_quantity, i.reserved_quantity, i.issued_quantity,
			i.maintenance_quantity, i.damaged_quantity, i.reorder_threshold,
			i.status, i.is_borrowable, i.is_unitized, i.created_at, i.updated_at,
			COALESCE(oi.open_count, 0) AS open_issued,
			COALESCE(oi.overdue_count, 0) AS overdue`).
		Order("i.created_at DESC").
		Offset(offset).
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return &PagedAdminItems{Total: total, Items: rows}, nil
}
