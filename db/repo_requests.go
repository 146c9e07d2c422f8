// db/repo_requests.go
package db

import (
	"context"
	"errors"
	"time"

	"lablink/apperr"
	"lablink/models"

	"gorm.io/gorm"
)

// Borrow requests

func (r *Repo) CreateBorrowRequest(ctx context.Context, br *models.BorrowRequest) error {
	return translate(r.DB.WithContext(ctx).Create(br).Error, "borrow request")
}

func (r *Repo) FindBorrowRequest(ctx context.Context, id string) (*models.BorrowRequest, error) {
	var br models.BorrowRequest
	if err := r.DB.WithContext(ctx).First(&br, "id = ?", id).Error; err != nil {
		return nil, translate(err, "borrow request")
	}
	return &br, nil
}

// TransitionRequest moves a request from one status to another only if it is
// still in from. ok=false means someone else moved it first.
func (r *Repo) TransitionRequest(ctx context.Context, id, from, to string, fields map[string]any) (bool, error) {
	return casStatus(r.DB.WithContext(ctx).Model(&models.BorrowRequest{}), id, from, to, fields)
}

func casStatus(q *gorm.DB, id, from, to string, fields map[string]any) (bool, error) {
	upd := map[string]any{"status": to, "updated_at": time.Now().UTC()}
	for k, v := range fields {
		upd[k] = v
	}
	res := q.Where("id = ? AND status = ?", id, from).Updates(upd)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

type RequestQuery struct {
	RequesterID   string
	DepartmentIDs []string // nil = no department filter
	Status        string
	Page          int
	Size          int
}

type PagedRequests struct {
	Total int64                  `json:"total"`
	Items []models.BorrowRequest `json:"items"`
}

func (r *Repo) ListBorrowRequests(ctx context.Context, q RequestQuery) (*PagedRequests, error) {
	offset, limit := page(q.Page, q.Size, 100)
	if q.DepartmentIDs != nil && len(q.DepartmentIDs) == 0 {
		return &PagedRequests{}, nil
	}
	base := func() *gorm.DB {
		qry := r.DB.WithContext(ctx).Model(&models.BorrowRequest{})
		if q.RequesterID != "" {
			qry = qry.Where("requester_id = ?", q.RequesterID)
		}
		if q.DepartmentIDs != nil {
			qry = qry.Where("item_department_id IN ?", q.DepartmentIDs)
		}
		if q.Status != "" {
			qry = qry.Where("status = ?", q.Status)
		}
		return qry
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	var items []models.BorrowRequest
	if err := base().Order("created_at DESC").Offset(offset).Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return &PagedRequests{Total: total, Items: items}, nil
}

// Issued items

func (r *Repo) CreateIssuedItems(ctx context.Context, rows []models.IssuedItem) error {
	if len(rows) == 0 {
		return nil
	}
	return translate(r.DB.WithContext(ctx).Create(&rows).Error, "issued item")
}

func (r *Repo) ActiveIssuedForRequest(ctx context.Context, requestID string) ([]models.IssuedItem, error) {
	var rows []models.IssuedItem
	err := r.DB.WithContext(ctx).
		Where("borrow_request_id = ? AND returned_date IS NULL", requestID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// OutstandingForRequest is the quantity still out with the borrower.
func (r *Repo) OutstandingForRequest(ctx context.Context, requestID string) (int, error) {
	var n int
	err := r.DB.WithContext(ctx).Model(&models.IssuedItem{}).
		Select("COALESCE(SUM(quantity - returned_quantity), 0)").
		Where("borrow_request_id = ? AND returned_date IS NULL", requestID).
		Scan(&n).Error
	return n, err
}

// ApplyReturn records qty coming back against a request's issued rows.
// Unit rows close individually; a counter row accumulates returned_quantity
// and closes when nothing is outstanding.
func (r *Repo) ApplyReturn(ctx context.Context, requestID string, unitIDs []string, qty int, at time.Time) error {
	db := r.DB.WithContext(ctx)
	if len(unitIDs) > 0 {
		res := db.Model(&models.IssuedItem{}).
			Where("borrow_request_id = ? AND item_unit_id IN ? AND returned_date IS NULL", requestID, unitIDs).
			Updates(map[string]any{
				"returned_quantity": gorm.Expr("quantity"),
				"returned_date":     at,
				"status":            models.IssuedReturned,
				"updated_at":        at,
			})
		if res.Error != nil {
			return res.Error
		}
		if int(res.RowsAffected) != len(unitIDs) {
			return apperr.Conflictf("issued units changed concurrently")
		}
		return nil
	}

	var row models.IssuedItem
	err := db.Where("borrow_request_id = ? AND returned_date IS NULL AND item_unit_id IS NULL", requestID).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Conflictf("nothing outstanding on this request")
	}
	if err != nil {
		return err
	}
	closes := row.Outstanding() == qty
	upd := map[string]any{
		"returned_quantity": gorm.Expr("returned_quantity + ?", qty),
		"updated_at":        at,
	}
	if closes {
		upd["returned_date"] = at
		upd["status"] = models.IssuedReturned
	}
	res := db.Model(&models.IssuedItem{}).
		Where("id = ? AND returned_quantity = ? AND quantity - returned_quantity >= ?", row.ID, row.ReturnedQuantity, qty).
		Updates(upd)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.Conflictf("issued quantity changed concurrently")
	}
	return nil
}

type IssuedQuery struct {
	OverdueOnly  bool
	HolderID     string
	DepartmentID string
	Now          time.Time
	Page         int
	Size         int
}

type IssuedRow struct {
	models.IssuedItem
	ItemCode string `json:"itemCode"`
	ItemName string `json:"itemName"`
	Overdue  bool   `json:"overdue" gorm:"-"`
}

type PagedIssued struct {
	Total int64       `json:"total"`
	Items []IssuedRow `json:"items"`
}

// ListIssued returns open issued rows; overdue is computed against q.Now.
func (r *Repo) ListIssued(ctx context.Context, q IssuedQuery) (*PagedIssued, error) {
	offset, limit := page(q.Page, q.Size, 200)
	if q.Now.IsZero() {
		q.Now = time.Now().UTC()
	}
	base := func() *gorm.DB {
		qry := r.DB.WithContext(ctx).Table(models.IssuedTable + " ii").
			Joins("JOIN " + models.ItemTable + " i ON i.id = ii.item_id").
			Joins("JOIN " + models.BorrowTable + " br ON br.id = ii.borrow_request_id").
			Where("ii.returned_date IS NULL")
		if q.OverdueOnly {
			qry = qry.Where("ii.due_date < ?", q.Now)
		}
		if q.HolderID != "" {
			qry = qry.Where("ii.issued_to = ?", q.HolderID)
		}
		// 按申请时的部门快照过滤，物品换部门后仍可见
		if q.DepartmentID != "" {
			qry = qry.Where("br.item_department_id = ?", q.DepartmentID)
		}
		return qry
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, err
	}
	var rows []IssuedRow
	err := base().
		Select("ii.*, i.code AS item_code, i.name AS item_name").
		Order("ii.due_date ASC").
		Offset(offset).Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Overdue = rows[i].IsOverdue(q.Now)
	}
	return &PagedIssued{Total: total, Items: rows}, nil
}

// Return requests

// CreateReturnRequest fails with Conflict when another return is already pending.
func (r *Repo) CreateReturnRequest(ctx context.Context, rr *models.ReturnRequest) error {
	err := r.DB.WithContext(ctx).Create(rr).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperr.Conflictf("a return is already pending for this request")
	}
	return translate(err, "return request")
}

func (r *Repo) FindReturnRequest(ctx context.Context, id string) (*models.ReturnRequest, error) {
	var rr models.ReturnRequest
	if err := r.DB.WithContext(ctx).First(&rr, "id = ?", id).Error; err != nil {
		return nil, translate(err, "return request")
	}
	return &rr, nil
}

// PendingReturnFor returns nil, nil when no return is pending.
func (r *Repo) PendingReturnFor(ctx context.Context, requestID string) (*models.ReturnRequest, error) {
	var rows []models.ReturnRequest
	err := r.DB.WithContext(ctx).
		Where("borrow_request_id = ? AND status = ?", requestID, models.ReturnPending).
		Limit(1).
		Find(&rows).Error
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (r *Repo) TransitionReturn(ctx context.Context, id, from, to string, fields map[string]any) (bool, error) {
	return casStatus(r.DB.WithContext(ctx).Model(&models.ReturnRequest{}), id, from, to, fields)
}

func (r *Repo) ListReturnRequests(ctx context.Context, requestID string) ([]models.ReturnRequest, error) {
	var rows []models.ReturnRequest
	err := r.DB.WithContext(ctx).
		Where("borrow_request_id = ?", requestID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
