// db/repo_ledger.go
package db

import (
	"context"
	"time"

	"lablink/apperr"
	"lablink/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LedgerOp identifies one stock movement.
type LedgerOp struct {
	ItemID    string
	RequestID string // borrow request that holds the stock
	Key       string // journal key, defaults to RequestID; returns use the return request id
	Quantity  int
}

func (op LedgerOp) key() string {
	if op.Key != "" {
		return op.Key
	}
	return op.RequestID
}

var bucketColumn = map[string]string{
	models.UnitAvailable:   "current_quantity",
	models.UnitReserved:    "reserved_quantity",
	models.UnitIssued:      "issued_quantity",
	models.UnitMaintenance: "maintenance_quantity",
	models.UnitDamaged:     "damaged_quantity",
}

type movement struct {
	kind        string
	from, to    string // unit status doubles as bucket name
	byRequest   bool   // only move units tagged with this request
	unitChanges map[string]any
}

// Reserve moves quantity from available to reserved.
func (r *Repo) Reserve(ctx context.Context, op LedgerOp) error {
	_, err := r.move(ctx, op, movement{
		kind: models.LedgerReserve,
		from: models.UnitAvailable,
		to:   models.UnitReserved,
		unitChanges: map[string]any{
			"current_request_id": op.RequestID,
		},
	})
	return err
}

// Release puts a reservation back on the shelf.
func (r *Repo) Release(ctx context.Context, op LedgerOp) error {
	_, err := r.move(ctx, op, movement{
		kind:      models.LedgerRelease,
		from:      models.UnitReserved,
		to:        models.UnitAvailable,
		byRequest: true,
		unitChanges: map[string]any{
			"current_request_id": nil,
		},
	})
	return err
}

// CommitIssue hands reserved stock to holderID. For unitized items it returns
// the issued unit ids; a replay returns the units the request still holds.
func (r *Repo) CommitIssue(ctx context.Context, op LedgerOp, holderID string, due time.Time) ([]string, error) {
	return r.move(ctx, op, movement{
		kind:      models.LedgerIssue,
		from:      models.UnitReserved,
		to:        models.UnitIssued,
		byRequest: true,
		unitChanges: map[string]any{
			"current_holder_id": holderID,
			"due_date":          due,
		},
	})
}

// CommitReturn moves issued stock into bucket (available, maintenance or damaged).
// A replay returns no unit ids.
func (r *Repo) CommitReturn(ctx context.Context, op LedgerOp, bucket, condition string) ([]string, error) {
	switch bucket {
	case models.UnitAvailable, models.UnitMaintenance, models.UnitDamaged:
	default:
		return nil, apperr.Validationf("unknown return bucket %q", bucket)
	}
	return r.move(ctx, op, movement{
		kind:      models.LedgerReturn,
		from:      models.UnitIssued,
		to:        bucket,
		byRequest: true,
		unitChanges: map[string]any{
			"condition":          condition,
			"current_holder_id":  nil,
			"current_request_id": nil,
			"due_date":           nil,
		},
	})
}

func (r *Repo) move(ctx context.Context, op LedgerOp, m movement) ([]string, error) {
	if op.ItemID == "" || op.RequestID == "" {
		return nil, apperr.Validationf("ledger op needs item and request")
	}
	if op.Quantity <= 0 {
		return nil, apperr.Validationf("quantity must be positive")
	}
	var unitIDs []string
	err := r.Transaction(ctx, func(tx *Repo) error {
		var prior []models.LedgerEntry
		if err := tx.DB.Where("request_id = ? AND op = ?", op.key(), m.kind).Limit(1).Find(&prior).Error; err != nil {
			return err
		}
		if len(prior) == 1 {
			if prior[0].ItemID != op.ItemID || prior[0].Quantity != op.Quantity {
				return apperr.Conflictf("%s already recorded with different stock", m.kind)
			}
			if m.kind == models.LedgerIssue {
				return tx.DB.Model(&models.ItemUnit{}).
					Where("current_request_id = ? AND status = ?", op.RequestID, models.UnitIssued).
					Order("serial").
					Pluck("id", &unitIDs).Error
			}
			return nil
		}

		it, err := tx.FindItemByID(ctx, op.ItemID)
		if err != nil {
			return err
		}
		if err := tx.checkHeld(op, m.kind); err != nil {
			return err
		}

		from, to := bucketColumn[m.from], bucketColumn[m.to]
		// 条件更新：余量不足时不改任何行
		res := tx.DB.Model(&models.Item{}).
			Where("id = ? AND "+from+" >= ?", op.ItemID, op.Quantity).
			Updates(map[string]any{
				from: gorm.Expr(from+" - ?", op.Quantity),
				to:   gorm.Expr(to+" + ?", op.Quantity),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.Conflictf("not enough %s stock for %s", m.from, it.Code)
		}

		if it.IsUnitized {
			ids, err := tx.moveUnits(op, m)
			if err != nil {
				return err
			}
			unitIDs = ids
		}

		if err := tx.DB.Create(&models.LedgerEntry{
			ID:              uuid.NewString(),
			RequestID:       op.key(),
			Op:              m.kind,
			BorrowRequestID: op.RequestID,
			ItemID:          op.ItemID,
			Quantity:        op.Quantity,
			Bucket:          m.to,
		}).Error; err != nil {
			return translate(err, "ledger entry")
		}
		return tx.RefreshItemStatus(ctx, op.ItemID)
	})
	if err != nil {
		return nil, err
	}
	return unitIDs, nil
}

func (r *Repo) moveUnits(op LedgerOp, m movement) ([]string, error) {
	var ids []string
	q := r.DB.Model(&models.ItemUnit{}).Where("item_id = ? AND status = ?", op.ItemID, m.from)
	if m.byRequest {
		q = q.Where("current_request_id = ?", op.RequestID)
	}
	if err := q.Order("serial").Limit(op.Quantity).Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) < op.Quantity {
		return nil, apperr.Conflictf("unit records out of step with stock counters")
	}

	changes := map[string]any{"status": m.to}
	for k, v := range m.unitChanges {
		changes[k] = v
	}
	res := r.DB.Model(&models.ItemUnit{}).
		Where("id IN ? AND status = ?", ids, m.from).
		Updates(changes)
	if res.Error != nil {
		return nil, res.Error
	}
	if int(res.RowsAffected) != len(ids) {
		return nil, apperr.Conflictf("units changed concurrently")
	}
	return ids, nil
}

// checkHeld bounds a movement by what the request actually holds, so one
// request can never release or return stock reserved by another.
func (r *Repo) checkHeld(op LedgerOp, kind string) error {
	if kind == models.LedgerReserve {
		return nil
	}
	var entries []models.LedgerEntry
	if err := r.DB.Where("borrow_request_id = ?", op.RequestID).Find(&entries).Error; err != nil {
		return err
	}
	held := map[string]int{}
	for _, e := range entries {
		if e.ItemID != op.ItemID {
			return apperr.Conflictf("request holds stock of another item")
		}
		held[e.Op] += e.Quantity
	}
	switch kind {
	case models.LedgerRelease, models.LedgerIssue:
		if held[models.LedgerReserve] != op.Quantity || held[models.LedgerRelease] > 0 || held[models.LedgerIssue] > 0 {
			return apperr.Conflictf("request holds no matching reservation")
		}
	case models.LedgerReturn:
		if held[models.LedgerReturn]+op.Quantity > held[models.LedgerIssue] {
			return apperr.Conflictf("return exceeds quantity issued to request")
		}
	}
	return nil
}
