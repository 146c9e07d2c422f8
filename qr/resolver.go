package qr

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lablink/apperr"
	"lablink/models"

	"github.com/google/uuid"
)

// Store is the read side the resolver needs plus the scan log writer.
type Store interface {
	FindItemByCode(ctx context.Context, code string) (*models.Item, error)
	FindItemByID(ctx context.Context, id string) (*models.Item, error)
	FindUnitBySerial(ctx context.Context, serial string) (*models.ItemUnit, error)
	FindUnitByID(ctx context.Context, id string) (*models.ItemUnit, error)
	AppendScan(ctx context.Context, s *models.ScanLog) error
}

type ScanContext struct {
	ActorID    string
	DeviceInfo string
}

// Resolution is the item a scan points at; Unit is set when the code named a unit.
type Resolution struct {
	Item *models.Item     `json:"item"`
	Unit *models.ItemUnit `json:"unit,omitempty"`
}

type Resolver struct {
	store       Store
	log         *slog.Logger
	scanTimeout time.Duration
	now         func() time.Time
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	return &Resolver{
		store:       store,
		log:         log,
		scanTimeout: 5 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Resolve tries code candidates before id candidates, so a code always wins
// over another record's id. A scan log is written in the background.
func (r *Resolver) Resolve(ctx context.Context, raw string, sc ScanContext) (*Resolution, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, apperr.NotFoundf("empty scan payload")
	}
	p, isJSON := ParsePayload(raw)

	var codes, ids []string
	if isJSON {
		codes = appendNonEmpty(codes, p.Code)
		ids = appendNonEmpty(ids, p.ID)
	}
	codes = appendNonEmpty(codes, raw)
	ids = appendNonEmpty(ids, raw)

	res, err := r.lookup(ctx, codes, ids)
	if err != nil {
		return nil, err
	}
	r.recordScan(ctx, res, raw, sc)
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, codes, ids []string) (*Resolution, error) {
	for _, c := range codes {
		if res, err := r.byCode(ctx, c); res != nil || err != nil {
			return res, err
		}
	}
	for _, id := range ids {
		if _, perr := uuid.Parse(id); perr != nil {
			continue
		}
		if res, err := r.byID(ctx, id); res != nil || err != nil {
			return res, err
		}
	}
	return nil, apperr.NotFoundf("no item matches the scanned code")
}

func (r *Resolver) byCode(ctx context.Context, code string) (*Resolution, error) {
	it, err := r.store.FindItemByCode(ctx, code)
	if hit, err := found(err); err != nil {
		return nil, err
	} else if hit {
		return &Resolution{Item: it}, nil
	}
	u, err := r.store.FindUnitBySerial(ctx, code)
	if hit, err := found(err); err != nil {
		return nil, err
	} else if hit {
		return r.withItem(ctx, u)
	}
	return nil, nil
}

func (r *Resolver) byID(ctx context.Context, id string) (*Resolution, error) {
	it, err := r.store.FindItemByID(ctx, id)
	if hit, err := found(err); err != nil {
		return nil, err
	} else if hit {
		return &Resolution{Item: it}, nil
	}
	u, err := r.store.FindUnitByID(ctx, id)
	if hit, err := found(err); err != nil {
		return nil, err
	} else if hit {
		return r.withItem(ctx, u)
	}
	return nil, nil
}

func (r *Resolver) withItem(ctx context.Context, u *models.ItemUnit) (*Resolution, error) {
	it, err := r.store.FindItemByID(ctx, u.ItemID)
	if err != nil {
		return nil, err
	}
	return &Resolution{Item: it, Unit: u}, nil
}

// found splits a lookup error into hit, miss (false, nil) and failure.
func found(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case apperr.Is(err, apperr.NotFound):
		return false, nil
	}
	return false, err
}

func (r *Resolver) recordScan(ctx context.Context, res *Resolution, raw string, sc ScanContext) {
	entry := &models.ScanLog{
		ID:         uuid.NewString(),
		ActorID:    sc.ActorID,
		ItemID:     res.Item.ID,
		RawPayload: raw,
		DeviceInfo: sc.DeviceInfo,
		ScannedAt:  r.now(),
	}
	if res.Unit != nil {
		entry.ItemUnitID = &res.Unit.ID
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.scanTimeout)
	go func() {
		defer cancel()
		if err := r.store.AppendScan(ctx, entry); err != nil {
			r.log.WarnContext(ctx, "scan log write failed",
				"item_id", entry.ItemID, "actor_id", entry.ActorID, "error", err)
		}
	}()
}

func appendNonEmpty(s []string, v string) []string {
	if v == "" {
		return s
	}
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
