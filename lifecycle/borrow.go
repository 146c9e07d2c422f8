package lifecycle

import (
	"context"
	"strings"
	"time"

	"lablink/apperr"
	"lablink/db"
	"lablink/models"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type CreateInput struct {
	// RequestID is optional; a retry with the same id returns the stored request.
	RequestID          string    `json:"id" validate:"omitempty,uuid"`
	ItemID             string    `json:"itemId" validate:"required,uuid"`
	RequesterID        string    `json:"requesterId" validate:"required"`
	Quantity           int       `json:"quantity" validate:"gt=0"`
	RequestedStartDate time.Time `json:"requestedStartDate" validate:"required"`
	RequestedEndDate   time.Time `json:"requestedEndDate" validate:"required,gtfield=RequestedStartDate"`
	Purpose            string    `json:"purpose" validate:"max=500"`
}

type ApproveInput struct {
	PickupLocation     string     `json:"pickupLocation" validate:"max=255"`
	CollectionDatetime *time.Time `json:"collectionDatetime"`
	Conditions         string     `json:"conditions"`
}

// Create reserves stock and opens a pending request.
func (s *Service) Create(ctx context.Context, in CreateInput) (out *models.BorrowRequest, err error) {
	ctx, span := s.span(ctx, "create",
		attribute.String("item.id", in.ItemID),
		attribute.Int("quantity", in.Quantity))
	defer func() { finish(span, err) }()

	if err := s.validate(in); err != nil {
		return nil, err
	}

	if in.RequestID != "" {
		prior, err := s.repo.FindBorrowRequest(ctx, in.RequestID)
		switch {
		case err == nil:
			if prior.RequesterID != in.RequesterID || prior.ItemID != in.ItemID || prior.Quantity != in.Quantity {
				return nil, apperr.Conflictf("request id already used for a different request")
			}
			span.SetAttributes(attribute.Bool("replay", true))
			return prior, nil
		case !apperr.Is(err, apperr.NotFound):
			return nil, err
		}
	}

	it, err := s.repo.FindItemByID(ctx, in.ItemID)
	if err != nil {
		return nil, err
	}
	if !it.IsBorrowable {
		return nil, apperr.Validationf("item %s is not borrowable", it.Code)
	}
	if in.Quantity > it.CurrentQuantity {
		return nil, apperr.Validationf("only %d of %s available", it.CurrentQuantity, it.Code)
	}

	br := &models.BorrowRequest{
		ID:                 in.RequestID,
		ItemID:             it.ID,
		RequesterID:        in.RequesterID,
		ItemDepartmentID:   it.DepartmentID,
		Quantity:           in.Quantity,
		RequestedStartDate: in.RequestedStartDate.UTC(),
		RequestedEndDate:   in.RequestedEndDate.UTC(),
		Purpose:            strings.TrimSpace(in.Purpose),
		Status:             models.RequestPending,
	}
	if br.ID == "" {
		br.ID = uuid.NewString()
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		if err := tx.CreateBorrowRequest(ctx, br); err != nil {
			return err
		}
		if err := tx.Reserve(ctx, db.LedgerOp{ItemID: it.ID, RequestID: br.ID, Quantity: br.Quantity}); err != nil {
			return err
		}
		return emit(ctx, tx, models.EventRequestSubmitted, br.ID, br.RequesterID, br.RequesterID, requestPayload(br, ""))
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "borrow request created",
		slogRequest(br), "quantity", br.Quantity, "item_id", br.ItemID)
	return br, nil
}

// Approve issues the reserved stock. Replaying an approval by the same actor
// returns the stored request; another approver gets Conflict.
func (s *Service) Approve(ctx context.Context, requestID, actorID string, in ApproveInput) (out *models.BorrowRequest, err error) {
	ctx, span := s.span(ctx, "approve", attribute.String("request.id", requestID))
	defer func() { finish(span, err) }()

	if err := s.validate(in); err != nil {
		return nil, err
	}
	br, err := s.repo.FindBorrowRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, br.ItemDepartmentID); err != nil {
		return nil, err
	}

	replay := false
	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		cur, err := tx.FindBorrowRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if done, err := approvedAlready(cur, actorID); done || err != nil {
			out, replay = cur, done
			return err
		}

		now := s.now()
		fields := map[string]any{
			"approved_by":         actorID,
			"approved_date":       now,
			"pickup_location":     strings.TrimSpace(in.PickupLocation),
			"collection_datetime": in.CollectionDatetime,
			"conditions":          in.Conditions,
		}
		ok, err := tx.TransitionRequest(ctx, requestID, models.RequestPending, models.RequestApproved, fields)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("request was decided by someone else")
		}

		op := db.LedgerOp{ItemID: cur.ItemID, RequestID: cur.ID, Quantity: cur.Quantity}
		unitIDs, err := tx.CommitIssue(ctx, op, cur.RequesterID, cur.RequestedEndDate)
		if err != nil {
			return err
		}
		if err := tx.CreateIssuedItems(ctx, issuedRows(cur, actorID, unitIDs, now)); err != nil {
			return err
		}

		prev := cur.Status
		cur.Status = models.RequestApproved
		cur.ApprovedBy, cur.ApprovedDate = &actorID, &now
		cur.PickupLocation = fields["pickup_location"].(string)
		cur.CollectionDatetime = in.CollectionDatetime
		cur.Conditions = in.Conditions
		out = cur

		p := requestPayload(cur, prev)
		p.PickupLocation = cur.PickupLocation
		p.CollectionDatetime = cur.CollectionDatetime
		p.Conditions = cur.Conditions
		p.DueDate = &cur.RequestedEndDate
		p.UnitIDs = unitIDs
		return emit(ctx, tx, models.EventRequestApproved, cur.ID, actorID, cur.RequesterID, p)
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("replay", replay))
	if !replay {
		s.log.InfoContext(ctx, "borrow request approved", slogRequest(out), "actor_id", actorID)
	}
	return out, nil
}

// approvedAlready decides whether an approve call can proceed against cur.
func approvedAlready(cur *models.BorrowRequest, actorID string) (bool, error) {
	switch {
	case cur.Status == models.RequestPending:
		return false, nil
	case cur.Status == models.RequestApproved && cur.ApprovedBy != nil && *cur.ApprovedBy == actorID:
		return true, nil
	case cur.Status == models.RequestApproved:
		return false, apperr.Conflictf("request was approved by someone else")
	}
	return false, apperr.Transition(cur.Status, "cannot approve")
}

func issuedRows(br *models.BorrowRequest, issuer string, unitIDs []string, now time.Time) []models.IssuedItem {
	base := models.IssuedItem{
		BorrowRequestID: br.ID,
		ItemID:          br.ItemID,
		IssuedTo:        br.RequesterID,
		IssuedBy:        issuer,
		IssuedDate:      now,
		DueDate:         br.RequestedEndDate,
		Status:          models.IssuedActive,
	}
	if len(unitIDs) == 0 {
		base.ID = uuid.NewString()
		base.Quantity = br.Quantity
		return []models.IssuedItem{base}
	}
	rows := make([]models.IssuedItem, 0, len(unitIDs))
	for _, id := range unitIDs {
		row := base
		row.ID = uuid.NewString()
		row.ItemUnitID = &id
		row.Quantity = 1
		rows = append(rows, row)
	}
	return rows
}

// Reject declines a pending request and puts the reservation back.
func (s *Service) Reject(ctx context.Context, requestID, actorID, reason string) (*models.BorrowRequest, error) {
	br, err := s.repo.FindBorrowRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, br.ItemDepartmentID); err != nil {
		return nil, err
	}
	return s.decline(ctx, requestID, actorID, reason, models.EventRequestRejected)
}

// Withdraw lets the requester cancel a pending request. It is a rejection with
// reason "withdrawn".
func (s *Service) Withdraw(ctx context.Context, requestID, actorID string) (*models.BorrowRequest, error) {
	br, err := s.repo.FindBorrowRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if br.RequesterID != actorID {
		return nil, apperr.Forbiddenf("only the requester can withdraw")
	}
	return s.decline(ctx, requestID, actorID, "withdrawn", models.EventRequestWithdrawn)
}

func (s *Service) decline(ctx context.Context, requestID, actorID, reason, event string) (out *models.BorrowRequest, err error) {
	ctx, span := s.span(ctx, "reject",
		attribute.String("request.id", requestID),
		attribute.String("event.type", event))
	defer func() { finish(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validationf("rejection reason is required")
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		cur, err := tx.FindBorrowRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !CanTransition(cur.Status, models.RequestRejected) {
			return apperr.Transition(cur.Status, "cannot reject")
		}
		ok, err := tx.TransitionRequest(ctx, requestID, models.RequestPending, models.RequestRejected, map[string]any{
			"rejected_by":      actorID,
			"rejection_reason": reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("request was decided by someone else")
		}
		if err := tx.Release(ctx, db.LedgerOp{ItemID: cur.ItemID, RequestID: cur.ID, Quantity: cur.Quantity}); err != nil {
			return err
		}

		cur.Status = models.RequestRejected
		cur.RejectedBy, cur.RejectionReason = &actorID, reason
		out = cur

		p := requestPayload(cur, models.RequestPending)
		p.Reason = reason
		return emit(ctx, tx, event, cur.ID, actorID, cur.RequesterID, p)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "borrow request rejected", slogRequest(out), "actor_id", actorID, "reason", reason)
	return out, nil
}
