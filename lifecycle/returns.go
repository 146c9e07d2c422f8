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

type ReturnInput struct {
	Quantity       int        `json:"quantity" validate:"gt=0"`
	ItemCondition  string     `json:"itemCondition" validate:"required,oneof=good minor_wear damaged missing_parts lost"`
	ReturnImageURL string     `json:"returnImageUrl" validate:"required,max=500"`
	ReturnDatetime *time.Time `json:"returnDatetime"`
	Notes          string     `json:"notes" validate:"max=2000"`
}

// SubmitReturn records the borrower's claim that stock came back. Stock is
// not moved until staff verify it.
func (s *Service) SubmitReturn(ctx context.Context, requestID, actorID string, in ReturnInput) (out *models.ReturnRequest, err error) {
	ctx, span := s.span(ctx, "submit_return",
		attribute.String("request.id", requestID),
		attribute.Int("quantity", in.Quantity))
	defer func() { finish(span, err) }()

	if err := s.validate(in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ReturnImageURL) == "" {
		return nil, apperr.Validationf("returnImageUrl failed required")
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		br, err := tx.FindBorrowRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if br.RequesterID != actorID {
			return apperr.Forbiddenf("only the borrower can return this request")
		}
		if br.Status != models.RequestApproved && br.Status != models.RequestReturnPending {
			return apperr.Transition(br.Status, "cannot submit a return")
		}
		pending, err := tx.PendingReturnFor(ctx, requestID)
		if err != nil {
			return err
		}
		if pending != nil {
			return apperr.Conflictf("a return is already pending for this request")
		}
		outstanding, err := tx.OutstandingForRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if in.Quantity > outstanding {
			return apperr.Validationf("quantity %d exceeds the %d still held", in.Quantity, outstanding)
		}

		now := s.now()
		rr := &models.ReturnRequest{
			ID:              uuid.NewString(),
			BorrowRequestID: requestID,
			SubmittedBy:     actorID,
			Quantity:        in.Quantity,
			ReturnDatetime:  now,
			ItemCondition:   in.ItemCondition,
			ReturnImageURL:  strings.TrimSpace(in.ReturnImageURL),
			Notes:           in.Notes,
			Status:          models.ReturnPending,
		}
		if in.ReturnDatetime != nil {
			rr.ReturnDatetime = in.ReturnDatetime.UTC()
		}
		if err := tx.CreateReturnRequest(ctx, rr); err != nil {
			return err
		}

		prev := br.Status
		if br.Status == models.RequestApproved {
			ok, err := tx.TransitionRequest(ctx, requestID, models.RequestApproved, models.RequestReturnPending, nil)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflictf("request changed while submitting the return")
			}
			br.Status = models.RequestReturnPending
		}
		out = rr

		p := requestPayload(br, prev)
		p.ReturnID = rr.ID
		p.Quantity = rr.Quantity
		p.Condition = rr.ItemCondition
		p.Notes = rr.Notes
		return emit(ctx, tx, models.EventReturnSubmitted, br.ID, actorID, br.RequesterID, p)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "return submitted",
		"request_id", requestID, "return_id", out.ID, "condition", out.ItemCondition, "quantity", out.Quantity)
	return out, nil
}

// VerifyReturn accepts a pending return. Stock moves to the bucket the
// condition dictates; the request closes once nothing is outstanding.
func (s *Service) VerifyReturn(ctx context.Context, returnID, actorID string) (out *models.ReturnRequest, err error) {
	ctx, span := s.span(ctx, "verify_return", attribute.String("return.id", returnID))
	defer func() { finish(span, err) }()

	br, err := s.requestForReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, br.ItemDepartmentID); err != nil {
		return nil, err
	}

	closed := false
	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		rr, err := tx.FindReturnRequest(ctx, returnID)
		if err != nil {
			return err
		}
		if rr.Status != models.ReturnPending {
			return apperr.Transition(rr.Status, "return already resolved")
		}
		cur, err := tx.FindBorrowRequest(ctx, rr.BorrowRequestID)
		if err != nil {
			return err
		}
		if terminal(cur.Status) {
			return apperr.Transition(cur.Status, "request is closed")
		}

		now := s.now()
		ok, err := tx.TransitionReturn(ctx, returnID, models.ReturnPending, models.ReturnApproved, map[string]any{
			"verified_by": actorID,
			"verified_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("return was resolved by someone else")
		}

		bucket := models.BucketForCondition(rr.ItemCondition)
		op := db.LedgerOp{ItemID: cur.ItemID, RequestID: cur.ID, Key: rr.ID, Quantity: rr.Quantity}
		unitIDs, err := tx.CommitReturn(ctx, op, bucket, rr.ItemCondition)
		if err != nil {
			return err
		}
		if err := tx.ApplyReturn(ctx, cur.ID, unitIDs, rr.Quantity, now); err != nil {
			return err
		}

		outstanding, err := tx.OutstandingForRequest(ctx, cur.ID)
		if err != nil {
			return err
		}
		prev := cur.Status
		if outstanding == 0 {
			ok, err := tx.TransitionRequest(ctx, cur.ID, models.RequestReturnPending, models.RequestReturned, map[string]any{
				"returned_date": now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflictf("request changed while verifying the return")
			}
			cur.Status, cur.ReturnedDate = models.RequestReturned, &now
			closed = true
		}

		rr.Status, rr.VerifiedBy, rr.VerifiedAt = models.ReturnApproved, &actorID, &now
		out = rr

		p := requestPayload(cur, prev)
		p.ReturnID = rr.ID
		p.Quantity = rr.Quantity
		p.Condition = rr.ItemCondition
		p.Bucket = bucket
		p.UnitIDs = unitIDs
		if err := emit(ctx, tx, models.EventReturnVerified, cur.ID, actorID, cur.RequesterID, p); err != nil {
			return err
		}
		if bucket != models.UnitAvailable {
			p.Notes = rr.Notes
			return emit(ctx, tx, models.EventDamageReported, cur.ItemID, actorID, "", p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Bool("request.closed", closed))
	s.log.InfoContext(ctx, "return verified",
		"return_id", returnID, "request_id", out.BorrowRequestID, "condition", out.ItemCondition, "closed", closed)
	return out, nil
}

// RejectReturn turns down a return submission. The request stays
// return_pending and the borrower may submit again.
func (s *Service) RejectReturn(ctx context.Context, returnID, actorID, reason string) (out *models.ReturnRequest, err error) {
	ctx, span := s.span(ctx, "reject_return", attribute.String("return.id", returnID))
	defer func() { finish(span, err) }()

	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperr.Validationf("rejection reason is required")
	}
	br, err := s.requestForReturn(ctx, returnID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actorID, br.ItemDepartmentID); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(tx *db.Repo) error {
		rr, err := tx.FindReturnRequest(ctx, returnID)
		if err != nil {
			return err
		}
		if rr.Status != models.ReturnPending {
			return apperr.Transition(rr.Status, "return already resolved")
		}
		now := s.now()
		ok, err := tx.TransitionReturn(ctx, returnID, models.ReturnPending, models.ReturnRejected, map[string]any{
			"verified_by":      actorID,
			"verified_at":      now,
			"rejection_reason": reason,
		})
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflictf("return was resolved by someone else")
		}
		rr.Status, rr.VerifiedBy, rr.VerifiedAt, rr.RejectionReason = models.ReturnRejected, &actorID, &now, reason
		out = rr

		p := requestPayload(br, br.Status)
		p.ReturnID = rr.ID
		p.Quantity = rr.Quantity
		p.Reason = reason
		return emit(ctx, tx, models.EventReturnRejected, br.ID, actorID, br.RequesterID, p)
	})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "return rejected", "return_id", returnID, "actor_id", actorID, "reason", reason)
	return out, nil
}

func (s *Service) requestForReturn(ctx context.Context, returnID string) (*models.BorrowRequest, error) {
	rr, err := s.repo.FindReturnRequest(ctx, returnID)
	if err != nil {
		return nil, err
	}
	return s.repo.FindBorrowRequest(ctx, rr.BorrowRequestID)
}
