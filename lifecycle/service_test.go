package lifecycle_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"lablink/apperr"
	"lablink/db"
	"lablink/db/dbtest"
	"lablink/lifecycle"
	"lablink/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAuthorizer struct {
	canApprove func(ctx context.Context, actorID, departmentID string) (bool, error)
}

func (f fakeAuthorizer) CanApprove(ctx context.Context, actorID, departmentID string) (bool, error) {
	return f.canApprove(ctx, actorID, departmentID)
}

type fixture struct {
	svc      *lifecycle.Service
	repo     *db.Repo
	dept     string
	staff    string
	staff2   string
	borrower string
	start    time.Time
	end      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     dbtest.NewRepo(t),
		dept:     uuid.NewString(),
		staff:    uuid.NewString(),
		staff2:   uuid.NewString(),
		borrower: uuid.NewString(),
		start:    time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		end:      time.Date(2026, 3, 9, 17, 0, 0, 0, time.UTC),
	}
	auth := fakeAuthorizer{canApprove: func(_ context.Context, actorID, departmentID string) (bool, error) {
		return (actorID == f.staff || actorID == f.staff2) && departmentID == f.dept, nil
	}}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = lifecycle.NewService(f.repo, auth, log, lifecycle.WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))
	return f
}

func (f *fixture) create(t *testing.T, itemID string, qty int) *models.BorrowRequest {
	t.Helper()
	br, err := f.svc.Create(context.Background(), lifecycle.CreateInput{
		ItemID:             itemID,
		RequesterID:        f.borrower,
		Quantity:           qty,
		RequestedStartDate: f.start,
		RequestedEndDate:   f.end,
		Purpose:            "spectroscopy lab",
	})
	require.NoError(t, err, "error in arranging test data")
	return br
}

func (f *fixture) approve(t *testing.T, requestID string) {
	t.Helper()
	_, err := f.svc.Approve(context.Background(), requestID, f.staff, lifecycle.ApproveInput{PickupLocation: "Room B12"})
	require.NoError(t, err, "error in arranging test data")
}

func (f *fixture) submitReturn(t *testing.T, requestID string, qty int, cond string) *models.ReturnRequest {
	t.Helper()
	rr, err := f.svc.SubmitReturn(context.Background(), requestID, f.borrower, lifecycle.ReturnInput{
		Quantity:       qty,
		ItemCondition:  cond,
		ReturnImageURL: "https://files.example/returns/1.jpg",
	})
	require.NoError(t, err, "error in arranging test data")
	return rr
}

func eventTypes(t *testing.T, r *db.Repo, aggregateID string) []string {
	t.Helper()
	evs, err := r.OutboxForAggregate(context.Background(), aggregateID)
	require.NoError(t, err)
	out := make([]string, 0, len(evs))
	for _, ev := range evs {
		out = append(out, ev.EventType)
	}
	return out
}

func Test_Lifecycle_GoodReturn_RestoresShelf(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 2)

	br := f.create(t, it.ID, 2)
	assert.Equal(t, models.RequestPending, br.Status)
	assert.Equal(t, 0, dbtest.RequireBalanced(t, f.repo, it.ID).CurrentQuantity)

	approved, err := f.svc.Approve(ctx, br.ID, f.staff, lifecycle.ApproveInput{PickupLocation: "Room B12"})
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approved.Status)
	issued, err := f.repo.ActiveIssuedForRequest(ctx, br.ID)
	require.NoError(t, err)
	require.Len(t, issued, 1)
	assert.Equal(t, 2, issued[0].Quantity)
	assert.True(t, issued[0].DueDate.Equal(f.end), "due date follows requested end date")

	rr := f.submitReturn(t, br.ID, 2, models.ConditionGood)
	got, err := f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturnPending, got.Status)

	verified, err := f.svc.VerifyReturn(ctx, rr.ID, f.staff)
	require.NoError(t, err)
	assert.Equal(t, models.ReturnApproved, verified.Status)

	got, err = f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturned, got.Status)
	assert.NotNil(t, got.ReturnedDate)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 2, stock.CurrentQuantity)
	assert.Equal(t, 0, stock.IssuedQuantity)
	assert.Equal(t, []string{
		models.EventRequestSubmitted,
		models.EventRequestApproved,
		models.EventReturnSubmitted,
		models.EventReturnVerified,
	}, eventTypes(t, f.repo, br.ID))
}

func Test_Lifecycle_DamagedReturn_LandsInDamagedBucket(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 2)
	br := f.create(t, it.ID, 2)
	f.approve(t, br.ID)
	rr := f.submitReturn(t, br.ID, 2, models.ConditionDamaged)

	_, err := f.svc.VerifyReturn(ctx, rr.ID, f.staff)

	require.NoError(t, err)
	got, err := f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturned, got.Status)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 0, stock.CurrentQuantity)
	assert.Equal(t, 2, stock.DamagedQuantity)
	assert.Equal(t, []string{models.EventDamageReported}, eventTypes(t, f.repo, it.ID))
}

func Test_Lifecycle_MissingParts_GoesToMaintenance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it, _ := dbtest.GivenUnitizedItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)
	rr := f.submitReturn(t, br.ID, 1, models.ConditionMissingParts)

	_, err := f.svc.VerifyReturn(ctx, rr.ID, f.staff)

	require.NoError(t, err)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 1, stock.MaintenanceQuantity)
	assert.Equal(t, 0, stock.CurrentQuantity)
}

func Test_Reject_Success_ReleasesReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 3)
	br := f.create(t, it.ID, 2)

	got, err := f.svc.Reject(ctx, br.ID, f.staff, "out of stock for priority use")

	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, got.Status)
	assert.Equal(t, "out of stock for priority use", got.RejectionReason)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 3, stock.CurrentQuantity)
	assert.Equal(t, 0, stock.ReservedQuantity)

	evs, err := f.repo.OutboxForAggregate(ctx, br.ID)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, models.EventRequestRejected, evs[1].EventType)
	assert.Equal(t, f.borrower, evs[1].RecipientID)
}

func Test_Reject_Error_WhenReasonBlank(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)

	_, err := f.svc.Reject(context.Background(), br.ID, f.staff, "   ")

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_Approve_Replay_BySameActorIsNoOp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 2)
	br := f.create(t, it.ID, 2)
	f.approve(t, br.ID)

	again, err := f.svc.Approve(ctx, br.ID, f.staff, lifecycle.ApproveInput{})

	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, again.Status)
	assert.Equal(t, "Room B12", again.PickupLocation)
	issued, err := f.repo.ActiveIssuedForRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Len(t, issued, 1)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 2, stock.IssuedQuantity)
}

func Test_Approve_Error_WhenAnotherStaffAlreadyApproved(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)

	_, err := f.svc.Approve(context.Background(), br.ID, f.staff2, lifecycle.ApproveInput{})

	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func Test_Approve_Error_WhenActorLacksCapability(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)

	_, err := f.svc.Approve(context.Background(), br.ID, uuid.NewString(), lifecycle.ApproveInput{})

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
	got, err := f.repo.FindBorrowRequest(context.Background(), br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, got.Status)
}

func Test_TerminalRequest_RejectsEveryTransition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	_, err := f.svc.Reject(ctx, br.ID, f.staff, "duplicate")
	require.NoError(t, err)

	_, approveErr := f.svc.Approve(ctx, br.ID, f.staff, lifecycle.ApproveInput{})
	_, rejectErr := f.svc.Reject(ctx, br.ID, f.staff, "again")
	_, withdrawErr := f.svc.Withdraw(ctx, br.ID, f.borrower)
	_, returnErr := f.svc.SubmitReturn(ctx, br.ID, f.borrower, lifecycle.ReturnInput{
		Quantity: 1, ItemCondition: models.ConditionGood, ReturnImageURL: "https://files.example/r.jpg",
	})

	for _, err := range []error{approveErr, rejectErr, withdrawErr, returnErr} {
		assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
		assert.Equal(t, models.RequestRejected, apperr.StateOf(err))
	}
	dbtest.RequireBalanced(t, f.repo, it.ID)
}

func Test_Withdraw_Success_ByRequester(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)

	got, err := f.svc.Withdraw(context.Background(), br.ID, f.borrower)

	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, got.Status)
	assert.Equal(t, "withdrawn", got.RejectionReason)
	assert.Equal(t, 1, dbtest.RequireBalanced(t, f.repo, it.ID).CurrentQuantity)
	assert.Contains(t, eventTypes(t, f.repo, br.ID), models.EventRequestWithdrawn)
}

func Test_Withdraw_Error_WhenNotRequester(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)

	_, err := f.svc.Withdraw(context.Background(), br.ID, f.staff)

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}

func Test_Withdraw_Error_AfterApproval(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)

	_, err := f.svc.Withdraw(context.Background(), br.ID, f.borrower)

	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
	assert.Equal(t, models.RequestApproved, apperr.StateOf(err))
}

func Test_Create_Error_WhenQuantityExceedsShelf(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)

	_, err := f.svc.Create(context.Background(), lifecycle.CreateInput{
		ItemID: it.ID, RequesterID: f.borrower, Quantity: 2,
		RequestedStartDate: f.start, RequestedEndDate: f.end,
	})

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_Create_Error_WhenStartNotBeforeEnd(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)

	_, err := f.svc.Create(context.Background(), lifecycle.CreateInput{
		ItemID: it.ID, RequesterID: f.borrower, Quantity: 1,
		RequestedStartDate: f.end, RequestedEndDate: f.end,
	})

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_Create_Error_WhenItemNotBorrowable(t *testing.T) {
	f := newFixture(t)
	it := &models.Item{Code: "ACID-01", Name: "Nitric acid", DepartmentID: f.dept, TotalQuantity: 5}
	require.NoError(t, f.repo.CreateItem(context.Background(), it))

	_, err := f.svc.Create(context.Background(), lifecycle.CreateInput{
		ItemID: it.ID, RequesterID: f.borrower, Quantity: 1,
		RequestedStartDate: f.start, RequestedEndDate: f.end,
	})

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_Create_Replay_WithClientRequestID(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 3)
	in := lifecycle.CreateInput{
		RequestID: uuid.NewString(), ItemID: it.ID, RequesterID: f.borrower, Quantity: 2,
		RequestedStartDate: f.start, RequestedEndDate: f.end,
	}

	first, err := f.svc.Create(ctx, in)
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 2, stock.ReservedQuantity)
	assert.Equal(t, 1, stock.CurrentQuantity)
}

func Test_Create_SnapshotsDepartment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)

	require.NoError(t, f.repo.DB.Model(&models.Item{}).Where("id = ?", it.ID).
		Update("department_id", uuid.NewString()).Error)

	got, err := f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, f.dept, got.ItemDepartmentID)
	f.approve(t, br.ID)
}

func Test_SubmitReturn_Error_WhenQuantityExceedsHeld(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 2)
	br := f.create(t, it.ID, 2)
	f.approve(t, br.ID)

	_, err := f.svc.SubmitReturn(context.Background(), br.ID, f.borrower, lifecycle.ReturnInput{
		Quantity: 3, ItemCondition: models.ConditionGood, ReturnImageURL: "https://files.example/r.jpg",
	})

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_SubmitReturn_Error_WhenImageMissing(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)

	_, err := f.svc.SubmitReturn(context.Background(), br.ID, f.borrower, lifecycle.ReturnInput{
		Quantity: 1, ItemCondition: models.ConditionGood,
	})

	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func Test_SubmitReturn_Error_WhenOneAlreadyPending(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 2)
	br := f.create(t, it.ID, 2)
	f.approve(t, br.ID)
	f.submitReturn(t, br.ID, 1, models.ConditionGood)

	_, err := f.svc.SubmitReturn(context.Background(), br.ID, f.borrower, lifecycle.ReturnInput{
		Quantity: 1, ItemCondition: models.ConditionGood, ReturnImageURL: "https://files.example/r2.jpg",
	})

	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func Test_RejectReturn_ThenResubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)
	first := f.submitReturn(t, br.ID, 1, models.ConditionGood)

	rejected, err := f.svc.RejectReturn(ctx, first.ID, f.staff, "photo is blurry")
	require.NoError(t, err)
	assert.Equal(t, models.ReturnRejected, rejected.Status)
	got, err := f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturnPending, got.Status)

	second := f.submitReturn(t, br.ID, 1, models.ConditionGood)
	_, err = f.svc.VerifyReturn(ctx, second.ID, f.staff)
	require.NoError(t, err)

	_, err = f.svc.VerifyReturn(ctx, first.ID, f.staff)
	assert.Equal(t, apperr.InvalidTransition, apperr.KindOf(err))
	assert.Equal(t, models.ReturnRejected, apperr.StateOf(err))
	assert.Equal(t, 1, dbtest.RequireBalanced(t, f.repo, it.ID).CurrentQuantity)
}

func Test_PartialReturns_CloseRequestWhenNothingOutstanding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	it, _ := dbtest.GivenUnitizedItem(t, f.repo, f.dept, 3)
	br := f.create(t, it.ID, 3)
	f.approve(t, br.ID)

	first := f.submitReturn(t, br.ID, 1, models.ConditionGood)
	_, err := f.svc.VerifyReturn(ctx, first.ID, f.staff)
	require.NoError(t, err)
	got, err := f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturnPending, got.Status)
	left, err := f.repo.OutstandingForRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, left)

	second := f.submitReturn(t, br.ID, 2, models.ConditionLost)
	_, err = f.svc.VerifyReturn(ctx, second.ID, f.staff)
	require.NoError(t, err)

	got, err = f.repo.FindBorrowRequest(ctx, br.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestReturned, got.Status)
	stock := dbtest.RequireBalanced(t, f.repo, it.ID)
	assert.Equal(t, 1, stock.CurrentQuantity)
	assert.Equal(t, 2, stock.DamagedQuantity)
}

func Test_VerifyReturn_Error_WhenActorLacksCapability(t *testing.T) {
	f := newFixture(t)
	it := dbtest.GivenItem(t, f.repo, f.dept, 1)
	br := f.create(t, it.ID, 1)
	f.approve(t, br.ID)
	rr := f.submitReturn(t, br.ID, 1, models.ConditionGood)

	_, err := f.svc.VerifyReturn(context.Background(), rr.ID, f.borrower)

	assert.Equal(t, apperr.Forbidden, apperr.KindOf(err))
}
