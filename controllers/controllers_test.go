package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lablink/access"
	"lablink/app"
	"lablink/audit"
	"lablink/controllers"
	"lablink/db"
	"lablink/db/dbtest"
	"lablink/lifecycle"
	"lablink/models"
	"lablink/qr"
	"lablink/realtime"
	"lablink/routes"
	"lablink/session"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	get func(ctx context.Context, id string) (*session.AppSession, error)
}

func (f fakeSessions) Get(ctx context.Context, id string) (*session.AppSession, error) {
	return f.get(ctx, id)
}

type fakeSubscriber struct {
	subscribe func(ctx context.Context) (<-chan realtime.Event, error)
}

func (f fakeSubscriber) Subscribe(ctx context.Context) (<-chan realtime.Event, error) {
	return f.subscribe(ctx)
}

type fakeRevoker struct {
	delete func(ctx context.Context, id string) error
}

func (f fakeRevoker) Delete(ctx context.Context, id string) error { return f.delete(ctx, id) }

type harness struct {
	r        *gin.Engine
	revoked  []string
	repo     *db.Repo
	dept     string
	admin    string
	staff    string
	borrower string
	other    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := &harness{
		repo:     dbtest.NewRepo(t),
		dept:     uuid.NewString(),
		admin:    uuid.NewString(),
		staff:    uuid.NewString(),
		borrower: uuid.NewString(),
		other:    uuid.NewString(),
	}
	require.NoError(t, h.repo.AssignStaff(context.Background(), models.StaffAssignment{
		UserID: h.staff, DepartmentID: h.dept, Role: access.RoleStaff,
	}), "error in arranging test data")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	policy := access.NewPolicy(h.repo, []string{h.admin})
	s := &controllers.Srv{
		Repo:      h.repo,
		Policy:    policy,
		Lifecycle: lifecycle.NewService(h.repo, policy, log),
		Resolver:  qr.NewResolver(h.repo, log),
		Audit:     audit.NewRecorder(h.repo, log),
		Events: fakeSubscriber{subscribe: func(context.Context) (<-chan realtime.Event, error) {
			ch := make(chan realtime.Event)
			close(ch)
			return ch, nil
		}},
		Sessions: fakeRevoker{delete: func(_ context.Context, id string) error {
			h.revoked = append(h.revoked, id)
			return nil
		}},
		Log: log,
		Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) },
	}
	// bearer token 即 user id
	sessions := fakeSessions{get: func(_ context.Context, id string) (*session.AppSession, error) {
		if _, err := uuid.Parse(id); err != nil {
			return nil, session.ErrNoSession
		}
		return &session.AppSession{UserID: id}, nil
	}}
	h.r = gin.New()
	routes.Register(h.r, s, app.AuthRequired(sessions, policy))
	return h
}

func (h *harness) do(t *testing.T, as, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != "" {
		req.Header.Set("Authorization", "Bearer "+as)
	}
	w := httptest.NewRecorder()
	h.r.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "text/event-stream" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (h *harness) createRequest(t *testing.T, itemID string, qty int) string {
	t.Helper()
	w, out := h.do(t, h.borrower, http.MethodPost, "/api/requests", map[string]any{
		"itemId":             itemID,
		"quantity":           qty,
		"requestedStartDate": "2026-03-02T09:00:00Z",
		"requestedEndDate":   "2026-03-09T17:00:00Z",
		"purpose":            "optics lab",
	})
	require.Equal(t, http.StatusCreated, w.Code, "error in arranging test data: %s", w.Body.String())
	return out["id"].(string)
}

func Test_API_Rejects_When_NoSession(t *testing.T) {
	h := newHarness(t)

	w, out := h.do(t, "", http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", out["error"])

	w, _ = h.do(t, "not-a-session", http.MethodGet, "/api/requests", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func Test_CreateItem_IsAdminOnly(t *testing.T) {
	h := newHarness(t)
	body := map[string]any{"code": "SCOPE-1", "name": "Oscilloscope", "departmentId": h.dept, "totalQuantity": 3}

	w, _ := h.do(t, h.staff, http.MethodPost, "/api/items", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, out := h.do(t, h.admin, http.MethodPost, "/api/items", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "SCOPE-1", out["code"])
	assert.EqualValues(t, 3, out["currentQuantity"])
	assert.Equal(t, true, out["isBorrowable"])

	w, _ = h.do(t, h.admin, http.MethodPost, "/api/items", body)
	assert.Equal(t, http.StatusConflict, w.Code, "duplicate code")

	w, out = h.do(t, h.admin, http.MethodGet, "/api/admin/audit?entityType=item", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := out["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "item.created", items[0].(map[string]any)["action"])

	w, _ = h.do(t, h.staff, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func Test_BorrowAndReturn_OverHTTP(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 5)
	id := h.createRequest(t, it.ID, 2)

	w, _ := h.do(t, h.borrower, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "borrower cannot approve")

	w, out := h.do(t, h.staff, http.MethodPost, "/api/requests/"+id+"/approve",
		map[string]any{"pickupLocation": "Room B12"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.RequestApproved, out["status"])

	w, out = h.do(t, h.borrower, http.MethodPost, "/api/requests/"+id+"/returns", map[string]any{
		"quantity":       2,
		"itemCondition":  "good",
		"returnImageUrl": "https://files.example/r.jpg",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	returnID := out["id"].(string)

	w, out = h.do(t, h.staff, http.MethodPost, "/api/returns/"+returnID+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.ReturnApproved, out["status"])

	w, out = h.do(t, h.borrower, http.MethodGet, "/api/requests/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.RequestReturned, out["request"].(map[string]any)["status"])
	assert.Len(t, out["returns"], 1)

	got := dbtest.RequireBalanced(t, h.repo, it.ID)
	assert.Equal(t, 5, got.CurrentQuantity)
}

func Test_Reject_MapsErrorKinds(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 2)
	id := h.createRequest(t, it.ID, 1)

	w, _ := h.do(t, h.staff, http.MethodPost, "/api/requests/"+id+"/reject", map[string]any{"reason": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code, "blank reason")

	w, _ = h.do(t, h.staff, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, "error in arranging test data")

	w, out := h.do(t, h.staff, http.MethodPost, "/api/requests/"+id+"/reject", map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.RequestApproved, out["state"])

	w, _ = h.do(t, h.staff, http.MethodPost, "/api/requests/"+uuid.NewString()+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_Requests_AreScopedToCaller(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 3)
	id := h.createRequest(t, it.ID, 1)

	w, _ := h.do(t, h.other, http.MethodGet, "/api/requests/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "strangers do not learn the request exists")

	w, out := h.do(t, h.other, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, out["total"])

	w, out = h.do(t, h.staff, http.MethodGet, "/api/requests", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["total"])

	w, out = h.do(t, h.staff, http.MethodGet, "/api/requests?mine=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, out["total"])

	w, _ = h.do(t, h.staff, http.MethodGet, "/api/requests/"+id, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func Test_Issued_BorrowerSeesOwnRows(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 3)
	id := h.createRequest(t, it.ID, 1)
	w, _ := h.do(t, h.staff, http.MethodPost, "/api/requests/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, w.Code, "error in arranging test data")

	w, out := h.do(t, h.borrower, http.MethodGet, "/api/issued", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["total"])

	w, out = h.do(t, h.other, http.MethodGet, "/api/issued?holderId="+h.borrower, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, out["total"], "holder filter is ignored for borrowers")

	w, out = h.do(t, h.staff, http.MethodGet, "/api/issued?departmentId="+h.dept, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, out["total"])
}

func Test_ScanAndQR(t *testing.T) {
	h := newHarness(t)
	it, units := dbtest.GivenUnitizedItem(t, h.repo, h.dept, 2)

	w, out := h.do(t, h.borrower, http.MethodGet, "/api/items/"+it.ID+"/qr?unitId="+units[1].ID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	payload := out["payload"].(string)
	p, ok := qr.ParsePayload(payload)
	require.True(t, ok)
	assert.Equal(t, units[1].Serial, p.Code)

	w, out = h.do(t, h.borrower, http.MethodPost, "/api/scan", map[string]any{"payload": payload})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, it.ID, out["item"].(map[string]any)["id"])
	assert.Equal(t, units[1].ID, out["unit"].(map[string]any)["id"])

	w, _ = h.do(t, h.borrower, http.MethodPost, "/api/scan", map[string]any{"payload": "NOPE-404"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_AddUnits_GrowsStock(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 0)

	w, out := h.do(t, h.admin, http.MethodPost, "/api/items/"+it.ID+"/units",
		map[string]any{"serials": []string{"SN-1", "SN-2"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, out["items"], 2)

	got := dbtest.RequireBalanced(t, h.repo, it.ID)
	assert.Equal(t, 2, got.TotalQuantity)

	w, _ = h.do(t, h.admin, http.MethodPost, "/api/items/"+it.ID+"/units", map[string]any{"serials": []string{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func Test_Inbox_ReadOfUnknownMessage(t *testing.T) {
	h := newHarness(t)

	w, out := h.do(t, h.borrower, http.MethodGet, "/api/messages?unread=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, out["items"])

	w, _ = h.do(t, h.borrower, http.MethodPost, "/api/messages/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = h.do(t, h.borrower, http.MethodPost, "/api/notifications/"+uuid.NewString()+"/read", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func Test_ArchiveUnit_RetiresAvailableUnit(t *testing.T) {
	h := newHarness(t)
	it, units := dbtest.GivenUnitizedItem(t, h.repo, h.dept, 3)

	w, _ := h.do(t, h.staff, http.MethodPost, "/api/units/"+units[0].ID+"/archive", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = h.do(t, h.admin, http.MethodPost, "/api/units/"+units[0].ID+"/archive", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	got := dbtest.RequireBalanced(t, h.repo, it.ID)
	assert.Equal(t, 2, got.TotalQuantity)
	assert.Equal(t, 2, got.CurrentQuantity)

	w, out := h.do(t, h.admin, http.MethodPost, "/api/units/"+units[0].ID+"/archive", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, models.UnitArchived, out["state"])

	w, _ = h.do(t, h.admin, http.MethodPost, "/api/units/"+uuid.NewString()+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, out = h.do(t, h.admin, http.MethodGet, "/api/admin/audit?entityType=item_unit&entityId="+units[0].ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := out["items"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "unit.archived", entries[0].(map[string]any)["action"])
}

func Test_ItemScans_ListsResolvedScans(t *testing.T) {
	h := newHarness(t)
	it := dbtest.GivenItem(t, h.repo, h.dept, 1)

	w, _ := h.do(t, h.borrower, http.MethodPost, "/api/scan", map[string]any{"payload": it.Code, "deviceInfo": "handheld-7"})
	require.Equal(t, http.StatusOK, w.Code, "error in arranging test data")

	// 扫码日志异步写入
	require.Eventually(t, func() bool {
		w, out := h.do(t, h.admin, http.MethodGet, "/api/items/"+it.ID+"/scans", nil)
		items, _ := out["items"].([]any)
		return w.Code == http.StatusOK && len(items) == 1 &&
			items[0].(map[string]any)["deviceInfo"] == "handheld-7"
	}, 3*time.Second, 20*time.Millisecond)

	w, _ = h.do(t, h.borrower, http.MethodGet, "/api/items/"+it.ID+"/scans", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func Test_Logout_RevokesSessionAndClearsCookie(t *testing.T) {
	h := newHarness(t)

	w, out := h.do(t, h.borrower, http.MethodPost, "/api/logout", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, []string{h.borrower}, h.revoked)
	assert.Contains(t, w.Header().Get("Set-Cookie"), app.AppSessionCookie+"=;")
	assert.Contains(t, w.Header().Get("Set-Cookie"), "Max-Age=0")
}
