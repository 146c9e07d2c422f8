// controllers/requests_controller.go
package controllers

import (
	"errors"
	"io"
	"net/http"
	"slices"

	"lablink/app"
	"lablink/apperr"
	"lablink/db"
	"lablink/lifecycle"

	"github.com/gin-gonic/gin"
)

type RequestController struct{ *Srv }

func NewRequestController(s *Srv) *RequestController { return &RequestController{Srv: s} }

// bindOptional 允许空 body
func bindOptional(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type reasonBody struct {
	Reason string `json:"reason"`
}

// 借用申请
func (rc *RequestController) Create(c *gin.Context) {
	var in lifecycle.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.badRequest(c, err)
		return
	}
	in.RequesterID = actor(c)
	br, err := rc.Lifecycle.Create(c.Request.Context(), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, br)
}

// List shows the caller's own requests, or the departments they manage
// unless ?mine=true.
func (rc *RequestController) List(c *gin.Context) {
	ctx := c.Request.Context()
	uid := actor(c)
	page, size := pageParams(c)
	q := db.RequestQuery{Status: c.Query("status"), Page: page, Size: size}

	depts, err := rc.scope(ctx, uid)
	if err != nil {
		rc.fail(c, err)
		return
	}
	if c.Query("mine") == "true" || (depts != nil && len(depts) == 0) {
		q.RequesterID = uid
	} else {
		q.DepartmentIDs = depts
	}
	res, err := rc.Repo.ListBorrowRequests(ctx, q)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (rc *RequestController) Get(c *gin.Context) {
	ctx := c.Request.Context()
	br, err := rc.Repo.FindBorrowRequest(ctx, c.Param("id"))
	if err != nil {
		rc.fail(c, err)
		return
	}
	if uid := actor(c); br.RequesterID != uid {
		ok, err := rc.Policy.CanApprove(ctx, uid, br.ItemDepartmentID)
		if err != nil {
			rc.fail(c, apperr.Unavailable("access control", err))
			return
		}
		if !ok {
			// 不暴露他人申请是否存在
			c.JSON(http.StatusNotFound, app.H{"error": "borrow request not found"})
			return
		}
	}
	returns, err := rc.Repo.ListReturnRequests(ctx, br.ID)
	if err != nil {
		rc.fail(c, err)
		return
	}
	issued, err := rc.Repo.ActiveIssuedForRequest(ctx, br.ID)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"request": br, "returns": returns, "issued": issued})
}

func (rc *RequestController) Approve(c *gin.Context) {
	var in lifecycle.ApproveInput
	if err := bindOptional(c, &in); err != nil {
		rc.badRequest(c, err)
		return
	}
	br, err := rc.Lifecycle.Approve(c.Request.Context(), c.Param("id"), actor(c), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

func (rc *RequestController) Reject(c *gin.Context) {
	var in reasonBody
	if err := bindOptional(c, &in); err != nil {
		rc.badRequest(c, err)
		return
	}
	br, err := rc.Lifecycle.Reject(c.Request.Context(), c.Param("id"), actor(c), in.Reason)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

func (rc *RequestController) Withdraw(c *gin.Context) {
	br, err := rc.Lifecycle.Withdraw(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, br)
}

// 提交归还
func (rc *RequestController) SubmitReturn(c *gin.Context) {
	var in lifecycle.ReturnInput
	if err := c.ShouldBindJSON(&in); err != nil {
		rc.badRequest(c, err)
		return
	}
	rr, err := rc.Lifecycle.SubmitReturn(c.Request.Context(), c.Param("id"), actor(c), in)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rr)
}

func (rc *RequestController) VerifyReturn(c *gin.Context) {
	rr, err := rc.Lifecycle.VerifyReturn(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

func (rc *RequestController) RejectReturn(c *gin.Context) {
	var in reasonBody
	if err := bindOptional(c, &in); err != nil {
		rc.badRequest(c, err)
		return
	}
	rr, err := rc.Lifecycle.RejectReturn(c.Request.Context(), c.Param("id"), actor(c), in.Reason)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rr)
}

// ListIssued lists open issued rows. Borrowers only see their own; staff may
// pass a departmentId they manage.
func (rc *RequestController) ListIssued(c *gin.Context) {
	ctx := c.Request.Context()
	uid := actor(c)
	page, size := pageParams(c)
	q := db.IssuedQuery{
		OverdueOnly:  c.Query("overdue") == "true",
		HolderID:     c.Query("holderId"),
		DepartmentID: c.Query("departmentId"),
		Now:          rc.Now(),
		Page:         page,
		Size:         size,
	}
	depts, err := rc.scope(ctx, uid)
	if err != nil {
		rc.fail(c, err)
		return
	}
	if depts != nil && (q.DepartmentID == "" || !slices.Contains(depts, q.DepartmentID)) {
		q.HolderID, q.DepartmentID = uid, ""
	}
	res, err := rc.Repo.ListIssued(ctx, q)
	if err != nil {
		rc.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
