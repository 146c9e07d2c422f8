// controllers/audit_controller.go
package controllers

import (
	"net/http"
	"time"

	"lablink/audit"

	"github.com/gin-gonic/gin"
)

type AuditController struct{ *Srv }

func NewAuditController(s *Srv) *AuditController { return &AuditController{Srv: s} }

// List 管理员查看审计日志，?since= 为 RFC3339
func (ac *AuditController) List(c *gin.Context) {
	page, size := pageParams(c)
	f := audit.Filter{
		EntityType: c.Query("entityType"),
		EntityID:   c.Query("entityId"),
		ActorID:    c.Query("actorId"),
		Page:       page,
		Size:       size,
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			ac.badRequest(c, err)
			return
		}
		f.Since = t
	}
	res, err := ac.Audit.List(c.Request.Context(), f)
	if err != nil {
		ac.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func itemAudit(actorID, action, itemID string, v any) audit.Entry {
	return audit.Entry{ActorID: actorID, Action: action, EntityType: "item", EntityID: itemID, New: v}
}
