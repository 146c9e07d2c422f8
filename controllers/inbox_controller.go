// controllers/inbox_controller.go
package controllers

import (
	"net/http"
	"strconv"

	"lablink/app"

	"github.com/gin-gonic/gin"
)

type InboxController struct{ *Srv }

func NewInboxController(s *Srv) *InboxController { return &InboxController{Srv: s} }

func inboxParams(c *gin.Context) (unreadOnly bool, limit int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	return c.Query("unread") == "true", limit
}

// 站内信：只返回发给当前用户的
func (ic *InboxController) Messages(c *gin.Context) {
	unread, limit := inboxParams(c)
	msgs, err := ic.Repo.MessagesFor(c.Request.Context(), actor(c), unread, limit)
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": msgs})
}

func (ic *InboxController) ReadMessage(c *gin.Context) {
	if err := ic.Repo.MarkMessageRead(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (ic *InboxController) Notifications(c *gin.Context) {
	unread, limit := inboxParams(c)
	ns, err := ic.Repo.NotificationsFor(c.Request.Context(), actor(c), unread, limit)
	if err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"items": ns})
}

func (ic *InboxController) ReadNotification(c *gin.Context) {
	if err := ic.Repo.MarkNotificationRead(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		ic.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, app.H{"ok": true})
}
