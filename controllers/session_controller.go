// controllers/session_controller.go
package controllers

import (
	"net/http"

	"lablink/app"

	"github.com/gin-gonic/gin"
)

type SessionController struct{ *Srv }

func NewSessionController(s *Srv) *SessionController { return &SessionController{Srv: s} }

// 登出：删 Redis 会话，Cookie 置空
func (sc *SessionController) Logout(c *gin.Context) {
	if id := app.SessionID(c.Request); id != "" {
		if err := sc.Sessions.Delete(c.Request.Context(), id); err != nil {
			sc.Log.WarnContext(c.Request.Context(), "session delete failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, app.H{"error": "service temporarily unavailable"})
			return
		}
	}
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   sc.SecureCookie,
	})
	c.JSON(http.StatusOK, app.H{"ok": true})
}
