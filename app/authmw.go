package app

import (
	"context"
	"net/http"
	"strings"

	"lablink/session"

	"github.com/gin-gonic/gin"
)

const AppSessionCookie = "app_session"

// Context keys set by AuthRequired.
const (
	CtxUserID  = "userID"
	CtxIsAdmin = "isAdmin"
)

type SessionGetter interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, actorID string) (bool, error)
}

// AuthRequired validates the session issued by the external login service.
// The id comes from the app_session cookie or an "Authorization: Bearer" header.
func AuthRequired(appSess SessionGetter, admins AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := SessionID(c.Request)
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		as, err := appSess.Get(c.Request.Context(), id)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "invalid session"})
			return
		}
		// 把 userID 放进上下文，后续 handler 可用
		c.Set(CtxUserID, as.UserID)
		isAdmin, err := admins.IsAdmin(c.Request.Context(), as.UserID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, H{"error": "service temporarily unavailable"})
			return
		}
		c.Set(CtxIsAdmin, isAdmin)
		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(CtxUserID); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, H{"error": "unauthorized"})
			return
		}
		if !c.GetBool(CtxIsAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// SessionID reads the session id from the cookie, then the bearer header.
func SessionID(r *http.Request) string {
	if ck, err := r.Cookie(AppSessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return ""
}
