// controllers/srv.go
package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lablink/access"
	"lablink/app"
	"lablink/apperr"
	"lablink/audit"
	"lablink/db"
	"lablink/lifecycle"
	"lablink/qr"
	"lablink/realtime"

	"github.com/gin-gonic/gin"
)

// Subscriber is the read side of the realtime bus.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan realtime.Event, error)
}

// SessionRevoker ends an application session on logout.
type SessionRevoker interface {
	Delete(ctx context.Context, id string) error
}

type Srv struct {
	Repo      *db.Repo
	Policy    *access.Policy
	Lifecycle *lifecycle.Service
	Resolver  *qr.Resolver
	Audit     *audit.Recorder
	Events    Subscriber
	Sessions  SessionRevoker
	Log       *slog.Logger
	Now       func() time.Time

	SecureCookie bool
}

func GetSrv(a *app.App) *Srv {
	return &Srv{
		Repo:      a.Repo,
		Policy:    a.Policy,
		Lifecycle: a.Lifecycle,
		Resolver:  a.Resolver,
		Audit:     a.Audit,
		Events:    a.Bus,
		Sessions:  a.AppSessions(),
		Log:       a.Log,
		Now:       func() time.Time { return time.Now().UTC() },

		SecureCookie: strings.HasPrefix(a.Config.WebOrigin, "https://"),
	}
}

// --- helpers ---

func actor(c *gin.Context) string { return c.GetString(app.CtxUserID) }

func pageParams(c *gin.Context) (page, size int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ = strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

// fail 把错误类型映射成 HTTP 状态码，内部错误只记日志
func (s *Srv) fail(c *gin.Context, err error) {
	var status int
	switch apperr.KindOf(err) {
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.InvalidTransition:
		c.JSON(http.StatusConflict, app.H{"error": apperr.Public(err), "state": apperr.StateOf(err)})
		return
	case apperr.Conflict:
		status = http.StatusConflict
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.DependencyUnavailable:
		s.Log.WarnContext(c.Request.Context(), "dependency unavailable", "path", c.FullPath(), "err", err)
		status = http.StatusServiceUnavailable
	default:
		s.Log.ErrorContext(c.Request.Context(), "request failed", "path", c.FullPath(), "err", err)
		status = http.StatusInternalServerError
	}
	c.JSON(status, app.H{"error": apperr.Public(err)})
}

func (s *Srv) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, app.H{"error": err.Error()})
}

// scope returns the department filter for actor; nil means every department.
func (s *Srv) scope(ctx context.Context, actorID string) ([]string, error) {
	depts, all, err := s.Policy.Departments(ctx, actorID)
	if err != nil {
		return nil, apperr.Unavailable("access control", err)
	}
	if all {
		return nil, nil
	}
	return depts, nil
}
