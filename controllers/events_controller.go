// controllers/events_controller.go
package controllers

import (
	"io"
	"net/http"
	"slices"
	"time"

	"lablink/app"
	"lablink/realtime"

	"github.com/gin-gonic/gin"
)

type EventsController struct {
	*Srv
	Heartbeat time.Duration
}

func NewEventsController(s *Srv) *EventsController {
	return &EventsController{Srv: s, Heartbeat: 25 * time.Second}
}

// Stream pushes realtime events as server-sent events. Admins see every
// event, staff the events of their departments, others only heartbeats.
func (ec *EventsController) Stream(c *gin.Context) {
	ctx := c.Request.Context()
	depts, err := ec.scope(ctx, actor(c))
	if err != nil {
		ec.fail(c, err)
		return
	}
	events, err := ec.Events.Subscribe(ctx)
	if err != nil {
		ec.Log.WarnContext(ctx, "realtime subscribe failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, app.H{"error": "service temporarily unavailable"})
		return
	}

	tick := time.NewTicker(ec.Heartbeat)
	defer tick.Stop()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-tick.C:
			c.SSEvent("ping", app.H{"at": ec.Now()})
			return true
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if visible(ev, depts) {
				c.SSEvent(ev.Type, ev)
			}
			return true
		}
	})
}

// nil depts means every department.
func visible(ev realtime.Event, depts []string) bool {
	return depts == nil || (ev.Department != "" && slices.Contains(depts, ev.Department))
}
