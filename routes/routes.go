package routes

import (
	"context"
	"net/http"
	"time"

	"lablink/app"
	"lablink/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(r *gin.Engine, a *app.App) {
	s := controllers.GetSrv(a)
	authMW := app.AuthRequired(a.AppSessions(), a.Policy)
	Register(r, s, authMW)

	r.GET("/healthz", func(c *app.Ctx) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := a.RDB.Ping(ctx).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "redis": err.Error()})
			return
		}
		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			c.JSON(http.StatusServiceUnavailable, app.H{"ok": false, "db": "unreachable"})
			return
		}
		c.JSON(http.StatusOK, app.H{"ok": true})
	})
}

// Register mounts the API behind authMW, which must set app.CtxUserID and
// app.CtxIsAdmin.
func Register(r *gin.Engine, s *controllers.Srv, authMW gin.HandlerFunc) {
	// 控制器
	itemCtl := controllers.NewItemController(s)
	reqCtl := controllers.NewRequestController(s)
	inboxCtl := controllers.NewInboxController(s)
	auditCtl := controllers.NewAuditController(s)
	eventsCtl := controllers.NewEventsController(s)
	sessCtl := controllers.NewSessionController(s)

	adminMW := app.AdminOnly()

	api := r.Group("/api", authMW)
	api.POST("/logout", sessCtl.Logout)

	// ------------------------------
	// 物品 / 扫码
	// ------------------------------
	api.POST("/scan", itemCtl.Scan)
	api.GET("/items", itemCtl.ListItems) // ?q=&status=&departmentId=&page=&size=
	api.GET("/items/:id", itemCtl.GetItem)
	api.GET("/items/:id/qr", itemCtl.ItemQR) // ?unitId=

	itemsAdmin := api.Group("/items", adminMW)
	{
		itemsAdmin.POST("", itemCtl.CreateItem)
		itemsAdmin.POST("/:id/units", itemCtl.AddUnits)
		itemsAdmin.GET("/:id/scans", itemCtl.Scans) // ?limit=
	}
	api.POST("/units/:id/archive", adminMW, itemCtl.ArchiveUnit)

	// ------------------------------
	// 借用申请 / 归还
	// ------------------------------
	reqs := api.Group("/requests")
	{
		reqs.POST("", reqCtl.Create)
		reqs.GET("", reqCtl.List) // ?status=&mine=true
		reqs.GET("/:id", reqCtl.Get)
		reqs.POST("/:id/approve", reqCtl.Approve)
		reqs.POST("/:id/reject", reqCtl.Reject)
		reqs.POST("/:id/withdraw", reqCtl.Withdraw)
		reqs.POST("/:id/returns", reqCtl.SubmitReturn)
	}
	api.POST("/returns/:id/verify", reqCtl.VerifyReturn)
	api.POST("/returns/:id/reject", reqCtl.RejectReturn)
	api.GET("/issued", reqCtl.ListIssued) // ?overdue=true&holderId=&departmentId=

	// ------------------------------
	// 站内信 / 通知
	// ------------------------------
	api.GET("/messages", inboxCtl.Messages) // ?unread=true&limit=
	api.POST("/messages/:id/read", inboxCtl.ReadMessage)
	api.GET("/notifications", inboxCtl.Notifications)
	api.POST("/notifications/:id/read", inboxCtl.ReadNotification)

	api.GET("/events", eventsCtl.Stream)

	// ------------------------------
	// 审计（仅管理员）
	// ------------------------------
	api.GET("/admin/audit", adminMW, auditCtl.List)
}
