package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// useCORS allows the web clients listed in WEB_ORIGIN (comma separated).
// Last-Event-ID is sent by EventSource when it reconnects to /api/events.
func useCORS(r *gin.Engine, webOrigin string) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     splitCSV(webOrigin),
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
}
