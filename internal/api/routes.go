package api

import (
	"toolbroker/internal/auth"
	"toolbroker/internal/db"
	"toolbroker/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the broker endpoints.
func SetupRoutes(router *gin.Engine, handler *Handler, dbService db.Service, limiter *ratelimit.Limiter) {
	apiGroup := router.Group("/api")
	{
		codes := apiGroup.Group("/auth-codes")
		codes.Use(limiter.Middleware())
		codes.PUT("", handler.RedeemCodeHandler)
		codes.POST("", auth.SubscriberMiddleware(dbService), handler.IssueCodeHandler)

		apiGroup.GET("/trendtrack/status", handler.TrendTrackStatusHandler)

		adminAuth := apiGroup.Group("/admin/auth")
		adminAuth.POST("/login", limiter.Middleware(), handler.LoginHandler)
		adminAuth.GET("/verify", handler.VerifyHandler)
		adminAuth.POST("/logout", handler.LogoutHandler)
	}
}
