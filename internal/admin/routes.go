package admin

import (
	"log/slog"
	"net/http"

	"toolbroker/internal/auth"
	"toolbroker/internal/db"
	"toolbroker/internal/sessionlock"

	"github.com/gin-gonic/gin"
)

// SetupRoutes registers the admin API under /api/admin and gates the /admin console.
// console serves the console pages once the session is verified; nil leaves /admin unrouted.
func SetupRoutes(router *gin.Engine, dbService db.Service, locks *sessionlock.Registry,
	signer *auth.SessionSigner, console http.Handler, logger *slog.Logger) {
	handler := NewHandler(dbService, locks, logger)

	adminGroup := router.Group("/api/admin")
	adminGroup.Use(auth.AdminSessionMiddleware(signer))
	{
		credentialsGroup := adminGroup.Group("/credentials")
		{
			credentialsGroup.GET("", handler.ListCredentialsHandler)
			credentialsGroup.POST("", handler.CreateCredentialHandler)
			credentialsGroup.GET("/:id", handler.GetCredentialHandler)
			credentialsGroup.PUT("/:id", handler.UpdateCredentialHandler)
			credentialsGroup.DELETE("/:id", handler.DeleteCredentialHandler)
		}

		subscribersGroup := adminGroup.Group("/subscribers")
		{
			subscribersGroup.GET("", handler.ListSubscribersHandler)
			subscribersGroup.POST("", handler.CreateSubscriberHandler)
			subscribersGroup.GET("/:id", handler.GetSubscriberHandler)
			subscribersGroup.PUT("/:id", handler.UpdateSubscriberHandler)
			subscribersGroup.DELETE("/:id", handler.DeleteSubscriberHandler)
		}

		adminGroup.POST("/trendtrack/lock", handler.RecordLockHandler)
	}

	if console != nil {
		consoleGroup := router.Group("/admin")
		consoleGroup.Use(auth.AdminSessionMiddleware(signer))
		consoleGroup.Any("", gin.WrapH(console))
		consoleGroup.Any("/*path", gin.WrapH(console))
	}
}
