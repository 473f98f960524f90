package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"toolbroker/internal/db"
	"toolbroker/internal/model"

	"github.com/gin-gonic/gin"
)

const subscriberContextKey = "subscriber"

// SubscriberMiddleware authenticates the caller by subscriber key and stores the subscriber
// in the gin context.
func SubscriberMiddleware(dbService db.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" {
				key = strings.TrimSpace(parts[1])
			}
		}
		if key == "" {
			key = c.GetHeader("X-Subscriber-Key")
		}

		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}

		sub, err := dbService.FindSubscriberByKey(c.Request.Context(), key)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "upstream_unreachable"})
			return
		}

		if !sub.Active(time.Now()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"ok": false, "error": "subscription_inactive"})
			return
		}

		c.Set(subscriberContextKey, sub)
		c.Next()
	}
}

// SubscriberFrom returns the subscriber stored by SubscriberMiddleware.
func SubscriberFrom(c *gin.Context) (*model.Subscriber, bool) {
	v, ok := c.Get(subscriberContextKey)
	if !ok {
		return nil, false
	}
	sub, ok := v.(*model.Subscriber)
	return sub, ok
}

// AdminSessionMiddleware requires a valid admin_session cookie.
func AdminSessionMiddleware(signer *SessionSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || !signer.Verify(token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		c.Next()
	}
}
