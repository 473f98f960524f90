package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toolbroker/internal/config"
	"toolbroker/internal/db"
	"toolbroker/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupDB(t *testing.T) db.Service {
	t.Helper()
	service, err := db.NewService(config.DatabaseConfig{Type: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	return service
}

func TestSubscriberMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dbService := setupDB(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Hour)
	require.NoError(t, dbService.CreateSubscriber(ctx, &model.Subscriber{APIKey: "valid", Email: "a@example.com", Services: "pipiads", Status: "active"}))
	require.NoError(t, dbService.CreateSubscriber(ctx, &model.Subscriber{APIKey: "lapsed", Email: "b@example.com", Services: "pipiads", Status: "active", ExpiresAt: &past}))
	require.NoError(t, dbService.CreateSubscriber(ctx, &model.Subscriber{APIKey: "cancelled", Email: "c@example.com", Services: "pipiads", Status: "canceled"}))

	router := gin.New()
	router.Use(SubscriberMiddleware(dbService))
	router.GET("/", func(c *gin.Context) {
		sub, ok := SubscriberFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, sub.Email)
	})

	tests := []struct {
		name   string
		header string
		value  string
		code   int
	}{
		{"no key", "", "", http.StatusUnauthorized},
		{"unknown bearer", "Authorization", "Bearer nope", http.StatusUnauthorized},
		{"valid bearer", "Authorization", "Bearer valid", http.StatusOK},
		{"valid header", "X-Subscriber-Key", "valid", http.StatusOK},
		{"expired", "X-Subscriber-Key", "lapsed", http.StatusForbidden},
		{"inactive", "Authorization", "Bearer cancelled", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.code, rr.Code)
		})
	}
}

func TestAdminSessionMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	signer := NewSessionSigner("secret", "admin@example.com")
	token, err := signer.Issue("admin@example.com")
	require.NoError(t, err)

	router := gin.New()
	router.Use(AdminSessionMiddleware(signer))
	router.GET("/admin", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token + "x"})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req, _ = http.NewRequest(http.MethodGet, "/admin", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: token})
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}
