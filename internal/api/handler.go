package api

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"toolbroker/internal/auth"
	"toolbroker/internal/broker"
	"toolbroker/internal/config"
	"toolbroker/internal/model"
	"toolbroker/internal/sessionlock"

	"github.com/gin-gonic/gin"
)

type issueRequest struct {
	Service string `json:"service"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Handler serves the broker's public endpoints.
type Handler struct {
	codes    *broker.CodeStore
	resolver *broker.Resolver
	locks    *sessionlock.Registry
	signer   *auth.SessionSigner
	admin    config.AdminConfig
	logger   *slog.Logger
}

func NewHandler(codes *broker.CodeStore, resolver *broker.Resolver, locks *sessionlock.Registry,
	signer *auth.SessionSigner, admin config.AdminConfig, logger *slog.Logger) *Handler {
	return &Handler{
		codes:    codes,
		resolver: resolver,
		locks:    locks,
		signer:   signer,
		admin:    admin,
		logger:   logger.With("component", "api"),
	}
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, broker.ErrInvalid), errors.Is(err, broker.ErrServiceMismatch):
		return http.StatusBadRequest
	case errors.Is(err, broker.ErrExpired):
		return http.StatusGone
	case errors.Is(err, broker.ErrAlreadyConsumed):
		return http.StatusConflict
	case errors.Is(err, broker.ErrNoCredential):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

// IssueCodeHandler issues a code for one of the caller's entitled services.
func (h *Handler) IssueCodeHandler(c *gin.Context) {
	sub, ok := auth.SubscriberFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid"})
		return
	}
	svc, known := model.ParseService(req.Service)
	if !known {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid"})
		return
	}
	if !sub.Entitled(svc) {
		c.JSON(http.StatusForbidden, gin.H{"ok": false, "error": "not_entitled"})
		return
	}

	ac, err := h.codes.Issue(c.Request.Context(), svc, sub.Owner())
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"ok": false, "error": broker.Code(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "code": ac.Code, "expiresAt": ac.ExpiresAt})
}

// RedeemCodeHandler exchanges a code for a grant.
func (h *Handler) RedeemCodeHandler(c *gin.Context) {
	var req broker.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, broker.RedeemResponse{Error: broker.ErrInvalid.Error()})
		return
	}
	svc, known := model.ParseService(req.Service)
	if !known {
		c.JSON(http.StatusBadRequest, broker.RedeemResponse{Error: broker.ErrInvalid.Error()})
		return
	}

	ctx := c.Request.Context()
	if c.GetHeader(broker.DiscoveryHeader) != "" {
		ctx = broker.WithoutDiscovery(ctx)
	}
	grant, err := h.resolver.Resolve(ctx, req.Code, svc)
	if err != nil {
		h.logger.Info("Code redemption refused", "service", svc, "reason", broker.Code(err))
		c.JSON(errorStatus(err), broker.RedeemResponse{Error: broker.Code(err)})
		return
	}
	c.JSON(http.StatusOK, broker.RedeemResponse{OK: true, Grant: grant})
}

// TrendTrackStatusHandler reports whether the shared profile is free.
func (h *Handler) TrendTrackStatusHandler(c *gin.Context) {
	st, err := h.locks.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to read session lock", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": "upstream_unreachable"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// LoginHandler sets the admin session cookie.
func (h *Handler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid"})
		return
	}
	if h.admin.Password != "" &&
		subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.admin.Password)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}
	token, err := h.signer.Issue(req.Email)
	if err != nil {
		h.logger.Warn("Rejected admin login")
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, token, int(auth.SessionTTL/time.Second), "/", "", h.admin.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// VerifyHandler reports whether the caller holds a valid admin session.
func (h *Handler) VerifyHandler(c *gin.Context) {
	token, err := c.Cookie(auth.SessionCookie)
	if err != nil || !h.signer.Verify(token) {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// LogoutHandler clears the admin session cookie.
func (h *Handler) LogoutHandler(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.SessionCookie, "", -1, "/", "", h.admin.SecureCookie, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
