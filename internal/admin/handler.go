package admin

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"toolbroker/internal/db"
	"toolbroker/internal/model"
	"toolbroker/internal/sessionlock"

	"github.com/gin-gonic/gin"
)

type CredentialRequest struct {
	Service  string                   `json:"service"`
	PlanTier *string                  `json:"planTier"`
	Label    *string                  `json:"label"`
	Payload  *model.CredentialPayload `json:"payload"`
	Status   *string                  `json:"status"`
}

type SubscriberRequest struct {
	APIKey    string     `json:"apiKey"`
	Email     *string    `json:"email"`
	PlanTier  *string    `json:"planTier"`
	Services  []string   `json:"services"`
	Status    *string    `json:"status"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

type LockRequest struct {
	HolderID string `json:"holderId" binding:"required"`
}

type Handler struct {
	db     db.Service
	locks  *sessionlock.Registry
	logger *slog.Logger
}

func NewHandler(dbService db.Service, locks *sessionlock.Registry, logger *slog.Logger) *Handler {
	return &Handler{db: dbService, locks: locks, logger: logger.With("component", "admin")}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return uint(id), true
}

func parseServices(names []string) (string, bool) {
	services := make([]string, 0, len(names))
	for _, name := range names {
		svc, ok := model.ParseService(strings.TrimSpace(name))
		if !ok {
			return "", false
		}
		services = append(services, string(svc))
	}
	return strings.Join(services, ","), true
}

// Credentials

func (h *Handler) ListCredentialsHandler(c *gin.Context) {
	creds, err := h.db.ListCredentials(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list credentials"})
		return
	}
	c.JSON(http.StatusOK, creds)
}

func (h *Handler) CreateCredentialHandler(c *gin.Context) {
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	svc, ok := model.ParseService(req.Service)
	if !ok || req.Payload == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A known service and a payload are required"})
		return
	}

	cred := model.Credential{Service: svc, Payload: *req.Payload, Status: "active"}
	if req.PlanTier != nil {
		cred.PlanTier = *req.PlanTier
	}
	if req.Label != nil {
		cred.Label = *req.Label
	}
	if req.Status != nil {
		cred.Status = *req.Status
	}
	if err := h.db.CreateCredential(c.Request.Context(), &cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create credential"})
		return
	}
	h.logger.Info("Credential created", "id", cred.ID, "service", cred.Service, "plan_tier", cred.PlanTier)
	c.JSON(http.StatusCreated, cred)
}

func (h *Handler) GetCredentialHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cred, err := h.db.GetCredential(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Credential not found"})
		return
	}
	c.JSON(http.StatusOK, cred)
}

func (h *Handler) UpdateCredentialHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req CredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	cred, err := h.db.GetCredential(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Credential not found"})
		return
	}

	if req.Service != "" {
		svc, known := model.ParseService(req.Service)
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service"})
			return
		}
		cred.Service = svc
	}
	if req.PlanTier != nil {
		cred.PlanTier = *req.PlanTier
	}
	if req.Label != nil {
		cred.Label = *req.Label
	}
	if req.Payload != nil {
		cred.Payload = *req.Payload
	}
	if req.Status != nil {
		cred.Status = *req.Status
	}
	if err := h.db.UpdateCredential(c.Request.Context(), cred); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update credential"})
		return
	}
	c.JSON(http.StatusOK, cred)
}

func (h *Handler) DeleteCredentialHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.db.DeleteCredential(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete credential"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Subscribers

func (h *Handler) ListSubscribersHandler(c *gin.Context) {
	subs, err := h.db.ListSubscribers(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list subscribers"})
		return
	}
	c.JSON(http.StatusOK, subs)
}

func (h *Handler) CreateSubscriberHandler(c *gin.Context) {
	var req SubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.APIKey == "" || req.Email == nil || *req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apiKey and email are required"})
		return
	}
	services, ok := parseServices(req.Services)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service"})
		return
	}

	sub := model.Subscriber{APIKey: req.APIKey, Email: *req.Email, Services: services, Status: "active", ExpiresAt: req.ExpiresAt}
	if req.PlanTier != nil {
		sub.PlanTier = *req.PlanTier
	}
	if req.Status != nil {
		sub.Status = *req.Status
	}
	if err := h.db.CreateSubscriber(c.Request.Context(), &sub); err != nil {
		if errors.Is(err, db.ErrDuplicate) {
			c.JSON(http.StatusConflict, gin.H{"error": "Subscriber key already exists"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create subscriber"})
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *Handler) GetSubscriberHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	sub, err := h.db.GetSubscriber(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) UpdateSubscriberHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req SubscriberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	sub, err := h.db.GetSubscriber(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
		return
	}

	if req.APIKey != "" {
		sub.APIKey = req.APIKey
	}
	if req.Email != nil {
		sub.Email = *req.Email
	}
	if req.PlanTier != nil {
		sub.PlanTier = *req.PlanTier
	}
	if req.Services != nil {
		services, known := parseServices(req.Services)
		if !known {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown service"})
			return
		}
		sub.Services = services
	}
	if req.Status != nil {
		sub.Status = *req.Status
	}
	if req.ExpiresAt != nil {
		sub.ExpiresAt = req.ExpiresAt
	}
	if err := h.db.UpdateSubscriber(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscriber"})
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeleteSubscriberHandler(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.db.DeleteSubscriber(c.Request.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Subscriber not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete subscriber"})
		return
	}
	c.Status(http.StatusNoContent)
}

// TrendTrack

// RecordLockHandler records a checkout of the shared TrendTrack profile. The lock is
// advisory: it is recorded even when an earlier checkout has not elapsed.
func (h *Handler) RecordLockHandler(c *gin.Context) {
	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "holderId is required"})
		return
	}
	lock, err := h.locks.Record(c.Request.Context(), req.HolderID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record session lock"})
		return
	}
	c.JSON(http.StatusCreated, lock)
}
