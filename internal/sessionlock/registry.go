// Package sessionlock reports on the checkout window of the shared TrendTrack profile.
//
// The lock is advisory. Status and use are not one atomic step, so two callers can both see
// "available" and both proceed. Record is the external checkout trigger and never refuses.
package sessionlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"toolbroker/internal/db"
	"toolbroker/internal/model"

	"github.com/google/uuid"
)

// Status is the availability of the shared resource at one instant.
type Status struct {
	Available        bool          `json:"available"`
	RemainingMinutes int           `json:"remainingMinutes,omitempty"`
	EndTime          *time.Time    `json:"endTime,omitempty"`
	Remaining        time.Duration `json:"-"`
}

// Registry reads and records session locks for one resource.
type Registry struct {
	db       db.Service
	resource string
	checkout time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewRegistry creates a Registry for resource with a fixed checkout duration.
func NewRegistry(dbService db.Service, resource string, checkout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		db:       dbService,
		resource: resource,
		checkout: checkout,
		now:      time.Now,
		logger:   logger.With("component", "sessionlock", "resource", resource),
	}
}

// Status reports whether the most recent lock has elapsed.
func (r *Registry) Status(ctx context.Context) (Status, error) {
	lock, err := r.db.LatestSessionLock(ctx, r.resource)
	if errors.Is(err, db.ErrNotFound) {
		return Status{Available: true}, nil
	}
	if err != nil {
		return Status{}, fmt.Errorf("read session lock: %w", err)
	}

	remaining := lock.EndTime.Sub(r.now())
	if remaining <= 0 {
		return Status{Available: true}, nil
	}
	end := lock.EndTime.UTC()
	return Status{
		Available:        false,
		RemainingMinutes: int(math.Ceil(remaining.Minutes())),
		EndTime:          &end,
		Remaining:        remaining,
	}, nil
}

// Record starts a checkout window for holder beginning now.
func (r *Registry) Record(ctx context.Context, holder string) (*model.SessionLock, error) {
	start := r.now().UTC()
	lock := &model.SessionLock{
		ID:         uuid.NewString(),
		ResourceID: r.resource,
		HolderID:   holder,
		StartTime:  start,
		EndTime:    start.Add(r.checkout),
	}
	if err := r.db.CreateSessionLock(ctx, lock); err != nil {
		return nil, err
	}
	r.logger.Info("Recorded session checkout", "holder", holder, "end_time", lock.EndTime)
	return lock, nil
}
