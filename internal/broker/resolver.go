package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"toolbroker/internal/db"
	"toolbroker/internal/model"
)

type discoveryKey struct{}

// WithoutDiscovery marks ctx so Resolve never consults peer origins. Requests that arrive
// from a peer's discovery carry this mark, which stops two brokers from bouncing a code
// back and forth.
func WithoutDiscovery(ctx context.Context) context.Context {
	return context.WithValue(ctx, discoveryKey{}, true)
}

func discoveryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(discoveryKey{}).(bool)
	return v
}

// Redeemer turns a code into a grant somewhere else. Discovery implements it.
type Redeemer interface {
	Redeem(ctx context.Context, code string, service model.Service) (*model.Grant, error)
}

// Resolver exchanges a code for the operator's stored upstream credential.
type Resolver struct {
	codes     *CodeStore
	db        db.Service
	discovery Redeemer
	logger    *slog.Logger
}

// NewResolver creates a Resolver. discovery may be nil.
func NewResolver(codes *CodeStore, dbService db.Service, discovery Redeemer, logger *slog.Logger) *Resolver {
	return &Resolver{
		codes:     codes,
		db:        dbService,
		discovery: discovery,
		logger:    logger.With("component", "resolver"),
	}
}

// Resolve consumes code and mints a grant. No grant is produced unless Consume succeeds.
func (r *Resolver) Resolve(ctx context.Context, code string, service model.Service) (*model.Grant, error) {
	ac, err := r.codes.Consume(ctx, code, service)
	if err != nil {
		if errors.Is(err, ErrInvalid) && r.discovery != nil && !discoveryDisabled(ctx) {
			r.logger.Debug("Code unknown locally, trying discovery origins", "service", service)
			return r.discovery.Redeem(ctx, code, service)
		}
		return nil, err
	}

	cred, err := r.db.FindCredential(ctx, service, ac.PlanTier)
	if errors.Is(err, db.ErrNotFound) {
		r.logger.Error("No active credential for consumed code", "service", service, "plan_tier", ac.PlanTier)
		return nil, ErrNoCredential
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}

	issuedAt := time.Now().UTC()
	if ac.ConsumedAt != nil {
		issuedAt = *ac.ConsumedAt
	}
	return &model.Grant{
		Service:  service,
		IssuedAt: issuedAt,
		Payload:  cred.Payload,
	}, nil
}
