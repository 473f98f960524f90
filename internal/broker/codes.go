package broker

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"toolbroker/internal/db"
	"toolbroker/internal/model"
)

const (
	// DefaultCodeTTL is the fixed lifetime of an issued code.
	DefaultCodeTTL = 120 * time.Second

	codeLength   = 16
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // 32 symbols, 5 bits each
	issueRetries = 3
)

// CodeStore issues and consumes single-use auth codes.
type CodeStore struct {
	db     db.Service
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// CodeStoreOption customizes a CodeStore.
type CodeStoreOption func(*CodeStore)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CodeStoreOption {
	return func(s *CodeStore) { s.now = now }
}

// NewCodeStore creates a CodeStore. A zero ttl means DefaultCodeTTL.
func NewCodeStore(dbService db.Service, ttl time.Duration, logger *slog.Logger, opts ...CodeStoreOption) *CodeStore {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	s := &CodeStore{
		db:     dbService,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "codestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue persists a fresh code for service on behalf of owner.
func (s *CodeStore) Issue(ctx context.Context, service model.Service, owner model.OwnerContext) (*model.AuthCode, error) {
	now := s.now().UTC()
	for attempt := 0; attempt < issueRetries; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, fmt.Errorf("generate code: %w", err)
		}
		ac := &model.AuthCode{
			Code:       code,
			Service:    service,
			OwnerID:    owner.SubscriberID,
			OwnerEmail: owner.Email,
			PlanTier:   owner.PlanTier,
			IssuedAt:   now,
			ExpiresAt:  now.Add(s.ttl),
		}
		err = s.db.CreateAuthCode(ctx, ac)
		if err == nil {
			s.logger.Info("Issued auth code", "service", service, "subscriber_id", owner.SubscriberID)
			return ac, nil
		}
		if !errors.Is(err, db.ErrDuplicate) {
			s.logger.Error("Failed to persist auth code", "service", service, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
		}
	}
	return nil, fmt.Errorf("%w: could not allocate a unique code", ErrUpstreamUnreachable)
}

// Consume redeems code for service. Exactly one call per code succeeds; the decisive write is a
// single conditional update in the store, so concurrent callers on any number of processes race
// safely.
func (s *CodeStore) Consume(ctx context.Context, code string, service model.Service) (*model.AuthCode, error) {
	code = strings.TrimSpace(code)
	if code == "" || len(code) > 64 {
		return nil, ErrInvalid
	}
	now := s.now().UTC()

	ac, err := s.db.GetAuthCode(ctx, code)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	if ac.Service != service {
		return nil, ErrServiceMismatch
	}

	applied, err := s.db.ConsumeAuthCode(ctx, code, service, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnreachable, err)
	}
	if !applied {
		// The pre-read and the update share one instant, so an unconsumed, unexpired
		// row that still failed to update was taken by a concurrent caller.
		if !ac.Consumed() && ac.ExpiredAt(now) {
			return nil, ErrExpired
		}
		return nil, ErrAlreadyConsumed
	}

	ac.ConsumedAt = &now
	s.logger.Info("Consumed auth code", "service", service, "subscriber_id", ac.OwnerID)
	return ac, nil
}

func generateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = codeAlphabet[int(b[i])%len(codeAlphabet)]
	}
	return string(b), nil
}
