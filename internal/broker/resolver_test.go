package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"toolbroker/internal/logger"
	"toolbroker/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRedeemer struct {
	mock.Mock
}

func (m *mockRedeemer) Redeem(ctx context.Context, code string, service model.Service) (*model.Grant, error) {
	args := m.Called(code, service)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Grant), args.Error(1)
}

func TestResolve(t *testing.T) {
	store, dbService, clock := setupStore(t)
	ctx := context.Background()
	require.NoError(t, dbService.CreateCredential(ctx, &model.Credential{
		Service: model.ServicePipiads, Status: "active",
		Payload: model.CredentialPayload{Cookies: map[string]string{"PHPSESSID": "shared"}},
	}))
	ac, err := store.Issue(ctx, model.ServicePipiads, model.OwnerContext{PlanTier: "pro"})
	require.NoError(t, err)

	resolver := NewResolver(store, dbService, nil, logger.Discard())
	clock.Set(t0.Add(30 * time.Second))
	grant, err := resolver.Resolve(ctx, ac.Code, model.ServicePipiads)
	require.NoError(t, err)
	assert.Equal(t, model.ServicePipiads, grant.Service)
	assert.Equal(t, "shared", grant.Payload.Cookies["PHPSESSID"])
	assert.Equal(t, t0.Add(30*time.Second), grant.IssuedAt)

	_, err = resolver.Resolve(ctx, ac.Code, model.ServicePipiads)
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestResolve_NoCredential(t *testing.T) {
	store, dbService, _ := setupStore(t)
	ctx := context.Background()
	ac, err := store.Issue(ctx, model.ServiceBrainFM, model.OwnerContext{})
	require.NoError(t, err)

	resolver := NewResolver(store, dbService, nil, logger.Discard())
	_, err = resolver.Resolve(ctx, ac.Code, model.ServiceBrainFM)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestResolve_DiscoveryOnlyForUnknownCodes(t *testing.T) {
	store, dbService, clock := setupStore(t)
	ctx := context.Background()
	seedCode(t, dbService, "LOCAL001", model.ServicePipiads, t0)

	remote := &model.Grant{Service: model.ServicePipiads}
	redeemer := new(mockRedeemer)
	redeemer.On("Redeem", "REMOTE01", model.ServicePipiads).Return(remote, nil)

	resolver := NewResolver(store, dbService, redeemer, logger.Discard())

	grant, err := resolver.Resolve(ctx, "REMOTE01", model.ServicePipiads)
	require.NoError(t, err)
	assert.Same(t, remote, grant)

	// Expired locally is authoritative.
	clock.Set(t0.Add(time.Hour))
	_, err = resolver.Resolve(ctx, "LOCAL001", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrExpired)

	// Peer-originated requests never fan out again.
	_, err = resolver.Resolve(WithoutDiscovery(ctx), "REMOTE01", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrInvalid)

	redeemer.AssertNumberOfCalls(t, "Redeem", 1)
}

func TestDiscovery_FirstOKWins(t *testing.T) {
	var hits []string
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "down")
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer down.Close()
	unknown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "unknown")
		json.NewEncoder(w).Encode(RedeemResponse{OK: false, Error: "invalid"})
	}))
	defer unknown.Close()
	owner := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "owner")
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/auth-codes", r.URL.Path)
		assert.Equal(t, "1", r.Header.Get(DiscoveryHeader))
		var req RedeemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, RedeemRequest{Code: "ABC", Service: "elevenlabs"}, req)
		json.NewEncoder(w).Encode(RedeemResponse{OK: true, Grant: &model.Grant{Service: model.ServiceElevenLabs}})
	}))
	defer owner.Close()
	never := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, "never")
	}))
	defer never.Close()

	d := NewDiscovery([]string{down.URL, unknown.URL, owner.URL + "/", never.URL}, time.Second, nil, logger.Discard())
	grant, err := d.Redeem(context.Background(), "ABC", model.ServiceElevenLabs)
	require.NoError(t, err)
	assert.Equal(t, model.ServiceElevenLabs, grant.Service)
	assert.Equal(t, []string{"down", "unknown", "owner"}, hits)
}

func TestDiscovery_TimeoutMovesOn(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)
	expired := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(RedeemResponse{OK: false, Error: "expired"})
	}))
	defer expired.Close()

	d := NewDiscovery([]string{slow.URL, expired.URL}, 50*time.Millisecond, nil, logger.Discard())
	_, err := d.Redeem(context.Background(), "ABC", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestDiscovery_AllUnreachable(t *testing.T) {
	d := NewDiscovery([]string{"http://127.0.0.1:1"}, 100*time.Millisecond, nil, logger.Discard())
	_, err := d.Redeem(context.Background(), "ABC", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrUpstreamUnreachable)
}

func TestDiscovery_AllUnknown(t *testing.T) {
	unknown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(RedeemResponse{OK: false, Error: "invalid"})
	}))
	defer unknown.Close()

	d := NewDiscovery([]string{unknown.URL, unknown.URL}, time.Second, nil, logger.Discard())
	_, err := d.Redeem(context.Background(), "ABC", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestDiscovery_RateLimitedPeerIsNotInvalid(t *testing.T) {
	throttled := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": "rate_limited"})
	}))
	defer throttled.Close()
	unknown := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(RedeemResponse{OK: false, Error: "invalid"})
	}))
	defer unknown.Close()

	d := NewDiscovery([]string{throttled.URL, unknown.URL}, time.Second, nil, logger.Discard())
	_, err := d.Redeem(context.Background(), "ABC", model.ServicePipiads)
	assert.ErrorIs(t, err, ErrUpstreamUnreachable)
	assert.Equal(t, "upstream_unreachable", Code(err))
}
