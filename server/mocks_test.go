package server

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"golang.org/x/time/rate"

	"gennia/domain/room"
	"gennia/storage"
)

type MockPlayerStore struct {
	mock.Mock
}

func (m *MockPlayerStore) Resolve(ctx context.Context, username, playerID string) (storage.Resolution, error) {
	args := m.Called(ctx, username, playerID)
	return args.Get(0).(storage.Resolution), args.Error(1)
}

func (m *MockPlayerStore) RegisterPlayer(ctx context.Context, username, email string) (string, error) {
	args := m.Called(ctx, username, email)
	return args.String(0), args.Error(1)
}

type MockMapStore struct {
	mock.Mock
}

func (m *MockMapStore) LookupMap(ctx context.Context, mapID string) (room.MapInfo, error) {
	args := m.Called(ctx, mapID)
	return args.Get(0).(room.MapInfo), args.Error(1)
}

func (m *MockMapStore) CreateMap(ctx context.Context, name string, width, height int, creatorID string) (string, error) {
	args := m.Called(ctx, name, width, height, creatorID)
	return args.String(0), args.Error(1)
}

func (m *MockMapStore) ViewMap(ctx context.Context, mapID string) (storage.MapDetails, error) {
	args := m.Called(ctx, mapID)
	return args.Get(0).(storage.MapDetails), args.Error(1)
}

type fixture struct {
	srv     *httptest.Server
	pool    *room.Pool
	hub     *Hub
	players *MockPlayerStore
	maps    *MockMapStore
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	limit rate.Limit
	burst int
}

func withRate(limit rate.Limit, burst int) fixtureOption {
	return func(c *fixtureConfig) {
		c.limit = limit
		c.burst = burst
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := fixtureConfig{limit: rate.Inf, burst: 1}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		players: new(MockPlayerStore),
		maps:    new(MockMapStore),
		hub:     NewHub(nil),
	}
	f.pool = room.NewPool(3, f.maps)
	f.srv = httptest.NewServer(NewRouter(Deps{
		Rooms:          f.pool,
		Hub:            f.hub,
		Players:        f.players,
		Maps:           f.maps,
		Socket:         NewSocketHandler(f.pool, f.hub, f.players, cfg.limit, cfg.burst),
		AllowedOrigins: []string{"https://gennia.online"},
	}))
	t.Cleanup(f.srv.Close)
	return f
}
