//go:build integration

package client

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/churchtools-client/internal/testutil"
	"github.com/Sternrassler/churchtools-client/pkg/cache"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_AggregatedListIsCached(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetPaginated("/api/groups", groupItems(5), 2)

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	first, err := client.GetGroups(ctx, GroupsQuery{})
	if err != nil {
		t.Fatalf("GetGroups #1 failed: %v", err)
	}
	if len(first) != 5 {
		t.Fatalf("GetGroups #1 returned %d groups, want 5", len(first))
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests after #1 = %d, want 3", mock.GetRequestCount())
	}

	second, err := client.GetGroups(ctx, GroupsQuery{})
	if err != nil {
		t.Fatalf("GetGroups #2 failed: %v", err)
	}
	if len(second) != 5 {
		t.Errorf("GetGroups #2 returned %d groups, want 5", len(second))
	}
	if mock.GetRequestCount() != 3 {
		t.Errorf("requests after #2 = %d, want 3 (all pages cached)", mock.GetRequestCount())
	}
}

func TestIntegration_ConditionalRequestFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetHandler("/api/tags", testutil.NewConditionalHandler(`"tags-v1"`, `[{"id":1,"name":"Advent"}]`))

	client := newTestClient(t, mock.URL(), redisClient)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tags, err := client.GetTags(ctx, TagTypeSongs)
		if err != nil {
			t.Fatalf("GetTags #%d failed: %v", i+1, err)
		}
		if len(tags) != 1 || tags[0].Name != "Advent" {
			t.Errorf("GetTags #%d = %+v", i+1, tags)
		}
	}

	if mock.GetConditionalCount() != 2 {
		t.Errorf("conditional requests = %d, want 2", mock.GetConditionalCount())
	}

	entry, err := client.Cache().Get(ctx, cache.Key{
		Path:  "/api/tags",
		Query: map[string][]string{"type": {"songs"}},
		Scope: cache.ScopeFor("test-token"),
	})
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.ETag != `"tags-v1"` {
		t.Errorf("Cached ETag = %q, want %q", entry.ETag, `"tags-v1"`)
	}
}

func TestIntegration_SharedRateLimit(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetResponse("/api/songs", testutil.NewRateLimitResponse(120))

	first := newTestClient(t, mock.URL(), redisClient)
	first.config.MaxRateLimitWait = time.Second
	second := newTestClient(t, mock.URL(), redisClient)
	second.config.MaxRateLimitWait = time.Second

	ctx := context.Background()

	if _, err := first.GetSongs(ctx, SongsQuery{}); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("first client error = %v, want ErrRateLimited", err)
	}
	seen := mock.GetRequestCount()

	if _, err := second.GetSongs(ctx, SongsQuery{}); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second client error = %v, want ErrRateLimited", err)
	}
	if mock.GetRequestCount() != seen {
		t.Errorf("second client reached the server while blocked (%d -> %d requests)", seen, mock.GetRequestCount())
	}

	state, err := second.RateLimiter().GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() failed: %v", err)
	}
	if !state.Blocked(time.Now()) {
		t.Error("shared state should be blocked")
	}
}

func TestIntegration_CacheExpiration(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetObject("/api/groups/1", `{"id":1,"name":"Short lived"}`)

	cfg := DefaultConfig(mock.URL(), "test-token")
	cfg.Redis = redisClient
	cfg.CacheTTL = time.Second
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	if _, err := client.GetGroup(ctx, 1); err != nil {
		t.Fatalf("First request failed: %v", err)
	}

	key := cache.Key{Path: "/api/groups/1", Scope: cache.ScopeFor("test-token")}
	entry, err := client.Cache().Get(ctx, key)
	if err != nil {
		t.Fatalf("Cache lookup failed: %v", err)
	}
	if entry.IsExpired() {
		t.Error("Entry should not be expired yet")
	}

	time.Sleep(2 * time.Second)

	if _, err := client.Cache().Get(ctx, key); !errors.Is(err, cache.ErrCacheMiss) {
		t.Errorf("Expected cache miss after expiration, got: %v", err)
	}
}

func TestIntegration_MutationInvalidatesAggregatedList(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockChurchTools()
	defer mock.Close()
	mock.SetPaginated("GET /api/groups", []string{`{"id":1}`, `{"id":2}`, `{"id":3}`}, 2)
	mock.SetResponse("POST /api/groups", testutil.MockResponse{
		StatusCode: http.StatusCreated,
		Body:       `{"data":{"id":4,"name":"New"}}`,
	})

	cfg := DefaultConfig(mock.URL(), "test-token")
	cfg.Redis = redisClient
	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := client.GetGroups(ctx, GroupsQuery{}); err != nil {
			t.Fatalf("GetGroups() failed: %v", err)
		}
	}
	if got := len(mock.RequestsFor("GET", "/api/groups")); got != 2 {
		t.Fatalf("Expected 2 upstream page requests before the write, got %d", got)
	}

	if _, err := client.CreateGroup(ctx, CreateGroupRequest{Name: "New", GroupStatusID: 1, GroupTypeID: 1}); err != nil {
		t.Fatalf("CreateGroup() failed: %v", err)
	}

	if _, err := client.GetGroups(ctx, GroupsQuery{}); err != nil {
		t.Fatalf("GetGroups() after write failed: %v", err)
	}
	if got := len(mock.RequestsFor("GET", "/api/groups")); got != 4 {
		t.Errorf("Expected both pages to be refetched after the write, got %d requests", got)
	}
}
