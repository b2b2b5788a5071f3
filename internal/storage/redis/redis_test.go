package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/gdpr-admin/internal/storage"
)

// Интеграционные тесты: поднимают redis:7-alpine через testcontainers-go.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/redis -v -count=1

func startRedis(t *testing.T) string {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("redis://%s:%s/0", host, port.Port())
}

func TestNew_BadURL(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "://bad", "")
	require.Error(t, err)
}

func TestIntegration_SetGetDelete(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	s, err := New(ctx, url, "test:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "access_token")
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, s.Set(ctx, "access_token", "a1"))
	v, err := s.Get(ctx, "access_token")
	require.NoError(t, err)
	require.Equal(t, "a1", v)

	// Ключ физически лежит под префиксом.
	raw, err := s.rdb.Get(ctx, "test:access_token").Result()
	require.NoError(t, err)
	require.Equal(t, "a1", raw)

	require.NoError(t, s.Delete(ctx, "access_token"))
	_, err = s.Get(ctx, "access_token")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIntegration_TTL(t *testing.T) {
	url := startRedis(t)
	ctx := context.Background()

	s, err := New(ctx, url, "", WithTTL(time.Minute))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(ctx, "k", "v"))
	ttl, err := s.rdb.TTL(ctx, DefaultPrefix+"k").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
}
