package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/bookstore-storefront/internal/config"
)

func testConfig(mr *miniredis.Miniredis) *config.Config {
	cfg := config.FromEnv()
	cfg.Redis.Host = mr.Host()
	cfg.Redis.Port = mr.Port()
	return cfg
}

func TestNewConnection(t *testing.T) {
	mr := miniredis.RunT(t)
	logger, hook := logtest.NewNullLogger()

	client, err := NewConnection(testConfig(mr), logger)
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Health(context.Background()))
	assert.Equal(t, "Redis connection established", hook.LastEntry().Message)
}

func TestNewConnection_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(mr)
	mr.Close()
	logger, _ := logtest.NewNullLogger()

	_, err := NewConnection(cfg, logger)
	assert.Error(t, err)
}

func TestHealth_AfterServerStops(t *testing.T) {
	mr := miniredis.RunT(t)
	logger, _ := logtest.NewNullLogger()
	client, err := NewConnection(testConfig(mr), logger)
	require.NoError(t, err)
	defer client.Close()

	mr.Close()
	assert.Error(t, client.Health(context.Background()))
}
