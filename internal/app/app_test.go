package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/config"
	"watchpost/internal/services"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.History.Path = filepath.Join(dir, "history.jsonl")
	cfg.Probes.DockerSocket = ""
	cfg.Probes.AgentsDir = filepath.Join(dir, "agents")
	cfg.Cache.WarmStartTimeout = 5 * time.Second
	return cfg
}

func TestNewSources(t *testing.T) {
	cfg := testConfig(t)
	cfg.Probes.ProcessesLimit = 0

	sources := NewSources(cfg.Probes, zerolog.Nop())
	assert.NotNil(t, sources.System)
	assert.NotNil(t, sources.Agents)
	assert.Nil(t, sources.Services, "no units configured")
	assert.Nil(t, sources.Containers, "no docker socket")
	assert.Nil(t, sources.Processes)

	cfg.Probes.Services = []string{"nginx.service"}
	cfg.Probes.DockerSocket = "/var/run/docker.sock"
	cfg.Probes.ProcessesLimit = 10
	sources = NewSources(cfg.Probes, zerolog.Nop())
	assert.NotNil(t, sources.Services)
	assert.NotNil(t, sources.Containers)
	assert.NotNil(t, sources.Processes)
}

func TestNewNotifier(t *testing.T) {
	cfg := testConfig(t)

	assert.IsType(t, &services.LogNotifier{}, NewNotifier(cfg.Notifier, zerolog.Nop()))

	cfg.Notifier.Telegram.Token = "123:abc"
	cfg.Notifier.Telegram.ChatID = "42"
	assert.IsType(t, &services.TelegramNotifier{}, NewNotifier(cfg.Notifier, zerolog.Nop()))
}

func TestNew_RejectsShortAuthSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Secret = "short"

	_, err := New(cfg, "", zerolog.Nop())
	assert.ErrorIs(t, err, services.ErrSecretTooShort)
}

func TestRun_WarmsThenStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), "", zerolog.Nop())
	require.NoError(t, err)
	assert.False(t, a.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	require.Eventually(t, a.Ready, 10*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return a.snapshots.Bus().Latest() != nil
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
