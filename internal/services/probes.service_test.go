package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUnits struct {
	units  []dbus.UnitStatus
	err    error
	closed bool
}

func (f *fakeUnits) ListUnitsByNamesContext(ctx context.Context, names []string) ([]dbus.UnitStatus, error) {
	return f.units, f.err
}

func (f *fakeUnits) Close() { f.closed = true }

func TestServiceProbe(t *testing.T) {
	fake := &fakeUnits{units: []dbus.UnitStatus{
		{Name: "nginx.service", LoadState: "loaded", ActiveState: "active"},
		{Name: "redis.service", LoadState: "loaded", ActiveState: "failed"},
		{Name: "typo.service", LoadState: "not-found", ActiveState: "inactive"},
	}}
	p := &ServiceProbe{
		Units: []string{"nginx.service", "redis.service", "typo.service"},
		dial:  func(ctx context.Context) (unitLister, error) { return fake, nil },
	}

	states, err := p.Probe(context.Background(), "services")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.True(t, states[0].Up)
	assert.False(t, states[1].Up)
	assert.Equal(t, "failed", states[1].ActiveState)
	assert.True(t, fake.closed)
}

func TestServiceProbe_Errors(t *testing.T) {
	p := &ServiceProbe{
		Units: []string{"nginx.service"},
		dial: func(ctx context.Context) (unitLister, error) {
			return nil, errors.New("no bus")
		},
	}
	_, err := p.Probe(context.Background(), "services")
	assert.ErrorContains(t, err, "failed to connect to systemd")

	p.dial = func(ctx context.Context) (unitLister, error) {
		return &fakeUnits{err: errors.New("access denied")}, nil
	}
	_, err = p.Probe(context.Background(), "services")
	assert.ErrorContains(t, err, "access denied")
}

func TestServiceProbe_NoUnitsConfigured(t *testing.T) {
	p := NewServiceProbe(nil)
	states, err := p.Probe(context.Background(), "services")
	require.NoError(t, err)
	assert.Empty(t, states)
}

func TestContainerProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/containers/json", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("all"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"Id":"b2","Names":["/web"],"Image":"nginx:1.27","State":"running"},
			{"Id":"a1","Names":["/db"],"Image":"postgres:16","State":"exited"}
		]`))
	}))
	defer srv.Close()

	p := newContainerProbe(resty.New().SetBaseURL(srv.URL), zerolog.Nop())
	states, err := p.Probe(context.Background(), "containers")
	require.NoError(t, err)
	require.Len(t, states, 2)

	assert.Equal(t, "db", states[0].Name)
	assert.False(t, states[0].Running)
	assert.Equal(t, "web", states[1].Name)
	assert.True(t, states[1].Running)
	assert.Equal(t, "nginx:1.27", states[1].Image)
}

func TestContainerProbe_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "daemon busy", http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := newContainerProbe(resty.New().SetBaseURL(srv.URL), zerolog.Nop())
	_, err := p.Probe(context.Background(), "containers")
	assert.ErrorContains(t, err, "status 500")
}

func TestAgentProbe(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("edge-1.json", `{"name":"edge-1","status":"online","updated_at":"2026-03-01T11:59:30Z"}`)
	write("edge-2.json", `{"status":"online","updated_at":"2026-03-01T11:00:00Z"}`)
	write("edge-3.json", `{"name":"edge-3","status":"draining","updated_at":"2026-03-01T11:59:50Z"}`)
	write("broken.json", `{"name":`)
	write("notes.txt", `ignored`)

	p := NewAgentProbe(dir, 2*time.Minute, zerolog.Nop())
	p.now = func() time.Time { return now }

	agents, err := p.Probe(context.Background(), "agents")
	require.NoError(t, err)
	require.Len(t, agents, 3)

	assert.Equal(t, "edge-1", agents[0].Name)
	assert.True(t, agents[0].Online)
	assert.Equal(t, "edge-2", agents[1].Name, "name falls back to the file name")
	assert.False(t, agents[1].Online, "stale heartbeat")
	assert.False(t, agents[2].Online, "status is not online")
}

func TestAgentProbe_MissingDirectory(t *testing.T) {
	p := NewAgentProbe(filepath.Join(t.TempDir(), "absent"), time.Minute, zerolog.Nop())
	agents, err := p.Probe(context.Background(), "agents")
	require.NoError(t, err)
	assert.Empty(t, agents)
	assert.NotNil(t, agents)
}
