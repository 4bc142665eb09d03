package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"

	"watchpost/internal/models"
)

// SystemProbe reads host counters through gopsutil.
type SystemProbe struct {
	DiskPath string
}

// Probe returns CPU, memory and disk usage plus aggregate network counters.
// The key is ignored; there is a single host.
func (p *SystemProbe) Probe(ctx context.Context, _ string) (models.SystemReading, error) {
	path := p.DiskPath
	if path == "" {
		path = "/"
	}

	percentage, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return models.SystemReading{}, fmt.Errorf("failed to get CPU usage: %w", err)
	}
	if len(percentage) == 0 {
		return models.SystemReading{}, errors.New("failed to get CPU usage: no data")
	}

	coreCount, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		coreCount = 0
	}

	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return models.SystemReading{}, fmt.Errorf("failed to get memory usage: %w", err)
	}

	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return models.SystemReading{}, fmt.Errorf("failed to get disk usage for %s: %w", path, err)
	}

	// pernic=false yields a single "all" entry
	counters, err := psnet.IOCountersWithContext(ctx, false)
	if err != nil {
		return models.SystemReading{}, fmt.Errorf("failed to get network usage: %w", err)
	}
	var sent, recv uint64
	for _, c := range counters {
		sent += c.BytesSent
		recv += c.BytesRecv
	}

	return models.SystemReading{
		CPUPercent:   percentage[0],
		RAMPercent:   virtualMemory.UsedPercent,
		DiskPercent:  usage.UsedPercent,
		DiskPath:     path,
		NetBytesSent: sent,
		NetBytesRecv: recv,
		CoreCount:    coreCount,
		CapturedAt:   time.Now(),
	}, nil
}

// unitLister is the part of the systemd D-Bus connection the service probe uses
type unitLister interface {
	ListUnitsByNamesContext(ctx context.Context, units []string) ([]dbus.UnitStatus, error)
	Close()
}

// ServiceProbe reports the ActiveState of configured systemd units.
type ServiceProbe struct {
	Units []string
	dial  func(ctx context.Context) (unitLister, error)
}

// NewServiceProbe creates a probe for units over the system bus.
func NewServiceProbe(units []string) *ServiceProbe {
	return &ServiceProbe{
		Units: units,
		dial: func(ctx context.Context) (unitLister, error) {
			return dbus.NewSystemdConnectionContext(ctx)
		},
	}
}

// Probe lists the configured units. Units systemd has never heard of are
// omitted, so rules targeting them see an absent target.
func (p *ServiceProbe) Probe(ctx context.Context, _ string) ([]models.ServiceState, error) {
	if len(p.Units) == 0 {
		return []models.ServiceState{}, nil
	}

	conn, err := p.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	defer conn.Close()

	units, err := conn.ListUnitsByNamesContext(ctx, p.Units)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	states := make([]models.ServiceState, 0, len(units))
	for _, u := range units {
		if u.LoadState == "not-found" {
			continue
		}
		states = append(states, models.ServiceState{
			Name:        u.Name,
			ActiveState: u.ActiveState,
			Up:          u.ActiveState == "active",
		})
	}
	return states, nil
}

// dockerContainer is the subset of the Engine API container summary we read
type dockerContainer struct {
	ID    string   `json:"Id"`
	Names []string `json:"Names"`
	Image string   `json:"Image"`
	State string   `json:"State"`
}

// ContainerProbe lists containers through the Docker Engine API.
type ContainerProbe struct {
	httpClient *resty.Client
	logger     zerolog.Logger
}

// NewContainerProbe creates a probe that talks to the Engine API over the
// unix socket at socketPath.
func NewContainerProbe(socketPath string, timeout time.Duration, logger zerolog.Logger) *ContainerProbe {
	if socketPath == "" {
		socketPath = "/var/run/docker.sock"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	dialer := &net.Dialer{Timeout: 3 * time.Second}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", socketPath)
		},
	}
	httpClient := resty.New().
		SetTransport(transport).
		SetBaseURL("http://docker").
		SetTimeout(timeout)
	return newContainerProbe(httpClient, logger)
}

func newContainerProbe(httpClient *resty.Client, logger zerolog.Logger) *ContainerProbe {
	return &ContainerProbe{
		httpClient: httpClient,
		logger:     logger.With().Str("component", "docker-client").Logger(),
	}
}

// Probe returns every container, running or not.
func (p *ContainerProbe) Probe(ctx context.Context, _ string) ([]models.ContainerState, error) {
	var result []dockerContainer
	resp, err := p.httpClient.R().
		SetContext(ctx).
		SetQueryParam("all", "1").
		SetResult(&result).
		Get("/containers/json")
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		p.logger.Debug().Int("status_code", resp.StatusCode()).Str("body", string(resp.Body())).Msg("docker API returned non-200 status")
		return nil, fmt.Errorf("docker API returned status %d", resp.StatusCode())
	}

	states := make([]models.ContainerState, 0, len(result))
	for _, c := range result {
		name := c.ID
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		states = append(states, models.ContainerState{
			ID:      c.ID,
			Name:    name,
			Image:   c.Image,
			State:   c.State,
			Running: c.State == "running",
		})
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Name < states[j].Name })
	return states, nil
}

// heartbeat is the file an agent writes into the agents directory
type heartbeat struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AgentProbe reads agent heartbeat files from a directory.
type AgentProbe struct {
	Dir        string
	StaleAfter time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAgentProbe creates a probe over dir. An agent whose heartbeat is older
// than staleAfter is offline regardless of the status it last wrote.
func NewAgentProbe(dir string, staleAfter time.Duration, logger zerolog.Logger) *AgentProbe {
	if staleAfter == 0 {
		staleAfter = 2 * time.Minute
	}
	return &AgentProbe{
		Dir:        dir,
		StaleAfter: staleAfter,
		logger:     logger.With().Str("component", "agents").Logger(),
		now:        time.Now,
	}
}

// Probe returns one AgentState per readable *.json file, sorted by name.
// A missing directory means no agents.
func (p *AgentProbe) Probe(ctx context.Context, _ string) ([]models.AgentState, error) {
	if p.Dir == "" {
		return []models.AgentState{}, nil
	}

	files, err := os.ReadDir(p.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []models.AgentState{}, nil
		}
		return nil, fmt.Errorf("failed to read agents directory: %w", err)
	}

	now := p.now()
	agents := make([]models.AgentState, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || filepath.Ext(f.Name()) != ".json" {
			continue
		}

		path := filepath.Join(p.Dir, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn().Err(err).Str("file", path).Msg("skipping unreadable heartbeat")
			continue
		}
		var hb heartbeat
		if err := json.Unmarshal(data, &hb); err != nil {
			p.logger.Warn().Err(err).Str("file", path).Msg("skipping malformed heartbeat")
			continue
		}
		if hb.Name == "" {
			hb.Name = strings.TrimSuffix(f.Name(), ".json")
		}

		fresh := !hb.UpdatedAt.IsZero() && now.Sub(hb.UpdatedAt) < p.StaleAfter
		agents = append(agents, models.AgentState{
			Name:     hb.Name,
			Status:   hb.Status,
			LastSeen: hb.UpdatedAt,
			Online:   hb.Status == "online" && fresh,
		})
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Name < agents[j].Name })
	return agents, nil
}
