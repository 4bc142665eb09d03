package services

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"watchpost/internal/models"
)

// Cache keys, one per data source
const (
	keySystem     = "system"
	keyServices   = "services"
	keyContainers = "containers"
	keyAgents     = "agents"
	keyProcesses  = "processes"
)

// SnapshotSource is anything that can hand out the latest published snapshot.
type SnapshotSource interface {
	Latest() *models.MetricSnapshot
}

// SnapshotBus holds the most recently published snapshot. Readers get the
// pointer as published and must not modify it.
type SnapshotBus struct {
	latest atomic.Pointer[models.MetricSnapshot]
}

// NewSnapshotBus creates an empty bus
func NewSnapshotBus() *SnapshotBus {
	return &SnapshotBus{}
}

// Publish replaces the latest snapshot
func (b *SnapshotBus) Publish(s *models.MetricSnapshot) {
	b.latest.Store(s)
}

// Latest returns the latest snapshot, or nil if nothing was published yet.
func (b *SnapshotBus) Latest() *models.MetricSnapshot {
	return b.latest.Load()
}

// SnapshotListener is told about every published snapshot. It must not block.
type SnapshotListener interface {
	OnSnapshot(s *models.MetricSnapshot)
}

// SnapshotSources are the probes behind each cache. A nil source reports
// nothing for its part of the snapshot.
type SnapshotSources struct {
	System     ProbeFunc[models.SystemReading]
	Services   ProbeFunc[[]models.ServiceState]
	Containers ProbeFunc[[]models.ContainerState]
	Agents     ProbeFunc[[]models.AgentState]
	Processes  ProbeFunc[models.ProcessList]
}

// SnapshotOptions configures the snapshot service
type SnapshotOptions struct {
	TTL               time.Duration
	Interval          time.Duration
	SystemTimeout     time.Duration
	ServicesTimeout   time.Duration
	ContainersTimeout time.Duration
	AgentsTimeout     time.Duration
	ProcessesTimeout  time.Duration
}

// CacheInfo groups the entries of one cache for diagnostics
type CacheInfo struct {
	Cache   string      `json:"cache"`
	Entries []EntryInfo `json:"entries"`
}

// SnapshotService assembles snapshots from the revalidating caches and
// publishes them to the bus.
type SnapshotService struct {
	bus        *SnapshotBus
	opts       SnapshotOptions
	logger     zerolog.Logger
	listener   SnapshotListener
	now        func() time.Time
	system     *RevalidatingCache[models.SystemReading]
	services   *RevalidatingCache[[]models.ServiceState]
	containers *RevalidatingCache[[]models.ContainerState]
	agents     *RevalidatingCache[[]models.AgentState]
	processes  *RevalidatingCache[models.ProcessList]
}

// NewSnapshotService creates one cache per configured source.
func NewSnapshotService(bus *SnapshotBus, sources SnapshotSources, opts SnapshotOptions, logger zerolog.Logger) *SnapshotService {
	if opts.TTL <= 0 {
		opts.TTL = 10 * time.Second
	}
	if opts.Interval <= 0 {
		opts.Interval = 10 * time.Second
	}

	s := &SnapshotService{
		bus:    bus,
		opts:   opts,
		logger: logger.With().Str("component", "snapshot").Logger(),
		now:    time.Now,
	}
	if sources.System != nil {
		s.system = NewRevalidatingCache(keySystem, sources.System, CacheOptions{Timeout: opts.SystemTimeout}, logger)
	}
	if sources.Services != nil {
		s.services = NewRevalidatingCache(keyServices, sources.Services, CacheOptions{Timeout: opts.ServicesTimeout}, logger)
	}
	if sources.Containers != nil {
		s.containers = NewRevalidatingCache(keyContainers, sources.Containers, CacheOptions{Timeout: opts.ContainersTimeout}, logger)
	}
	if sources.Agents != nil {
		s.agents = NewRevalidatingCache(keyAgents, sources.Agents, CacheOptions{Timeout: opts.AgentsTimeout}, logger)
	}
	if sources.Processes != nil {
		s.processes = NewRevalidatingCache(keyProcesses, sources.Processes, CacheOptions{Timeout: opts.ProcessesTimeout}, logger)
	}
	return s
}

// SetListener registers l to be told about every publish
func (s *SnapshotService) SetListener(l SnapshotListener) {
	s.listener = l
}

// Bus returns the bus the service publishes to
func (s *SnapshotService) Bus() *SnapshotBus {
	return s.bus
}

// Current assembles a snapshot from whatever the caches hold right now. It
// never waits for a probe.
func (s *SnapshotService) Current() *models.MetricSnapshot {
	ttl := s.opts.TTL
	snap := &models.MetricSnapshot{
		Services:   []models.ServiceState{},
		Containers: []models.ContainerState{},
		Agents:     []models.AgentState{},
		CapturedAt: s.now(),
	}

	if s.system != nil {
		sys := s.system.Get(keySystem, ttl, models.SystemReading{})
		snap.CPUPercent = sys.CPUPercent
		snap.RAMPercent = sys.RAMPercent
		snap.DiskPercent = sys.DiskPercent
		snap.NetBytesSent = sys.NetBytesSent
		snap.NetBytesRecv = sys.NetBytesRecv
	}
	if s.services != nil {
		if v := s.services.Get(keyServices, ttl, nil); v != nil {
			snap.Services = v
		}
	}
	if s.containers != nil {
		if v := s.containers.Get(keyContainers, ttl, nil); v != nil {
			snap.Containers = v
		}
	}
	if s.agents != nil {
		if v := s.agents.Get(keyAgents, ttl, nil); v != nil {
			snap.Agents = v
		}
	}
	return snap
}

// Processes returns the cached top-processes list. It is kept out of the
// snapshot and only probed when asked for.
func (s *SnapshotService) Processes() models.ProcessList {
	empty := models.ProcessList{Processes: []models.ProcessStatus{}}
	if s.processes == nil {
		return empty
	}
	list := s.processes.Get(keyProcesses, s.opts.TTL, empty)
	if list.Processes == nil {
		list.Processes = []models.ProcessStatus{}
	}
	return list
}

// Publish assembles a snapshot and publishes it to the bus.
func (s *SnapshotService) Publish() *models.MetricSnapshot {
	snap := s.Current()
	s.bus.Publish(snap)
	if s.listener != nil {
		s.listener.OnSnapshot(snap)
	}
	return snap
}

// Run publishes immediately and then every interval until ctx is cancelled.
func (s *SnapshotService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.Publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Publish()
		}
	}
}

// Warm runs one blocking round of every probe so the first snapshot holds
// real data, then publishes it.
func (s *SnapshotService) Warm(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	if s.system != nil {
		g.Go(func() error { return s.system.Warm(gctx, []string{keySystem}) })
	}
	if s.services != nil {
		g.Go(func() error { return s.services.Warm(gctx, []string{keyServices}) })
	}
	if s.containers != nil {
		g.Go(func() error { return s.containers.Warm(gctx, []string{keyContainers}) })
	}
	if s.agents != nil {
		g.Go(func() error { return s.agents.Warm(gctx, []string{keyAgents}) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.Publish()
	s.logger.Info().Msg("warm start complete")
	return nil
}

// Caches returns diagnostics for every cache
func (s *SnapshotService) Caches() []CacheInfo {
	out := make([]CacheInfo, 0, 5)
	if s.system != nil {
		out = append(out, CacheInfo{Cache: s.system.Name(), Entries: s.system.Entries()})
	}
	if s.services != nil {
		out = append(out, CacheInfo{Cache: s.services.Name(), Entries: s.services.Entries()})
	}
	if s.containers != nil {
		out = append(out, CacheInfo{Cache: s.containers.Name(), Entries: s.containers.Entries()})
	}
	if s.agents != nil {
		out = append(out, CacheInfo{Cache: s.agents.Name(), Entries: s.agents.Entries()})
	}
	if s.processes != nil {
		out = append(out, CacheInfo{Cache: s.processes.Name(), Entries: s.processes.Entries()})
	}
	return out
}

// Close stops in-flight probes
func (s *SnapshotService) Close() {
	if s.system != nil {
		s.system.Close()
	}
	if s.services != nil {
		s.services.Close()
	}
	if s.containers != nil {
		s.containers.Close()
	}
	if s.agents != nil {
		s.agents.Close()
	}
	if s.processes != nil {
		s.processes.Close()
	}
}
