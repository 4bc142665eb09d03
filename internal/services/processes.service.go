package services

import (
	"context"
	"sort"

	"github.com/shirou/gopsutil/v3/process"

	"watchpost/internal/models"
)

// DefaultProcessLimit is how many processes the probe keeps
const DefaultProcessLimit = 20

// ProcessProbe lists the heaviest processes, ranked by CPU plus memory.
type ProcessProbe struct {
	Limit int

	list func(ctx context.Context) ([]models.ProcessStatus, error)
}

// NewProcessProbe creates a probe keeping the top limit processes
func NewProcessProbe(limit int) *ProcessProbe {
	if limit <= 0 {
		limit = DefaultProcessLimit
	}
	return &ProcessProbe{Limit: limit, list: listProcesses}
}

// Probe implements ProbeFunc for the processes cache.
// Pipeline: collect, score, sort, limit.
func (p *ProcessProbe) Probe(ctx context.Context, _ string) (models.ProcessList, error) {
	all, err := p.list(ctx)
	if err != nil {
		return models.ProcessList{}, err
	}

	sort.SliceStable(all, func(i, j int) bool {
		return score(all[i]) > score(all[j])
	})
	if len(all) > p.Limit {
		all = all[:p.Limit]
	}

	out := models.ProcessList{Processes: all}
	for _, ps := range all {
		out.TotalCPU += ps.CPUPercent
		out.TotalMem += ps.MemPercent
	}
	return out, nil
}

func score(ps models.ProcessStatus) float64 {
	return ps.CPUPercent + float64(ps.MemPercent)
}

// listProcesses collects every visible process. Processes that exit or deny
// access mid-scan are skipped.
func listProcesses(ctx context.Context) ([]models.ProcessStatus, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]models.ProcessStatus, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		cpuPercent, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpuPercent = 0
		}
		memPercent, err := p.MemoryPercentWithContext(ctx)
		if err != nil {
			memPercent = 0
		}
		state := "unknown"
		if status, err := p.StatusWithContext(ctx); err == nil && len(status) > 0 {
			state = mapProcessState(status[0])
		}

		out = append(out, models.ProcessStatus{
			PID:        p.Pid,
			Name:       name,
			CPUPercent: cpuPercent,
			MemPercent: memPercent,
			Status:     state,
		})
	}
	return out, nil
}

// mapProcessState converts process state codes and gopsutil state names to
// readable strings
func mapProcessState(state string) string {
	switch state {
	case "":
		return "unknown"
	case process.Running:
		return "running"
	case process.Sleep:
		return "sleeping"
	case process.Idle:
		return "idle"
	case process.Stop:
		return "stopped"
	case process.Zombie:
		return "zombie"
	case process.Blocked:
		return "disk_sleep"
	case process.Wait:
		return "waiting"
	case process.Lock:
		return "locked"
	}
	switch state[0] {
	case 'R':
		return "running"
	case 'S':
		return "sleeping"
	case 'D':
		return "disk_sleep"
	case 'Z':
		return "zombie"
	case 'T':
		return "stopped"
	case 't':
		return "tracing_stop"
	case 'W':
		return "paging"
	case 'X':
		return "dead"
	case 'I':
		return "idle"
	}
	return "unknown"
}
