package models

import "time"

// MetricSnapshot is the latest observed state of the host. It is built once
// per polling cycle and never modified afterwards.
type MetricSnapshot struct {
	CPUPercent   float64          `json:"cpu_percent"`
	RAMPercent   float64          `json:"ram_percent"`
	DiskPercent  float64          `json:"disk_percent"`
	NetBytesSent uint64           `json:"net_bytes_sent"`
	NetBytesRecv uint64           `json:"net_bytes_recv"`
	Services     []ServiceState   `json:"services"`
	Containers   []ContainerState `json:"containers"`
	Agents       []AgentState     `json:"agents"`
	CapturedAt   time.Time        `json:"captured_at"`
}

// ServiceUp reports whether the named service is present and its liveness.
func (s *MetricSnapshot) ServiceUp(name string) (up, found bool) {
	for _, svc := range s.Services {
		if svc.Name == name {
			return svc.Up, true
		}
	}
	return false, false
}

// ContainerRunning reports whether the named container is present and running.
func (s *MetricSnapshot) ContainerRunning(name string) (running, found bool) {
	for _, c := range s.Containers {
		if c.Name == name {
			return c.Running, true
		}
	}
	return false, false
}

// AgentOnline reports whether the named agent is present and online.
func (s *MetricSnapshot) AgentOnline(name string) (online, found bool) {
	for _, a := range s.Agents {
		if a.Name == name {
			return a.Online, true
		}
	}
	return false, false
}
