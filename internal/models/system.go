package models

import "time"

// SystemReading is one probe of the host counters
type SystemReading struct {
	CPUPercent   float64   `json:"cpu_percent"`
	RAMPercent   float64   `json:"ram_percent"`
	DiskPercent  float64   `json:"disk_percent"`
	DiskPath     string    `json:"disk_path"`
	NetBytesSent uint64    `json:"net_bytes_sent"`
	NetBytesRecv uint64    `json:"net_bytes_recv"`
	CoreCount    int       `json:"core_count"`
	CapturedAt   time.Time `json:"captured_at"`
}

// ServiceState is the liveness of one systemd unit
type ServiceState struct {
	Name        string `json:"name"`
	ActiveState string `json:"active_state"`
	Up          bool   `json:"up"`
}

// ContainerState is the liveness of one Docker container
type ContainerState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Image   string `json:"image"`
	State   string `json:"state"`
	Running bool   `json:"running"`
}

// AgentState is the liveness of one agent as reported by its heartbeat file
type AgentState struct {
	Name     string    `json:"name"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
	Online   bool      `json:"online"`
}
