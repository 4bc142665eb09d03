package models

// ProcessStatus is one entry of the top-processes list
type ProcessStatus struct {
	PID        int32   `json:"pid"`
	Name       string  `json:"name"`
	CPUPercent float64 `json:"cpu_percent"`
	MemPercent float32 `json:"mem_percent"`
	Status     string  `json:"status"`
}

// ProcessList is the heaviest processes by CPU plus memory, with the totals
// of the listed entries.
type ProcessList struct {
	Processes []ProcessStatus `json:"processes"`
	TotalCPU  float64         `json:"total_cpu"`
	TotalMem  float32         `json:"total_mem"`
}
