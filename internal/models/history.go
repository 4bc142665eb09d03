package models

import "time"

// HistorySample is one persisted sampling tick
type HistorySample struct {
	TimestampMs        int64   `json:"ts"`
	CPUPercent         float64 `json:"cpu"`
	RAMPercent         float64 `json:"ram"`
	DiskPercent        float64 `json:"disk"`
	NetUpBytesPerSec   float64 `json:"net_up"`
	NetDownBytesPerSec float64 `json:"net_down"`
}

// Time returns the sample timestamp as a time.Time
func (s HistorySample) Time() time.Time {
	return time.UnixMilli(s.TimestampMs)
}

// HistoryPoint is one bucket of a range query. Timestamp is the bucket
// midpoint in Unix milliseconds.
type HistoryPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// History metric names accepted by range queries
const (
	HistoryMetricCPU     = "cpu"
	HistoryMetricRAM     = "ram"
	HistoryMetricDisk    = "disk"
	HistoryMetricNetUp   = "net_up"
	HistoryMetricNetDown = "net_down"
)

// HistoryMetrics lists every metric name a range query may ask for
var HistoryMetrics = []string{
	HistoryMetricCPU,
	HistoryMetricRAM,
	HistoryMetricDisk,
	HistoryMetricNetUp,
	HistoryMetricNetDown,
}

// Value returns the field named by metric and whether the name is known.
func (s HistorySample) Value(metric string) (float64, bool) {
	switch metric {
	case HistoryMetricCPU:
		return s.CPUPercent, true
	case HistoryMetricRAM:
		return s.RAMPercent, true
	case HistoryMetricDisk:
		return s.DiskPercent, true
	case HistoryMetricNetUp:
		return s.NetUpBytesPerSec, true
	case HistoryMetricNetDown:
		return s.NetDownBytesPerSec, true
	default:
		return 0, false
	}
}
