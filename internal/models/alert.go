package models

import (
	"fmt"
	"strconv"
	"time"
)

// RuleKind names the condition an alert rule checks
type RuleKind string

const (
	RuleCPU           RuleKind = "cpu"
	RuleRAM           RuleKind = "ram"
	RuleDisk          RuleKind = "disk"
	RuleServiceDown   RuleKind = "service_down"
	RuleContainerDown RuleKind = "container_down"
	RuleAgentOffline  RuleKind = "agent_offline"
)

// Numeric reports whether the kind compares a percentage against a threshold.
func (k RuleKind) Numeric() bool {
	return k == RuleCPU || k == RuleRAM || k == RuleDisk
}

// Valid reports whether k is one of the six known kinds.
func (k RuleKind) Valid() bool {
	switch k {
	case RuleCPU, RuleRAM, RuleDisk, RuleServiceDown, RuleContainerDown, RuleAgentOffline:
		return true
	}
	return false
}

// AlertRule is one configured condition. Threshold and DurationSeconds apply
// to numeric kinds, Target to binary kinds.
type AlertRule struct {
	ID              string   `mapstructure:"id" yaml:"id,omitempty" json:"id,omitempty"`
	Kind            RuleKind `mapstructure:"kind" yaml:"kind" json:"kind"`
	Threshold       float64  `mapstructure:"threshold" yaml:"threshold,omitempty" json:"threshold,omitempty"`
	DurationSeconds int      `mapstructure:"duration_seconds" yaml:"duration_seconds,omitempty" json:"duration_seconds,omitempty"`
	Target          string   `mapstructure:"target" yaml:"target,omitempty" json:"target,omitempty"`
}

// Key identifies the rule across config reloads. An explicit ID wins;
// otherwise the key is derived from the rule content so reordering the
// rules list does not reset their state.
func (r AlertRule) Key() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Kind.Numeric() {
		key := fmt.Sprintf("%s>=%s", r.Kind, strconv.FormatFloat(r.Threshold, 'f', -1, 64))
		if r.DurationSeconds > 0 {
			key += fmt.Sprintf("/%ds", r.DurationSeconds)
		}
		return key
	}
	return fmt.Sprintf("%s:%s", r.Kind, r.Target)
}

// AlertStatus is the position of a rule in its state machine
type AlertStatus string

const (
	AlertIdle     AlertStatus = "idle"
	AlertFiring   AlertStatus = "firing"
	AlertResolved AlertStatus = "resolved"
)

// AlertState is the runtime record kept per rule key
type AlertState struct {
	Status             AlertStatus `json:"status"`
	FiredAt            time.Time   `json:"fired_at"`
	ResolvedAt         time.Time   `json:"resolved_at"`
	AccumulatorSeconds int         `json:"accumulator_seconds"`
	LastValue          float64     `json:"last_value"`
}

// AlertHistoryEntry records one firing, closed when the rule resolves
type AlertHistoryEntry struct {
	ID         string     `json:"id"`
	RuleKey    string     `json:"rule_key"`
	Kind       RuleKind   `json:"kind"`
	Message    string     `json:"message"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Active     bool       `json:"active"`
}

// AlertStatusView is what the read surface returns for alerts
type AlertStatusView struct {
	Active  []AlertHistoryEntry `json:"active"`
	History []AlertHistoryEntry `json:"history"`
}
