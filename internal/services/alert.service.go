package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"watchpost/internal/models"
	"watchpost/internal/telemetry"
)

// AlertOptions configures an AlertEngine
type AlertOptions struct {
	Rules []models.AlertRule
	// Interval is the evaluation tick. Duration gating counts in ticks of this size.
	Interval time.Duration
	// Cooldown is the minimum time between two firings of the same rule.
	Cooldown time.Duration
	// HistorySize is the capacity of the alert history ring. Zero means 20.
	HistorySize int
}

// AlertListener is told about every firing and resolution. It must not block.
type AlertListener interface {
	OnAlert(entry models.AlertHistoryEntry)
}

// AlertEngine evaluates rules against the latest snapshot and sends one
// notification per state transition.
type AlertEngine struct {
	src        SnapshotSource
	dispatcher *Dispatcher
	interval   time.Duration
	cooldown   time.Duration
	logger     zerolog.Logger
	now        func() time.Time

	mu       sync.Mutex
	rules    []models.AlertRule
	states   map[string]*models.AlertState
	history  *alertHistory
	listener AlertListener
}

// NewAlertEngine creates an engine reading from src and notifying through dispatcher.
func NewAlertEngine(src SnapshotSource, dispatcher *Dispatcher, opts AlertOptions, logger zerolog.Logger) *AlertEngine {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	e := &AlertEngine{
		src:        src,
		dispatcher: dispatcher,
		interval:   opts.Interval,
		cooldown:   opts.Cooldown,
		logger:     logger.With().Str("component", "alerts").Logger(),
		now:        time.Now,
		states:     make(map[string]*models.AlertState),
		history:    newAlertHistory(opts.HistorySize),
	}
	e.SetRules(opts.Rules)
	return e
}

// SetListener registers l for fire and resolve events
func (e *AlertEngine) SetListener(l AlertListener) {
	e.mu.Lock()
	e.listener = l
	e.mu.Unlock()
}

// SetRules replaces the rule set. State is kept for rules whose key is
// unchanged; open alerts of removed rules are dropped without notifying.
func (e *AlertEngine) SetRules(rules []models.AlertRule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	states := make(map[string]*models.AlertState, len(rules))
	for _, r := range rules {
		key := r.Key()
		if st, ok := e.states[key]; ok {
			states[key] = st
		} else {
			states[key] = &models.AlertState{Status: models.AlertIdle}
		}
	}
	for key := range e.states {
		if _, ok := states[key]; !ok {
			e.history.drop(key)
			e.logger.Info().Str("rule", key).Msg("rule removed")
		}
	}

	e.rules = append([]models.AlertRule(nil), rules...)
	e.states = states
	e.logger.Info().Int("rules", len(rules)).Msg("alert rules loaded")
}

// Rules returns a copy of the current rule set
func (e *AlertEngine) Rules() []models.AlertRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]models.AlertRule(nil), e.rules...)
}

// State returns a copy of the state kept for ruleKey
func (e *AlertEngine) State(ruleKey string) (models.AlertState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[ruleKey]
	if !ok {
		return models.AlertState{}, false
	}
	return *st, true
}

// Status returns the open alerts and the recent history, newest first.
func (e *AlertEngine) Status() models.AlertStatusView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.view()
}

// Run evaluates the rules every interval until ctx is cancelled.
func (e *AlertEngine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Evaluate(ctx)
		}
	}
}

// Evaluate runs one tick against the latest published snapshot. Nothing
// happens until a snapshot has been published.
func (e *AlertEngine) Evaluate(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	snap := e.src.Latest()
	if snap == nil {
		e.logger.Debug().Msg("no snapshot yet, skipping evaluation")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	for _, rule := range e.rules {
		e.evaluateRule(rule, snap, now)
	}
}

func (e *AlertEngine) evaluateRule(rule models.AlertRule, snap *models.MetricSnapshot, now time.Time) {
	key := rule.Key()
	st, ok := e.states[key]
	if !ok {
		st = &models.AlertState{Status: models.AlertIdle}
		e.states[key] = st
	}

	triggered, value := evaluatePredicate(rule, snap)
	st.LastValue = value

	if !triggered {
		st.AccumulatorSeconds = 0
		if st.Status == models.AlertFiring {
			e.resolve(rule, key, st, value, now)
		}
		return
	}

	if rule.Kind.Numeric() && rule.DurationSeconds > 0 {
		step := int(e.interval / time.Second)
		if step < 1 {
			step = 1
		}
		st.AccumulatorSeconds = min(st.AccumulatorSeconds+step, rule.DurationSeconds)
		if st.AccumulatorSeconds < rule.DurationSeconds {
			return
		}
	}

	if st.Status == models.AlertFiring {
		return
	}

	if e.cooldown > 0 && !st.FiredAt.IsZero() && now.Sub(st.FiredAt) < e.cooldown {
		telemetry.AlertTransitions.WithLabelValues(string(rule.Kind), "suppressed").Inc()
		e.logger.Debug().
			Str("rule", key).
			Time("fired_at", st.FiredAt).
			Dur("cooldown", e.cooldown).
			Msg("alert suppressed by cooldown")
		return
	}

	e.fire(rule, key, st, value, now)
}

func (e *AlertEngine) fire(rule models.AlertRule, key string, st *models.AlertState, value float64, now time.Time) {
	st.Status = models.AlertFiring
	st.FiredAt = now

	msg := fireMessage(rule, value)
	entry := models.AlertHistoryEntry{
		ID:      uuid.NewString(),
		RuleKey: key,
		Kind:    rule.Kind,
		Message: msg,
		FiredAt: now,
		Active:  true,
	}
	e.history.open(entry)

	telemetry.AlertTransitions.WithLabelValues(string(rule.Kind), "fired").Inc()
	e.logger.Warn().Str("rule", key).Float64("value", value).Msg(msg)
	e.dispatcher.Dispatch(msg)
	if e.listener != nil {
		e.listener.OnAlert(entry)
	}
}

func (e *AlertEngine) resolve(rule models.AlertRule, key string, st *models.AlertState, value float64, now time.Time) {
	st.Status = models.AlertResolved
	st.ResolvedAt = now

	msg := resolveMessage(rule, value)
	entry, ok := e.history.close(key, now)

	telemetry.AlertTransitions.WithLabelValues(string(rule.Kind), "resolved").Inc()
	e.logger.Info().Str("rule", key).Float64("value", value).Msg(msg)
	e.dispatcher.Dispatch(msg)
	if ok && e.listener != nil {
		e.listener.OnAlert(entry)
	}
}

// SendTest sends a test notification synchronously, bypassing the rules.
func (e *AlertEngine) SendTest(ctx context.Context) error {
	return e.dispatcher.Send(ctx, TestNotificationText)
}

// evaluatePredicate reports whether rule is triggered by snap. For numeric
// rules value is the observed percentage. A binary target missing from the
// snapshot is not triggered.
func evaluatePredicate(rule models.AlertRule, snap *models.MetricSnapshot) (triggered bool, value float64) {
	switch rule.Kind {
	case models.RuleCPU:
		return snap.CPUPercent >= rule.Threshold, snap.CPUPercent
	case models.RuleRAM:
		return snap.RAMPercent >= rule.Threshold, snap.RAMPercent
	case models.RuleDisk:
		return snap.DiskPercent >= rule.Threshold, snap.DiskPercent
	case models.RuleServiceDown:
		up, found := snap.ServiceUp(rule.Target)
		return found && !up, 0
	case models.RuleContainerDown:
		running, found := snap.ContainerRunning(rule.Target)
		return found && !running, 0
	case models.RuleAgentOffline:
		online, found := snap.AgentOnline(rule.Target)
		return found && !online, 0
	}
	return false, 0
}

var kindLabels = map[models.RuleKind]string{
	models.RuleCPU:           "CPU usage",
	models.RuleRAM:           "RAM usage",
	models.RuleDisk:          "Disk usage",
	models.RuleServiceDown:   "service",
	models.RuleContainerDown: "container",
	models.RuleAgentOffline:  "agent",
}

func fireMessage(rule models.AlertRule, value float64) string {
	label := kindLabels[rule.Kind]
	switch rule.Kind {
	case models.RuleCPU, models.RuleRAM, models.RuleDisk:
		sustained := ""
		if rule.DurationSeconds > 0 {
			sustained = fmt.Sprintf(" for %ds", rule.DurationSeconds)
		}
		return fmt.Sprintf("ALERT: %s at or above %s%%%s (currently %.1f%%)", label, formatThreshold(rule.Threshold), sustained, value)
	case models.RuleAgentOffline:
		return fmt.Sprintf("ALERT: %s %s is offline", label, rule.Target)
	default:
		return fmt.Sprintf("ALERT: %s %s is down", label, rule.Target)
	}
}

func resolveMessage(rule models.AlertRule, value float64) string {
	label := kindLabels[rule.Kind]
	switch rule.Kind {
	case models.RuleCPU, models.RuleRAM, models.RuleDisk:
		return fmt.Sprintf("RESOLVED: %s back below %s%% (currently %.1f%%)", label, formatThreshold(rule.Threshold), value)
	case models.RuleAgentOffline:
		return fmt.Sprintf("RESOLVED: %s %s is online", label, rule.Target)
	default:
		return fmt.Sprintf("RESOLVED: %s %s is up", label, rule.Target)
	}
}

func formatThreshold(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
