package services

import (
	"sort"
	"time"

	"watchpost/internal/models"
)

// alertHistory is a fixed-size ring of alert entries plus the set of entries
// that are still open. Not safe for concurrent use; the engine serializes access.
type alertHistory struct {
	ring   []*models.AlertHistoryEntry
	next   int
	size   int
	active map[string]*models.AlertHistoryEntry
}

func newAlertHistory(capacity int) *alertHistory {
	if capacity <= 0 {
		capacity = 20
	}
	return &alertHistory{
		ring:   make([]*models.AlertHistoryEntry, capacity),
		active: make(map[string]*models.AlertHistoryEntry),
	}
}

// open records a new firing, evicting the oldest entry when full.
func (h *alertHistory) open(entry models.AlertHistoryEntry) {
	e := &entry
	h.ring[h.next] = e
	h.next = (h.next + 1) % len(h.ring)
	if h.size < len(h.ring) {
		h.size++
	}
	h.active[e.RuleKey] = e
}

// close marks the open entry for ruleKey resolved and returns a copy of it.
func (h *alertHistory) close(ruleKey string, at time.Time) (models.AlertHistoryEntry, bool) {
	e, ok := h.active[ruleKey]
	if !ok {
		return models.AlertHistoryEntry{}, false
	}
	delete(h.active, ruleKey)
	resolved := at
	e.ResolvedAt = &resolved
	e.Active = false
	return *e, true
}

// drop forgets the open entry for ruleKey without resolving it
func (h *alertHistory) drop(ruleKey string) {
	if e, ok := h.active[ruleKey]; ok {
		e.Active = false
		delete(h.active, ruleKey)
	}
}

// view returns copies of the active entries and the ring, newest first.
func (h *alertHistory) view() models.AlertStatusView {
	active := make([]models.AlertHistoryEntry, 0, len(h.active))
	for _, e := range h.active {
		active = append(active, copyEntry(e))
	}
	sort.Slice(active, func(i, j int) bool { return active[i].FiredAt.After(active[j].FiredAt) })

	history := make([]models.AlertHistoryEntry, 0, h.size)
	for i := 1; i <= h.size; i++ {
		idx := (h.next - i + len(h.ring)) % len(h.ring)
		history = append(history, copyEntry(h.ring[idx]))
	}
	return models.AlertStatusView{Active: active, History: history}
}

func copyEntry(e *models.AlertHistoryEntry) models.AlertHistoryEntry {
	c := *e
	if e.ResolvedAt != nil {
		t := *e.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}
