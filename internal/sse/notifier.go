package sse

import (
	"time"

	"github.com/GTDGit/gtd_map/internal/models"
)

// MatchNotifier is the interface services use to emit matching events.
type MatchNotifier interface {
	NotifyRunCompleted(summary *models.RunSummary)
	NotifyViolation(m *models.ProductMatch)
}

// HubNotifier implements MatchNotifier using the SSE Hub.
type HubNotifier struct {
	hub *Hub
	now func() time.Time
}

// NewHubNotifier creates a notifier backed by the given Hub.
func NewHubNotifier(hub *Hub) *HubNotifier {
	return &HubNotifier{hub: hub, now: time.Now}
}

func (n *HubNotifier) NotifyRunCompleted(summary *models.RunSummary) {
	n.broadcast(EventRunCompleted, summary)
}

func (n *HubNotifier) NotifyViolation(m *models.ProductMatch) {
	n.broadcast(EventViolationDetected, violationPayload{
		MatchID:             m.ID,
		IdcProductID:        m.IdcProductID,
		CompetitorProductID: m.CompetitorProductID,
		ViolationAmount:     m.ViolationAmount.Decimal.StringFixed(2),
		ViolationSeverity:   m.ViolationSeverity,
		IsManualMatch:       m.IsManualMatch,
	})
}

func (n *HubNotifier) broadcast(eventType EventType, data any) {
	if n.hub.ClientCount() == 0 {
		return
	}
	n.hub.Broadcast(&Event{Event: eventType, Data: data, Timestamp: n.now().UTC()})
}

type violationPayload struct {
	MatchID             string `json:"matchId"`
	IdcProductID        string `json:"idcProductId"`
	CompetitorProductID string `json:"competitorProductId"`
	ViolationAmount     string `json:"violationAmount"`
	ViolationSeverity   *float64 `json:"violationSeverity"`
	IsManualMatch       bool   `json:"isManualMatch"`
}

// NopNotifier is a no-op implementation for when SSE is not needed.
type NopNotifier struct{}

func (NopNotifier) NotifyRunCompleted(*models.RunSummary) {}
func (NopNotifier) NotifyViolation(*models.ProductMatch)  {}
