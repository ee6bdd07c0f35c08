package notifications

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"ebantek/internal/models"
	"ebantek/internal/observability"
)

// StatusEvent is the wire payload for a request status change.
type StatusEvent struct {
	Type        string               `json:"type"`
	RequestID   string               `json:"request_id"`
	ServiceType models.ServiceType   `json:"service_type"`
	From        models.RequestStatus `json:"from"`
	To          models.RequestStatus `json:"to"`
	ActorID     uint                 `json:"actor_id"`
	Timestamp   time.Time            `json:"timestamp"`
}

// StatusPublisher pushes status-change events to the requester and, when set,
// the assigned technical manager. It satisfies the service layer's notifier
// contract.
type StatusPublisher struct {
	notifier *Notifier
}

// NewStatusPublisher returns a StatusPublisher over the given Notifier.
func NewStatusPublisher(n *Notifier) *StatusPublisher {
	return &StatusPublisher{notifier: n}
}

// StatusChanged publishes the event. Delivery is best effort: a failed publish
// is logged and never blocks the workflow.
func (p *StatusPublisher) StatusChanged(ctx context.Context, req *models.ServiceRequest, from, to models.RequestStatus, actorID uint) {
	ev := StatusEvent{
		Type:        "status_changed",
		RequestID:   req.ID,
		ServiceType: req.ServiceType,
		From:        from,
		To:          to,
		ActorID:     actorID,
		Timestamp:   time.Now(),
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("failed to marshal status event for %s: %v", req.ID, err)
		return
	}

	targets := map[uint]struct{}{req.RequesterID: {}}
	if req.AssignedTo != nil {
		targets[*req.AssignedTo] = struct{}{}
	}

	for userID := range targets {
		if err := p.notifier.PublishUser(ctx, userID, string(payload)); err != nil {
			log.Printf("failed to publish status event for %s to user %d: %v", req.ID, userID, err)
		}
	}
	observability.RecordNotificationEvent("status_changed")
}
