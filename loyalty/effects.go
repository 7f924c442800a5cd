/*
effects.go - Post-commit side effect interfaces

PURPOSE:
  Notifications and audit records are best-effort observers, not
  participants. Engines invoke them strictly after the unit of work has
  committed; a sink failure is logged and swallowed, never propagated to
  the caller and never a cause for rollback.

SEE ALSO:
  - notify/: log, redis and fanout sink implementations
  - requests.go: emits request events and the audit order
*/
package loyalty

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// EVENTS
// =============================================================================

type EventType string

const (
	EventRequestSubmitted  EventType = "request.submitted"
	EventRequestApproved   EventType = "request.approved"
	EventRequestRejected   EventType = "request.rejected"
	EventPointsEarned      EventType = "points.earned"
	EventPointsSpent       EventType = "points.spent"
	EventPointsAdjusted    EventType = "points.adjusted"
	EventPointsExpired     EventType = "points.expired"
	EventRewardRedeemed    EventType = "reward.redeemed"
	EventRedemptionUpdated EventType = "redemption.updated"
	EventLowStock          EventType = "stock.low"
)

// Event is what the core hands to notification sinks after a commit.
// Payload carries event-specific fields; consumers must tolerate
// missing keys.
type Event struct {
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload"`
}

// =============================================================================
// SINKS
// =============================================================================

// NotificationSink receives events fire-and-forget. Implementations
// should be fast; slow delivery belongs behind their own queue.
type NotificationSink interface {
	Notify(ctx context.Context, ev Event) error
}

// AuditRecorder persists the audit order produced by an approval.
type AuditRecorder interface {
	RecordOrder(ctx context.Context, o Order) error
}

// notifyBestEffort delivers ev and logs a failure instead of returning it.
func notifyBestEffort(ctx context.Context, sink NotificationSink, log *zap.Logger, ev Event) {
	if sink == nil {
		return
	}
	if err := sink.Notify(ctx, ev); err != nil {
		log.Warn("notification sink failed",
			zap.String("event", string(ev.Type)),
			zap.Error(err))
	}
}

// =============================================================================
// STORE-BACKED AUDIT
// =============================================================================

// StoreAuditRecorder writes audit orders through the store, outside any
// unit of work.
type StoreAuditRecorder struct {
	store Store
}

func NewStoreAuditRecorder(store Store) *StoreAuditRecorder {
	return &StoreAuditRecorder{store: store}
}

func (a *StoreAuditRecorder) RecordOrder(ctx context.Context, o Order) error {
	return a.store.Orders().Create(ctx, &o)
}
