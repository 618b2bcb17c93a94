package interfaces

import (
	"context"
	"time"

	"github.com/inboundly/mailcore/dto"
)

// NotificationDispatcher hands a resolved attribution to the notification
// subsystem. De-duplication cadence is the dispatcher's own concern.
type NotificationDispatcher interface {
	DispatchBounce(ctx context.Context, attribution *dto.BounceAttribution) error
}

// CooldownStore is the injected last-sent record keyed by alert type, so the
// correlator itself stays stateless.
type CooldownStore interface {
	// ShouldNotify returns true when no notification for key was recorded
	// within ttl, and records the attempt.
	ShouldNotify(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
