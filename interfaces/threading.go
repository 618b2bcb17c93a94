package interfaces

import (
	"context"

	"github.com/inboundly/mailcore/dto"
	"github.com/inboundly/mailcore/internal/models"
)

// ResolveOptions tunes one resolution. Subject matching is a lossy heuristic
// and stays off unless a caller explicitly opts in.
type ResolveOptions struct {
	SubjectFallback bool
}

type ThreadingService interface {
	// ResolveInbound finds or creates the thread for a stored inbound message
	// and applies the assignment atomically. Re-resolving an assigned message
	// is a no-op.
	ResolveInbound(ctx context.Context, email *models.InboundEmail, opts ResolveOptions) (*dto.ThreadResolution, error)
	ResolveOutbound(ctx context.Context, email *models.OutboundEmail, opts ResolveOptions) (*dto.ThreadResolution, error)
	GetThread(ctx context.Context, userID, threadID string) (*dto.ThreadView, error)
}

type DSNService interface {
	// ClassifyAndCorrelate inspects raw message content; when it is a DSN it
	// resolves the triggering outbound send and its owners. A non-DSN input
	// returns a result with IsDsn false and no error.
	ClassifyAndCorrelate(ctx context.Context, userID string, raw []byte) (*dto.BounceAttribution, error)
}

type BackfillService interface {
	Run(ctx context.Context, req dto.BackfillRequest) (*dto.BackfillResult, error)
}
