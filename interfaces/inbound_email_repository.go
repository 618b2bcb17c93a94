package interfaces

import (
	"context"

	"github.com/inboundly/mailcore/internal/models"
)

type InboundEmailRepository interface {
	Create(ctx context.Context, email *models.InboundEmail) (string, error)
	GetByID(ctx context.Context, id string) (*models.InboundEmail, error)
	// GetByMessageID is account-scoped: matching by header equality alone would
	// leak threads across tenants.
	GetByMessageID(ctx context.Context, userID, messageID string) (*models.InboundEmail, error)
	ListByThread(ctx context.Context, userID, threadID string) ([]*models.InboundEmail, error)
	// ListUnassigned returns messages without a thread, oldest first by
	// received_at. Empty userID means all accounts.
	ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.InboundEmail, error)
	CountByThread(ctx context.Context, threadID string) (int64, error)
}
