package interfaces

import (
	"context"
	"time"

	"github.com/inboundly/mailcore/internal/models"
)

type OrphanReferenceRepository interface {
	Create(ctx context.Context, orphan *models.OrphanReference) (string, error)
	GetByMessageID(ctx context.Context, userID, messageID string) (*models.OrphanReference, error)
	DeleteByThreadID(ctx context.Context, threadID string) error
	DeleteOlderThan(ctx context.Context, cutoffDate time.Time) error
}
