package interfaces

import (
	"context"
	"time"

	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
)

type OutboundEmailRepository interface {
	Create(ctx context.Context, email *models.OutboundEmail) (string, error)
	GetByID(ctx context.Context, id string) (*models.OutboundEmail, error)
	GetByMessageID(ctx context.Context, userID, messageID string) (*models.OutboundEmail, error)
	ListByThread(ctx context.Context, userID, threadID string) ([]*models.OutboundEmail, error)
	ListUnassigned(ctx context.Context, userID string, limit int) ([]*models.OutboundEmail, error)
	CountByThread(ctx context.Context, threadID string) (int64, error)
	// SetDeliveryStatus writes the correlated DSN outcome back onto the send.
	SetDeliveryStatus(ctx context.Context, id string, status enum.DeliveryStatus, detail string, bouncedAt *time.Time) error
}
