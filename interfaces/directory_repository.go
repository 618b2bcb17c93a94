package interfaces

import (
	"context"

	"github.com/inboundly/mailcore/internal/models"
)

// DirectoryRepository resolves the account -> domain -> tenant chain for
// bounce attribution.
type DirectoryRepository interface {
	GetDomain(ctx context.Context, domainName string) (*models.MailDomain, error)
	ListDomainsByUser(ctx context.Context, userID string) ([]*models.MailDomain, error)
	Create(ctx context.Context, domain *models.MailDomain) (string, error)
}
