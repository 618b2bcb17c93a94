package interfaces

import (
	"context"
	"time"

	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/models"
)

// ThreadAssignment describes one message joining a thread. The repository
// applies it atomically: the message row's thread_id and thread_position, the
// thread's message_count, last_message_at and participant set all change in a
// single transaction, with the thread row locked for the duration.
type ThreadAssignment struct {
	Direction    enum.EmailDirection
	MessageRowID string
	MessageTime  time.Time
	Participants []string
}

type EmailThreadRepository interface {
	GetByID(ctx context.Context, userID, id string) (*models.EmailThread, error)
	// CreateWithFirstMessage creates the thread and stamps its first message at
	// position 0 in one transaction.
	CreateWithFirstMessage(ctx context.Context, thread *models.EmailThread, assign ThreadAssignment) (string, error)
	// AssignMessage appends a message to an existing thread and returns the
	// position it was assigned.
	AssignMessage(ctx context.Context, userID, threadID string, assign ThreadAssignment) (int, error)
	FindBySubjectAndUser(ctx context.Context, subject, userID string) ([]*models.EmailThread, error)
	// SetMessageCount overwrites the aggregate count; used by the backfill to
	// repair count-invariant divergence.
	SetMessageCount(ctx context.Context, threadID string, count int) error
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.EmailThread, error)
}
