package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/internal/utils"
)

// EmailThread is the derived conversation aggregate. MessageCount must equal
// the number of inbound plus outbound rows pointing at this thread; the
// backfill verifies and repairs any divergence.
type EmailThread struct {
	ID            string         `gorm:"column:id;type:varchar(50);primaryKey" json:"id"`
	UserID        string         `gorm:"column:user_id;type:varchar(50);index;not null" json:"userId"`
	RootMessageID string         `gorm:"column:root_message_id;type:varchar(255);index" json:"rootMessageId"`
	Subject       string         `gorm:"column:subject;type:varchar(1000)" json:"subject"`
	Participants  pq.StringArray `gorm:"column:participants;type:text[]" json:"participants"`
	MessageCount  int            `gorm:"column:message_count;default:0" json:"messageCount"`
	LastMessageAt *time.Time     `gorm:"column:last_message_at;type:timestamp" json:"lastMessageAt"`
	CreatedAt     time.Time      `gorm:"column:created_at;type:timestamp" json:"createdAt"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;type:timestamp" json:"updatedAt"`
}

func (EmailThread) TableName() string {
	return "email_threads"
}

func (e *EmailThread) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("thrd", 16)
	}
	e.CreatedAt = utils.Now()
	return nil
}
