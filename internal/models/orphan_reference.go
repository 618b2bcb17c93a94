package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/inboundly/mailcore/internal/utils"
)

// OrphanReference records a message id that a thread member referenced but that
// is absent from the store. When the referenced message later arrives it joins
// the recorded thread instead of starting its own.
type OrphanReference struct {
	ID           string    `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID       string    `gorm:"column:user_id;type:varchar(50);index"`
	MessageID    string    `gorm:"column:message_id;type:varchar(255);index"`
	ReferencedBy string    `gorm:"column:referenced_by;type:varchar(255)"` // message id that referenced this
	ThreadID     string    `gorm:"column:thread_id;type:varchar(50);index"`
	CreatedAt    time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
}

func (OrphanReference) TableName() string {
	return "orphan_references"
}

func (m *OrphanReference) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("orpn", 12)
	}
	return nil
}
