package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/internal/utils"
)

// InboundEmail is a received message as captured by the ingestion path.
type InboundEmail struct {
	ID         string         `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID     string         `gorm:"column:user_id;type:varchar(50);index;not null"`
	MessageID  string         `gorm:"column:message_id;type:varchar(255);index"`
	InReplyTo  string         `gorm:"column:in_reply_to;type:varchar(255);index"`
	References pq.StringArray `gorm:"column:references;type:text[]"`

	Subject     string         `gorm:"column:subject;type:varchar(1000)"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	ReceivedAt time.Time `gorm:"column:received_at;type:timestamp;index"`

	// Raw content for DSN structural parsing; RawStorageKey points at the blob
	// store copy, RawContent is the inline fallback.
	RawStorageKey string  `gorm:"column:raw_storage_key;type:varchar(500)"`
	RawContent    string  `gorm:"column:raw_content;type:text"`
	RawHeaders    JSONMap `gorm:"column:raw_headers;type:jsonb"`

	// Thread assignment. ThreadID is empty until resolved; ThreadPosition is
	// assigned once, within the same transaction that updates the thread.
	ThreadID       string `gorm:"column:thread_id;type:varchar(50);index"`
	ThreadPosition int    `gorm:"column:thread_position;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (InboundEmail) TableName() string {
	return "inbound_emails"
}

func (e *InboundEmail) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("iem", 24)
	}
	e.CreatedAt = utils.Now()
	return nil
}

func (e *InboundEmail) AllParticipants() []string {
	participants := make([]string, 0, 1+len(e.ToAddresses)+len(e.CcAddresses))
	if e.FromAddress != "" {
		participants = append(participants, e.FromAddress)
	}
	participants = append(participants, e.ToAddresses...)
	participants = append(participants, e.CcAddresses...)
	return utils.UniqueEmailsFold(participants)
}

func (e *InboundEmail) IsAssigned() bool {
	return e.ThreadID != ""
}
