package models

import (
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/internal/enum"
	"github.com/inboundly/mailcore/internal/utils"
)

// OutboundEmail is a message sent through the platform. Delivery state is
// written back onto it when a DSN is correlated to the send.
type OutboundEmail struct {
	ID         string         `gorm:"column:id;type:varchar(50);primaryKey"`
	UserID     string         `gorm:"column:user_id;type:varchar(50);index;not null"`
	DomainName string         `gorm:"column:domain_name;type:varchar(255);index"`
	MessageID  string         `gorm:"column:message_id;type:varchar(255);index"`
	InReplyTo  string         `gorm:"column:in_reply_to;type:varchar(255);index"`
	References pq.StringArray `gorm:"column:references;type:text[]"`

	Subject     string         `gorm:"column:subject;type:varchar(1000)"`
	FromAddress string         `gorm:"column:from_address;type:varchar(255);index"`
	ToAddresses pq.StringArray `gorm:"column:to_addresses;type:text[]"`
	CcAddresses pq.StringArray `gorm:"column:cc_addresses;type:text[]"`

	SentAt time.Time `gorm:"column:sent_at;type:timestamp;index"`

	DeliveryStatus enum.DeliveryStatus `gorm:"column:delivery_status;type:varchar(50);index"`
	StatusDetail   string              `gorm:"column:status_detail;type:text"`
	BouncedAt      *time.Time          `gorm:"column:bounced_at;type:timestamp"`

	ThreadID       string `gorm:"column:thread_id;type:varchar(50);index"`
	ThreadPosition int    `gorm:"column:thread_position;default:0"`

	CreatedAt time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (OutboundEmail) TableName() string {
	return "outbound_emails"
}

func (e *OutboundEmail) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = utils.GenerateNanoIDWithPrefix("oem", 24)
	}
	if e.DeliveryStatus == "" {
		e.DeliveryStatus = enum.DeliverySent
	}
	e.CreatedAt = utils.Now()
	return nil
}

func (e *OutboundEmail) AllParticipants() []string {
	participants := make([]string, 0, 1+len(e.ToAddresses)+len(e.CcAddresses))
	if e.FromAddress != "" {
		participants = append(participants, e.FromAddress)
	}
	participants = append(participants, e.ToAddresses...)
	participants = append(participants, e.CcAddresses...)
	return utils.UniqueEmailsFold(participants)
}

func (e *OutboundEmail) IsAssigned() bool {
	return e.ThreadID != ""
}
