package models

import (
	"time"

	"gorm.io/gorm"

	"github.com/inboundly/mailcore/internal/utils"
)

// MailDomain maps a sending domain to its owning account and tenant grouping.
// The delivery correlator reads it to attribute a bounce.
type MailDomain struct {
	ID         string    `gorm:"column:id;type:varchar(50);primaryKey"`
	DomainName string    `gorm:"column:domain_name;type:varchar(255);uniqueIndex;not null"`
	UserID     string    `gorm:"column:user_id;type:varchar(50);index;not null"`
	TenantID   string    `gorm:"column:tenant_id;type:varchar(50);index"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamp;default:current_timestamp"`
	UpdatedAt  time.Time `gorm:"column:updated_at;type:timestamp;default:current_timestamp"`
}

func (MailDomain) TableName() string {
	return "mail_domains"
}

func (m *MailDomain) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = utils.GenerateNanoIDWithPrefix("dom", 12)
	}
	m.CreatedAt = utils.Now()
	return nil
}
