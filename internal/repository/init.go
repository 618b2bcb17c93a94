package repository

import (
	"gorm.io/gorm"

	"github.com/inboundly/mailcore/interfaces"
	"github.com/inboundly/mailcore/internal/models"
)

type Repositories struct {
	InboundEmailRepository    interfaces.InboundEmailRepository
	OutboundEmailRepository   interfaces.OutboundEmailRepository
	EmailThreadRepository     interfaces.EmailThreadRepository
	OrphanReferenceRepository interfaces.OrphanReferenceRepository
	DirectoryRepository       interfaces.DirectoryRepository
}

func InitRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		InboundEmailRepository:    NewInboundEmailRepository(db),
		OutboundEmailRepository:   NewOutboundEmailRepository(db),
		EmailThreadRepository:     NewEmailThreadRepository(db),
		OrphanReferenceRepository: NewOrphanReferenceRepository(db),
		DirectoryRepository:       NewMailDomainRepository(db),
	}
}

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.InboundEmail{},
		&models.OutboundEmail{},
		&models.EmailThread{},
		&models.OrphanReference{},
		&models.MailDomain{},
	)
}
