package handlers

import (
	"github.com/inboundly/mailcore/config"
	"github.com/inboundly/mailcore/internal/repository"
	"github.com/inboundly/mailcore/services"
)

type APIHandlers struct {
	Messages *MessagesHandler
	Threads  *ThreadsHandler
}

func InitHandlers(cfg *config.Config, s *services.Services, repos *repository.Repositories) *APIHandlers {
	return &APIHandlers{
		Messages: NewMessagesHandler(cfg, s, repos),
		Threads:  NewThreadsHandler(s, repos),
	}
}
