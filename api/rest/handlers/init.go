package handlers

import (
	"time"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/services"
)

type APIHandlers struct {
	Sync          *SyncHandler
	Messages      *MessagesHandler
	Notifications *NotificationsHandler
}

func InitHandlers(s *services.Services, sseHeartbeat time.Duration, log logger.Logger) *APIHandlers {
	return &APIHandlers{
		Sync:          NewSyncHandler(s.Scheduler, s.Initializer, s.Auditor, s.Monitor, log),
		Messages:      NewMessagesHandler(s.IMAPService),
		Notifications: NewNotificationsHandler(s.Hub, sseHeartbeat, log),
	}
}
