package notification

import (
	"context"

	"go.uber.org/zap"
)

// NotificationService is the sink for user-visible async messages. Failures to
// record a notification are logged, never propagated to the import workflow.
type NotificationService interface {
	Notify(ctx context.Context, userID, title, message string, kind NotificationType)
	ListUnread(ctx context.Context, userID string) ([]Notification, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

type NotificationServiceImpl struct {
	NotificationRepo NotificationRepository
	Logger           *zap.Logger
}

func NewNotificationService(repo NotificationRepository, logger *zap.Logger) NotificationService {
	return &NotificationServiceImpl{NotificationRepo: repo, Logger: logger}
}

func (s *NotificationServiceImpl) Notify(ctx context.Context, userID, title, message string, kind NotificationType) {
	n := &Notification{
		UserID:  userID,
		Title:   title,
		Message: message,
		Type:    kind,
	}
	if err := s.NotificationRepo.Create(ctx, n); err != nil {
		s.Logger.Warn("failed to record notification",
			zap.String("user_id", userID), zap.String("title", title), zap.Error(err))
	}
}

func (s *NotificationServiceImpl) ListUnread(ctx context.Context, userID string) ([]Notification, error) {
	return s.NotificationRepo.ListUnread(ctx, userID, 50)
}

func (s *NotificationServiceImpl) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	return s.NotificationRepo.MarkAllRead(ctx, userID)
}
