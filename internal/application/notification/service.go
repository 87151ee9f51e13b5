package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notify-relay/internal/application/dispatch"
	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/pkg/id"
)

type Service interface {
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error)
	// Create stores a notification for userID and announces it on both
	// channels. Delivery problems never fail the call.
	Create(ctx context.Context, userID string, req domain.CreateNotificationRequest) (*domain.Notification, dispatch.Report, error)
}

type notificationStore interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

type notifier interface {
	Notify(ctx context.Context, userID string, event domain.NotificationEvent) (dispatch.Report, error)
}

type service struct {
	repo     notificationStore
	notifier notifier
	log      *slog.Logger
}

func NewService(repo notificationStore, n notifier, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{repo: repo, notifier: n, log: logger}
}

func (s *service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.repo.ListUnread(ctx, userID)
}

func (s *service) CountUnread(ctx context.Context, userID string) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *service) MarkAsRead(ctx context.Context, notificationID, userID string) (*domain.Notification, error) {
	n, err := s.repo.Get(ctx, notificationID)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, fmt.Errorf("forbidden: %w", domain.ErrForbidden)
	}
	return s.repo.MarkAsRead(ctx, notificationID)
}

func (s *service) Create(ctx context.Context, userID string, req domain.CreateNotificationRequest) (*domain.Notification, dispatch.Report, error) {
	now := time.Now().UTC()
	n := &domain.Notification{
		NotificationID: id.New(),
		UserID:         userID,
		Title:          req.Title,
		Message:        req.Message,
		URL:            req.URL,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Put(ctx, n); err != nil {
		return nil, dispatch.Report{}, err
	}

	report, err := s.notifier.Notify(ctx, userID, n.Event())
	if err != nil {
		s.log.Warn("notification stored but not pushed", "notification_id", n.NotificationID, "err", err)
	}
	return n, report, nil
}
