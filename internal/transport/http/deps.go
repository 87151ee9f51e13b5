package http

import (
	"context"

	"github.com/notify-relay/internal/domain"
)

// SubscriptionRepository is the minimal interface the router requires from a push subscription store.
type SubscriptionRepository interface {
	Save(ctx context.Context, s *domain.PushSubscription) error
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	Delete(ctx context.Context, endpoint string) error
	DeleteForUser(ctx context.Context, userID, endpoint string) error
	DeleteMany(ctx context.Context, ids []string) error
}

// NotificationRepository is the minimal interface the router requires from a notification store.
type NotificationRepository interface {
	Put(ctx context.Context, n *domain.Notification) error
	Get(ctx context.Context, notificationID string) (*domain.Notification, error)
	ListUnread(ctx context.Context, userID string) ([]domain.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkAsRead(ctx context.Context, notificationID string) (*domain.Notification, error)
}

// PushKeys exposes the VAPID public key browsers subscribe with.
type PushKeys interface {
	PublicKey() string
}
