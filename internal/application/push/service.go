package push

import (
	"context"
	"fmt"
	"time"

	"github.com/notify-relay/internal/domain"
)

type Service interface {
	// PublicKey is the VAPID application server key browsers subscribe with.
	PublicKey() string
	Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (*domain.PushSubscription, error)
	Unsubscribe(ctx context.Context, userID string, req domain.UnsubscribeRequest) error
	List(ctx context.Context, userID string) ([]domain.PushSubscription, error)
}

type subscriptionStore interface {
	Save(ctx context.Context, s *domain.PushSubscription) error
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	DeleteForUser(ctx context.Context, userID, endpoint string) error
}

type keySource interface {
	PublicKey() string
}

type service struct {
	repo subscriptionStore
	keys keySource
	now  func() time.Time
}

func NewService(repo subscriptionStore, keys keySource) Service {
	return &service{repo: repo, keys: keys, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) PublicKey() string {
	return s.keys.PublicKey()
}

func (s *service) Subscribe(ctx context.Context, userID string, req domain.SubscribeRequest) (*domain.PushSubscription, error) {
	if userID == "" {
		return nil, fmt.Errorf("subscribe without user: %w", domain.ErrUnauthorized)
	}
	sub := domain.NewPushSubscription(userID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, s.now())
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes userID's registration of the endpoint. Removing an
// unknown endpoint, or one registered only by another user, succeeds and
// changes nothing.
func (s *service) Unsubscribe(ctx context.Context, userID string, req domain.UnsubscribeRequest) error {
	if userID == "" {
		return fmt.Errorf("unsubscribe without user: %w", domain.ErrUnauthorized)
	}
	return s.repo.DeleteForUser(ctx, userID, req.Endpoint)
}

func (s *service) List(ctx context.Context, userID string) ([]domain.PushSubscription, error) {
	return s.repo.ListByUser(ctx, userID)
}
