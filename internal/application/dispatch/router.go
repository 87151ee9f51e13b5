package dispatch

import (
	"context"
	"log/slog"

	"github.com/notify-relay/internal/domain"
)

// Transport sends one payload to one subscription endpoint.
type Transport interface {
	Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) domain.DeliveryStatus
}

// Router sends Web Push endpoints through web and SNS platform endpoint ARNs
// through platform.
type Router struct {
	web      Transport
	platform Transport
	log      *slog.Logger
}

// NewRouter builds a Router. platform may be nil when SNS is disabled; ARN
// endpoints then fail without being pruned.
func NewRouter(web, platform Transport, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{web: web, platform: platform, log: logger}
}

func (r *Router) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) domain.DeliveryStatus {
	if sub.IsPlatformEndpoint() {
		if r.platform == nil {
			r.log.Warn("platform endpoint but SNS transport disabled", "subscription", sub)
			return domain.Failed
		}
		return r.platform.Send(ctx, sub, payload)
	}
	return r.web.Send(ctx, sub, payload)
}
