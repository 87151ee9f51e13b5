package domain

import "log/slog"

// DeliveryStatus is the outcome of one push send.
type DeliveryStatus int

// The zero value is Failed, so an unset status never counts as delivered
// and never prunes.
const (
	// Failed covers everything else: network errors, bad keys, 5xx. The
	// subscription must be kept.
	Failed DeliveryStatus = iota
	// Delivered means the relay accepted the message.
	Delivered
	// Gone means the relay confirmed the endpoint no longer exists (404/410).
	// The subscription should be pruned; it is not an error.
	Gone
)

func (s DeliveryStatus) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case Gone:
		return "gone"
	default:
		return "failed"
	}
}

// LogValue keeps keys out of logs and shortens the endpoint.
func (s PushSubscription) LogValue() slog.Value {
	ep := s.Endpoint
	if len(ep) > 50 {
		ep = ep[:50] + "…"
	}
	return slog.GroupValue(
		slog.String("id", s.SubscriptionID),
		slog.String("user_id", s.UserID),
		slog.String("endpoint", ep),
	)
}
