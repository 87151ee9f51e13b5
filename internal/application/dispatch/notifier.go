package dispatch

import (
	"context"
	"log/slog"

	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/pkg/id"
	"github.com/notify-relay/internal/protocol"
)

// LiveSender writes an encoded frame to the user's live connection, if any.
type LiveSender interface {
	SendToUser(userID string, frame []byte) bool
}

// Notifier is the entry point for code that wants to tell a user about
// something. It writes to the live channel and, independently, dispatches to
// every push subscription.
type Notifier struct {
	live       LiveSender
	dispatcher *Dispatcher
	log        *slog.Logger
}

func NewNotifier(live LiveSender, dispatcher *Dispatcher, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{live: live, dispatcher: dispatcher, log: logger}
}

// Notify delivers event to userID over both channels. The event gets an id
// when it has none so both copies carry the same one. The returned error is
// only ever a store failure from the push side.
func (n *Notifier) Notify(ctx context.Context, userID string, event domain.NotificationEvent) (Report, error) {
	if event.Kind == "" {
		event.Kind = domain.KindNotification
	}
	if event.ID == "" {
		event.ID = id.New()
	}

	if frame, err := protocol.EncodeEvent(event); err != nil {
		n.log.Error("encode live event", "user_id", userID, "err", err)
	} else if n.live.SendToUser(userID, frame) {
		n.log.Debug("live event queued", "user_id", userID, "event_id", event.ID)
	}

	report, err := n.dispatcher.DispatchToUser(ctx, userID, domain.PushPayloadFromEvent(event))
	if err != nil {
		n.log.Error("push dispatch", "user_id", userID, "event_id", event.ID, "err", err)
	}
	return report, err
}
