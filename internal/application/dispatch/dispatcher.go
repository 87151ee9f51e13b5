// Package dispatch fans a notification out to every push subscription of a
// user and prunes the endpoints the relay reports as gone.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/notify-relay/internal/domain"
	"golang.org/x/sync/errgroup"
)

// SubscriptionStore is the part of the subscription store the dispatcher uses.
type SubscriptionStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.PushSubscription, error)
	DeleteMany(ctx context.Context, ids []string) error
}

// Report summarises one dispatch.
type Report struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Pruned    int `json:"pruned"`
	Failed    int `json:"failed"`
}

type Options struct {
	Concurrency int
	SendTimeout time.Duration
	Defaults    domain.PushDefaults
	Logger      *slog.Logger
}

type Dispatcher struct {
	store       SubscriptionStore
	transport   Transport
	concurrency int
	sendTimeout time.Duration
	defaults    domain.PushDefaults
	log         *slog.Logger
}

func NewDispatcher(store SubscriptionStore, transport Transport, opts Options) *Dispatcher {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		store:       store,
		transport:   transport,
		concurrency: opts.Concurrency,
		sendTimeout: opts.SendTimeout,
		defaults:    opts.Defaults,
		log:         opts.Logger,
	}
}

// DispatchToUser sends payload to every stored subscription of userID and
// waits for all sends. Subscriptions reported Gone are deleted in one batch.
// Only a failure to read the store is returned; per-endpoint failures and
// pruning failures are logged.
func (d *Dispatcher) DispatchToUser(ctx context.Context, userID string, payload domain.PushPayload) (Report, error) {
	subs, err := d.store.ListByUser(ctx, userID)
	if err != nil {
		return Report{}, fmt.Errorf("list subscriptions for %s: %w: %w", userID, domain.ErrStoreUnavailable, err)
	}
	report := Report{Attempted: len(subs)}
	if len(subs) == 0 {
		return report, nil
	}

	payload = payload.WithDefaults(d.defaults)
	statuses := make([]domain.DeliveryStatus, len(subs))

	var g errgroup.Group
	g.SetLimit(d.concurrency)
	for i := range subs {
		g.Go(func() error {
			statuses[i] = d.send(ctx, subs[i], payload)
			return nil
		})
	}
	_ = g.Wait()

	var gone []string
	for i, st := range statuses {
		switch st {
		case domain.Delivered:
			report.Delivered++
		case domain.Gone:
			gone = append(gone, subs[i].SubscriptionID)
		default:
			report.Failed++
		}
	}

	if len(gone) > 0 {
		if err := d.store.DeleteMany(ctx, gone); err != nil {
			d.log.Error("prune gone subscriptions", "user_id", userID, "count", len(gone), "err", err)
		} else {
			report.Pruned = len(gone)
		}
	}

	d.log.Info("push dispatched", "user_id", userID,
		"attempted", report.Attempted, "delivered", report.Delivered,
		"pruned", report.Pruned, "failed", report.Failed)
	return report, nil
}

func (d *Dispatcher) send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) (status domain.DeliveryStatus) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("push transport panicked", "subscription", sub, "panic", r)
			status = domain.Failed
		}
	}()
	if d.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.sendTimeout)
		defer cancel()
	}
	return d.transport.Send(ctx, sub, payload)
}
