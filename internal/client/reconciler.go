// Package client holds the receiving side of notification delivery: the live
// channel listener, the authoritative unread state, and the reconciler that
// turns any delivery signal into a refresh plus at most one alert.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/protocol"
)

// Source tells which channel an event arrived on.
type Source string

const (
	SourceLive Source = "live"
	SourcePush Source = "push"
)

// Invalidator marks the unread list and count stale.
type Invalidator interface {
	Invalidate()
}

// Alert is one transient user-visible notice.
type Alert struct {
	EventID string
	Title   string
	Body    string
	URL     string
	Source  Source
}

// Alerter renders an alert (visual and audio cue).
type Alerter interface {
	Alert(a Alert) error
}

type ReconcilerOptions struct {
	// Inbox bounds queued events; producers drop when it is full.
	Inbox int
	// DedupeWindow suppresses a second alert for the same event id within
	// the window. Zero leaves duplicates across channels alone.
	DedupeWindow time.Duration
	Logger       *slog.Logger
	Now          func() time.Time
}

type delivery struct {
	event  domain.NotificationEvent
	source Source
}

// Reconciler handles events from both channels on one goroutine.
type Reconciler struct {
	inbox   chan delivery
	state   Invalidator
	alerter Alerter
	opts    ReconcilerOptions
	shown   map[string]time.Time
}

func NewReconciler(state Invalidator, alerter Alerter, opts ReconcilerOptions) *Reconciler {
	if opts.Inbox <= 0 {
		opts.Inbox = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Reconciler{
		inbox:   make(chan delivery, opts.Inbox),
		state:   state,
		alerter: alerter,
		opts:    opts,
		shown:   make(map[string]time.Time),
	}
}

// HandleLive queues a live-channel event. Only notification frames are
// queued; every other variant is ignored.
func (r *Reconciler) HandleLive(ev protocol.Event) bool {
	n, ok := ev.(protocol.Notification)
	if !ok {
		return false
	}
	return r.enqueue(delivery{event: n.NotificationEvent, source: SourceLive})
}

// HandlePushReceipt queues a payload the platform already showed as a system
// notification.
func (r *Reconciler) HandlePushReceipt(p domain.PushPayload) bool {
	ev := domain.NotificationEvent{
		Kind:  domain.KindNotification,
		ID:    p.Data["event_id"],
		Title: p.Title,
		Body:  p.Body,
		Data:  p.Data,
	}
	return r.enqueue(delivery{event: ev, source: SourcePush})
}

func (r *Reconciler) enqueue(d delivery) bool {
	select {
	case r.inbox <- d:
		return true
	default:
		r.opts.Logger.Warn("reconciler inbox full, event dropped", "source", d.source, "event_id", d.event.ID)
		return false
	}
}

// Run processes queued events until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d := <-r.inbox:
			r.reconcile(d)
		}
	}
}

func (r *Reconciler) reconcile(d delivery) {
	if d.event.Kind != domain.KindNotification {
		return
	}
	r.state.Invalidate()

	if d.event.Title == "" || r.recentlyShown(d.event.ID) {
		return
	}
	err := r.alerter.Alert(Alert{
		EventID: d.event.ID,
		Title:   d.event.Title,
		Body:    d.event.Body,
		URL:     d.event.URL(),
		Source:  d.source,
	})
	if err != nil {
		r.opts.Logger.Warn("alert failed", "event_id", d.event.ID, "err", err)
	}
}

// recentlyShown records id and reports whether it was already alerted within
// DedupeWindow.
func (r *Reconciler) recentlyShown(id string) bool {
	if r.opts.DedupeWindow <= 0 || id == "" {
		return false
	}
	now := r.opts.Now()
	for k, at := range r.shown {
		if now.Sub(at) > r.opts.DedupeWindow {
			delete(r.shown, k)
		}
	}
	if _, ok := r.shown[id]; ok {
		return true
	}
	r.shown[id] = now
	return false
}
