// Package webpush delivers push payloads to browser subscriptions through
// their Web Push relay, using VAPID authentication.
package webpush

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/notify-relay/internal/config"
	"github.com/notify-relay/internal/domain"
)

// Transport sends one encrypted payload to one subscription endpoint.
type Transport struct {
	publicKey  string
	privateKey string
	subject    string
	ttl        int
	urgency    webpush.Urgency
	defaults   domain.PushDefaults
	httpClient *http.Client
	log        *slog.Logger
}

// Options configures a Transport.
type Options struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string // mailto: or https: contact for the relay operator
	TTL             int
	Timeout         time.Duration
	Defaults        domain.PushDefaults
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// New builds a Transport. When no VAPID key pair is supplied an ephemeral one
// is generated; subscriptions made against it stop working after a restart.
func New(opts Options) (*Transport, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	pub, priv := opts.VAPIDPublicKey, opts.VAPIDPrivateKey
	if pub == "" || priv == "" {
		var err error
		priv, pub, err = webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("generate VAPID keys: %w", err)
		}
		logger.Warn("VAPID keys not configured, using ephemeral key pair", "public_key", pub)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Transport{
		publicKey:  pub,
		privateKey: priv,
		subject:    opts.Subject,
		ttl:        opts.TTL,
		urgency:    webpush.UrgencyNormal,
		defaults:   opts.Defaults,
		httpClient: client,
		log:        logger,
	}, nil
}

// NewFromConfig builds a Transport from the application config.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) (*Transport, error) {
	return New(Options{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
		TTL:             cfg.PushTTL,
		Timeout:         cfg.PushSendTimeout,
		Defaults:        domain.PushDefaults{Icon: cfg.PushIcon, Badge: cfg.PushBadge, Tag: cfg.PushTag},
		Logger:          logger,
	})
}

// PublicKey is the VAPID application server key clients subscribe with.
func (t *Transport) PublicKey() string { return t.publicKey }

// Send encrypts and posts payload to the subscription's relay. Relay 404/410
// reports Gone; any other failure is logged and reported as Failed.
func (t *Transport) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) domain.DeliveryStatus {
	body, err := json.Marshal(payload.WithDefaults(t.defaults))
	if err != nil {
		t.log.Error("marshal push payload", "subscription", sub, "err", err)
		return domain.Failed
	}

	resp, err := webpush.SendNotificationWithContext(ctx, body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		HTTPClient:      t.httpClient,
		Subscriber:      t.subject,
		VAPIDPublicKey:  t.publicKey,
		VAPIDPrivateKey: t.privateKey,
		TTL:             t.ttl,
		Urgency:         t.urgency,
	})
	if err != nil {
		t.log.Warn("push send failed", "subscription", sub, "err", err)
		return domain.Failed
	}
	defer resp.Body.Close()

	status := classify(resp.StatusCode)
	switch status {
	case domain.Delivered:
		t.log.Debug("push delivered", "subscription", sub, "status", resp.StatusCode)
	case domain.Gone:
		t.log.Info("push endpoint gone", "subscription", sub, "status", resp.StatusCode)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		t.log.Warn("push relay rejected message", "subscription", sub, "status", resp.StatusCode, "body", string(detail))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return status
}

func classify(code int) domain.DeliveryStatus {
	switch {
	case code >= 200 && code < 300:
		return domain.Delivered
	case code == http.StatusNotFound || code == http.StatusGone:
		return domain.Gone
	default:
		return domain.Failed
	}
}
