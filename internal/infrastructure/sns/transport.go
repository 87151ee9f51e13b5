// Package sns delivers push payloads to mobile devices registered as AWS SNS
// platform endpoints (subscriptions whose endpoint is an endpoint ARN).
package sns

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/notify-relay/internal/config"
	"github.com/notify-relay/internal/domain"
	"github.com/notify-relay/internal/infrastructure/awscfg"
)

// Publisher is the subset of *sns.Client the transport uses.
type Publisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Transport publishes to SNS platform endpoints.
type Transport struct {
	client   Publisher
	defaults domain.PushDefaults
	log      *slog.Logger
}

func NewTransport(client Publisher, defaults domain.PushDefaults, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{client: client, defaults: defaults, log: logger}
}

// NewFromConfig builds an SNS client for cfg.SNSRegion, honouring the
// LocalStack endpoint override.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Transport, error) {
	awsCfg, err := awscfg.Load(ctx, cfg, cfg.SNSRegion)
	if err != nil {
		return nil, fmt.Errorf("sns: %w", err)
	}
	client := sns.NewFromConfig(awsCfg, func(o *sns.Options) {
		o.BaseEndpoint = awscfg.Endpoint(cfg)
	})
	defaults := domain.PushDefaults{Icon: cfg.PushIcon, Badge: cfg.PushBadge, Tag: cfg.PushTag}
	return NewTransport(client, defaults, logger), nil
}

// Send publishes payload to the subscription's endpoint ARN. A disabled or
// deleted endpoint is reported as Gone.
func (t *Transport) Send(ctx context.Context, sub domain.PushSubscription, payload domain.PushPayload) domain.DeliveryStatus {
	msg, err := platformMessage(payload.WithDefaults(t.defaults))
	if err != nil {
		t.log.Error("build SNS message", "subscription", sub, "err", err)
		return domain.Failed
	}
	_, err = t.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(sub.Endpoint),
		Message:          aws.String(msg),
		MessageStructure: aws.String("json"),
	})
	if err == nil {
		t.log.Debug("push delivered", "subscription", sub)
		return domain.Delivered
	}

	var disabled *types.EndpointDisabledException
	var notFound *types.NotFoundException
	if errors.As(err, &disabled) || errors.As(err, &notFound) {
		t.log.Info("push endpoint gone", "subscription", sub, "err", err)
		return domain.Gone
	}
	code := "unknown"
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}
	t.log.Warn("push send failed", "subscription", sub, "code", code, "err", err)
	return domain.Failed
}

// platformMessage renders the per-platform JSON envelope SNS expects when
// MessageStructure is "json".
func platformMessage(p domain.PushPayload) (string, error) {
	gcm, err := json.Marshal(map[string]any{
		"notification": map[string]string{
			"title": p.Title,
			"body":  p.Body,
			"icon":  p.Icon,
			"tag":   p.Tag,
		},
		"data": p.Data,
	})
	if err != nil {
		return "", err
	}
	apns, err := json.Marshal(map[string]any{
		"aps": map[string]any{
			"alert":     map[string]string{"title": p.Title, "body": p.Body},
			"thread-id": p.Tag,
		},
		"data": p.Data,
	})
	if err != nil {
		return "", err
	}
	envelope, err := json.Marshal(map[string]string{
		"default":      p.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(envelope), nil
}
