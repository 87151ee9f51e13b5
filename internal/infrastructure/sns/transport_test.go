package sns

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
	"github.com/notify-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

const arn = "arn:aws:sns:us-east-1:000000000000:endpoint/GCM/app/abc"

func newTestTransport(p Publisher) *Transport {
	return NewTransport(p, domain.PushDefaults{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSend_Delivered(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TargetArn) == arn && aws.ToString(in.MessageStructure) == "json"
	})).Return(&sns.PublishOutput{MessageId: aws.String("m1")}, nil)

	status := newTestTransport(p).Send(context.Background(), domain.PushSubscription{Endpoint: arn}, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Delivered, status)
	p.AssertExpectations(t)
}

func TestSend_DisabledEndpointIsGone(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, &types.EndpointDisabledException{Message: aws.String("disabled")})

	status := newTestTransport(p).Send(context.Background(), domain.PushSubscription{Endpoint: arn}, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Gone, status)
}

func TestSend_NotFoundIsGone(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, &types.NotFoundException{Message: aws.String("no such endpoint")})

	status := newTestTransport(p).Send(context.Background(), domain.PushSubscription{Endpoint: arn}, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Gone, status)
}

func TestSend_OtherErrorIsFailed(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	status := newTestTransport(p).Send(context.Background(), domain.PushSubscription{Endpoint: arn}, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Failed, status)
}

func TestSend_ThrottledIsFailedNotGone(t *testing.T) {
	p := &mockPublisher{}
	p.On("Publish", mock.Anything, mock.Anything).Return(nil, &smithy.GenericAPIError{Code: "Throttling", Message: "rate exceeded"})

	status := newTestTransport(p).Send(context.Background(), domain.PushSubscription{Endpoint: arn}, domain.PushPayload{Title: "X"})
	assert.Equal(t, domain.Failed, status)
}

func TestPlatformMessage_Shape(t *testing.T) {
	msg, err := platformMessage(domain.PushPayload{Title: "T", Body: "B", Data: map[string]string{"url": "/x"}}.WithDefaults(domain.PushDefaults{}))
	require.NoError(t, err)

	var env map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg), &env))
	assert.Equal(t, "B", env["default"])

	var gcm struct {
		Notification map[string]string `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(env["GCM"]), &gcm))
	assert.Equal(t, "T", gcm.Notification["title"])
	assert.Equal(t, domain.DefaultPushTag, gcm.Notification["tag"])
	assert.Equal(t, "/x", gcm.Data["url"])
	assert.Contains(t, env, "APNS")
}
