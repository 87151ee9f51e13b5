package domain

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// PushSubscription is one browser or device installation able to receive push.
// P256dh and Auth are kept exactly as the client sent them (base64url).
type PushSubscription struct {
	SubscriptionID string    `json:"id" dynamodbav:"subscription_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	Endpoint       string    `json:"endpoint" dynamodbav:"endpoint"`
	P256dh         string    `json:"p256dh" dynamodbav:"p256dh"`
	Auth           string    `json:"auth" dynamodbav:"auth"`
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// SubscriptionKeys mirrors the keys object of a browser PushSubscription.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

// SubscribeRequest is the body of POST /push/subscribe.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint" validate:"required,push_endpoint"`
	Keys     SubscriptionKeys `json:"keys" validate:"required"`
}

// UnsubscribeRequest is the body of DELETE /push/subscribe.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// SubscriptionID derives the stable id of the (user, endpoint) pair.
// Writing the same pair twice therefore targets the same row.
func SubscriptionID(userID, endpoint string) string {
	sum := blake2b.Sum256([]byte(userID + "\x00" + endpoint))
	return hex.EncodeToString(sum[:])
}

// NewPushSubscription builds a subscription with its derived id and timestamps.
func NewPushSubscription(userID, endpoint, p256dh, auth string, now time.Time) *PushSubscription {
	return &PushSubscription{
		SubscriptionID: SubscriptionID(userID, endpoint),
		UserID:         userID,
		Endpoint:       endpoint,
		P256dh:         p256dh,
		Auth:           auth,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// IsPlatformEndpoint reports whether the endpoint is an SNS mobile platform
// endpoint ARN rather than a Web Push relay URL.
func (s PushSubscription) IsPlatformEndpoint() bool {
	return strings.HasPrefix(s.Endpoint, "arn:")
}
