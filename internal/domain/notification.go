package domain

import "time"

// Notification is the persisted unread record owned by the domain layer.
// Clients refetch it after any delivery signal.
type Notification struct {
	NotificationID string    `json:"id" dynamodbav:"notification_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	Title          string    `json:"title" dynamodbav:"title"`
	Message        string    `json:"message" dynamodbav:"message"`
	URL            string    `json:"url,omitempty" dynamodbav:"url,omitempty"`
	Readed         int       `json:"readed" dynamodbav:"readed"` // legacy field name preserved
	CreatedAt      time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updated" dynamodbav:"updated_at"`
}

// Event builds the live-channel event announcing this notification.
func (n Notification) Event() NotificationEvent {
	e := NotificationEvent{
		Kind:  KindNotification,
		ID:    n.NotificationID,
		Title: n.Title,
		Body:  n.Message,
	}
	if n.URL != "" {
		e.Data = map[string]string{"url": n.URL}
	}
	return e
}

// CreateNotificationRequest is the body of POST /push/test.
type CreateNotificationRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"max=2000"`
	URL     string `json:"url" validate:"omitempty,max=2048"`
}
