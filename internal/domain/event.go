package domain

import (
	"bytes"
	"encoding/json"
)

// Event kinds carried on the live channel. Anything else is reserved and
// ignored by clients.
const (
	KindNotification = "notification"
)

// Fixed values used when a push payload omits them.
const (
	DefaultPushIcon  = "/icons/icon-192.png"
	DefaultPushBadge = "/icons/badge-72.png"
	DefaultPushTag   = "notification"
)

// NotificationEvent is the transient payload of a notification. Data["url"]
// is the click-through target by convention.
type NotificationEvent struct {
	Kind  string    `json:"type"`
	ID    string    `json:"id,omitempty"`
	Title string    `json:"title,omitempty"`
	Body  string    `json:"body,omitempty"`
	Data  EventData `json:"data,omitempty"`
}

// EventData is the free-form data attached to an event. Producers may put any
// JSON value in it; string values are kept as is, null values are dropped and
// every other value is kept as its compact JSON text. A data field that is not
// an object decodes as empty rather than failing the whole event.
type EventData map[string]string

func (d *EventData) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil || raw == nil {
		*d = nil
		return nil
	}
	out := make(EventData, len(raw))
	for k, v := range raw {
		if bytes.Equal(v, []byte("null")) {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
			continue
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, v); err != nil {
			continue
		}
		out[k] = buf.String()
	}
	*d = out
	return nil
}

// URL returns the click-through target, if any.
func (e NotificationEvent) URL() string {
	return e.Data["url"]
}

// PushPayload is what the platform notification surface receives.
type PushPayload struct {
	Title string    `json:"title"`
	Body  string    `json:"body"`
	Icon  string    `json:"icon"`
	Badge string    `json:"badge"`
	Tag   string    `json:"tag"`
	Data  EventData `json:"data"`
}

// PushDefaults holds the icon, badge and tag applied to payloads that omit them.
type PushDefaults struct {
	Icon  string
	Badge string
	Tag   string
}

// WithDefaults fills icon, badge and tag from d (or the package defaults when
// d leaves them empty) and guarantees a non-nil data map.
func (p PushPayload) WithDefaults(d PushDefaults) PushPayload {
	p.Icon = firstNonEmpty(p.Icon, d.Icon, DefaultPushIcon)
	p.Badge = firstNonEmpty(p.Badge, d.Badge, DefaultPushBadge)
	p.Tag = firstNonEmpty(p.Tag, d.Tag, DefaultPushTag)
	if p.Data == nil {
		p.Data = EventData{}
	}
	return p
}

// PushPayloadFromEvent converts a live-channel event into the push payload
// shape. The event id travels in data so both channels carry it.
func PushPayloadFromEvent(e NotificationEvent) PushPayload {
	data := make(EventData, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	if e.ID != "" {
		data["event_id"] = e.ID
	}
	return PushPayload{Title: e.Title, Body: e.Body, Data: data}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
