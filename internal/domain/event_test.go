package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPayload_WithDefaults_FillsMissing(t *testing.T) {
	p := PushPayload{Title: "X"}.WithDefaults(PushDefaults{})
	assert.Equal(t, DefaultPushIcon, p.Icon)
	assert.Equal(t, DefaultPushBadge, p.Badge)
	assert.Equal(t, DefaultPushTag, p.Tag)
	assert.NotNil(t, p.Data)
}

func TestPushPayload_WithDefaults_KeepsCallerValues(t *testing.T) {
	p := PushPayload{Icon: "/a.png", Tag: "orders"}.WithDefaults(PushDefaults{Icon: "/cfg.png", Badge: "/b.png"})
	assert.Equal(t, "/a.png", p.Icon)
	assert.Equal(t, "/b.png", p.Badge)
	assert.Equal(t, "orders", p.Tag)
}

func TestPushPayloadFromEvent_CarriesURLAndID(t *testing.T) {
	e := NotificationEvent{Kind: KindNotification, ID: "01H", Title: "T", Body: "B", Data: map[string]string{"url": "/orders/7"}}
	p := PushPayloadFromEvent(e)
	assert.Equal(t, "T", p.Title)
	assert.Equal(t, "B", p.Body)
	assert.Equal(t, "/orders/7", p.Data["url"])
	assert.Equal(t, "01H", p.Data["event_id"])
	// Source map is not aliased.
	p.Data["x"] = "y"
	_, leaked := e.Data["x"]
	assert.False(t, leaked)
}

func TestNotification_Event(t *testing.T) {
	n := Notification{NotificationID: "n1", Title: "New message", Message: "hi", URL: "/inbox"}
	e := n.Event()
	assert.Equal(t, KindNotification, e.Kind)
	assert.Equal(t, "n1", e.ID)
	assert.Equal(t, "/inbox", e.URL())
}

func TestEventData_DecodesNonStringValues(t *testing.T) {
	var e NotificationEvent
	err := json.Unmarshal([]byte(`{"type":"notification","title":"T","data":{
		"url":"/o/1","orderId":42,"paid":true,"items":[1, 2],"meta":{"a": "b"},"gone":null}}`), &e)
	require.NoError(t, err)

	assert.Equal(t, "T", e.Title)
	assert.Equal(t, "/o/1", e.URL())
	assert.Equal(t, EventData{
		"url":     "/o/1",
		"orderId": "42",
		"paid":    "true",
		"items":   "[1,2]",
		"meta":    `{"a":"b"}`,
	}, e.Data)
}

func TestEventData_NonObjectIsEmpty(t *testing.T) {
	for _, in := range []string{`"x"`, `[1]`, `7`, `null`} {
		var p PushPayload
		require.NoError(t, json.Unmarshal([]byte(`{"title":"T","data":`+in+`}`), &p), in)
		assert.Equal(t, "T", p.Title)
		assert.Empty(t, p.Data, in)
	}
}
