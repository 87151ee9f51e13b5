package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatus_ZeroValueIsFailed(t *testing.T) {
	var s DeliveryStatus
	assert.Equal(t, Failed, s)
	assert.Equal(t, "failed", s.String())
	assert.Equal(t, "delivered", Delivered.String())
	assert.Equal(t, "gone", Gone.String())
}
