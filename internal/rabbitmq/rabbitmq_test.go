package rabbitmq

import (
	"encoding/json"
	"testing"
	"time"

	"code_auth/internal/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishing(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := models.Message{
		To:      "user@x.com",
		Purpose: models.PurposeVerificationCode,
		Code:    "123456",
	}

	p, err := publishing(msg, now)
	require.NoError(t, err)

	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, amqp.Persistent, p.DeliveryMode)
	assert.Equal(t, now, p.Timestamp)

	var got models.Message
	require.NoError(t, json.Unmarshal(p.Body, &got))
	assert.Equal(t, msg, got)
	assert.NotContains(t, string(p.Body), "link")
}
