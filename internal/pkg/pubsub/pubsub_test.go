package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWalletProvisioned(t *testing.T) {
	event := NewWalletProvisioned("user-1", "0xembedded", "0xserver")

	assert.NotEmpty(t, event.Id)
	assert.Equal(t, "user-1", event.UserWalletId)
	assert.False(t, event.OccurredAt.IsZero())
	assert.Equal(t, walletProvisionedTopic, event.GetEventTopicName())

	other := NewWalletProvisioned("user-1", "0xembedded", "0xserver")
	assert.NotEqual(t, event.Id, other.Id)
}

func TestEncodeMessage(t *testing.T) {
	data, err := encodeMessage("raw")
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), data)

	data, err = encodeMessage(TransactionSubmitted{Hash: "0xabc", Caip2: "eip155:11155111"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "0xabc", decoded["hash"])
	assert.Equal(t, "eip155:11155111", decoded["caip2"])
}

func TestNoopPublisher(t *testing.T) {
	var publisher Publisher = NoopPublisher{}
	assert.NoError(t, publisher.Publish(context.Background(), TransactionSubmitted{}))
}

func TestNewGooglePublisherRequiresProject(t *testing.T) {
	_, err := NewGooglePublisher(context.Background(), "")
	assert.Error(t, err)
}
