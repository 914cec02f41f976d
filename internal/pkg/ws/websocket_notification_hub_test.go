package ws

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingListener struct {
	events []any
	fail   bool
}

func (l *recordingListener) WriteJSON(v any) error {
	if l.fail {
		return errors.New("broken pipe")
	}
	l.events = append(l.events, v)
	return nil
}

func TestPublishReachesTopicListenersOnly(t *testing.T) {
	hub := NewNotificationHub()
	a := &recordingListener{}
	b := &recordingListener{}
	other := &recordingListener{}

	hub.RegisterListener("wallets/0xA1", a)
	hub.RegisterListener("wallets/0xA1", b)
	hub.RegisterListener("wallets/0xA2", other)

	hub.Publish("wallets/0xA1", map[string]any{"type": "WALLET_PROVISIONED"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Empty(t, other.events)
}

func TestPublishSkipsBrokenListener(t *testing.T) {
	hub := NewNotificationHub()
	broken := &recordingListener{fail: true}
	ok := &recordingListener{}

	hub.RegisterListener("t", broken)
	hub.RegisterListener("t", ok)
	hub.Publish("t", "event")

	assert.Len(t, ok.events, 1)
}

func TestUnregisterListener(t *testing.T) {
	hub := NewNotificationHub()
	a := &recordingListener{}
	b := &recordingListener{}
	stranger := &recordingListener{}

	hub.RegisterListener("t", a)
	hub.RegisterListener("t", b)

	hub.UnregisterListener("t", stranger)
	assert.Equal(t, 2, hub.ListenerCount("t"))

	hub.UnregisterListener("t", a)
	assert.Equal(t, 1, hub.ListenerCount("t"))

	hub.Publish("t", "event")
	assert.Empty(t, a.events)
	assert.Len(t, b.events, 1)

	hub.UnregisterListener("t", b)
	assert.Equal(t, 0, hub.ListenerCount("t"))
}
