package ws

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Listener is satisfied by *websocket.Conn.
type Listener interface {
	WriteJSON(v any) error
}

// WebSocketNotificationHub fans events out to listeners by topic. Writes are
// serialized because a websocket connection allows one writer at a time.
type WebSocketNotificationHub struct {
	registrationMutex sync.Mutex
	publishMutex      sync.Mutex
	listeners         map[string][]Listener
}

func NewNotificationHub() *WebSocketNotificationHub {
	return &WebSocketNotificationHub{
		listeners: make(map[string][]Listener),
	}
}

func (hub *WebSocketNotificationHub) RegisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	hub.listeners[topic] = append(hub.listeners[topic], conn)
}

func (hub *WebSocketNotificationHub) UnregisterListener(topic string, conn Listener) {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()

	remaining := hub.listeners[topic][:0]
	for _, listener := range hub.listeners[topic] {
		if listener != conn {
			remaining = append(remaining, listener)
		}
	}

	if len(remaining) == 0 {
		delete(hub.listeners, topic)
		return
	}
	hub.listeners[topic] = remaining
}

func (hub *WebSocketNotificationHub) Publish(targetTopic string, event any) {
	hub.registrationMutex.Lock()
	listeners := append([]Listener(nil), hub.listeners[targetTopic]...)
	hub.registrationMutex.Unlock()

	hub.publishMutex.Lock()
	defer hub.publishMutex.Unlock()
	for _, listener := range listeners {
		if err := listener.WriteJSON(event); err != nil {
			log.Warn().Err(err).Str("topic", targetTopic).Msg("Error writing ws notification")
		}
	}
}

func (hub *WebSocketNotificationHub) ListenerCount(topic string) int {
	hub.registrationMutex.Lock()
	defer hub.registrationMutex.Unlock()
	return len(hub.listeners[topic])
}
