package mqtt

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-sensor/internal/fifo"
)

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// offlineBuffer keeps the most recent messages while disconnected, dropping
// the oldest when full.
type offlineBuffer struct {
	mu       sync.Mutex
	q        *fifo.FIFO[bufferedMsg]
	overflow bool // true if any message was dropped since last drain
}

func newOfflineBuffer(capacity int) *offlineBuffer {
	return &offlineBuffer{q: fifo.New[bufferedMsg](capacity)}
}

func (b *offlineBuffer) push(msg bufferedMsg) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Full() {
		if !b.overflow {
			log.Warnf("mqtt: buffer full (%d messages), dropping oldest", b.q.Cap())
			b.overflow = true
		}
		_, _ = b.q.Pop()
	}
	_ = b.q.Push(msg)
}

func (b *offlineBuffer) drainAll() []bufferedMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.q.Len() == 0 {
		return nil
	}

	result := make([]bufferedMsg, 0, b.q.Len())
	for b.q.Len() > 0 {
		msg, _ := b.q.Pop()
		result = append(result, msg)
	}
	b.overflow = false
	return result
}

func (b *offlineBuffer) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.q.Len()
}
