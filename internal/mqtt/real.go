package mqtt

import (
	"fmt"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/button-sensor/internal/logic"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker. Actions published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client    paho.Client
	topic     string
	buffer    *offlineBuffer
	connected atomic.Bool // set after the first successful connection
}

// NewRealPublisher creates a publisher for the given broker. If the broker is
// not reachable within the connect timeout, the publisher keeps retrying in
// the background and buffers actions meanwhile.
func NewRealPublisher(broker, clientID string, bufferSize int) (*RealPublisher, error) {
	p := &RealPublisher{
		topic:  Topic,
		buffer: newOfflineBuffer(bufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Warnf("mqtt: broker %s not reachable yet, buffering until connected", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// onConnect runs on every (re)connection.
func (p *RealPublisher) onConnect(c paho.Client) {
	if p.connected.Swap(true) {
		log.Info("mqtt: reconnected")
		payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err == nil {
			if err := p.publishRaw(TopicSystem, 1, false, payload); err != nil {
				log.Warnf("mqtt: publish reconnected event: %v", err)
			}
		}
	} else {
		log.Info("mqtt: connected")
	}

	msgs := p.buffer.drainAll()
	if len(msgs) > 0 {
		log.Infof("mqtt: replaying %d buffered messages", len(msgs))
	}
	for i, msg := range msgs {
		if err := p.publishRaw(msg.topic, msg.qos, msg.retained, msg.payload); err != nil {
			log.Warnf("mqtt: replay failed, re-buffering %d messages: %v", len(msgs)-i, err)
			for _, m := range msgs[i:] {
				p.buffer.push(m)
			}
			return
		}
	}
}

func (p *RealPublisher) publishRaw(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a button action to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	msg := bufferedMsg{topic: p.topic, payload: payload}
	if !p.client.IsConnectionOpen() {
		p.buffer.push(msg)
		log.Debugf("mqtt: offline, buffered action (%d queued)", p.buffer.len())
		return nil
	}

	// QoS 0 (at-most-once), not retained
	if err := p.publishRaw(msg.topic, msg.qos, msg.retained, msg.payload); err != nil {
		p.buffer.push(msg)
		return err
	}
	return nil
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	if err := p.publishRaw(TopicSystem, 1, event.Retained, payload); err != nil {
		return fmt.Errorf("system event: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
