// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/apex/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/giadasql/IoT-Project/types"
)

// PublishTimeout is the maximum time Publish waits for the broker
var PublishTimeout = 5 * time.Second

// SubscribeTimeout is the maximum time Subscribe waits for the acknowledgement
var SubscribeTimeout = 5 * time.Second

// SubscribeQoS indicates the MQTT Quality of Service level used for subscriptions.
// 0: The broker/client will deliver the message once, with no confirmation.
// 1: The broker/client will deliver the message at least once, with confirmation required.
// 2: The broker/client will deliver the message exactly once by using a four step handshake.
var SubscribeQoS byte = 0x00

// BufferSize indicates the maximum number of MQTT messages and events that should be buffered
var BufferSize = 10

// Config contains configuration for MQTT
type Config struct {
	Brokers        []string
	ClientID       string
	Username       string
	Password       string
	TLSConfig      *tls.Config
	ConnectTimeout time.Duration
}

// MQTT side of the collector
type MQTT struct {
	ctx      log.Interface
	client   paho.Client
	events   chan types.Event
	messages chan *types.Message

	mu         sync.Mutex
	connecting bool
}

// New returns a new MQTT
func New(config Config, ctx log.Interface) (*MQTT, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("mqtt: no brokers configured")
	}

	mqtt := &MQTT{
		ctx:      ctx.WithField("Connector", "MQTT"),
		events:   make(chan types.Event, BufferSize),
		messages: make(chan *types.Message, BufferSize),
	}

	mqttOpts := paho.NewClientOptions()
	for _, broker := range config.Brokers {
		mqttOpts.AddBroker(broker)
	}
	if config.TLSConfig != nil {
		mqttOpts.SetTLSConfig(config.TLSConfig)
	}
	clientID := config.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("coap_to_mqtt_%d", time.Now().UnixNano()%0xffff)
	}
	mqttOpts.SetClientID(clientID)
	mqttOpts.SetUsername(config.Username)
	mqttOpts.SetPassword(config.Password)
	mqttOpts.SetKeepAlive(30 * time.Second)
	mqttOpts.SetPingTimeout(10 * time.Second)
	if config.ConnectTimeout > 0 {
		mqttOpts.SetConnectTimeout(config.ConnectTimeout)
	}
	mqttOpts.SetCleanSession(true)
	mqttOpts.SetAutoReconnect(false)
	mqttOpts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		mqtt.ctx.Warnf("Received unhandled message on MQTT: %v", msg)
	})
	mqttOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		mqtt.ctx.WithError(err).Warn("Disconnected")
		mqtt.emit(types.Disconnected)
	})
	mqttOpts.SetOnConnectHandler(func(_ paho.Client) {
		mqtt.ctx.Info("Connected")
		mqtt.emit(types.Connected)
	})

	mqtt.client = paho.NewClient(mqttOpts)

	return mqtt, nil
}

func (c *MQTT) emit(event types.Event) {
	select {
	case c.events <- event:
	default:
		c.ctx.WithField("Event", event).Warn("Could not emit event: buffer full")
	}
}

// Events returns the channel of connection events
func (c *MQTT) Events() <-chan types.Event {
	return c.events
}

// Messages returns the channel of received messages
func (c *MQTT) Messages() <-chan *types.Message {
	return c.messages
}

// Connect starts connecting to MQTT. A failed attempt is reported as a Disconnected event.
func (c *MQTT) Connect() error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	token := c.client.Connect()
	go func() {
		defer func() {
			c.mu.Lock()
			c.connecting = false
			c.mu.Unlock()
		}()
		if !token.WaitTimeout(1 * time.Second) {
			c.ctx.Warn("MQTT connection took longer than expected...")
			token.Wait()
		}
		if err := token.Error(); err != nil {
			c.ctx.WithError(err).Warn("Could not connect to MQTT")
			c.emit(types.Disconnected)
		}
	}()
	return nil
}

// Disconnect from MQTT
func (c *MQTT) Disconnect() error {
	if c.client.IsConnected() {
		c.client.Disconnect(100)
	}
	return nil
}

// Subscribe to a topic and wait for the acknowledgement
func (c *MQTT) Subscribe(topic string) error {
	ctx := c.ctx.WithField("Topic", topic)
	token := c.client.Subscribe(topic, SubscribeQoS, func(_ paho.Client, msg paho.Message) {
		if msg.Retained() {
			ctx.Debug("Ignore retained message")
			return
		}
		select {
		case c.messages <- &types.Message{Topic: msg.Topic(), Payload: msg.Payload()}:
			ctx.WithField("Size", len(msg.Payload())).Debug("Received message")
		default:
			ctx.Warn("Could not handle message: buffer full")
		}
	})
	if !token.WaitTimeout(SubscribeTimeout) {
		return fmt.Errorf("mqtt: subscribe to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	ctx.Debug("Subscribed")
	return nil
}

// Publish a message and wait until the broker has handled it according to the QoS level
func (c *MQTT) Publish(topic string, qos byte, payload []byte) error {
	token := c.client.Publish(topic, qos, false, payload)
	if !token.WaitTimeout(PublishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return err
	}
	c.ctx.WithField("Topic", topic).WithField("Size", len(payload)).Debug("Published message")
	return nil
}
