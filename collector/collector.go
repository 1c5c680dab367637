// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package collector

import (
	"context"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/backend"
	"github.com/giadasql/IoT-Project/discovery"
	"github.com/giadasql/IoT-Project/network"
	"github.com/giadasql/IoT-Project/poller"
	"github.com/giadasql/IoT-Project/publisher"
	"github.com/giadasql/IoT-Project/registry"
	"github.com/giadasql/IoT-Project/types"
)

// Config of the Collector
type Config struct {
	Interval            time.Duration
	ConnectTimeout      time.Duration
	ConfigRequestTopic  string
	ConfigResponseTopic string
	RequiredRoles       []types.Role
	ResetOnReconnect    bool
}

// DefaultConfig for the Collector
var DefaultConfig = Config{
	Interval:            10 * time.Second,
	ConnectTimeout:      30 * time.Second,
	ConfigRequestTopic:  "config/request",
	ConfigResponseTopic: "config/response",
}

// Collector drives the lifecycle of a bin collector: it waits for the
// network, connects to the broker, requests its configuration and then
// periodically polls the sensors and publishes a snapshot of the bin.
//
// All transitions happen on the goroutine started by Start; events and
// messages from the broker are delivered to it through channels.
type Collector struct {
	ctx    log.Interface
	config Config

	mu          sync.RWMutex
	state       State
	lastPublish time.Time

	pubsub    backend.PubSub
	network   network.Checker
	registry  *registry.Registry
	discovery *discovery.Handler
	poller    *poller.Poller
	publisher *publisher.Publisher

	connectWatchdog *watchdog
	timeout         chan struct{}

	pollCtx    context.Context
	cancelPoll context.CancelFunc

	done    chan struct{}
	stopped chan struct{}
	running bool
}

// New returns a new Collector in the Init state
func New(ctx log.Interface, config Config, pubsub backend.PubSub, registry *registry.Registry, discovery *discovery.Handler, poller *poller.Poller, publisher *publisher.Publisher) *Collector {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig.Interval
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConfig.ConnectTimeout
	}
	if config.ConfigRequestTopic == "" {
		config.ConfigRequestTopic = DefaultConfig.ConfigRequestTopic
	}
	if config.ConfigResponseTopic == "" {
		config.ConfigResponseTopic = DefaultConfig.ConfigResponseTopic
	}
	if poller.Observe == nil {
		poller.Observe = registerRead
	}
	pollCtx, cancelPoll := context.WithCancel(context.Background())
	registerState(Init)
	return &Collector{
		ctx:        ctx.WithField("Component", "Collector").WithField("Identity", discovery.Identity()),
		config:     config,
		state:      Init,
		pubsub:     pubsub,
		network:    network.Always,
		registry:   registry,
		discovery:  discovery,
		poller:     poller,
		publisher:  publisher,
		timeout:    make(chan struct{}, 1),
		pollCtx:    pollCtx,
		cancelPoll: cancelPoll,
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// SetNetwork sets the network readiness check
func (c *Collector) SetNetwork(checker network.Checker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.network = checker
}

// Identity of the collector
func (c *Collector) Identity() string {
	return c.discovery.Identity()
}

// Registry of the collector
func (c *Collector) Registry() *registry.Registry {
	return c.registry
}

// State returns the current state
func (c *Collector) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastPublish returns the time of the last successful publication
func (c *Collector) LastPublish() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPublish
}

func (c *Collector) setState(state State) {
	c.mu.Lock()
	previous := c.state
	c.state = state
	c.mu.Unlock()
	if previous == state {
		return
	}
	registerState(state)
	c.ctx.WithField("From", previous).WithField("To", state).Debug("State transition")
}

func (c *Collector) ready() bool {
	c.mu.RLock()
	checker := c.network
	c.mu.RUnlock()
	return checker.Ready()
}

// Step evaluates the state machine once. The guards are checked in a fixed
// order, so a single call can make several transitions. Sensors are only
// polled when tick is set.
func (c *Collector) Step(tick bool) {
	if c.State() == Init && c.ready() {
		c.ctx.Info("Network is ready")
		c.setState(NetworkReady)
	}
	if c.State() == NetworkReady {
		c.connect()
	}
	if c.State() == Connected {
		if err := c.pubsub.Subscribe(c.config.ConfigResponseTopic); err != nil {
			c.ctx.WithError(err).WithField("Topic", c.config.ConfigResponseTopic).Warn("Could not subscribe to configuration responses")
		} else {
			c.setState(AwaitingConfig)
		}
	}
	if c.State() == AwaitingConfig {
		c.requestConfig()
	}
	if c.State() == ConfigReceived && tick {
		c.pollAndPublish()
	}
	if c.State() == Disconnected {
		c.reset()
	}
}

func (c *Collector) connect() {
	c.ctx.Info("Connecting to broker")
	if err := c.pubsub.Connect(); err != nil {
		c.ctx.WithError(err).Warn("Could not connect to broker")
		c.setState(Disconnected)
		return
	}
	c.setState(Connecting)
	c.stopWatchdog()
	c.connectWatchdog = newWatchdog(c.config.ConnectTimeout, func() {
		select {
		case c.timeout <- struct{}{}:
		default:
		}
	})
}

func (c *Collector) stopWatchdog() {
	if c.connectWatchdog != nil {
		c.connectWatchdog.Stop()
		c.connectWatchdog = nil
	}
}

func (c *Collector) requestConfig() {
	request, err := c.discovery.Request()
	if err != nil {
		c.ctx.WithError(err).Warn("Could not build configuration request")
		return
	}
	if err := c.pubsub.Publish(c.config.ConfigRequestTopic, 0, request); err != nil {
		c.ctx.WithError(err).Warn("Could not publish configuration request")
		return
	}
	configRequests.Inc()
	c.ctx.Debug("Requested configuration")
}

func (c *Collector) pollAndPublish() {
	snapshot := c.poller.Poll(c.pollCtx, c.registry)
	err := c.publisher.Publish(c.registry.BinID(), snapshot)
	registerPublish(err)
	if err != nil {
		c.ctx.WithError(err).Warn("Could not publish snapshot")
		return
	}
	c.mu.Lock()
	c.lastPublish = time.Now()
	c.mu.Unlock()
}

func (c *Collector) reset() {
	c.stopWatchdog()
	if err := c.pubsub.Disconnect(); err != nil {
		c.ctx.WithError(err).Debug("Could not disconnect from broker")
	}
	if c.config.ResetOnReconnect {
		c.registry.Reset()
		c.ctx.Info("Cleared configuration")
	}
	c.ctx.Warn("Disconnected. Retrying")
	c.setState(Init)
}

// HandleEvent handles a connection event of the broker
func (c *Collector) HandleEvent(event types.Event) {
	switch event {
	case types.Connected:
		if c.State() != Connecting {
			c.ctx.WithField("State", c.State()).Debug("Ignored connect event")
			return
		}
		c.stopWatchdog()
		c.ctx.Info("Connected to broker")
		c.setState(Connected)
	case types.Disconnected:
		c.ctx.WithField("State", c.State()).Warn("Lost connection to broker")
		c.setState(Disconnected)
	}
}

// HandleMessage handles a message received from the broker
func (c *Collector) HandleMessage(msg *types.Message) {
	if msg.Topic != c.config.ConfigResponseTopic {
		c.ctx.WithField("Topic", msg.Topic).Debug("Ignored message on unknown topic")
		return
	}
	res := c.discovery.Handle(msg.Payload)
	discoveryCounter.WithLabelValues(res.String()).Inc()
	if res != discovery.Matched {
		return
	}
	switch c.State() {
	case Connected, AwaitingConfig, ConfigReceived:
		c.setState(ConfigReceived)
	default:
		c.ctx.WithField("State", c.State()).Debug("Configuration stored, not connected")
		return
	}
	if !c.registry.IsFullyConfigured(c.config.RequiredRoles...) {
		c.ctx.Warn("Configuration is incomplete")
	}
}

func (c *Collector) handleTimeout() {
	if c.State() != Connecting {
		return
	}
	c.ctx.WithField("Timeout", c.config.ConnectTimeout).Warn("Connection to broker timed out")
	c.connectWatchdog = nil
	c.setState(Disconnected)
}

func (c *Collector) loop() {
	defer close(c.stopped)
	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()
	events := c.pubsub.Events()
	messages := c.pubsub.Messages()
	c.Step(true)
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.Step(true)
		case event := <-events:
			c.HandleEvent(event)
			c.Step(false)
		case msg := <-messages:
			c.HandleMessage(msg)
			c.Step(false)
		case <-c.timeout:
			c.handleTimeout()
			c.Step(false)
		}
	}
}

// Start the Collector
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	go c.loop()
}

// Stop the Collector and disconnect from the broker
func (c *Collector) Stop() {
	c.mu.Lock()
	running := c.running
	c.running = false
	c.mu.Unlock()
	if !running {
		return
	}
	c.cancelPoll()
	close(c.done)
	<-c.stopped
	c.stopWatchdog()
	if err := c.pubsub.Disconnect(); err != nil {
		c.ctx.WithError(err).Debug("Could not disconnect from broker")
	}
}
