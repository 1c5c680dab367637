// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package dummy

import (
	"context"
	"errors"
	"sync"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/types"
)

// BufferSize indicates the maximum number of dummy messages that should be buffered
var BufferSize = 10

// Published is a message that was published on the Dummy backend
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Dummy pub/sub backend
type Dummy struct {
	mu  sync.Mutex
	ctx log.Interface

	// AutoConnect makes Connect emit a Connected event
	AutoConnect bool
	// ConnectErr is returned by Connect if set
	ConnectErr error
	// PublishErr is returned by Publish if set
	PublishErr error
	// SubscribeErr is returned by Subscribe if set
	SubscribeErr error

	events        chan types.Event
	messages      chan *types.Message
	connects      int
	subscriptions map[string]bool
	published     []Published
}

// New returns a new Dummy backend
func New(ctx log.Interface) *Dummy {
	return &Dummy{
		ctx:           ctx.WithField("Connector", "Dummy"),
		AutoConnect:   true,
		events:        make(chan types.Event, BufferSize),
		messages:      make(chan *types.Message, BufferSize),
		subscriptions: make(map[string]bool),
	}
}

// Connect implements backend interfaces
func (d *Dummy) Connect() error {
	d.mu.Lock()
	d.connects++
	err := d.ConnectErr
	d.mu.Unlock()
	if err != nil {
		return err
	}
	d.ctx.Debug("Connect")
	if d.AutoConnect {
		d.Emit(types.Connected)
	}
	return nil
}

// Disconnect implements backend interfaces
func (d *Dummy) Disconnect() error {
	d.mu.Lock()
	d.subscriptions = make(map[string]bool)
	d.mu.Unlock()
	d.ctx.Debug("Disconnected")
	return nil
}

// Connects returns the number of calls to Connect
func (d *Dummy) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Events implements backend interfaces
func (d *Dummy) Events() <-chan types.Event {
	return d.events
}

// Messages implements backend interfaces
func (d *Dummy) Messages() <-chan *types.Message {
	return d.messages
}

// Emit a connection event
func (d *Dummy) Emit(event types.Event) {
	select {
	case d.events <- event:
		d.ctx.WithField("Event", event).Debug("Emitted event")
	default:
		d.ctx.Debug("Did not emit event [buffer full]")
	}
}

// Subscribe implements backend interfaces
func (d *Dummy) Subscribe(topic string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.SubscribeErr != nil {
		return d.SubscribeErr
	}
	d.subscriptions[topic] = true
	d.ctx.WithField("Topic", topic).Debug("Subscribed")
	return nil
}

// Subscribed returns true if there is a subscription on the topic
func (d *Dummy) Subscribed(topic string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subscriptions[topic]
}

// Deliver a message to the subscriber. Messages on topics without a subscription are dropped.
func (d *Dummy) Deliver(topic string, payload []byte) {
	if !d.Subscribed(topic) {
		d.ctx.WithField("Topic", topic).Debug("Did not deliver message [not subscribed]")
		return
	}
	select {
	case d.messages <- &types.Message{Topic: topic, Payload: payload}:
		d.ctx.WithField("Topic", topic).Debug("Delivered message")
	default:
		d.ctx.Debug("Did not deliver message [buffer full]")
	}
}

// Publish implements backend interfaces
func (d *Dummy) Publish(topic string, qos byte, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.PublishErr != nil {
		return d.PublishErr
	}
	d.published = append(d.published, Published{Topic: topic, QoS: qos, Payload: payload})
	d.ctx.WithField("Topic", topic).Debug("Published message")
	return nil
}

// Published returns the messages that were published on the given topic
func (d *Dummy) Published(topic string) (published []Published) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, msg := range d.published {
		if msg.Topic == topic {
			published = append(published, msg)
		}
	}
	return
}

// Sink collects mirrored snapshots
type Sink struct {
	mu       sync.Mutex
	Messages []Published
}

// Publish implements backend.Sink
func (s *Sink) Publish(topic string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Messages = append(s.Messages, Published{Topic: topic, Payload: payload})
	return nil
}

// ErrTimeout is returned by the Requester for endpoints without a response
var ErrTimeout = errors.New("dummy: request timed out")

type request struct {
	address string
	path    string
}

// Request that was issued on the Requester
type Request struct {
	Address types.Address
	Path    string
}

// Requester is a dummy request/response backend with canned responses
type Requester struct {
	mu        sync.Mutex
	ctx       log.Interface
	responses map[request][]byte
	errors    map[request]error
	requests  []Request
}

// NewRequester returns a new dummy Requester
func NewRequester(ctx log.Interface) *Requester {
	return &Requester{
		ctx:       ctx.WithField("Connector", "DummyRequester"),
		responses: make(map[request][]byte),
		errors:    make(map[request]error),
	}
}

// Respond sets the response for a path on an address
func (r *Requester) Respond(address types.Address, path string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := request{address.HostPort(), path}
	delete(r.errors, req)
	r.responses[req] = body
}

// Fail makes requests for a path on an address return err
func (r *Requester) Fail(address types.Address, path string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req := request{address.HostPort(), path}
	delete(r.responses, req)
	r.errors[req] = err
}

// Requests returns all requests that were issued
func (r *Requester) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Request(nil), r.requests...)
}

// Get implements backend.Requester
func (r *Requester) Get(ctx context.Context, address types.Address, path string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, Request{Address: address, Path: path})
	req := request{address.HostPort(), path}
	if err, ok := r.errors[req]; ok {
		return nil, err
	}
	if body, ok := r.responses[req]; ok {
		return body, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.ctx.WithField("Address", req.address).WithField("Path", path).Debug("No response")
	return nil, ErrTimeout
}
