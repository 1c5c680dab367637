// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package publisher aggregates the readings of a poll cycle into one JSON document.
package publisher

import (
	"bytes"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/backend"
	"github.com/giadasql/IoT-Project/middleware"
	"github.com/giadasql/IoT-Project/types"
	json "github.com/goccy/go-json"
)

// TimeFormat of the time_updated field
const TimeFormat = time.RFC3339

// Config of the Publisher
type Config struct {
	Topic string
	QoS   byte
	// Timestamps publishes readings as {"value":...,"time_updated":...}
	Timestamps bool
}

// DefaultConfig publishes on the "bins" topic with QoS 0
var DefaultConfig = Config{
	Topic:      "bins",
	QoS:        0x00,
	Timestamps: true,
}

// Publisher publishes snapshots
type Publisher struct {
	ctx        log.Interface
	config     Config
	pubsub     backend.PubSub
	sinks      []backend.Sink
	middleware middleware.Chain
}

// New returns a new Publisher
func New(ctx log.Interface, config Config, pubsub backend.PubSub, middleware ...interface{}) *Publisher {
	if config.Topic == "" {
		config.Topic = DefaultConfig.Topic
	}
	return &Publisher{
		ctx:        ctx.WithField("Component", "Publisher").WithField("Topic", config.Topic),
		config:     config,
		pubsub:     pubsub,
		middleware: middleware,
	}
}

// AddSink adds a sink that receives a copy of every published document
func (p *Publisher) AddSink(sink ...backend.Sink) {
	p.sinks = append(p.sinks, sink...)
}

type reading struct {
	Value       string `json:"value"`
	TimeUpdated string `json:"time_updated,omitempty"`
}

// Encode the snapshot of a bin. The bin identifier comes first, followed by
// the readings in the order of the snapshot.
func (p *Publisher) Encode(binID string, snapshot *types.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := writeField(&buf, "bin_id", binID); err != nil {
		return nil, err
	}
	for _, r := range snapshot.Readings {
		buf.WriteByte(',')
		var value interface{} = r.Value
		if p.config.Timestamps {
			value = p.timestamped(r)
		}
		if err := writeField(&buf, r.Role.Key(), value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (p *Publisher) timestamped(r types.Reading) reading {
	out := reading{Value: r.Value}
	if r.Succeeded && !r.Updated.IsZero() {
		out.TimeUpdated = r.Updated.UTC().Format(TimeFormat)
	}
	return out
}

func writeField(buf *bytes.Buffer, key string, value interface{}) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("publisher: could not encode %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// Publish the snapshot of a bin on the pub/sub backend and all sinks
func (p *Publisher) Publish(binID string, snapshot *types.Snapshot) error {
	if err := p.middleware.Execute(middleware.NewContext(), snapshot); err != nil {
		p.ctx.WithError(err).Warn("Snapshot dropped by middleware")
		return err
	}
	msg, err := p.Encode(binID, snapshot)
	if err != nil {
		return err
	}
	for _, sink := range p.sinks {
		if err := sink.Publish(p.config.Topic, msg); err != nil {
			p.ctx.WithError(err).WithField("Sink", fmt.Sprintf("%T", sink)).Warn("Could not mirror snapshot")
		}
	}
	if err := p.pubsub.Publish(p.config.Topic, p.config.QoS, msg); err != nil {
		return err
	}
	p.ctx.WithField("BinID", binID).WithField("Readings", len(snapshot.Readings)).Info("Published snapshot")
	return nil
}
