// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package poller reads the sensors of a bin, one request at a time.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/backend"
	"github.com/giadasql/IoT-Project/registry"
	"github.com/giadasql/IoT-Project/types"
	json "github.com/goccy/go-json"
)

// DefaultTimeout is the time a single request may take
var DefaultTimeout = 5 * time.Second

// ErrNoValue is returned when a response does not contain a value
var ErrNoValue = errors.New("poller: response contains no value")

// Poller polls the configured sensors
type Poller struct {
	ctx       log.Interface
	requester backend.Requester
	timeout   time.Duration

	// Clock returns the time of a reading
	Clock func() time.Time
	// Observe is called with the outcome of every request
	Observe func(role types.Role, reading types.Reading, duration time.Duration)
}

// New returns a new Poller
func New(ctx log.Interface, requester backend.Requester, timeout time.Duration) *Poller {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{
		ctx:       ctx.WithField("Component", "Poller"),
		requester: requester,
		timeout:   timeout,
		Clock:     time.Now,
	}
}

// Poll issues one request per configured sensor role, in the order of
// types.SensorRoles. A failed request does not stop the cycle; unconfigured
// roles are left out of the snapshot.
func (p *Poller) Poll(ctx context.Context, registry *registry.Registry) *types.Snapshot {
	snapshot := new(types.Snapshot)
	for _, role := range types.SensorRoles {
		endpoint, ok := registry.Endpoint(role)
		if !ok {
			continue
		}
		snapshot.Readings = append(snapshot.Readings, p.read(ctx, role, endpoint))
	}
	return snapshot
}

func (p *Poller) read(ctx context.Context, role types.Role, endpoint types.Endpoint) types.Reading {
	logger := p.ctx.WithField("Role", role.Key()).WithField("Address", endpoint.Address.HostPort())
	reading := types.Reading{Role: role}
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, p.timeout)
	body, err := p.requester.Get(reqCtx, endpoint.Address, role.Path())
	cancel()
	if err == nil {
		reading.Value, err = Value(body)
	}
	if err != nil {
		logger.WithError(err).Warn("Could not read sensor")
	} else {
		reading.Succeeded = true
		reading.Updated = p.Clock()
		logger.WithField("Value", reading.Value).Debug("Read sensor")
	}
	if p.Observe != nil {
		p.Observe(role, reading, time.Since(start))
	}
	return reading
}

// Value extracts the value from a sensor response. Both {"value":"open"} and
// {"lid_sensor":{"value":"open"}} are accepted. Values that are not strings
// are returned as their JSON text.
func Value(body []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return "", err
	}
	if raw, ok := fields["value"]; ok {
		return rawValue(raw)
	}
	for _, raw := range fields {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			continue
		}
		if raw, ok := nested["value"]; ok {
			return rawValue(raw)
		}
	}
	return "", ErrNoValue
}

func rawValue(raw json.RawMessage) (string, error) {
	var value interface{}
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", err
	}
	switch value := value.(type) {
	case string:
		return value, nil
	case nil:
		return "", ErrNoValue
	case map[string]interface{}, []interface{}:
		return "", ErrNoValue
	}
	return string(raw), nil
}
