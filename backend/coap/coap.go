// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package coap issues CoAP requests to the sensors and actuators of a bin.
package coap

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/types"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/plgd-dev/go-coap/v3/udp/client"
)

// ErrResponseCode is returned when a device answers with an unexpected response code
var ErrResponseCode = errors.New("coap: unexpected response code")

// CoAP client that keeps one UDP connection per device
type CoAP struct {
	ctx log.Interface

	mu    sync.Mutex
	conns map[string]*client.Conn
}

// New returns a new CoAP client
func New(ctx log.Interface) *CoAP {
	return &CoAP{
		ctx:   ctx.WithField("Connector", "CoAP"),
		conns: make(map[string]*client.Conn),
	}
}

func (c *CoAP) conn(address types.Address) (*client.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := address.HostPort()
	if conn, ok := c.conns[target]; ok {
		return conn, nil
	}
	conn, err := udp.Dial(target)
	if err != nil {
		return nil, err
	}
	c.conns[target] = conn
	c.ctx.WithField("Address", target).Debug("Opened connection")
	return conn, nil
}

func (c *CoAP) drop(address types.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := address.HostPort()
	if conn, ok := c.conns[target]; ok {
		conn.Close()
		delete(c.conns, target)
	}
}

// Get issues a confirmable GET request and waits for the response or for the context to expire
func (c *CoAP) Get(ctx context.Context, address types.Address, path string) ([]byte, error) {
	conn, err := c.conn(address)
	if err != nil {
		return nil, err
	}
	resp, err := conn.Get(ctx, "/"+path)
	if err != nil {
		c.drop(address)
		return nil, err
	}
	if resp.Code() != codes.Content {
		return nil, fmt.Errorf("%w: %v", ErrResponseCode, resp.Code())
	}
	return resp.ReadBody()
}

// Close all connections
func (c *CoAP) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for target, conn := range c.conns {
		conn.Close()
		delete(c.conns, target)
	}
	return nil
}
