// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package middleware

import (
	"github.com/giadasql/IoT-Project/types"
)

// Context for middleware
type Context interface {
	Set(k, v interface{})
	Get(k interface{}) interface{}
}

// NewContext returns a new middleware context
func NewContext() Context {
	return &context{
		data: make(map[interface{}]interface{}),
	}
}

type context struct {
	data map[interface{}]interface{}
}

func (c *context) Set(k, v interface{}) {
	c.data[k] = v
}

func (c *context) Get(k interface{}) interface{} {
	if v, ok := c.data[k]; ok {
		return v
	}
	return nil
}

// Chain of middleware
type Chain []interface{}

// Execute the chain
func (c Chain) Execute(ctx Context, msg interface{}) error {
	switch msg := msg.(type) {
	case *types.ConfigResponse:
		return c.filterConfigResponse().Execute(ctx, msg)
	case *types.Snapshot:
		return c.filterSnapshot().Execute(ctx, msg)
	}
	return nil
}

// ConfigResponse middleware is called for configuration responses addressed to this collector
type ConfigResponse interface {
	HandleConfigResponse(Context, *types.ConfigResponse) error
}

type configResponseChain []ConfigResponse

func (c configResponseChain) Execute(ctx Context, msg *types.ConfigResponse) error {
	for _, middleware := range c {
		err := middleware.HandleConfigResponse(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterConfigResponse() (filtered configResponseChain) {
	for _, middleware := range c {
		if c, ok := middleware.(ConfigResponse); ok {
			filtered = append(filtered, c)
		}
	}
	return
}

// Snapshot middleware is called before a snapshot is published
type Snapshot interface {
	HandleSnapshot(Context, *types.Snapshot) error
}

type snapshotChain []Snapshot

func (c snapshotChain) Execute(ctx Context, msg *types.Snapshot) error {
	for _, middleware := range c {
		err := middleware.HandleSnapshot(ctx, msg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Chain) filterSnapshot() (filtered snapshotChain) {
	for _, middleware := range c {
		if c, ok := middleware.(Snapshot); ok {
			filtered = append(filtered, c)
		}
	}
	return
}
