// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package discovery implements the configuration exchange between a collector
// and the configuration manager.
//
// The collector publishes a request containing its own address:
//
//   {"collector_address":"fe80::1","request":["lid_server_address",...]}
//
// and the configuration manager answers with the endpoints of the bin:
//
//   {"collector_address":"fe80::1","bin_id":"BIN-7","lid_server_address":"coap://[fe80::2]/",...}
//
// Responses for other collectors share the topic and are ignored.
package discovery

import (
	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/middleware"
	"github.com/giadasql/IoT-Project/registry"
	"github.com/giadasql/IoT-Project/types"
	json "github.com/goccy/go-json"
)

// Field names of the configuration messages
const (
	IdentityField = "collector_address"
	BinIDField    = "bin_id"
)

// Result of handling a configuration response
type Result int

// Results
const (
	Malformed Result = iota
	Ignored
	Matched
)

func (r Result) String() string {
	switch r {
	case Malformed:
		return "malformed"
	case Ignored:
		return "ignored"
	case Matched:
		return "matched"
	}
	return "unknown"
}

// Handler of the discovery protocol for one collector
type Handler struct {
	ctx        log.Interface
	identity   string
	registry   *registry.Registry
	middleware middleware.Chain
}

// New returns a new discovery Handler for the collector with the given identity
func New(ctx log.Interface, identity string, registry *registry.Registry, middleware ...interface{}) *Handler {
	return &Handler{
		ctx:        ctx.WithField("Component", "Discovery").WithField("CollectorAddress", identity),
		identity:   identity,
		registry:   registry,
		middleware: middleware,
	}
}

// Identity of the collector
func (h *Handler) Identity() string {
	return h.identity
}

// Request returns the configuration request of this collector
func (h *Handler) Request() ([]byte, error) {
	request := types.ConfigRequest{CollectorAddress: h.identity}
	for _, role := range types.SensorRoles {
		request.Request = append(request.Request, role.Fields()[0])
	}
	return json.Marshal(request)
}

// Parse a configuration response. Fields that are missing or have the wrong
// type are treated as absent. The error is only non-nil if the payload is not
// a JSON object.
func Parse(payload []byte) (*types.ConfigResponse, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	response := &types.ConfigResponse{
		Addresses: make(map[types.Role]string),
	}
	response.CollectorAddress, _ = stringField(fields, IdentityField)
	response.BinID, response.HasBinID = stringField(fields, BinIDField)
	for _, role := range types.AllRoles {
		for _, field := range role.Fields() {
			if uri, ok := stringField(fields, field); ok {
				response.Addresses[role] = uri
				break
			}
		}
	}
	return response, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, bool) {
	raw, ok := fields[name]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// Handle a configuration response. The registry is only changed if the
// response is addressed to this collector.
func (h *Handler) Handle(payload []byte) Result {
	response, err := Parse(payload)
	if err != nil {
		h.ctx.WithError(err).Warn("Could not parse configuration response")
		return Malformed
	}
	if response.CollectorAddress == "" {
		h.ctx.Warn("Configuration response without collector address")
		return Malformed
	}
	ctx := h.ctx.WithField("Target", response.CollectorAddress)
	if response.CollectorAddress != h.identity {
		ctx.Debug("Response is not for this collector. Ignored")
		return Ignored
	}
	if err := h.middleware.Execute(middleware.NewContext(), response); err != nil {
		ctx.WithError(err).Warn("Configuration response dropped by middleware")
		return Ignored
	}
	if response.HasBinID {
		h.registry.SetBinID(response.BinID)
	}
	var configured int
	for _, role := range types.AllRoles {
		uri, ok := response.Addresses[role]
		if !ok {
			continue
		}
		if err := h.registry.Configure(role, uri); err != nil {
			ctx.WithError(err).WithField("Role", role.Key()).Warn("Could not configure endpoint")
			continue
		}
		configured++
	}
	ctx.WithField("BinID", h.registry.BinID()).WithField("Endpoints", configured).Info("Received configuration")
	return Matched
}
