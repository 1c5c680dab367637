// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package registry holds the endpoints of the bin that the collector polls.
package registry

import (
	"fmt"
	"sync"

	"github.com/deckarep/golang-set"
	"github.com/giadasql/IoT-Project/types"
)

// UnknownBinID is the bin identifier until a configuration is received
const UnknownBinID = "unknown"

// store receives every successful change of the registry
type store interface {
	SaveEndpoint(role types.Role, uri string)
	SaveBinID(binID string)
	Clear()
}

// Registry of endpoints per role.
//
// An endpoint is only stored once its address could be parsed; a failed
// Configure never touches the previous entry.
type Registry struct {
	mu         sync.RWMutex
	endpoints  map[types.Role]types.Endpoint
	configured mapset.Set
	binID      string
	store      store
}

// New returns an empty Registry
func New() *Registry {
	return &Registry{
		endpoints:  make(map[types.Role]types.Endpoint),
		configured: mapset.NewSet(),
		binID:      UnknownBinID,
	}
}

// Configure parses the uri and stores it as endpoint of the role
func (r *Registry) Configure(role types.Role, uri string) error {
	addr, err := ParseAddress(uri)
	if err != nil {
		return fmt.Errorf("%s: %w", role, err)
	}
	r.mu.Lock()
	r.endpoints[role] = types.Endpoint{Address: addr, URI: uri, Configured: true}
	r.configured.Add(role)
	store := r.store
	r.mu.Unlock()
	if store != nil {
		store.SaveEndpoint(role, uri)
	}
	return nil
}

// Endpoint returns the endpoint of a role if it is configured
func (r *Registry) Endpoint(role types.Role) (types.Endpoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoint, ok := r.endpoints[role]
	return endpoint, ok && endpoint.Configured
}

// Endpoints returns a copy of all configured endpoints
func (r *Registry) Endpoints() map[types.Role]types.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	endpoints := make(map[types.Role]types.Endpoint, len(r.endpoints))
	for role, endpoint := range r.endpoints {
		endpoints[role] = endpoint
	}
	return endpoints
}

// IsFullyConfigured returns true if all required roles are configured
func (r *Registry) IsFullyConfigured(required ...types.Role) bool {
	items := make([]interface{}, len(required))
	for i, role := range required {
		items[i] = role
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configured.Contains(items...)
}

// BinID returns the identifier of the bin
func (r *Registry) BinID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.binID
}

// SetBinID sets the identifier of the bin
func (r *Registry) SetBinID(binID string) {
	r.mu.Lock()
	r.binID = binID
	store := r.store
	r.mu.Unlock()
	if store != nil {
		store.SaveBinID(binID)
	}
}

// Reset forgets all endpoints and the bin identifier
func (r *Registry) Reset() {
	r.mu.Lock()
	r.endpoints = make(map[types.Role]types.Endpoint)
	r.configured = mapset.NewSet()
	r.binID = UnknownBinID
	store := r.store
	r.mu.Unlock()
	if store != nil {
		store.Clear()
	}
}
