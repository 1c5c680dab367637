// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package types

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Role of a remote sensor or actuator resource
type Role int

// Roles known to the collector
const (
	Lid Role = iota
	Compactor
	Scale
	WasteLevel
	LidActuator
	CompactorActuator
)

type roleInfo struct {
	key    string
	path   string
	fields []string
}

var roles = map[Role]roleInfo{
	Lid:               {"lid_sensor", "lid/state", []string{"lid_server_address", "lid_sensor_address"}},
	Compactor:         {"compactor_sensor", "compactor/active", []string{"compactor_server_address", "compactor_sensor_address"}},
	Scale:             {"scale", "scale/value", []string{"scale_server_address", "scale_address"}},
	WasteLevel:        {"waste_level_sensor", "waste/level", []string{"waste_level_server_address", "waste_level_sensor_address"}},
	LidActuator:       {"lid_actuator", "lid/command", []string{"lid_actuator_address"}},
	CompactorActuator: {"compactor_actuator", "compactor/command", []string{"compactor_actuator_address"}},
}

// SensorRoles are polled, in this order
var SensorRoles = []Role{Lid, Compactor, Scale, WasteLevel}

// AllRoles contains sensor and actuator roles
var AllRoles = []Role{Lid, Compactor, Scale, WasteLevel, LidActuator, CompactorActuator}

// Key is the name of the role in published documents
func (r Role) Key() string { return roles[r].key }

// Path of the CoAP resource for this role
func (r Role) Path() string { return roles[r].path }

// Fields returns the discovery response fields carrying the address of this role.
// The first field is the canonical one.
func (r Role) Fields() []string { return roles[r].fields }

// IsSensor returns true if the role is polled
func (r Role) IsSensor() bool {
	for _, role := range SensorRoles {
		if role == r {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	if info, ok := roles[r]; ok {
		return info.key
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// RoleByKey returns the role with the given key
func RoleByKey(key string) (Role, bool) {
	for role, info := range roles {
		if info.key == key {
			return role, true
		}
	}
	return 0, false
}

// DefaultCoAPPort is used when an address does not contain a port
const DefaultCoAPPort = 5683

// Address of a CoAP endpoint
type Address struct {
	Scheme string
	Host   string
	Port   int
}

// HostPort returns the address in a form that can be dialed
func (a Address) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a Address) String() string {
	return a.Scheme + "://" + a.HostPort()
}

// Endpoint is the resolved address of a role
type Endpoint struct {
	Address    Address
	URI        string
	Configured bool
}

// ConfigRequest is published by the collector to ask for its configuration
type ConfigRequest struct {
	CollectorAddress string   `json:"collector_address"`
	Request          []string `json:"request,omitempty"`
}

// ConfigResponse is the parsed form of a configuration response
type ConfigResponse struct {
	CollectorAddress string
	BinID            string
	HasBinID         bool
	Addresses        map[Role]string
}

// Reading of a single role within a poll cycle
type Reading struct {
	Role      Role
	Value     string
	Succeeded bool
	Updated   time.Time
}

// Snapshot contains the readings of one poll cycle
type Snapshot struct {
	Readings []Reading
}

// Get returns the reading of the given role, if present
func (s *Snapshot) Get(role Role) (Reading, bool) {
	for _, reading := range s.Readings {
		if reading.Role == role {
			return reading, true
		}
	}
	return Reading{}, false
}

// Message received from the pub/sub bus
type Message struct {
	Topic   string
	Payload []byte
}

// Event emitted by a pub/sub backend
type Event int

// Pub/sub events
const (
	Connected Event = iota
	Disconnected
)

func (e Event) String() string {
	switch e {
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	}
	return fmt.Sprintf("Event(%d)", int(e))
}
