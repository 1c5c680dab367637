// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package collector

import "fmt"

// State of the collector lifecycle
type State int

// States of the collector. Init is the initial state; there is no final state.
const (
	Init State = iota
	NetworkReady
	Connecting
	Connected
	AwaitingConfig
	ConfigReceived
	Disconnected
)

var stateNames = []string{
	Init:           "Init",
	NetworkReady:   "NetworkReady",
	Connecting:     "Connecting",
	Connected:      "Connected",
	AwaitingConfig: "AwaitingConfig",
	ConfigReceived: "ConfigReceived",
	Disconnected:   "Disconnected",
}

// States lists all states
var States = []State{Init, NetworkReady, Connecting, Connected, AwaitingConfig, ConfigReceived, Disconnected}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
