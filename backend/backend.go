// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package backend

import (
	"context"

	"github.com/giadasql/IoT-Project/types"
)

// PubSub backends talk to the message broker that carries configuration and snapshots.
//
// Connect only initiates the connection; the outcome is reported as an event.
// All messages of subscribed topics are delivered on the same channel.
type PubSub interface {
	Connect() error
	Disconnect() error
	Events() <-chan types.Event
	Messages() <-chan *types.Message
	Subscribe(topic string) error
	Publish(topic string, qos byte, payload []byte) error
}

// Requester backends issue requests to the constrained devices
type Requester interface {
	Get(ctx context.Context, address types.Address, path string) ([]byte, error)
}

// Sink receives a copy of every published snapshot
type Sink interface {
	Publish(topic string, payload []byte) error
}
