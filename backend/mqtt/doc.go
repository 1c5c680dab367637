// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package mqtt connects to an MQTT broker in order to exchange configuration
// and snapshots with the cloud side.
//
// The collector asks for its configuration by publishing a JSON document on
// the "config/request" topic containing its own address
// (`{"collector_address":"fe80::1"}`). The configuration manager answers on
// the "config/response" topic; the collector subscribes to that topic with
// `Subscribe("config/response")` and reads the answers from `Messages()`.
//
// Aggregated snapshots are published as JSON on the "bins" topic.
//
// Automatic reconnection of the underlying client is disabled. Connection
// changes are reported on `Events()` so that the caller can restart its own
// lifecycle, including subscriptions.
package mqtt
