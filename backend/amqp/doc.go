// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package amqp mirrors the snapshots of a collector to an AMQP exchange.
//
// Every snapshot that is published on the MQTT topic "bins" is also published
// on the topic exchange (default "amq.topic") with the routing key "bins". The
// payload is the same JSON document. Publishing is asynchronous: messages are
// buffered and dropped when the buffer is full, so a slow or unavailable AMQP
// server never blocks the collector.
package amqp
