// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"github.com/apex/log"
	"github.com/giadasql/IoT-Project/middleware"
	"github.com/giadasql/IoT-Project/types"
)

// New returns a middleware that debugs traffic
func New(ctx log.Interface) *Debug {
	return &Debug{ctx: ctx.WithField("Middleware", "Debug")}
}

// Debug middleware
type Debug struct {
	ctx log.Interface
}

// HandleConfigResponse logs the addresses in a configuration response
func (d *Debug) HandleConfigResponse(_ middleware.Context, msg *types.ConfigResponse) error {
	fields := log.Fields{"BinID": msg.BinID}
	for role, uri := range msg.Addresses {
		fields[role.Key()] = uri
	}
	d.ctx.WithFields(fields).Debug("Configuration response")
	return nil
}

// HandleSnapshot logs every reading of a snapshot
func (d *Debug) HandleSnapshot(_ middleware.Context, msg *types.Snapshot) error {
	for _, reading := range msg.Readings {
		d.ctx.WithFields(log.Fields{
			"Role":      reading.Role.Key(),
			"Value":     reading.Value,
			"Succeeded": reading.Succeeded,
		}).Debug("Reading")
	}
	return nil
}
