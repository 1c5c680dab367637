// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package normalize rewrites numeric readings that use a decimal comma.
package normalize

import (
	"strconv"
	"strings"

	"github.com/giadasql/IoT-Project/middleware"
	"github.com/giadasql/IoT-Project/types"
)

// DefaultRoles have numeric values
var DefaultRoles = []types.Role{types.Scale, types.WasteLevel}

// New returns a middleware that normalizes numeric readings of the given roles
func New(roles ...types.Role) *Normalize {
	if len(roles) == 0 {
		roles = DefaultRoles
	}
	n := &Normalize{roles: make(map[types.Role]bool)}
	for _, role := range roles {
		n.roles[role] = true
	}
	return n
}

// Normalize middleware
type Normalize struct {
	roles map[types.Role]bool
}

// HandleSnapshot replaces a decimal comma by a decimal point if the result is a number
func (n *Normalize) HandleSnapshot(_ middleware.Context, msg *types.Snapshot) error {
	for i, reading := range msg.Readings {
		if !reading.Succeeded || !n.roles[reading.Role] {
			continue
		}
		value := strings.Replace(strings.TrimSpace(reading.Value), ",", ".", 1)
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			msg.Readings[i].Value = value
		}
	}
	return nil
}
