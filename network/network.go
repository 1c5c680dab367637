// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package network checks whether the host can reach the broker.
package network

import (
	"net"
	"strings"
	"time"

	"github.com/apex/log"
	psnet "github.com/shirou/gopsutil/v3/net"
)

// Checker reports whether the network is ready
type Checker interface {
	Ready() bool
}

// CheckerFunc is a function that implements Checker
type CheckerFunc func() bool

// Ready implements Checker
func (f CheckerFunc) Ready() bool { return f() }

// Always is a Checker that is always ready
var Always = CheckerFunc(func() bool { return true })

// Interfaces is a Checker that requires a global unicast address on an
// interface that is up, and a route to the target.
type Interfaces struct {
	ctx    log.Interface
	target string
}

// NewInterfaces returns a new Interfaces checker. The target is a host:port
// that must be routable; an empty target skips the route check.
func NewInterfaces(ctx log.Interface, target string) *Interfaces {
	return &Interfaces{
		ctx:    ctx.WithField("Component", "Network"),
		target: target,
	}
}

// Ready implements Checker
func (i *Interfaces) Ready() bool {
	addrs, err := addresses()
	if err != nil {
		i.ctx.WithError(err).Warn("Could not list interfaces")
		return false
	}
	var global bool
	for _, addr := range addrs {
		if addr.IsGlobalUnicast() {
			global = true
			break
		}
	}
	if !global {
		i.ctx.Debug("No global address")
		return false
	}
	if i.target == "" {
		return true
	}
	// Dialing UDP does not send anything, it only selects a route
	conn, err := net.DialTimeout("udp", i.target, time.Second)
	if err != nil {
		i.ctx.WithError(err).Debug("No route to broker")
		return false
	}
	conn.Close()
	return true
}

func addresses() (addrs []net.IP, err error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip != nil {
				addrs = append(addrs, ip)
			}
		}
	}
	return addrs, nil
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

// UnknownAddress is returned by LocalAddress if no address was found
const UnknownAddress = "unknown"

// LocalAddress returns the first link-local IPv6 address of the host, which
// is how collectors identify themselves to the configuration manager.
func LocalAddress() string {
	addrs, err := addresses()
	if err != nil {
		return UnknownAddress
	}
	for _, addr := range addrs {
		if addr.To4() == nil && addr.IsLinkLocalUnicast() {
			return addr.String()
		}
	}
	return UnknownAddress
}
