// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package registry

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/giadasql/IoT-Project/types"
)

// ErrInvalidAddress is returned when an endpoint address can not be parsed
var ErrInvalidAddress = errors.New("registry: invalid address")

// ParseAddress parses the address of a CoAP endpoint.
//
// Accepted forms are coap://[fe80::2]:5683/, coap://host/, bare IP literals
// (fe80::202:2:2:2, 10.0.0.2) and host:port.
func ParseAddress(uri string) (types.Address, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return types.Address{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if ip := parseIP(uri); ip != "" {
		return types.Address{Scheme: "coap", Host: ip, Port: types.DefaultCoAPPort}, nil
	}
	if strings.Contains(uri, "://") {
		return parseURL(uri)
	}
	host, port, err := net.SplitHostPort(uri)
	if err != nil {
		if strings.ContainsAny(uri, "/[]@ ") {
			return types.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, uri)
		}
		return types.Address{Scheme: "coap", Host: uri, Port: types.DefaultCoAPPort}, nil
	}
	return build(uri, host, port)
}

func parseIP(s string) string {
	host := s
	var zone string
	if i := strings.LastIndex(s, "%"); i > 0 {
		host, zone = s[:i], s[i:]
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host + zone
}

func parseURL(uri string) (types.Address, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if u.Scheme != "coap" {
		return types.Address{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidAddress, u.Scheme)
	}
	return build(uri, u.Hostname(), u.Port())
}

func build(uri, host, port string) (types.Address, error) {
	if host == "" {
		return types.Address{}, fmt.Errorf("%w: no host in %q", ErrInvalidAddress, uri)
	}
	addr := types.Address{Scheme: "coap", Host: host, Port: types.DefaultCoAPPort}
	if port != "" {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return types.Address{}, fmt.Errorf("%w: bad port in %q", ErrInvalidAddress, uri)
		}
		addr.Port = p
	}
	return addr, nil
}
