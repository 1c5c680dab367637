// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"testing"

	"github.com/giadasql/IoT-Project/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseBroker(t *testing.T) {
	Convey("Given broker addresses", t, func() {
		Convey("A host and port should be parsed", func() {
			b, err := parseBroker("localhost:1883")
			So(err, ShouldBeNil)
			So(b, ShouldResemble, broker{Address: "localhost:1883"})
		})
		Convey("Credentials should be parsed", func() {
			b, err := parseBroker("guest:secret@broker.local:1883")
			So(err, ShouldBeNil)
			So(b, ShouldResemble, broker{Username: "guest", Password: "secret", Address: "broker.local:1883"})
		})
		Convey("IPv6 addresses should be parsed", func() {
			b, err := parseBroker("[fd00::1]:1883")
			So(err, ShouldBeNil)
			So(b.Address, ShouldEqual, "[fd00::1]:1883")
		})
		Convey("Addresses without port should be rejected", func() {
			_, err := parseBroker("localhost")
			So(err, ShouldNotBeNil)
		})
	})
}

func TestParseRoles(t *testing.T) {
	Convey("Given role keys", t, func() {
		Convey("Known keys should be parsed", func() {
			roles, err := parseRoles([]string{"lid_sensor", " scale", ""})
			So(err, ShouldBeNil)
			So(roles, ShouldResemble, []types.Role{types.Lid, types.Scale})
		})
		Convey("Unknown keys should be rejected", func() {
			_, err := parseRoles([]string{"lid"})
			So(err, ShouldNotBeNil)
		})
	})
}
