// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package registry

import (
	"errors"
	"testing"

	"github.com/giadasql/IoT-Project/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseAddress(t *testing.T) {
	Convey("Given ParseAddress", t, func() {
		for uri, expected := range map[string]types.Address{
			"coap://[fe80::2]/":         {Scheme: "coap", Host: "fe80::2", Port: 5683},
			"coap://[fe80::2]:5684/":    {Scheme: "coap", Host: "fe80::2", Port: 5684},
			"coap://[fe80::2%25lo]/":    {Scheme: "coap", Host: "fe80::2%lo", Port: 5683},
			"coap://sensor.local/state": {Scheme: "coap", Host: "sensor.local", Port: 5683},
			"fe80::202:2:2:2":           {Scheme: "coap", Host: "fe80::202:2:2:2", Port: 5683},
			"10.0.0.2":                  {Scheme: "coap", Host: "10.0.0.2", Port: 5683},
			"[fd00::3]:5700":            {Scheme: "coap", Host: "fd00::3", Port: 5700},
			"sensor:5683":               {Scheme: "coap", Host: "sensor", Port: 5683},
		} {
			Convey("It should parse "+uri, func() {
				addr, err := ParseAddress(uri)
				So(err, ShouldBeNil)
				So(addr, ShouldResemble, expected)
			})
		}

		for _, uri := range []string{
			"",
			"   ",
			"http://[fe80::2]/",
			"coap://",
			"coap://[fe80::2",
			"[fe80::2]:99999",
			"not an address",
		} {
			Convey("It should not parse "+uri, func() {
				_, err := ParseAddress(uri)
				So(errors.Is(err, ErrInvalidAddress), ShouldBeTrue)
			})
		}
	})
}

func TestRegistry(t *testing.T) {
	Convey("Given a new Registry", t, func() {
		r := New()

		Convey("The bin identifier should be unknown", func() {
			So(r.BinID(), ShouldEqual, UnknownBinID)
		})

		Convey("No role should be configured", func() {
			for _, role := range types.AllRoles {
				_, ok := r.Endpoint(role)
				So(ok, ShouldBeFalse)
			}
			So(r.IsFullyConfigured(types.Lid), ShouldBeFalse)
			So(r.IsFullyConfigured(), ShouldBeTrue)
		})

		Convey("When configuring a valid address", func() {
			err := r.Configure(types.Lid, "coap://[fe80::2]/")
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
			})
			Convey("The role should be configured", func() {
				endpoint, ok := r.Endpoint(types.Lid)
				So(ok, ShouldBeTrue)
				So(endpoint.Configured, ShouldBeTrue)
				So(endpoint.URI, ShouldEqual, "coap://[fe80::2]/")
				So(endpoint.Address.HostPort(), ShouldEqual, "[fe80::2]:5683")
				So(r.IsFullyConfigured(types.Lid), ShouldBeTrue)
				So(r.IsFullyConfigured(types.Lid, types.Scale), ShouldBeFalse)
			})

			Convey("When configuring an invalid address for the same role", func() {
				err := r.Configure(types.Lid, "http://nope")
				Convey("There should be an error", func() {
					So(errors.Is(err, ErrInvalidAddress), ShouldBeTrue)
				})
				Convey("The previous entry should be untouched", func() {
					endpoint, ok := r.Endpoint(types.Lid)
					So(ok, ShouldBeTrue)
					So(endpoint.URI, ShouldEqual, "coap://[fe80::2]/")
				})
			})

			Convey("When resetting the registry", func() {
				r.SetBinID("BIN-7")
				r.Reset()
				Convey("Everything should be forgotten", func() {
					_, ok := r.Endpoint(types.Lid)
					So(ok, ShouldBeFalse)
					So(r.BinID(), ShouldEqual, UnknownBinID)
					So(r.Endpoints(), ShouldBeEmpty)
				})
			})
		})

		Convey("When configuring an invalid address", func() {
			err := r.Configure(types.Scale, "")
			Convey("There should be an error", func() {
				So(err, ShouldNotBeNil)
			})
			Convey("The role should not be configured", func() {
				_, ok := r.Endpoint(types.Scale)
				So(ok, ShouldBeFalse)
				So(r.Endpoints(), ShouldBeEmpty)
			})
		})
	})
}
