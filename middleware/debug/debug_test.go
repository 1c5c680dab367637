// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package debug

import (
	"bytes"
	"testing"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/giadasql/IoT-Project/middleware"
	"github.com/giadasql/IoT-Project/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestDebug(t *testing.T) {
	Convey("Given a new Context", t, func(c C) {

		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}

		d := New(ctx)

		Convey("When handling a configuration response", func() {
			err := d.HandleConfigResponse(middleware.NewContext(), &types.ConfigResponse{
				BinID:     "BIN-7",
				Addresses: map[types.Role]string{types.Lid: "coap://[fe80::2]/"},
			})
			Convey("It should log the addresses", func() {
				So(err, ShouldBeNil)
				So(logs.String(), ShouldContainSubstring, "BIN-7")
				So(logs.String(), ShouldContainSubstring, "lid_sensor")
			})
		})

		Convey("When handling a snapshot", func() {
			err := d.HandleSnapshot(middleware.NewContext(), &types.Snapshot{Readings: []types.Reading{
				{Role: types.Scale, Value: "32.5", Succeeded: true},
			}})
			Convey("It should log the readings", func() {
				So(err, ShouldBeNil)
				So(logs.String(), ShouldContainSubstring, "32.5")
			})
		})
	})
}
