// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package mqtt

import (
	"bytes"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/giadasql/IoT-Project/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNew(t *testing.T) {
	Convey("Given a new Context", t, func(c C) {
		ctx := &log.Logger{
			Handler: text.New(&bytes.Buffer{}),
			Level:   log.DebugLevel,
		}

		Convey("When calling New without brokers", func() {
			_, err := New(Config{}, ctx)
			Convey("There should be an error", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Convey("When calling New with a broker", func() {
			mqtt, err := New(Config{Brokers: []string{"tcp://localhost:1883"}}, ctx)
			Convey("There should be no error", func() {
				So(err, ShouldBeNil)
				So(mqtt, ShouldNotBeNil)
			})
			Convey("The event and message channels should be empty", func() {
				So(mqtt.Events(), ShouldHaveLength, 0)
				So(mqtt.Messages(), ShouldHaveLength, 0)
			})
		})
	})
}

func TestMQTT(t *testing.T) {
	host := os.Getenv("MQTT_ADDRESS")
	if host == "" {
		t.Skip("MQTT_ADDRESS not set")
	}

	Convey("Given a new Context", t, func(c C) {

		var logs bytes.Buffer
		ctx := &log.Logger{
			Handler: text.New(&logs),
			Level:   log.DebugLevel,
		}
		defer func() {
			if logs.Len() > 0 {
				c.Printf("\n%s", logs.String())
			}
		}()

		Convey("When calling New", func() {
			mqtt, err := New(Config{
				Brokers: []string{fmt.Sprintf("tcp://%s", host)},
			}, ctx)
			So(err, ShouldBeNil)

			Convey("When calling Connect on MQTT", func() {
				err := mqtt.Connect()
				Convey("There should be no error", func() {
					So(err, ShouldBeNil)
				})
				Convey("There should be a Connected event", func() {
					select {
					case <-time.After(2 * time.Second):
						So("Timeout Exceeded", ShouldBeFalse)
					case event := <-mqtt.Events():
						So(event, ShouldEqual, types.Connected)
					}
					Reset(func() { mqtt.Disconnect() })

					Convey("When subscribing to the configuration responses", func() {
						err := mqtt.Subscribe("config/response")
						So(err, ShouldBeNil)

						Convey("When publishing a configuration response", func() {
							err := mqtt.Publish("config/response", 0, []byte(`{"collector_address":"fe80::1"}`))
							So(err, ShouldBeNil)
							Convey("There should be a corresponding message in the channel", func() {
								select {
								case <-time.After(time.Second):
									So("Timeout Exceeded", ShouldBeFalse)
								case msg := <-mqtt.Messages():
									So(msg.Topic, ShouldEqual, "config/response")
									So(string(msg.Payload), ShouldEqual, `{"collector_address":"fe80::1"}`)
								}
							})
						})
					})
				})
			})
		})
	})
}
