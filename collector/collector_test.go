// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package collector

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/text"
	"github.com/giadasql/IoT-Project/backend/dummy"
	"github.com/giadasql/IoT-Project/discovery"
	"github.com/giadasql/IoT-Project/network"
	"github.com/giadasql/IoT-Project/poller"
	"github.com/giadasql/IoT-Project/publisher"
	"github.com/giadasql/IoT-Project/registry"
	"github.com/giadasql/IoT-Project/types"
	json "github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"
)

const (
	identity = "fe80::1"
	response = `{"collector_address":"fe80::1","bin_id":"BIN-7","lid_sensor_address":"coap://[fe80::2]/","compactor_server_address":"coap://[fe80::3]/"}`
	foreign  = `{"collector_address":"fe80::9","bin_id":"BIN-9","lid_sensor_address":"coap://[fe80::2]/"}`
)

func TestState(t *testing.T) {
	Convey("States should have names", t, func() {
		So(Init.String(), ShouldEqual, "Init")
		So(ConfigReceived.String(), ShouldEqual, "ConfigReceived")
		So(Disconnected.String(), ShouldEqual, "Disconnected")
		So(State(42).String(), ShouldEqual, "State(42)")
	})
}

func TestCollector(t *testing.T) {
	Convey("Given a new Context and Backends", t, func(c C) {

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

		pubsub := dummy.New(ctx)
		requester := dummy.NewRequester(ctx)
		r := registry.New()
		p := poller.New(ctx, requester, 10*time.Millisecond)
		p.Clock = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
		pub := publisher.New(ctx, publisher.DefaultConfig, pubsub)

		config := DefaultConfig
		config.ConnectTimeout = 20 * time.Millisecond

		ready := false
		build := func() *Collector {
			col := New(ctx, config, pubsub, r, discovery.New(ctx, identity, r), p, pub)
			col.SetNetwork(network.CheckerFunc(func() bool { return ready }))
			return col
		}

		// handleEvents handles the events the backend emitted so far
		handleEvents := func(col *Collector) {
			for {
				select {
				case event := <-pubsub.Events():
					col.HandleEvent(event)
				default:
					return
				}
			}
		}

		Convey("When the network is not ready", func() {
			col := build()
			col.Step(true)
			Convey("It should stay in Init", func() {
				So(col.State(), ShouldEqual, Init)
				So(pubsub.Connects(), ShouldEqual, 0)
			})
		})

		Convey("When the broker refuses the connection", func() {
			ready = true
			pubsub.ConnectErr = errors.New("refused")
			col := build()
			col.Step(true)
			Convey("It should go back to Init in the same step", func() {
				So(pubsub.Connects(), ShouldEqual, 1)
				So(col.State(), ShouldEqual, Init)
			})
		})

		Convey("When the broker does not answer in time", func() {
			ready = true
			pubsub.AutoConnect = false
			col := build()
			col.Step(true)
			So(col.State(), ShouldEqual, Connecting)
			select {
			case <-col.timeout:
			case <-time.After(time.Second):
			}
			col.handleTimeout()
			Convey("It should be Disconnected", func() {
				So(col.State(), ShouldEqual, Disconnected)
				Convey("The next step should return to Init", func() {
					col.Step(false)
					So(col.State(), ShouldEqual, Init)
				})
			})
		})

		Convey("When the network is ready", func() {
			ready = true
			col := build()
			col.Step(true)

			Convey("It should be Connecting", func() {
				So(col.State(), ShouldEqual, Connecting)
				So(pubsub.Connects(), ShouldEqual, 1)
			})

			Convey("When the subscription fails", func() {
				pubsub.SubscribeErr = errors.New("not authorized")
				handleEvents(col)
				col.Step(false)
				Convey("It should stay Connected", func() {
					So(col.State(), ShouldEqual, Connected)
				})
			})

			Convey("When the connection is established", func() {
				handleEvents(col)
				So(col.State(), ShouldEqual, Connected)
				col.Step(false)

				Convey("It should subscribe and request a configuration", func() {
					So(col.State(), ShouldEqual, AwaitingConfig)
					So(pubsub.Subscribed("config/response"), ShouldBeTrue)
					requests := pubsub.Published("config/request")
					So(requests, ShouldHaveLength, 1)
					var request map[string]interface{}
					So(json.Unmarshal(requests[0].Payload, &request), ShouldBeNil)
					So(request["collector_address"], ShouldEqual, identity)
				})

				Convey("It should ignore a second connect event", func() {
					col.HandleEvent(types.Connected)
					So(col.State(), ShouldEqual, AwaitingConfig)
				})

				Convey("When a response for another collector arrives", func() {
					col.HandleMessage(&types.Message{Topic: "config/response", Payload: []byte(foreign)})
					Convey("It should keep waiting and request again", func() {
						So(col.State(), ShouldEqual, AwaitingConfig)
						So(r.Endpoints(), ShouldBeEmpty)
						col.Step(false)
						So(pubsub.Published("config/request"), ShouldHaveLength, 2)
					})
				})

				Convey("When a message arrives on another topic", func() {
					col.HandleMessage(&types.Message{Topic: "bins", Payload: []byte(response)})
					Convey("It should be ignored", func() {
						So(col.State(), ShouldEqual, AwaitingConfig)
						So(r.Endpoints(), ShouldBeEmpty)
					})
				})

				Convey("When the configuration arrives", func() {
					col.HandleMessage(&types.Message{Topic: "config/response", Payload: []byte(response)})
					So(col.State(), ShouldEqual, ConfigReceived)

					lid, _ := r.Endpoint(types.Lid)
					compactor, _ := r.Endpoint(types.Compactor)
					requester.Respond(lid.Address, "lid/state", []byte(`{"lid":{"value":"open"}}`))
					requester.Respond(compactor.Address, "compactor/active", []byte(`{"compactor":{"value":"0"}}`))

					Convey("It should not poll outside of a tick", func() {
						col.Step(false)
						So(requester.Requests(), ShouldBeEmpty)
						So(pubsub.Published("bins"), ShouldBeEmpty)
					})

					Convey("It should stop requesting a configuration", func() {
						col.Step(false)
						So(pubsub.Published("config/request"), ShouldHaveLength, 1)
					})

					Convey("On a tick it should poll and publish", func() {
						col.Step(true)
						So(requester.Requests(), ShouldHaveLength, 2)
						published := pubsub.Published("bins")
						So(published, ShouldHaveLength, 1)
						So(string(published[0].Payload), ShouldEqual, `{"bin_id":"BIN-7","lid_sensor":{"value":"open","time_updated":"2024-01-01T12:00:00Z"},"compactor_sensor":{"value":"0","time_updated":"2024-01-01T12:00:00Z"}}`)
						So(col.LastPublish().IsZero(), ShouldBeFalse)
					})

					Convey("When publishing fails", func() {
						pubsub.PublishErr = errors.New("broker gone")
						col.Step(true)
						Convey("It should stay in ConfigReceived", func() {
							So(col.State(), ShouldEqual, ConfigReceived)
							So(col.LastPublish().IsZero(), ShouldBeTrue)
						})
					})

					Convey("When the connection is lost", func() {
						col.HandleEvent(types.Disconnected)
						So(col.State(), ShouldEqual, Disconnected)
						col.Step(false)

						Convey("It should be back in Init", func() {
							So(col.State(), ShouldEqual, Init)
							So(pubsub.Subscribed("config/response"), ShouldBeFalse)
						})

						Convey("It should keep the configuration", func() {
							So(r.IsFullyConfigured(types.Lid, types.Compactor), ShouldBeTrue)
							So(r.BinID(), ShouldEqual, "BIN-7")
						})

						Convey("The next step should reconnect", func() {
							col.Step(true)
							So(col.State(), ShouldEqual, Connecting)
							So(pubsub.Connects(), ShouldEqual, 2)
						})
					})
				})
			})
		})

		Convey("When the configuration is cleared on reconnect", func() {
			ready = true
			config.ResetOnReconnect = true
			col := build()
			col.Step(true)
			handleEvents(col)
			col.Step(false)
			col.HandleMessage(&types.Message{Topic: "config/response", Payload: []byte(response)})
			So(col.State(), ShouldEqual, ConfigReceived)
			col.HandleEvent(types.Disconnected)
			col.Step(false)
			Convey("The registry should be empty", func() {
				So(col.State(), ShouldEqual, Init)
				So(r.Endpoints(), ShouldBeEmpty)
				So(r.BinID(), ShouldEqual, registry.UnknownBinID)
			})
		})

		Convey("When a configuration arrives before the connection", func() {
			ready = true
			pubsub.AutoConnect = false
			col := build()
			col.Step(true)
			col.HandleMessage(&types.Message{Topic: "config/response", Payload: []byte(response)})
			Convey("The registry should be updated without a transition", func() {
				So(col.State(), ShouldEqual, Connecting)
				So(r.BinID(), ShouldEqual, "BIN-7")
			})
			col.stopWatchdog()
		})

		Convey("When running the Collector", func() {
			ready = true
			config.Interval = 20 * time.Millisecond
			col := build()
			col.Start()
			Reset(func() {
				col.Stop()
			})

			waitFor := func(cond func() bool) bool {
				for i := 0; i < 100; i++ {
					if cond() {
						return true
					}
					time.Sleep(10 * time.Millisecond)
				}
				return false
			}

			Convey("It should request a configuration and publish snapshots", func() {
				So(waitFor(func() bool { return col.State() == AwaitingConfig }), ShouldBeTrue)
				pubsub.Deliver("config/response", []byte(response))
				So(waitFor(func() bool { return len(pubsub.Published("bins")) > 0 }), ShouldBeTrue)
				So(col.State(), ShouldEqual, ConfigReceived)
			})

			Convey("It should recover from a lost connection", func() {
				So(waitFor(func() bool { return col.State() == AwaitingConfig }), ShouldBeTrue)
				pubsub.Emit(types.Disconnected)
				So(waitFor(func() bool { return pubsub.Connects() >= 2 }), ShouldBeTrue)
			})
		})
	})
}
