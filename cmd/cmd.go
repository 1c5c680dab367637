// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/multi"
	"github.com/giadasql/IoT-Project/backend/amqp"
	"github.com/giadasql/IoT-Project/backend/coap"
	"github.com/giadasql/IoT-Project/backend/mqtt"
	"github.com/giadasql/IoT-Project/collector"
	"github.com/giadasql/IoT-Project/discovery"
	"github.com/giadasql/IoT-Project/middleware/debug"
	"github.com/giadasql/IoT-Project/middleware/normalize"
	"github.com/giadasql/IoT-Project/network"
	"github.com/giadasql/IoT-Project/poller"
	"github.com/giadasql/IoT-Project/publisher"
	"github.com/giadasql/IoT-Project/registry"
	"github.com/giadasql/IoT-Project/status"
	"github.com/giadasql/IoT-Project/types"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	redis "gopkg.in/redis.v5"
)

// CollectorCmd is the main command that is executed when running bin-collector
var CollectorCmd = &cobra.Command{
	Use:   "bin-collector",
	Short: "Smart bin collector",
	Long:  `bin-collector discovers the sensors of a bin, polls them over CoAP and publishes their state over MQTT`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var logHandlers []log.Handler

		logHandlers = append(logHandlers, cli.New(os.Stdout))

		if logFileLocation := config.GetString("log-file"); logFileLocation != "" {
			absLogFileLocation, err := filepath.Abs(logFileLocation)
			if err != nil {
				panic(err)
			}
			logFile, err = os.OpenFile(absLogFileLocation, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
			if err != nil {
				panic(err)
			}
			logHandlers = append(logHandlers, json.New(logFile))
		}

		ctx = &log.Logger{
			Level:   logLevel(),
			Handler: multi.New(logHandlers...),
		}
	},
	Run: runCollector,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			time.Sleep(100 * time.Millisecond)
			logFile.Close()
		}
	},
}

func logLevel() log.Level {
	if config.GetBool("debug") {
		return log.DebugLevel
	}
	return log.InfoLevel
}

// user:pass@host:port, where host may be a bracketed IPv6 address
var brokerRegexp = regexp.MustCompile(`^(?:([0-9a-z_-]+)(?::([0-9A-Za-z-!"#$%&'()*+,.:;<=>?@[\]^_{|}~]+))?@)?((?:\[[0-9a-fA-F:.%a-z]+\]|[0-9a-z.-]+):[0-9]+)$`)

type broker struct {
	Username string
	Password string
	Address  string
}

func parseBroker(s string) (broker, error) {
	parts := brokerRegexp.FindStringSubmatch(s)
	if parts == nil {
		return broker{}, fmt.Errorf("invalid broker address %q", s)
	}
	return broker{Username: parts[1], Password: parts[2], Address: parts[3]}, nil
}

func parseRoles(keys []string) ([]types.Role, error) {
	var roles []types.Role
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		role, ok := types.RoleByKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown role %q", key)
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func runCollector(cmd *cobra.Command, args []string) {
	identity := config.GetString("id")
	ctx.WithField("Identity", identity).Info("Starting collector")

	reg := registry.New()

	// Set up Redis
	if config.GetBool("redis") {
		client := redis.NewClient(&redis.Options{
			Addr:     config.GetString("redis-address"),
			Password: config.GetString("redis-password"),
			DB:       config.GetInt("redis-db"),
		})
		ctx.Info("Initializing Redis state backend")
		restored, err := reg.InitRedisState(client, "")
		if err != nil {
			ctx.WithError(err).Warn("Could not restore state from Redis")
		} else if len(restored) > 0 {
			ctx.WithField("Endpoints", len(restored)).Info("Restored endpoints from Redis")
		}
	}

	if endpointsFile := config.GetString("endpoints-file"); endpointsFile != "" {
		watcher, err := reg.WatchFile(ctx, endpointsFile)
		if err != nil {
			ctx.WithError(err).Fatal("Could not load endpoints file")
		}
		defer watcher.Close()
	}

	b, err := parseBroker(config.GetString("mqtt"))
	if err != nil {
		ctx.WithError(err).Fatal("Could not parse MQTT broker")
	}
	ctx.WithField("Username", b.Username).WithField("Address", b.Address).Info("Initializing MQTT")
	pubsub, err := mqtt.New(mqtt.Config{
		Brokers:        []string{"tcp://" + b.Address},
		ClientID:       "bin-collector-" + identity,
		Username:       b.Username,
		Password:       b.Password,
		ConnectTimeout: config.GetDuration("connect-timeout"),
	}, ctx)
	if err != nil {
		ctx.WithError(err).Fatal("Could not initialize MQTT")
	}

	requester := coap.New(ctx)
	defer requester.Close()

	var middleware []interface{}
	if config.GetBool("debug") {
		middleware = append(middleware, debug.New(ctx))
	}

	handler := discovery.New(ctx, identity, reg, middleware...)
	p := poller.New(ctx, requester, config.GetDuration("coap-timeout"))
	pub := publisher.New(ctx, publisher.Config{
		Topic:      config.GetString("publish-topic"),
		QoS:        byte(config.GetInt("publish-qos")),
		Timestamps: config.GetBool("timestamps"),
	}, pubsub, append(middleware, normalize.New())...)

	// Set up the AMQP mirror (user:pass@host:port)
	if amqpBroker := config.GetString("amqp"); amqpBroker != "" && amqpBroker != "disable" {
		b, err := parseBroker(amqpBroker)
		if err != nil {
			ctx.WithError(err).Fatal("Could not parse AMQP broker")
		}
		ctx.WithField("Username", b.Username).WithField("Address", b.Address).Info("Initializing AMQP")
		mirror, err := amqp.New(amqp.Config{
			Address:  b.Address,
			Username: b.Username,
			Password: b.Password,
		}, ctx)
		if err != nil {
			ctx.WithError(err).Fatal("Could not initialize AMQP")
		}
		mirror.Connect()
		defer mirror.Disconnect()
		pub.AddSink(mirror)
	}

	required, err := parseRoles(config.GetStringSlice("required-roles"))
	if err != nil {
		ctx.WithError(err).Fatal("Could not parse required roles")
	}

	c := collector.New(ctx, collector.Config{
		Interval:            config.GetDuration("interval"),
		ConnectTimeout:      config.GetDuration("connect-timeout"),
		ConfigRequestTopic:  config.GetString("config-request-topic"),
		ConfigResponseTopic: config.GetString("config-response-topic"),
		RequiredRoles:       required,
		ResetOnReconnect:    config.GetBool("reset-on-reconnect"),
	}, pubsub, reg, handler, p, pub)
	c.SetNetwork(network.NewInterfaces(ctx, b.Address))

	if statusAddress := config.GetString("status-address"); statusAddress != "" && statusAddress != "disable" {
		srv := status.New(ctx, c)
		for _, key := range config.GetStringSlice("status-access-keys") {
			srv.AddAccessKey(key)
		}
		if err := srv.Start(statusAddress); err != nil {
			ctx.WithError(err).Fatal("Could not start status server")
		}
		defer srv.Stop(context.Background())
	}

	c.Start()
	defer func() {
		c.Stop()
		time.Sleep(100 * time.Millisecond)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	ctx.WithField("signal", <-sigChan).Info("signal received")
}

func init() {
	CollectorCmd.Flags().String("log-file", "", "Location of the log file")
	CollectorCmd.Flags().Bool("debug", false, "Print debug logs")

	CollectorCmd.Flags().String("id", "", "Collector address used in discovery (default: link-local IPv6 address)")

	CollectorCmd.Flags().String("mqtt", "localhost:1883", "MQTT Broker to connect to (user:pass@host:port)")
	CollectorCmd.Flags().String("config-request-topic", collector.DefaultConfig.ConfigRequestTopic, "Topic for configuration requests")
	CollectorCmd.Flags().String("config-response-topic", collector.DefaultConfig.ConfigResponseTopic, "Topic for configuration responses")
	CollectorCmd.Flags().String("publish-topic", publisher.DefaultConfig.Topic, "Topic for bin snapshots")
	CollectorCmd.Flags().Int("publish-qos", int(publisher.DefaultConfig.QoS), "QoS of bin snapshots")
	CollectorCmd.Flags().Bool("timestamps", publisher.DefaultConfig.Timestamps, "Publish readings with their update time")

	CollectorCmd.Flags().Duration("interval", collector.DefaultConfig.Interval, "Interval between polling cycles")
	CollectorCmd.Flags().Duration("coap-timeout", poller.DefaultTimeout, "Timeout of a single sensor read")
	CollectorCmd.Flags().Duration("connect-timeout", collector.DefaultConfig.ConnectTimeout, "Timeout for connecting to the MQTT broker")

	CollectorCmd.Flags().StringSlice("required-roles", []string{"lid_sensor", "compactor_sensor", "scale", "waste_level_sensor"}, "Roles that must be configured for a complete configuration")
	CollectorCmd.Flags().Bool("reset-on-reconnect", false, "Forget the configuration when the broker connection is lost")
	CollectorCmd.Flags().String("endpoints-file", "", "Location of a YAML file with static endpoints")

	CollectorCmd.Flags().Bool("redis", false, "Persist the configuration in Redis")
	CollectorCmd.Flags().String("redis-address", "localhost:6379", "Redis host and port")
	CollectorCmd.Flags().String("redis-password", "", "Redis password")
	CollectorCmd.Flags().Int("redis-db", 0, "Redis database")

	CollectorCmd.Flags().String("amqp", "disable", "AMQP Broker to mirror snapshots to (disable with \"disable\")")

	CollectorCmd.Flags().String("status-address", ":9091", "Address of the status server (disable with \"disable\")")
	CollectorCmd.Flags().StringSlice("status-access-keys", nil, "Access keys for the status server")

	viper.BindPFlags(CollectorCmd.Flags())
}
