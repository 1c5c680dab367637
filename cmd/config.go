// Copyright © 2016 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/giadasql/IoT-Project/network"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment prefix that is used for configuration
const EnvPrefix = "collector"

var cfgFile string

func initConfig() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		err := viper.ReadInConfig()
		if err != nil {
			fmt.Println("Error when reading config file:", err)
		} else if err == nil {
			fmt.Println("Using config file:", viper.ConfigFileUsed())
			viper.WatchConfig()
			viper.OnConfigChange(configChanged)
		}
	}
	viper.BindEnv("debug")

	viper.SetDefault("id", network.LocalAddress())
}

// configChanged applies the settings that can change at runtime
func configChanged(event fsnotify.Event) {
	if ctx == nil {
		return
	}
	ctx.Level = logLevel()
	ctx.WithField("File", event.Name).WithField("Debug", config.GetBool("debug")).Info("Config file changed")
}

var config = viper.GetViper()
