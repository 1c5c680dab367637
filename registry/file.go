// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package registry

import (
	"io/ioutil"
	"path/filepath"

	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/giadasql/IoT-Project/types"
	"gopkg.in/yaml.v2"
)

type seedFile struct {
	BinID     string            `yaml:"bin_id"`
	Endpoints map[string]string `yaml:"endpoints"`
}

// Watcher applies a seed file to the registry and re-applies it when the file is written
type Watcher struct {
	ctx      log.Interface
	registry *Registry
	filename string
	watcher  *fsnotify.Watcher
}

// WatchFile applies the seed file at filename to the registry and keeps watching it.
//
// The file looks like:
//
//   bin_id: BIN-7
//   endpoints:
//     lid_sensor: coap://[fe80::2]/
//     scale: fe80::206:6:6:6
func (r *Registry) WatchFile(ctx log.Interface, filename string) (w *Watcher, err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, err
	}
	w = &Watcher{
		ctx:      ctx.WithField("File", filename),
		registry: r,
		filename: filename,
	}
	if err := w.Apply(); err != nil {
		return nil, err
	}
	w.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = w.watcher.Add(filename); err != nil {
		w.watcher.Close()
		return nil, err
	}
	go func() {
		for e := range w.watcher.Events {
			if e.Op&fsnotify.Write == fsnotify.Write {
				if err := w.Apply(); err != nil {
					w.ctx.WithError(err).Warn("Could not apply endpoints file")
				}
			}
		}
	}()
	return w, nil
}

// Apply reads the file and configures the registry with its contents.
// Invalid entries are logged and skipped.
func (w *Watcher) Apply() error {
	contents, err := ioutil.ReadFile(w.filename)
	if err != nil {
		return err
	}
	var seed seedFile
	if err := yaml.Unmarshal(contents, &seed); err != nil {
		return err
	}
	if seed.BinID != "" {
		w.registry.SetBinID(seed.BinID)
	}
	var invalid int
	for key, uri := range seed.Endpoints {
		role, ok := types.RoleByKey(key)
		if !ok {
			w.ctx.WithField("Role", key).Warn("Unknown role in endpoints file")
			invalid++
			continue
		}
		if err := w.registry.Configure(role, uri); err != nil {
			w.ctx.WithError(err).Warn("Invalid address in endpoints file")
			invalid++
		}
	}
	w.ctx.WithField("Endpoints", len(seed.Endpoints)-invalid).WithField("Invalid", invalid).Info("Applied endpoints file")
	return nil
}

// Close the watcher
func (w *Watcher) Close() error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
