// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package registry

import (
	"github.com/giadasql/IoT-Project/types"
	redis "gopkg.in/redis.v5"
)

// defaultRedisStateKey is used as key when no key is given
var defaultRedisStateKey = "collector:endpoints"

const redisBinIDField = "bin_id"

// InitRedisState initializes Redis-backed persistence for the registry and
// configures the registry from the state stored in the database. It returns
// the roles that were restored.
func (r *Registry) InitRedisState(client *redis.Client, key string) (restored []types.Role, err error) {
	if key == "" {
		key = defaultRedisStateKey
	}
	res, err := client.HGetAll(key).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}
	for field, value := range res {
		if field == redisBinIDField {
			r.SetBinID(value)
			continue
		}
		role, ok := types.RoleByKey(field)
		if !ok {
			continue
		}
		if err := r.Configure(role, value); err == nil {
			restored = append(restored, role)
		}
	}
	r.mu.Lock()
	r.store = &redisStore{client: client, key: key}
	r.mu.Unlock()
	return restored, nil
}

type redisStore struct {
	key    string
	client *redis.Client
}

func (s *redisStore) SaveEndpoint(role types.Role, uri string) {
	go s.client.HSet(s.key, role.Key(), uri).Result()
}

func (s *redisStore) SaveBinID(binID string) {
	go s.client.HSet(s.key, redisBinIDField, binID).Result()
}

func (s *redisStore) Clear() {
	go s.client.Del(s.key).Result()
}
