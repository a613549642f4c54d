// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package alarm

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.etcd.io/bbolt"

	"github.com/benbjohnson/immutable"
)

var stateBucket = []byte("alarm_condition_state")

// StateStore persists each (rule, target) pair's condition-tree memory
// (ConsecutivePeriods streak counters, the firing-timing hold timer)
// between live evaluation ticks. Writes go through a single BoltDB
// transaction per tick; reads are served off an immutable snapshot so
// concurrent evaluators never block on the writer, the same split the
// durable spool uses for its segment state.
type StateStore struct {
	db *bbolt.DB

	writeMu sync.Mutex
	snap    atomic.Value // *immutable.SortedMap[string, map[string]any]
}

// OpenStateStore opens (creating if absent) a BoltDB file at path and loads
// its contents into the initial read snapshot.
func OpenStateStore(path string) (*StateStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, err
	}
	s := &StateStore{db: db}

	snap := &immutable.SortedMap[string, map[string]any]{}
	err = db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(stateBucket)
		if err != nil {
			return err
		}
		return bucket.ForEach(func(k, v []byte) error {
			var state map[string]any
			if err := json.Unmarshal(v, &state); err != nil {
				return err
			}
			snap = snap.Set(string(k), state)
			return nil
		})
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.snap.Store(snap)
	return s, nil
}

func stateStoreKey(ruleID, targetKey string) string {
	return ruleID + "|" + targetKey
}

// Load returns a copy of the persisted state for (ruleID, targetKey), or a
// fresh empty map if none exists yet.
func (s *StateStore) Load(ruleID, targetKey string) map[string]any {
	snap := s.snap.Load().(*immutable.SortedMap[string, map[string]any])
	state, ok := snap.Get(stateStoreKey(ruleID, targetKey))
	if !ok {
		return make(map[string]any)
	}
	return cloneState(state)
}

// Save persists state for (ruleID, targetKey) and publishes a new read
// snapshot.
func (s *StateStore) Save(ruleID, targetKey string, state map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	encoded, err := json.Marshal(state)
	if err != nil {
		return err
	}
	key := stateStoreKey(ruleID, targetKey)
	if err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(stateBucket).Put([]byte(key), encoded)
	}); err != nil {
		return err
	}

	snap := s.snap.Load().(*immutable.SortedMap[string, map[string]any])
	s.snap.Store(snap.Set(key, cloneState(state)))
	return nil
}

func cloneState(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}

func (s *StateStore) Close() error {
	return s.db.Close()
}
