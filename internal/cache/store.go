/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package cache holds the in-memory authoritative view of every ClusterSecret
// the operator has observed, keyed by UID. The store is the only mutable state
// shared between handlers; everything else is fetched fresh from the cluster.
package cache

import (
	"errors"
	"maps"
	"sync"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/sets"
)

// ErrNotFound is returned by Remove when no record exists for the UID.
var ErrNotFound = errors.New("no cached record for uid")

// Record is the last-known synchronization state of one ClusterSecret.
//
// SyncedNamespaces tracks which namespaces currently hold a replica. It is the
// only derived state the operator persists (mirrored into the resource status)
// and must eventually equal the matcher's evaluation of the rule against the
// live namespace list.
type Record struct {
	UID             types.UID
	Name            string
	Namespace       string
	MatchNamespace  []string
	AvoidNamespaces []string
	Data            map[string][]byte
	Type            corev1.SecretType
	Labels          map[string]string
	Annotations     map[string]string

	SyncedNamespaces sets.Set[string]
}

// Clone returns a deep copy. Records cross goroutine boundaries (the namespace
// fan-out iterates snapshots while resource handlers mutate), so the store
// never hands out shared maps.
func (r *Record) Clone() *Record {
	out := *r
	out.MatchNamespace = append([]string(nil), r.MatchNamespace...)
	out.AvoidNamespaces = append([]string(nil), r.AvoidNamespaces...)
	out.Labels = maps.Clone(r.Labels)
	out.Annotations = maps.Clone(r.Annotations)
	if r.Data != nil {
		out.Data = make(map[string][]byte, len(r.Data))
		for k, v := range r.Data {
			out.Data[k] = append([]byte(nil), v...)
		}
	}
	if r.SyncedNamespaces != nil {
		out.SyncedNamespaces = r.SyncedNamespaces.Clone()
	}
	return &out
}

// Store maps ClusterSecret UIDs to their records.
//
// The lock guards only the map itself. All reads return copies and List works
// on a snapshot, so a handler iterating every record never blocks handlers for
// unrelated resources. Per-UID linearizability comes from the dispatcher, which
// serializes deliveries per resource identity.
type Store interface {
	Get(uid types.UID) (*Record, bool)
	Set(rec *Record)
	// Update applies mutate to the live record under the store lock, so a
	// handler iterating a snapshot can fold in a change without racing the
	// handler that owns the record. Returns false if the record is gone.
	Update(uid types.UID, mutate func(*Record)) bool
	Remove(uid types.UID) error
	List() []*Record
	Len() int
}

type memoryStore struct {
	mu      sync.RWMutex
	records map[types.UID]*Record
}

// NewStore returns an empty in-memory store.
func NewStore() Store {
	return &memoryStore{records: make(map[types.UID]*Record)}
}

func (s *memoryStore) Get(uid types.UID) (*Record, bool) {
	s.mu.RLock()
	rec, ok := s.records[uid]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Set upserts the record, keyed by UID. The stored value is a private copy.
func (s *memoryStore) Set(rec *Record) {
	clone := rec.Clone()
	s.mu.Lock()
	s.records[rec.UID] = clone
	s.mu.Unlock()
}

func (s *memoryStore) Update(uid types.UID, mutate func(*Record)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[uid]
	if !ok {
		return false
	}
	mutate(rec)
	return true
}

func (s *memoryStore) Remove(uid types.UID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[uid]; !ok {
		return ErrNotFound
	}
	delete(s.records, uid)
	return nil
}

// List returns a point-in-time snapshot of every record, in no particular order.
func (s *memoryStore) List() []*Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	return out
}

func (s *memoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
