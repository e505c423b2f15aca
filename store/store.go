// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package store implements the Replica Store (spec.md §4.7): the
// registry of live AnnotationReplica instances, their factory (including
// cold-load from a StateLoader), and eviction.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/replica"
)

// StateLoader is the cold-load half of the persistence collaborator
// (spec.md §3), consumed by the store; the Persistence Manager's save half
// is persistence.StateLoader. Implementations live under contrib/ (e.g. a
// Postgres-backed loader).
type StateLoader interface {
	Load(ctx context.Context, documentID string) (blob []byte, found bool, err error)
}

// Store is the per-process registry of live replicas.
type Store struct {
	loader StateLoader

	mu       sync.Mutex
	replicas map[string]*entry

	sweepInterval time.Duration
}

// Option configures optional Store behaviour.
type Option func(*Store)

// WithSweepInterval enables a periodic idle-replica sweep (SPEC_FULL.md
// §13), supplementing the explicit ConsiderEviction call spec.md §4.7
// describes for hosts whose last-disconnect path doesn't always run (e.g.
// a crash that drops the connection without the leave protocol). Off by
// default; StartSweep is a no-op unless this is set to a positive value.
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) { s.sweepInterval = d }
}

type entry struct {
	mu      sync.Mutex // serializes first-time creation for one id
	replica *replica.Replica
	dirty   bool
	flushed bool
}

// New creates an empty Store. loader may be nil, in which case every
// get_or_create seeds a fresh empty replica (useful for tests).
func New(loader StateLoader, opts ...Option) *Store {
	s := &Store{
		loader:   loader,
		replicas: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the live replica for documentID, cold-loading it
// from the StateLoader on first access. Two concurrent first-time
// accesses for the same id are serialized by a per-id lock and yield the
// same instance (spec.md §4.7, "Concurrency").
func (s *Store) GetOrCreate(ctx context.Context, documentID string) (*replica.Replica, error) {
	s.mu.Lock()
	e, ok := s.replicas[documentID]
	if !ok {
		e = &entry{}
		s.replicas[documentID] = e
	}
	s.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.replica != nil {
		return e.replica, nil
	}

	var blob []byte
	if s.loader != nil {
		loaded, found, err := s.loader.Load(ctx, documentID)
		if err != nil {
			s.mu.Lock()
			delete(s.replicas, documentID)
			s.mu.Unlock()
			return nil, err
		}
		if found {
			blob = loaded
		}
	}

	r, err := replica.NewFromSnapshot(documentID, blob)
	if err != nil {
		s.mu.Lock()
		delete(s.replicas, documentID)
		s.mu.Unlock()
		return nil, err
	}
	e.replica = r
	return r, nil
}

// Peek returns the already-live replica for documentID without creating
// or cold-loading one.
func (s *Store) Peek(documentID string) (*replica.Replica, bool) {
	s.mu.Lock()
	e, ok := s.replicas[documentID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.replica, e.replica != nil
}

// SnapshotAll returns every live replica's current state, keyed by
// document id, for shutdown persistence.
func (s *Store) SnapshotAll() map[string][]byte {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.replicas))
	ids := make([]string, 0, len(s.replicas))
	for id, e := range s.replicas {
		entries = append(entries, e)
		ids = append(ids, id)
	}
	s.mu.Unlock()

	out := make(map[string][]byte, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		if e.replica != nil {
			out[ids[i]] = e.replica.Document().Snapshot()
		}
		e.mu.Unlock()
	}
	return out
}

// ConsiderEviction drops a replica from the registry if it has no
// outstanding dirty persistence state and is not currently being
// flushed. isDirtyOrFlushing is supplied by the caller (typically the
// Persistence Manager) since the store does not track dirty state
// itself. It reports whether the replica was actually evicted, so a
// caller holding its own state bound to that replica (e.g. the router's
// per-document routing table) knows to tear that state down too.
func (s *Store) ConsiderEviction(documentID string, isDirtyOrFlushing func(documentID string) bool) bool {
	s.mu.Lock()
	e, ok := s.replicas[documentID]
	s.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if isDirtyOrFlushing(documentID) {
		return false
	}

	s.mu.Lock()
	delete(s.replicas, documentID)
	s.mu.Unlock()
	log.Debug("store: evicted replica for document %s", documentID)
	return true
}

// StartSweep launches a background goroutine that periodically offers every
// live replica up to ConsiderEviction, using isDirtyOrFlushing the same way
// a caller-triggered eviction would. It returns immediately; the sweep
// stops when ctx is cancelled. A no-op unless WithSweepInterval configured
// a positive interval.
func (s *Store) StartSweep(ctx context.Context, isDirtyOrFlushing func(documentID string) bool) {
	if s.sweepInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepOnce(isDirtyOrFlushing)
			}
		}
	}()
}

func (s *Store) sweepOnce(isDirtyOrFlushing func(documentID string) bool) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.replicas))
	for id := range s.replicas {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.ConsiderEviction(id, isDirtyOrFlushing)
	}
}
