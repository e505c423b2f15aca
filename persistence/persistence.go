// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package persistence implements the Persistence Manager (spec.md §4.6):
// a debounced writer bridging live AnnotationReplica state to a
// StateLoader, with force-flush triggers for last-disconnect and
// shutdown.
package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/globalconfig"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/replica"
)

// SaveMeta is the small metadata column stored alongside the opaque CRDT
// state blob (spec.md §6, "State blob format").
type SaveMeta struct {
	HighlightCount int
	LastEditor     string
}

// StateLoader is the persistence collaborator the manager consumes
// (spec.md §3). Implementations live under contrib/.
type StateLoader interface {
	Save(ctx context.Context, documentID string, blob []byte, meta SaveMeta) error
}

type docState struct {
	mu       sync.Mutex
	replica  *replica.Replica
	unsub    func()
	dirty    bool
	flushing bool
	editor   string
	timer    *time.Timer
}

// Manager debounces writes per document id; flushes for different ids run
// concurrently, flushes for the same id are serialized (spec.md §4.6,
// "Ordering guarantee").
type Manager struct {
	loader StateLoader
	quiet  time.Duration

	mu   sync.Mutex
	docs map[string]*docState
}

// New creates a Manager. quiet <= 0 falls back to the package default of
// globalconfig.QuietInterval().
func New(loader StateLoader, quiet time.Duration) *Manager {
	if quiet <= 0 {
		quiet = globalconfig.QuietInterval()
	}
	return &Manager{
		loader: loader,
		quiet:  quiet,
		docs:   make(map[string]*docState),
	}
}

// Observe registers the manager as a dirty-tracking subscriber of r. It
// returns an unsubscribe function that also drops the manager's
// bookkeeping for that document id.
func (m *Manager) Observe(r *replica.Replica) (unobserve func()) {
	documentID := r.DocumentID()

	m.mu.Lock()
	ds, ok := m.docs[documentID]
	if !ok {
		ds = &docState{}
		m.docs[documentID] = ds
	}
	ds.replica = r
	m.mu.Unlock()

	unsub := r.Subscribe(func(u replica.Update) {
		m.markDirty(documentID, u.OriginConn)
	})

	return func() {
		unsub()
		m.mu.Lock()
		delete(m.docs, documentID)
		m.mu.Unlock()
	}
}

func (m *Manager) markDirty(documentID, origin string) {
	m.mu.Lock()
	ds, ok := m.docs[documentID]
	m.mu.Unlock()
	if !ok {
		return
	}

	ds.mu.Lock()
	ds.dirty = true
	ds.editor = origin
	if ds.timer != nil {
		ds.timer.Stop()
	}
	ds.timer = time.AfterFunc(m.quiet, func() { m.flush(documentID, false) })
	ds.mu.Unlock()
}

// flush performs one save attempt for documentID. force bypasses the
// dirty check (used by ForceFlush and Shutdown); it still no-ops if a
// flush for the same id is already in flight, since flushes are
// serialized per id.
func (m *Manager) flush(documentID string, force bool) {
	m.mu.Lock()
	ds, ok := m.docs[documentID]
	m.mu.Unlock()
	if !ok {
		return
	}

	ds.mu.Lock()
	if ds.flushing || (!ds.dirty && !force) {
		ds.mu.Unlock()
		return
	}
	if ds.timer != nil {
		ds.timer.Stop()
	}
	ds.flushing = true
	r := ds.replica
	editor := ds.editor
	ds.mu.Unlock()

	doc := r.Document()
	blob := doc.Snapshot()
	meta := SaveMeta{HighlightCount: doc.HighlightCount(), LastEditor: editor}

	err := m.loader.Save(context.Background(), documentID, blob, meta)

	ds.mu.Lock()
	ds.flushing = false
	if err != nil {
		log.Error("persistence: save failed for document %s: %v", documentID, err)
		ds.timer = time.AfterFunc(m.quiet, func() { m.flush(documentID, false) })
	} else {
		ds.dirty = false
	}
	ds.mu.Unlock()
}

// ForceFlush immediately flushes documentID if it has unsaved mutations,
// cancelling any pending debounce (spec.md §4.6, "Last client leaves"). A
// clean document is not saved.
func (m *Manager) ForceFlush(documentID string) {
	if !m.IsDirtyOrFlushing(documentID) {
		return
	}
	m.flush(documentID, true)
}

// IsDirtyOrFlushing reports whether documentID has unsaved mutations or a
// flush currently in flight; the Replica Store consults this before
// evicting.
func (m *Manager) IsDirtyOrFlushing(documentID string) bool {
	m.mu.Lock()
	ds, ok := m.docs[documentID]
	m.mu.Unlock()
	if !ok {
		return false
	}
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.dirty || ds.flushing
}

// SnapshotSource supplies every live replica's current state, keyed by
// document id (spec.md §4.7's `snapshot_all`). *store.Store satisfies this
// directly.
type SnapshotSource interface {
	SnapshotAll() map[string][]byte
}

// Shutdown sequentially flushes every dirty document id and blocks until
// every flush has completed (spec.md §4.6, "Shutdown"). snapshots, when
// non-nil, is consulted afterward as a fallback: any document it reports
// live but that this Manager never observed (and so never dirty-tracked)
// is saved with best-effort metadata, so a replica reachable only through
// the Store still reaches storage before the process exits. May be nil.
func (m *Manager) Shutdown(ctx context.Context, snapshots SnapshotSource) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.docs))
	tracked := make(map[string]bool, len(m.docs))
	for id, ds := range m.docs {
		tracked[id] = true
		ds.mu.Lock()
		dirty := ds.dirty
		ds.mu.Unlock()
		if dirty {
			ids = append(ids, id)
		}
	}
	m.mu.Unlock()

	for _, id := range ids {
		select {
		case <-ctx.Done():
			return
		default:
			m.flush(id, true)
		}
	}

	if snapshots == nil {
		return
	}
	for documentID, blob := range snapshots.SnapshotAll() {
		if tracked[documentID] {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := m.loader.Save(ctx, documentID, blob, SaveMeta{}); err != nil {
			log.Error("persistence: shutdown fallback save failed for document %s: %v", documentID, err)
		}
	}
}
