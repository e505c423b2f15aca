// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package replica implements the AnnotationReplica (spec.md §4.3): the
// per-document in-memory owner of a crdt.Document, translating the
// engine's operation table into CRDT mutations and publishing every
// resulting Op to subscribers tagged with the origin connection so the
// Fan-out Router can suppress echo.
package replica

import (
	"sync"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
)

// Update is one CRDT mutation paired with the connection id that caused
// it, so subscribers can skip re-sending to their own origin.
type Update struct {
	DocumentID string
	Op         crdt.Op
	OriginConn string
}

// Subscriber receives every Update published by a Replica, including ones
// it caused itself (origin suppression is the router's job, not the
// replica's; spec.md §4.4).
type Subscriber func(Update)

// Replica owns one document's live crdt.Document and fans out every
// mutation to its subscribers.
type Replica struct {
	documentID string

	mu          sync.RWMutex
	doc         *crdt.Document
	subscribers map[int]Subscriber
	nextSubID   int
}

// New creates a Replica around a fresh, empty crdt.Document.
func New(documentID string) *Replica {
	return &Replica{
		documentID:  documentID,
		doc:         crdt.New(documentID),
		subscribers: make(map[int]Subscriber),
	}
}

// NewFromSnapshot creates a Replica and immediately loads a previously
// persisted state blob (spec.md §4.6, "cold load").
func NewFromSnapshot(documentID string, snapshot []byte) (*Replica, error) {
	r := New(documentID)
	if len(snapshot) == 0 {
		return r, nil
	}
	if err := r.doc.LoadSnapshot(snapshot); err != nil {
		return nil, err
	}
	return r, nil
}

// DocumentID returns the id this replica was created for.
func (r *Replica) DocumentID() string { return r.documentID }

// Document exposes read access to the underlying CRDT for callers that
// need the full state (snapshotting, span compilation).
func (r *Replica) Document() *crdt.Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.doc
}

// Subscribe registers a callback invoked synchronously for every Update.
// It returns an unsubscribe function.
func (r *Replica) Subscribe(fn Subscriber) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

func (r *Replica) publish(op crdt.Op, originConn string) {
	r.mu.RLock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.RUnlock()

	update := Update{DocumentID: r.documentID, Op: op, OriginConn: originConn}
	for _, fn := range subs {
		fn(update)
	}
}

// AddHighlight applies a new highlight and publishes the resulting Op.
func (r *Replica) AddHighlight(originConn string, startChar, endChar int, tag, text, author, createdAt, paraRef string) (crdt.Op, error) {
	op, err := r.doc.AddHighlight(startChar, endChar, tag, text, author, createdAt, paraRef, r.documentID)
	if err != nil {
		return crdt.Op{}, err
	}
	r.publish(op, originConn)
	return op, nil
}

// RemoveHighlight tombstones a highlight and publishes the Op, if found.
func (r *Replica) RemoveHighlight(originConn, highlightID string) (crdt.Op, bool) {
	op, ok := r.doc.RemoveHighlight(highlightID)
	if !ok {
		return crdt.Op{}, false
	}
	r.publish(op, originConn)
	return op, true
}

// AddComment appends a comment and publishes the Op.
func (r *Replica) AddComment(originConn, highlightID, author, text, createdAt string) (crdt.Op, bool) {
	op, ok := r.doc.AddComment(highlightID, author, text, createdAt)
	if !ok {
		return crdt.Op{}, false
	}
	r.publish(op, originConn)
	return op, true
}

// DeleteComment resolves index to a stable comment id at this replica and
// publishes the Op; resolving locally (rather than shipping the index)
// keeps the operation commutative regardless of arrival order at remote
// replicas.
func (r *Replica) DeleteComment(originConn, highlightID string, index int) (crdt.Op, bool) {
	op, ok := r.doc.DeleteComment(highlightID, index)
	if !ok {
		return crdt.Op{}, false
	}
	r.publish(op, originConn)
	return op, true
}

// UpdateHighlightParaRef rewrites a highlight's ParaRef and publishes the
// Op, typically called after a reflow invalidates cached paragraph
// references.
func (r *Replica) UpdateHighlightParaRef(originConn, highlightID, newRef string) (crdt.Op, bool) {
	op, ok := r.doc.UpdateHighlightParaRef(highlightID, newRef)
	if !ok {
		return crdt.Op{}, false
	}
	r.publish(op, originConn)
	return op, true
}

// SetTagOrder publishes the Op, if the proposed order is valid.
func (r *Replica) SetTagOrder(originConn, tag string, order []string) (crdt.Op, error) {
	op, err := r.doc.SetTagOrder(tag, order)
	if err != nil {
		return crdt.Op{}, err
	}
	r.publish(op, originConn)
	return op, nil
}

// DeleteTag cascades tombstones and publishes the Op, if the tag existed.
func (r *Replica) DeleteTag(originConn, tag string) (crdt.Op, bool) {
	op, ok := r.doc.DeleteTag(tag)
	if !ok {
		return crdt.Op{}, false
	}
	r.publish(op, originConn)
	return op, true
}

// SetResponseDraft replaces the scalar draft field and publishes the Op.
func (r *Replica) SetResponseDraft(originConn, markdown string) crdt.Op {
	op := r.doc.SetResponseDraft(markdown)
	r.publish(op, originConn)
	return op
}

// SetGeneralNotes replaces the scalar notes field and publishes the Op.
func (r *Replica) SetGeneralNotes(originConn, text string) crdt.Op {
	op := r.doc.SetGeneralNotes(text)
	r.publish(op, originConn)
	return op
}

// ApplyRemote merges an Op received from a remote replica (over the
// router) into the local document, publishing it onward to local
// subscribers so it reaches every other connection on this node.
func (r *Replica) ApplyRemote(op crdt.Op, originConn string) (bool, error) {
	changed, err := r.doc.Merge(op)
	if err != nil {
		log.Warn("replica: rejected remote op for document %s: %v", r.documentID, err)
		return false, err
	}
	if changed {
		r.publish(op, originConn)
	}
	return changed, nil
}

// ApplyRemoteUpdate decodes an opaque update blob received over the wire
// (spec.md §4.3, apply_remote_update) and merges every op it carries.
// Invalid blobs are rejected without mutating the document.
func (r *Replica) ApplyRemoteUpdate(updateBytes []byte, originConn string) (bool, error) {
	ops, err := crdt.UnmarshalOps(updateBytes)
	if err != nil {
		log.Warn("replica: dropped malformed update blob for document %s: %v", r.documentID, err)
		return false, err
	}
	changedAny := false
	for _, op := range ops {
		changed, err := r.doc.Merge(op)
		if err != nil {
			log.Warn("replica: rejected op in update blob for document %s: %v", r.documentID, err)
			continue
		}
		if changed {
			changedAny = true
			r.publish(op, originConn)
		}
	}
	return changedAny, nil
}

// RegisterClient upserts client_meta for a newly joined connection. This
// is local-only bookkeeping: client_meta is excluded from persistence and
// from CRDT merge (invariant 6), so it carries no update blob. Live
// awareness of who is present is broadcast separately by the Presence
// Tracker, which already carries display name and colour on every
// message.
func (r *Replica) RegisterClient(clientID, displayName, color string) {
	r.doc.SetClientMeta(clientID, displayName, color)
}

// UnregisterClient removes client_meta for a disconnected connection.
func (r *Replica) UnregisterClient(clientID string) {
	r.doc.RemoveClientMeta(clientID)
}

// Clone produces a fresh, unconnected Replica bound to newDocumentID, whose
// underlying document is the result of crdt.Document.Clone: live highlights
// renewed under new ids, comments, tag_order, notes, and the response draft
// carried over, client_meta excluded (spec.md §4.3, "Cloning"). tagRemap, if
// non-nil, rewrites UUID-shaped tag ids; legacy short-string tags pass
// through unchanged. The returned Replica has no subscribers of its own —
// the caller registers it with the Replica Store and Fan-out Router the
// same way any other replica is routed.
func (r *Replica) Clone(newDocumentID string, tagRemap map[string]string) *Replica {
	r.mu.RLock()
	doc := r.doc
	r.mu.RUnlock()

	return &Replica{
		documentID:  newDocumentID,
		doc:         doc.Clone(newDocumentID, tagRemap),
		subscribers: make(map[int]Subscriber),
	}
}
