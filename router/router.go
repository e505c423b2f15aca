// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package router implements the Fan-out Router (spec.md §4.4): binds
// connections to a document's replica, applies incoming updates with
// origin suppression, and broadcasts presence and CRDT deltas among the
// document's peers.
package router

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/persistence"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/presence"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/replica"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/store"
)

// Connection is the minimal transport abstraction the router consumes
// (spec.md §3). Implementations live under contrib/ (e.g. a
// gorilla/websocket adapter).
type Connection interface {
	Send(Message) error
}

// Evictor considers a document's replica for eviction after its last
// connection leaves (spec.md §4.4, "Leave protocol"), reporting whether it
// was actually evicted. *store.Store satisfies this directly.
type Evictor interface {
	ConsiderEviction(documentID string, isDirtyOrFlushing func(string) bool) bool
}

type docRouting struct {
	mu          sync.RWMutex
	connections map[string]Connection // clientID -> connection
	replica     *replica.Replica
	presence    *presence.Tracker
	unsubReplica func()
	unsubPresence func()
}

// Router binds connections to replicas and fans out updates.
type Router struct {
	store   *store.Store
	persist *persistence.Manager
	evict   Evictor

	mu   sync.Mutex
	docs map[string]*docRouting
}

// New creates a Router over a Replica Store and Persistence Manager. evict
// is typically the same *store.Store; it is accepted separately so tests
// can substitute a no-op.
func New(s *store.Store, p *persistence.Manager, evict Evictor) *Router {
	return &Router{store: s, persist: p, evict: evict, docs: make(map[string]*docRouting)}
}

func (router *Router) routing(documentID string, r *replica.Replica) *docRouting {
	router.mu.Lock()
	defer router.mu.Unlock()
	dr, ok := router.docs[documentID]
	if ok {
		// The Store always hands back the same *replica.Replica instance
		// for a live document, but guard against rebinding to a new one
		// (e.g. a cold-load that raced an eviction) rather than silently
		// routing traffic through a stale replica.
		dr.mu.Lock()
		dr.replica = r
		dr.mu.Unlock()
		return dr
	}
	dr = &docRouting{
		connections: make(map[string]Connection),
		replica:     r,
		presence:    presence.New(documentID),
	}
	router.docs[documentID] = dr

	dr.unsubReplica = r.Subscribe(func(u replica.Update) {
		router.broadcastUpdate(documentID, u)
	})
	dr.unsubPresence = dr.presence.Listen(func(evt presence.Event) {
		router.broadcastPresence(documentID, evt)
	})
	if router.persist != nil {
		router.persist.Observe(r)
	}
	return dr
}

// Join implements the join protocol (spec.md §4.4): obtain-or-create the
// replica, send the initial snapshot, register the connection, and
// register client metadata.
func (router *Router) Join(ctx context.Context, documentID string, conn Connection, displayName, color string) (clientID string, err error) {
	r, err := router.store.GetOrCreate(ctx, documentID)
	if err != nil {
		return "", err
	}
	dr := router.routing(documentID, r)

	if err := conn.Send(Message{Kind: KindSnapshot, DocumentID: documentID, Bytes: r.Document().Snapshot()}); err != nil {
		return "", err
	}

	clientID = uuid.NewString()
	dr.mu.Lock()
	dr.connections[clientID] = conn
	dr.mu.Unlock()

	r.RegisterClient(clientID, displayName, color)
	dr.presence.Register(clientID, displayName, color)
	dr.presence.SetCursor(clientID, nil)

	return clientID, nil
}

// ApplyUpdate implements the update protocol (spec.md §4.4): merge the
// incoming blob with clientID as origin. The replica's own subscriber
// (registered in routing) broadcasts to peers and notifies persistence;
// this method does not re-broadcast directly.
func (router *Router) ApplyUpdate(documentID, clientID string, updateBytes []byte) error {
	dr, r := router.lookup(documentID)
	if dr == nil {
		return nil
	}
	_, err := r.ApplyRemoteUpdate(updateBytes, clientID)
	return err
}

// SetCursor and SetSelection forward presence updates from clientID.
func (router *Router) SetCursor(documentID, clientID string, charIndex *int) {
	dr, _ := router.lookup(documentID)
	if dr == nil {
		return
	}
	dr.presence.SetCursor(clientID, charIndex)
}

func (router *Router) SetSelection(documentID, clientID string, startChar, endChar *int) {
	dr, _ := router.lookup(documentID)
	if dr == nil {
		return
	}
	dr.presence.SetSelection(clientID, startChar, endChar)
}

// Leave implements the leave protocol (spec.md §4.4): drop the
// connection, unregister client metadata, clear presence, force a flush,
// and offer the document up for eviction.
func (router *Router) Leave(documentID, clientID string) {
	dr, r := router.lookup(documentID)
	if dr == nil {
		return
	}

	dr.mu.Lock()
	delete(dr.connections, clientID)
	remaining := len(dr.connections)
	dr.mu.Unlock()

	r.UnregisterClient(clientID)
	dr.presence.Remove(clientID)

	if remaining == 0 {
		if router.persist != nil {
			router.persist.ForceFlush(documentID)
		}
		if router.evict != nil {
			isDirty := func(string) bool { return false }
			if router.persist != nil {
				isDirty = router.persist.IsDirtyOrFlushing
			}
			if router.evict.ConsiderEviction(documentID, isDirty) {
				router.forgetRouting(documentID, dr)
			}
		}
	}
}

// forgetRouting tears down a docRouting whose replica the Store just
// evicted, so the next Join binds a fresh docRouting to the Store's next
// cold-loaded replica instead of silently routing traffic through the
// orphaned one.
func (router *Router) forgetRouting(documentID string, dr *docRouting) {
	dr.unsubReplica()
	dr.unsubPresence()

	router.mu.Lock()
	if router.docs[documentID] == dr {
		delete(router.docs, documentID)
	}
	router.mu.Unlock()
}

func (router *Router) lookup(documentID string) (*docRouting, *replica.Replica) {
	router.mu.Lock()
	dr, ok := router.docs[documentID]
	router.mu.Unlock()
	if !ok {
		return nil, nil
	}
	return dr, dr.replica
}

// broadcastUpdate sends an update message to every connection on
// documentID except u.OriginConn (exact origin suppression, spec.md §5).
// A failed send is treated as a disconnect and runs the leave protocol;
// it does not abort delivery to the remaining peers.
func (router *Router) broadcastUpdate(documentID string, u replica.Update) {
	dr, _ := router.lookup(documentID)
	if dr == nil {
		return
	}
	blob := crdt.MarshalOps(nil, []crdt.Op{u.Op})
	msg := Message{Kind: KindUpdate, DocumentID: documentID, Bytes: blob}

	dr.mu.RLock()
	targets := make(map[string]Connection, len(dr.connections))
	for clientID, conn := range dr.connections {
		if clientID == u.OriginConn {
			continue
		}
		targets[clientID] = conn
	}
	dr.mu.RUnlock()

	for clientID, conn := range targets {
		if err := conn.Send(msg); err != nil {
			log.Warn("router: send failed for document %s client %s: %v", documentID, clientID, err)
			router.Leave(documentID, clientID)
		}
	}
}

func (router *Router) broadcastPresence(documentID string, evt presence.Event) {
	dr, _ := router.lookup(documentID)
	if dr == nil {
		return
	}
	payload := &PresencePayload{
		ClientID:       evt.Row.ClientID,
		DisplayName:    evt.Row.DisplayName,
		Color:          evt.Row.Color,
		CursorChar:     evt.Row.CursorChar,
		SelectionStart: evt.Row.SelectionFrom,
		SelectionEnd:   evt.Row.SelectionTo,
	}
	switch evt.Kind {
	case presence.EventCursor:
		payload.Kind = PresenceCursor
	case presence.EventSelection:
		payload.Kind = PresenceSelection
	case presence.EventLeave:
		payload.Kind = PresenceLeave
	}
	msg := Message{Kind: KindPresence, DocumentID: documentID, Presence: payload}

	dr.mu.RLock()
	targets := make(map[string]Connection, len(dr.connections))
	for clientID, conn := range dr.connections {
		if clientID == evt.Row.ClientID {
			continue
		}
		targets[clientID] = conn
	}
	dr.mu.RUnlock()

	for clientID, conn := range targets {
		if err := conn.Send(msg); err != nil {
			log.Warn("router: presence send failed for document %s client %s: %v", documentID, clientID, err)
			router.Leave(documentID, clientID)
		}
	}
}
