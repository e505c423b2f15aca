// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package websocket adapts a *websocket.Conn into a router.Connection,
// framing each router.Message as one JSON text message, in the same
// WrapConn-returns-a-wrapped-type shape as the teacher's own
// contrib/gorilla/websocket package (there: tracing; here: wire framing).
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"

	gorilla "github.com/gorilla/websocket"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/log"
	"github.com/MQFacultyOfArts/promptgrimoire-ace/router"
)

// wireMessage is the JSON-on-the-wire shape of a router.Message. Bytes is
// base64-encoded automatically by encoding/json; the CRDT blob itself stays
// opaque to this package, per spec.md §6.
type wireMessage struct {
	Kind       router.MessageKind      `json:"kind"`
	DocumentID string                  `json:"document_id"`
	Bytes      []byte                  `json:"bytes,omitempty"`
	Presence   *router.PresencePayload `json:"presence,omitempty"`
	Error      *router.ErrorPayload    `json:"error,omitempty"`
}

// Conn wraps a *websocket.Conn so it satisfies router.Connection. Writes
// are serialised: gorilla/websocket permits at most one concurrent writer
// per connection.
type Conn struct {
	conn *gorilla.Conn
	mu   sync.Mutex
}

// WrapConn wraps an established websocket connection for use as a
// router.Connection. Call this immediately after Upgrade.
func WrapConn(conn *gorilla.Conn) *Conn {
	return &Conn{conn: conn}
}

// Send implements router.Connection.
func (c *Conn) Send(m router.Message) error {
	payload := wireMessage{Kind: m.Kind, DocumentID: m.DocumentID, Bytes: m.Bytes, Presence: m.Presence, Error: m.Error}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("websocket: marshal message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(gorilla.TextMessage, body)
}

// ReadUpdate blocks for the next client-originated text frame and decodes
// it back into a router.Message. Only KindUpdate and KindPresence are
// expected from a client; callers route on m.Kind.
func (c *Conn) ReadUpdate() (router.Message, error) {
	_, body, err := c.conn.ReadMessage()
	if err != nil {
		return router.Message{}, err
	}
	var payload wireMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("contrib/gorilla/websocket: dropping malformed frame: %v", err)
		return router.Message{}, fmt.Errorf("websocket: unmarshal message: %w", err)
	}
	return router.Message{Kind: payload.Kind, DocumentID: payload.DocumentID, Bytes: payload.Bytes, Presence: payload.Presence, Error: payload.Error}, nil
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
