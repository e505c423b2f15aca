// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package router

// MessageKind tags the variant of a Message (spec.md §6, "Wire
// protocol").
type MessageKind uint8

const (
	// KindSnapshot carries the full CRDT state blob, sent once on join.
	KindSnapshot MessageKind = iota + 1
	// KindUpdate carries an opaque CRDT update blob, bidirectional.
	KindUpdate
	// KindPresence carries a PresencePayload, bidirectional.
	KindPresence
	// KindError carries an ErrorPayload, server to client.
	KindError
)

// PresenceKind tags the variant of a PresencePayload (spec.md §9).
type PresenceKind string

const (
	PresenceCursor    PresenceKind = "cursor"
	PresenceSelection PresenceKind = "selection"
	PresenceLeave     PresenceKind = "leave"
)

// PresencePayload is the presence-message shape from spec.md §6.
type PresencePayload struct {
	Kind            PresenceKind
	ClientID        string
	DisplayName     string
	Color           string
	CursorChar      *int
	SelectionStart  *int
	SelectionEnd    *int
}

// ErrorPayload is the error-message shape from spec.md §6.
type ErrorPayload struct {
	Code    string
	Message string
}

// Message is one envelope of the ACE <-> client wire protocol.
type Message struct {
	Kind       MessageKind
	DocumentID string

	// Bytes carries the opaque CRDT blob for KindSnapshot/KindUpdate.
	Bytes []byte

	Presence *PresencePayload
	Error    *ErrorPayload
}
