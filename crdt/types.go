// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

// Package crdt implements the replicated data primitives backing an
// AnnotationReplica: two-phase element sets for highlights and comments
// (unique server-minted ids make add-wins semantics unnecessary), and
// last-writer-wins registers for the scalar and list-valued fields,
// ordered by the hybrid logical clock in internal/hlc.
//
// No CRDT library appears anywhere in the example pack this engine was
// grounded on (see DESIGN.md); the wire encoding below is hand-written
// against github.com/tinylib/msgp's runtime package, the same msgpack
// codec the teacher uses for its own span-payload encoding.
package crdt

// Highlight is the value-copy record for one highlight. Per the design
// notes in spec.md §9, callers only ever see plain records, never a live
// reference into the CRDT's internal state.
type Highlight struct {
	ID         string
	StartChar  int
	EndChar    int
	Tag        string
	Text       string
	Author     string
	CreatedAt  string
	ParaRef    string
	DocumentID string
}

// Comment is one entry in a highlight's comment thread.
type Comment struct {
	ID        string
	Author    string
	Text      string
	CreatedAt string
}

// ClientMeta is the presentation metadata registered for a connected
// client. It never participates in persistence or cloning (invariant 6).
type ClientMeta struct {
	DisplayName string
	Color       string
}
