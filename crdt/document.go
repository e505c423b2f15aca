// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package crdt

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/hlc"
)

// ErrInvalidRange is returned when start_char > end_char.
var ErrInvalidRange = errors.New("crdt: start_char must be <= end_char")

// ErrUnknownHighlight is returned by SetTagOrder when an id in the proposed
// order does not resolve to a live highlight.
var ErrUnknownHighlight = errors.New("crdt: tag order references unknown highlight")

type highlightEntry struct {
	Value        Highlight
	ParaRefStamp hlc.Stamp
	Tombstoned   bool
}

type commentEntry struct {
	Value      Comment
	Stamp      hlc.Stamp
	Tombstoned bool
}

type tagOrderEntry struct {
	Order []string
	Stamp hlc.Stamp
}

type lwwString struct {
	Value string
	Stamp hlc.Stamp
}

// Document is the CRDT container backing one AnnotationReplica. All
// exported methods are safe for concurrent use; mutation methods return
// the Op that was applied so the caller (replica.Replica) can
// hand it to the Fan-out Router for broadcast.
type Document struct {
	mu sync.RWMutex

	clock *hlc.Clock

	highlights map[string]*highlightEntry
	comments   map[string]map[string]*commentEntry // highlightID -> commentID -> entry
	tagOrder   map[string]*tagOrderEntry
	draft      lwwString
	notes      lwwString
	clientMeta map[string]ClientMeta
}

// New creates an empty Document. origin identifies this replica in the
// hybrid logical clock; it should be stable for the process lifetime of
// the owning AnnotationReplica (not a per-client id).
func New(origin string) *Document {
	return &Document{
		clock:      hlc.New(origin),
		highlights: make(map[string]*highlightEntry),
		comments:   make(map[string]map[string]*commentEntry),
		tagOrder:   make(map[string]*tagOrderEntry),
		clientMeta: make(map[string]ClientMeta),
	}
}

// AddHighlight mints a new highlight id and inserts the highlight, stamped
// with the document's next local tick.
func (d *Document) AddHighlight(startChar, endChar int, tag, text, author, createdAt, paraRef, documentID string) (Op, error) {
	if startChar > endChar {
		return Op{}, ErrInvalidRange
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	h := Highlight{
		ID:         uuid.NewString(),
		StartChar:  startChar,
		EndChar:    endChar,
		Tag:        tag,
		Text:       text,
		Author:     author,
		CreatedAt:  createdAt,
		ParaRef:    paraRef,
		DocumentID: documentID,
	}
	stamp := d.clock.Tick()
	d.highlights[h.ID] = &highlightEntry{Value: h, ParaRefStamp: stamp}
	d.comments[h.ID] = make(map[string]*commentEntry)

	return Op{Kind: OpAddHighlight, Stamp: stamp, HighlightID: h.ID, Highlight: h}, nil
}

// RemoveHighlight tombstones a highlight and strips it from every tag_order
// sequence (invariant 3). No-op (found=false) if the id is absent.
func (d *Document) RemoveHighlight(id string) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, ok := d.highlights[id]
	if !ok || entry.Tombstoned {
		return Op{}, false
	}
	stamp := d.clock.Tick()
	entry.Tombstoned = true
	d.pruneTagOrderLocked(id)

	return Op{Kind: OpRemoveHighlight, Stamp: stamp, HighlightID: id}, true
}

// liveOnlyLocked filters ids down to highlights that exist and are not
// tombstoned, preserving order. Callers hold d.mu.
func (d *Document) liveOnlyLocked(ids []string) []string {
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if he, ok := d.highlights[id]; ok && !he.Tombstoned {
			filtered = append(filtered, id)
		}
	}
	return filtered
}

func (d *Document) pruneTagOrderLocked(highlightID string) {
	for tag, to := range d.tagOrder {
		filtered := to.Order[:0:0]
		changed := false
		for _, id := range to.Order {
			if id == highlightID {
				changed = true
				continue
			}
			filtered = append(filtered, id)
		}
		if changed {
			d.tagOrder[tag] = &tagOrderEntry{Order: filtered, Stamp: to.Stamp}
		}
	}
}

// AddComment appends a comment to a highlight's thread. Ignored
// (found=false) if the highlight is absent or tombstoned.
func (d *Document) AddComment(highlightID, author, text, createdAt string) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	he, ok := d.highlights[highlightID]
	if !ok || he.Tombstoned {
		return Op{}, false
	}
	stamp := d.clock.Tick()
	c := Comment{ID: uuid.NewString(), Author: author, Text: text, CreatedAt: createdAt}
	thread, ok := d.comments[highlightID]
	if !ok {
		thread = make(map[string]*commentEntry)
		d.comments[highlightID] = thread
	}
	thread[c.ID] = &commentEntry{Value: c, Stamp: stamp}

	return Op{Kind: OpAddComment, Stamp: stamp, HighlightID: highlightID, Comment: c}, true
}

// DeleteComment removes the comment currently at the given zero-based
// index within the caller's view of the thread. The index is resolved to a
// stable comment id before the mutation, so the resulting Op is
// order-independent when merged on other replicas.
func (d *Document) DeleteComment(highlightID string, index int) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	thread, ok := d.comments[highlightID]
	if !ok {
		return Op{}, false
	}
	ordered := sortedComments(thread)
	if index < 0 || index >= len(ordered) {
		return Op{}, false
	}
	target := ordered[index]
	stamp := d.clock.Tick()
	thread[target.Value.ID].Tombstoned = true

	return Op{Kind: OpDeleteComment, Stamp: stamp, HighlightID: highlightID, CommentID: target.Value.ID}, true
}

// UpdateHighlightParaRef rewrites only the ParaRef field, preserving every
// other field (invariant 7: never recomputed implicitly).
func (d *Document) UpdateHighlightParaRef(highlightID, newRef string) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	he, ok := d.highlights[highlightID]
	if !ok || he.Tombstoned {
		return Op{}, false
	}
	stamp := d.clock.Tick()
	he.Value.ParaRef = newRef
	he.ParaRefStamp = stamp

	return Op{Kind: OpUpdateParaRef, Stamp: stamp, HighlightID: highlightID, ParaRef: newRef}, true
}

// SetTagOrder replaces a tag's display order. Every id must resolve to a
// live highlight or the operation is rejected outright (invariant 2).
func (d *Document) SetTagOrder(tag string, order []string) (Op, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, id := range order {
		he, ok := d.highlights[id]
		if !ok || he.Tombstoned {
			return Op{}, fmt.Errorf("%w: %s", ErrUnknownHighlight, id)
		}
	}
	stamp := d.clock.Tick()
	cp := append([]string(nil), order...)
	d.tagOrder[tag] = &tagOrderEntry{Order: cp, Stamp: stamp}

	return Op{Kind: OpSetTagOrder, Stamp: stamp, Tag: tag, Order: cp}, nil
}

// DeleteTag tombstones every highlight carrying the given tag and clears
// its tag_order entry (invariant 4). Returns found=false if no highlight
// carried the tag and no order existed.
func (d *Document) DeleteTag(tag string) (Op, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var affected []string
	for id, he := range d.highlights {
		if !he.Tombstoned && he.Value.Tag == tag {
			affected = append(affected, id)
		}
	}
	_, hadOrder := d.tagOrder[tag]
	if len(affected) == 0 && !hadOrder {
		return Op{}, false
	}
	stamp := d.clock.Tick()
	for _, id := range affected {
		d.highlights[id].Tombstoned = true
	}
	delete(d.tagOrder, tag)
	for _, id := range affected {
		d.pruneTagOrderLocked(id)
	}

	return Op{Kind: OpDeleteTag, Stamp: stamp, Tag: tag, HighlightIDs: affected}, true
}

// SetResponseDraft replaces the collaborative draft-response text.
func (d *Document) SetResponseDraft(markdown string) Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	stamp := d.clock.Tick()
	d.draft = lwwString{Value: markdown, Stamp: stamp}
	return Op{Kind: OpSetResponseDraft, Stamp: stamp, Text: markdown}
}

// SetGeneralNotes replaces the general-notes scalar field.
func (d *Document) SetGeneralNotes(text string) Op {
	d.mu.Lock()
	defer d.mu.Unlock()
	stamp := d.clock.Tick()
	d.notes = lwwString{Value: text, Stamp: stamp}
	return Op{Kind: OpSetGeneralNotes, Stamp: stamp, Text: text}
}

// SetClientMeta upserts client_meta. Per invariant 6 this never touches the
// persisted/CRDT-merged state; it is a plain map guarded by the same lock.
func (d *Document) SetClientMeta(clientID, displayName, color string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clientMeta[clientID] = ClientMeta{DisplayName: displayName, Color: color}
}

// RemoveClientMeta drops a client_meta entry.
func (d *Document) RemoveClientMeta(clientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.clientMeta, clientID)
}

// Merge idempotently applies a remote or replayed Op. Applying the same Op
// twice is always a no-op (the idempotence law in spec.md §8).
func (d *Document) Merge(op Op) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clock.Observe(op.Stamp)

	switch op.Kind {
	case OpAddHighlight:
		if op.Highlight.StartChar > op.Highlight.EndChar {
			return false, ErrInvalidRange
		}
		if _, exists := d.highlights[op.Highlight.ID]; exists {
			return false, nil
		}
		d.highlights[op.Highlight.ID] = &highlightEntry{Value: op.Highlight, ParaRefStamp: op.Stamp}
		d.comments[op.Highlight.ID] = make(map[string]*commentEntry)
		return true, nil

	case OpRemoveHighlight:
		he, ok := d.highlights[op.HighlightID]
		if !ok || he.Tombstoned {
			return false, nil
		}
		he.Tombstoned = true
		d.pruneTagOrderLocked(op.HighlightID)
		return true, nil

	case OpAddComment:
		thread, ok := d.comments[op.HighlightID]
		if !ok {
			thread = make(map[string]*commentEntry)
			d.comments[op.HighlightID] = thread
		}
		if _, exists := thread[op.Comment.ID]; exists {
			return false, nil
		}
		thread[op.Comment.ID] = &commentEntry{Value: op.Comment, Stamp: op.Stamp}
		return true, nil

	case OpDeleteComment:
		thread, ok := d.comments[op.HighlightID]
		if !ok {
			return false, nil
		}
		ce, ok := thread[op.CommentID]
		if !ok || ce.Tombstoned {
			return false, nil
		}
		ce.Tombstoned = true
		return true, nil

	case OpUpdateParaRef:
		he, ok := d.highlights[op.HighlightID]
		if !ok {
			return false, nil
		}
		if !he.ParaRefStamp.Less(op.Stamp) {
			return false, nil
		}
		he.Value.ParaRef = op.ParaRef
		he.ParaRefStamp = op.Stamp
		return true, nil

	case OpSetTagOrder:
		cur, ok := d.tagOrder[op.Tag]
		if ok && !cur.Stamp.Less(op.Stamp) {
			return false, nil
		}
		// A concurrent RemoveHighlight may be causally unordered with this
		// op's origin replica, so a dangling reference can arrive even
		// though SetTagOrder rejects one locally (invariant 2); drop it
		// here rather than trust the sender.
		d.tagOrder[op.Tag] = &tagOrderEntry{Order: d.liveOnlyLocked(op.Order), Stamp: op.Stamp}
		return true, nil

	case OpSetResponseDraft:
		if !d.draft.Stamp.Less(op.Stamp) {
			return false, nil
		}
		d.draft = lwwString{Value: op.Text, Stamp: op.Stamp}
		return true, nil

	case OpSetGeneralNotes:
		if !d.notes.Stamp.Less(op.Stamp) {
			return false, nil
		}
		d.notes = lwwString{Value: op.Text, Stamp: op.Stamp}
		return true, nil

	case OpDeleteTag:
		changed := false
		for _, id := range op.HighlightIDs {
			if he, ok := d.highlights[id]; ok && !he.Tombstoned {
				he.Tombstoned = true
				changed = true
			}
		}
		if _, ok := d.tagOrder[op.Tag]; ok {
			delete(d.tagOrder, op.Tag)
			changed = true
		}
		for _, id := range op.HighlightIDs {
			d.pruneTagOrderLocked(id)
		}
		return changed, nil

	default:
		return false, fmt.Errorf("crdt: unknown op kind %d", op.Kind)
	}
}

func sortedComments(thread map[string]*commentEntry) []*commentEntry {
	out := make([]*commentEntry, 0, len(thread))
	for _, c := range thread {
		if !c.Tombstoned {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stamp != out[j].Stamp {
			return out[i].Stamp.Less(out[j].Stamp)
		}
		return out[i].Value.ID < out[j].Value.ID
	})
	return out
}

// Highlights returns a value-copy snapshot of every live highlight.
func (d *Document) Highlights() []Highlight {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Highlight, 0, len(d.highlights))
	for _, he := range d.highlights {
		if !he.Tombstoned {
			out = append(out, he.Value)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Highlight looks up a single live highlight by id.
func (d *Document) Highlight(id string) (Highlight, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	he, ok := d.highlights[id]
	if !ok || he.Tombstoned {
		return Highlight{}, false
	}
	return he.Value, true
}

// Comments returns the ordered, live comment thread for a highlight.
func (d *Document) Comments(highlightID string) []Comment {
	d.mu.RLock()
	defer d.mu.RUnlock()
	thread, ok := d.comments[highlightID]
	if !ok {
		return nil
	}
	ordered := sortedComments(thread)
	out := make([]Comment, 0, len(ordered))
	for _, c := range ordered {
		out = append(out, c.Value)
	}
	return out
}

// TagOrder returns the ordered highlight ids for a tag, or nil.
func (d *Document) TagOrder(tag string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	to, ok := d.tagOrder[tag]
	if !ok {
		return nil
	}
	return append([]string(nil), to.Order...)
}

// ResponseDraft returns the current collaborative draft text.
func (d *Document) ResponseDraft() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.draft.Value
}

// GeneralNotes returns the current general-notes text.
func (d *Document) GeneralNotes() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.notes.Value
}

// ClientMeta returns a copy of the live client_meta map.
func (d *Document) ClientMeta() map[string]ClientMeta {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]ClientMeta, len(d.clientMeta))
	for k, v := range d.clientMeta {
		out[k] = v
	}
	return out
}

// HighlightCount returns the number of live (non-tombstoned) highlights.
func (d *Document) HighlightCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, he := range d.highlights {
		if !he.Tombstoned {
			n++
		}
	}
	return n
}

// Clone copies highlights (with comments), tag_order, notes, and the
// response draft into a fresh Document bound to newOrigin. client_meta is
// never copied (invariant 6). If tagRemap is non-nil, UUID-shaped tag ids
// are rewritten through it; legacy short-string tags pass through
// unchanged (spec.md §4.3, "Cloning"). Highlight ids are renewed.
func (d *Document) Clone(newOrigin string, tagRemap map[string]string) *Document {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := New(newOrigin)
	idMap := make(map[string]string, len(d.highlights))

	for oldID, he := range d.highlights {
		if he.Tombstoned {
			continue
		}
		newTag := he.Value.Tag
		if tagRemap != nil {
			if _, err := uuid.Parse(newTag); err == nil {
				if remapped, ok := tagRemap[newTag]; ok {
					newTag = remapped
				}
			}
		}
		stamp := out.clock.Tick()
		newID := uuid.NewString()
		idMap[oldID] = newID
		v := he.Value
		v.ID = newID
		v.Tag = newTag
		out.highlights[newID] = &highlightEntry{Value: v, ParaRefStamp: stamp}

		thread := make(map[string]*commentEntry, len(d.comments[oldID]))
		for _, ce := range sortedComments(d.comments[oldID]) {
			cStamp := out.clock.Tick()
			nc := ce.Value
			nc.ID = uuid.NewString()
			thread[nc.ID] = &commentEntry{Value: nc, Stamp: cStamp}
		}
		out.comments[newID] = thread
	}

	for tag, to := range d.tagOrder {
		remapped := make([]string, 0, len(to.Order))
		for _, oldID := range to.Order {
			if newID, ok := idMap[oldID]; ok {
				remapped = append(remapped, newID)
			}
		}
		if len(remapped) == 0 {
			continue
		}
		newTag := tag
		if tagRemap != nil {
			if _, err := uuid.Parse(newTag); err == nil {
				if r, ok := tagRemap[newTag]; ok {
					newTag = r
				}
			}
		}
		out.tagOrder[newTag] = &tagOrderEntry{Order: remapped, Stamp: out.clock.Tick()}
	}

	out.draft = lwwString{Value: d.draft.Value, Stamp: out.clock.Tick()}
	out.notes = lwwString{Value: d.notes.Value, Stamp: out.clock.Tick()}

	return out
}
