// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package crdt

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/hlc"
)

// Snapshot encodes the full current state (excluding client_meta, per
// invariant 6) as a msgpack blob suitable for persistence and cold-load
// (spec.md §3, "State blob format").
func (d *Document) Snapshot() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var b []byte
	b = msgp.AppendArrayHeader(b, 5)

	b = msgp.AppendArrayHeader(b, uint32(len(d.highlights)))
	for id, he := range d.highlights {
		b = msgp.AppendArrayHeader(b, 4)
		b = msgp.AppendString(b, id)
		b = appendHighlight(b, he.Value)
		b = appendStamp(b, he.ParaRefStamp)
		b = msgp.AppendBool(b, he.Tombstoned)
	}

	b = msgp.AppendArrayHeader(b, uint32(len(d.comments)))
	for highlightID, thread := range d.comments {
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendString(b, highlightID)
		b = msgp.AppendArrayHeader(b, uint32(len(thread)))
		for _, ce := range thread {
			b = msgp.AppendArrayHeader(b, 3)
			b = appendComment(b, ce.Value)
			b = appendStamp(b, ce.Stamp)
			b = msgp.AppendBool(b, ce.Tombstoned)
		}
	}

	b = msgp.AppendArrayHeader(b, uint32(len(d.tagOrder)))
	for tag, to := range d.tagOrder {
		b = msgp.AppendArrayHeader(b, 3)
		b = msgp.AppendString(b, tag)
		b = appendStrings(b, to.Order)
		b = appendStamp(b, to.Stamp)
	}

	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendString(b, d.draft.Value)
	b = appendStamp(b, d.draft.Stamp)

	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendString(b, d.notes.Value)
	b = appendStamp(b, d.notes.Stamp)

	return b
}

// LoadSnapshot replaces the document's state wholesale with a previously
// captured Snapshot. It is used for cold-loading a replica from the
// StateLoader; client_meta is left untouched (it is rebuilt from live
// connections, never persisted).
func (d *Document) LoadSnapshot(bts []byte) error {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	if sz != 5 {
		return msgp.ArrayError{Wanted: 5, Got: sz}
	}

	highlights := make(map[string]*highlightEntry)
	hsz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	maxCounter := uint64(0)
	for i := uint32(0); i < hsz; i++ {
		var entrySz uint32
		entrySz, bts, err = msgp.ReadArrayHeaderBytes(bts)
		if err != nil {
			return err
		}
		if entrySz != 4 {
			return msgp.ArrayError{Wanted: 4, Got: entrySz}
		}
		var id string
		if id, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return err
		}
		var h Highlight
		if h, bts, err = readHighlight(bts); err != nil {
			return err
		}
		var stamp hlc.Stamp
		if stamp, bts, err = readStamp(bts); err != nil {
			return err
		}
		var tomb bool
		if tomb, bts, err = msgp.ReadBoolBytes(bts); err != nil {
			return err
		}
		highlights[id] = &highlightEntry{Value: h, ParaRefStamp: stamp, Tombstoned: tomb}
		if stamp.Counter > maxCounter {
			maxCounter = stamp.Counter
		}
	}

	comments := make(map[string]map[string]*commentEntry)
	csz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	for i := uint32(0); i < csz; i++ {
		var pairSz uint32
		pairSz, bts, err = msgp.ReadArrayHeaderBytes(bts)
		if err != nil {
			return err
		}
		if pairSz != 2 {
			return msgp.ArrayError{Wanted: 2, Got: pairSz}
		}
		var highlightID string
		if highlightID, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return err
		}
		var threadSz uint32
		threadSz, bts, err = msgp.ReadArrayHeaderBytes(bts)
		if err != nil {
			return err
		}
		thread := make(map[string]*commentEntry, threadSz)
		for j := uint32(0); j < threadSz; j++ {
			var itemSz uint32
			itemSz, bts, err = msgp.ReadArrayHeaderBytes(bts)
			if err != nil {
				return err
			}
			if itemSz != 3 {
				return msgp.ArrayError{Wanted: 3, Got: itemSz}
			}
			var c Comment
			if c, bts, err = readComment(bts); err != nil {
				return err
			}
			var stamp hlc.Stamp
			if stamp, bts, err = readStamp(bts); err != nil {
				return err
			}
			var tomb bool
			if tomb, bts, err = msgp.ReadBoolBytes(bts); err != nil {
				return err
			}
			thread[c.ID] = &commentEntry{Value: c, Stamp: stamp, Tombstoned: tomb}
			if stamp.Counter > maxCounter {
				maxCounter = stamp.Counter
			}
		}
		comments[highlightID] = thread
	}

	tagOrder := make(map[string]*tagOrderEntry)
	tsz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	for i := uint32(0); i < tsz; i++ {
		var entrySz uint32
		entrySz, bts, err = msgp.ReadArrayHeaderBytes(bts)
		if err != nil {
			return err
		}
		if entrySz != 3 {
			return msgp.ArrayError{Wanted: 3, Got: entrySz}
		}
		var tag string
		if tag, bts, err = msgp.ReadStringBytes(bts); err != nil {
			return err
		}
		var order []string
		if order, bts, err = readStrings(bts); err != nil {
			return err
		}
		var stamp hlc.Stamp
		if stamp, bts, err = readStamp(bts); err != nil {
			return err
		}
		tagOrder[tag] = &tagOrderEntry{Order: order, Stamp: stamp}
		if stamp.Counter > maxCounter {
			maxCounter = stamp.Counter
		}
	}

	draftSz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	if draftSz != 2 {
		return msgp.ArrayError{Wanted: 2, Got: draftSz}
	}
	var draft lwwString
	if draft.Value, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return err
	}
	if draft.Stamp, bts, err = readStamp(bts); err != nil {
		return err
	}
	if draft.Stamp.Counter > maxCounter {
		maxCounter = draft.Stamp.Counter
	}

	notesSz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return err
	}
	if notesSz != 2 {
		return msgp.ArrayError{Wanted: 2, Got: notesSz}
	}
	var notes lwwString
	if notes.Value, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return err
	}
	if notes.Stamp, bts, err = readStamp(bts); err != nil {
		return err
	}
	if notes.Stamp.Counter > maxCounter {
		maxCounter = notes.Stamp.Counter
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.highlights = highlights
	d.comments = comments
	d.tagOrder = tagOrder
	d.draft = draft
	d.notes = notes
	d.clock.Observe(hlc.Stamp{Counter: maxCounter})
	return nil
}
