// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package crdt

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/hlc"
)

// OpKind tags the variant of an Op, per the "dynamic dispatch -> tagged
// variant" design note in spec.md §9.
type OpKind uint8

const (
	// OpAddHighlight carries a full Highlight record to insert.
	OpAddHighlight OpKind = iota + 1
	// OpRemoveHighlight tombstones a highlight by id.
	OpRemoveHighlight
	// OpAddComment appends a Comment to a highlight's thread.
	OpAddComment
	// OpDeleteComment tombstones a comment by id.
	OpDeleteComment
	// OpUpdateParaRef rewrites a highlight's ParaRef field only.
	OpUpdateParaRef
	// OpSetTagOrder replaces a tag's highlight-id ordering.
	OpSetTagOrder
	// OpSetResponseDraft replaces the scalar response-draft field.
	OpSetResponseDraft
	// OpSetGeneralNotes replaces the scalar general-notes field.
	OpSetGeneralNotes
	// OpDeleteTag tombstones every highlight carrying a deleted tag and
	// clears that tag's order, per invariant 4.
	OpDeleteTag
)

// Op is one entry in the operation-based update log exchanged between
// replicas as the opaque "CRDT update blob" of spec.md §6.
type Op struct {
	Kind         OpKind
	Stamp        hlc.Stamp
	HighlightID  string
	Highlight    Highlight
	Comment      Comment
	CommentID    string
	ParaRef      string
	Tag          string
	Order        []string
	HighlightIDs []string
	Text         string
}

// MarshalOps appends the msgpack encoding of a batch of ops to b.
func MarshalOps(b []byte, ops []Op) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(ops)))
	for _, op := range ops {
		b = op.appendTo(b)
	}
	return b
}

// UnmarshalOps decodes a batch of ops previously written by MarshalOps.
func UnmarshalOps(bts []byte) ([]Op, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, err
	}
	ops := make([]Op, 0, sz)
	for i := uint32(0); i < sz; i++ {
		var op Op
		op, bts, err = readOp(bts)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (o Op) appendTo(b []byte) []byte {
	b = msgp.AppendArrayHeader(b, 11)
	b = msgp.AppendUint8(b, uint8(o.Kind))
	b = appendStamp(b, o.Stamp)
	b = msgp.AppendString(b, o.HighlightID)
	b = appendHighlight(b, o.Highlight)
	b = appendComment(b, o.Comment)
	b = msgp.AppendString(b, o.CommentID)
	b = msgp.AppendString(b, o.ParaRef)
	b = msgp.AppendString(b, o.Tag)
	b = appendStrings(b, o.Order)
	b = appendStrings(b, o.HighlightIDs)
	b = msgp.AppendString(b, o.Text)
	return b
}

func readOp(bts []byte) (Op, []byte, error) {
	var o Op
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return o, bts, err
	}
	if sz != 11 {
		return o, bts, msgp.ArrayError{Wanted: 11, Got: sz}
	}
	var kind uint8
	if kind, bts, err = msgp.ReadUint8Bytes(bts); err != nil {
		return o, bts, err
	}
	o.Kind = OpKind(kind)
	if o.Stamp, bts, err = readStamp(bts); err != nil {
		return o, bts, err
	}
	if o.HighlightID, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return o, bts, err
	}
	if o.Highlight, bts, err = readHighlight(bts); err != nil {
		return o, bts, err
	}
	if o.Comment, bts, err = readComment(bts); err != nil {
		return o, bts, err
	}
	if o.CommentID, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return o, bts, err
	}
	if o.ParaRef, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return o, bts, err
	}
	if o.Tag, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return o, bts, err
	}
	if o.Order, bts, err = readStrings(bts); err != nil {
		return o, bts, err
	}
	if o.HighlightIDs, bts, err = readStrings(bts); err != nil {
		return o, bts, err
	}
	o.Text, bts, err = msgp.ReadStringBytes(bts)
	return o, bts, err
}
