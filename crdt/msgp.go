// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package crdt

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/internal/hlc"
)

// The helpers in this file hand-encode the engine's value types against
// msgp's append/read-bytes runtime, the same low-level API the teacher's
// own generated *_msgp.go payload files use. There is no msgp.Marshaler
// implementation to generate from (the msgp tool was not run, per the
// module-wide "never run the Go toolchain" constraint for this exercise),
// so these are written by hand in the same tuple-encoding shape the
// generator would have produced.

func appendStamp(b []byte, s hlc.Stamp) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendUint64(b, s.Counter)
	b = msgp.AppendString(b, s.Origin)
	return b
}

func readStamp(bts []byte) (hlc.Stamp, []byte, error) {
	var s hlc.Stamp
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return s, bts, err
	}
	if sz != 2 {
		return s, bts, msgp.ArrayError{Wanted: 2, Got: sz}
	}
	s.Counter, bts, err = msgp.ReadUint64Bytes(bts)
	if err != nil {
		return s, bts, err
	}
	s.Origin, bts, err = msgp.ReadStringBytes(bts)
	return s, bts, err
}

func appendHighlight(b []byte, h Highlight) []byte {
	b = msgp.AppendArrayHeader(b, 9)
	b = msgp.AppendString(b, h.ID)
	b = msgp.AppendInt(b, h.StartChar)
	b = msgp.AppendInt(b, h.EndChar)
	b = msgp.AppendString(b, h.Tag)
	b = msgp.AppendString(b, h.Text)
	b = msgp.AppendString(b, h.Author)
	b = msgp.AppendString(b, h.CreatedAt)
	b = msgp.AppendString(b, h.ParaRef)
	b = msgp.AppendString(b, h.DocumentID)
	return b
}

func readHighlight(bts []byte) (Highlight, []byte, error) {
	var h Highlight
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return h, bts, err
	}
	if sz != 9 {
		return h, bts, msgp.ArrayError{Wanted: 9, Got: sz}
	}
	if h.ID, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	if h.StartChar, bts, err = msgp.ReadIntBytes(bts); err != nil {
		return h, bts, err
	}
	if h.EndChar, bts, err = msgp.ReadIntBytes(bts); err != nil {
		return h, bts, err
	}
	if h.Tag, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	if h.Text, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	if h.Author, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	if h.CreatedAt, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	if h.ParaRef, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return h, bts, err
	}
	h.DocumentID, bts, err = msgp.ReadStringBytes(bts)
	return h, bts, err
}

func appendComment(b []byte, c Comment) []byte {
	b = msgp.AppendArrayHeader(b, 4)
	b = msgp.AppendString(b, c.ID)
	b = msgp.AppendString(b, c.Author)
	b = msgp.AppendString(b, c.Text)
	b = msgp.AppendString(b, c.CreatedAt)
	return b
}

func readComment(bts []byte) (Comment, []byte, error) {
	var c Comment
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return c, bts, err
	}
	if sz != 4 {
		return c, bts, msgp.ArrayError{Wanted: 4, Got: sz}
	}
	if c.ID, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return c, bts, err
	}
	if c.Author, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return c, bts, err
	}
	if c.Text, bts, err = msgp.ReadStringBytes(bts); err != nil {
		return c, bts, err
	}
	c.CreatedAt, bts, err = msgp.ReadStringBytes(bts)
	return c, bts, err
}

func appendStrings(b []byte, ss []string) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(ss)))
	for _, s := range ss {
		b = msgp.AppendString(b, s)
	}
	return b
}

func readStrings(bts []byte) ([]string, []byte, error) {
	sz, bts, err := msgp.ReadArrayHeaderBytes(bts)
	if err != nil {
		return nil, bts, err
	}
	out := make([]string, 0, sz)
	for i := uint32(0); i < sz; i++ {
		var s string
		s, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return nil, bts, err
		}
		out = append(out, s)
	}
	return out, bts, nil
}
