// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package spans

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MQFacultyOfArts/promptgrimoire-ace/crdt"
)

func TestZeroHighlightsProducesNoSpans(t *testing.T) {
	out, err := Compile("<p>Hello.</p>", nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestCrossBlockHighlightSplitsAtBlockBoundary(t *testing.T) {
	// <h2>Title</h2><p>Body.</p> — "Title" is 5 chars, "Body." is 5 chars;
	// a highlight at [0, 10] covers both blocks entirely.
	highlights := []crdt.Highlight{
		{ID: "h1", StartChar: 0, EndChar: 10, Tag: "tag-a", Author: "Alice"},
	}
	out, err := Compile("<h2>Title</h2><p>Body.</p>", highlights, nil, nil, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(out), 2)
	for _, sp := range out {
		assert.False(t, sp.StartChar < 5 && sp.EndChar > 5, "span %+v crosses the h2/p boundary", sp)
	}
	// The highlight must appear in every emitted span.
	for _, sp := range out {
		assert.Contains(t, sp.HighlightIDs, "h1")
	}
}

func TestLastSpanCarriesAnnotation(t *testing.T) {
	highlights := []crdt.Highlight{
		{ID: "h1", StartChar: 0, EndChar: 10, Tag: "tag-a", Author: "Alice", CreatedAt: "t1", ParaRef: "[1]"},
	}
	commentsOf := func(id string) []crdt.Comment {
		return []crdt.Comment{{ID: "c1", Author: "Bob", Text: "nice catch"}}
	}
	out, err := Compile("<h2>Title</h2><p>Body.</p>", highlights, commentsOf, nil, map[string]string{"tag-a": "Jurisdiction"})
	require.NoError(t, err)

	annotated := 0
	for _, sp := range out {
		if sp.Annotation != nil {
			annotated++
			assert.Equal(t, "Alice", sp.Annotation.Author)
			assert.Equal(t, "Jurisdiction", sp.Annotation.TagDisplayName)
			assert.Equal(t, "[1]", sp.Annotation.ParaRef)
			assert.Equal(t, []string{"nice catch"}, sp.Annotation.Comments)
		}
	}
	assert.Equal(t, 1, annotated, "exactly one span (the last) should carry the annotation")
}

func TestOverlappingHighlightsGetDistinctTiers(t *testing.T) {
	highlights := []crdt.Highlight{
		{ID: "h1", StartChar: 0, EndChar: 10, Tag: "tag-a"},
		{ID: "h2", StartChar: 5, EndChar: 15, Tag: "tag-b"},
	}
	out, err := Compile("<p>0123456789012345</p>", highlights, nil,
		map[string]string{"tag-a": "red", "tag-b": "blue"}, nil)
	require.NoError(t, err)

	var overlapSpan *Span
	for i := range out {
		if out[i].StartChar == 5 && out[i].EndChar == 10 {
			overlapSpan = &out[i]
		}
	}
	require.NotNil(t, overlapSpan, "expected a span covering the [5,10) overlap region")
	assert.Len(t, overlapSpan.Tiers, 2)
	assert.NotEqual(t, overlapSpan.Tiers[0], overlapSpan.Tiers[1])
	assert.Equal(t, "double", overlapSpan.OverlapClass)
}

func TestOverlapClassThresholds(t *testing.T) {
	assert.Equal(t, "single", OverlapClass(1))
	assert.Equal(t, "double", OverlapClass(2))
	assert.Equal(t, "many", OverlapClass(3))
	assert.Equal(t, "many", OverlapClass(7))
}

func TestAdjacentNonOverlappingHighlightsShareTierZero(t *testing.T) {
	highlights := []crdt.Highlight{
		{ID: "h1", StartChar: 0, EndChar: 5, Tag: "tag-a"},
		{ID: "h2", StartChar: 5, EndChar: 10, Tag: "tag-a"},
	}
	out, err := Compile("<p>0123456789</p>", highlights, nil, nil, nil)
	require.NoError(t, err)
	for _, sp := range out {
		assert.Len(t, sp.Tiers, 1)
		assert.Equal(t, 0, sp.Tiers[0])
	}
}

func TestSearchTextFlattensHighlightsCommentsAndTagNames(t *testing.T) {
	highlights := []crdt.Highlight{
		{ID: "h1", StartChar: 0, EndChar: 5, Tag: "tag-a", Text: "hello"},
	}
	commentsOf := func(id string) []crdt.Comment {
		return []crdt.Comment{{ID: "c1", Text: "great point"}}
	}
	out := SearchText(highlights, commentsOf, map[string]string{"tag-a": "Evidence"})
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, "Evidence")
	assert.Contains(t, out, "great point")
}

func TestSearchTextHandlesNilCommentsFunc(t *testing.T) {
	highlights := []crdt.Highlight{{ID: "h1", StartChar: 0, EndChar: 5, Tag: "tag-a", Text: "hello"}}
	out := SearchText(highlights, nil, nil)
	assert.Contains(t, out, "hello")
}
