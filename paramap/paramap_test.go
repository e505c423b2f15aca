// Unless explicitly stated otherwise all files in this repository are
// licensed under the Apache License Version 2.0.
// Copyright 2026 PromptGrimoire contributors.

package paramap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoNumberScenario(t *testing.T) {
	m, _, err := Build(`<p>First.</p><p>Second.</p><p>Third.</p>`)
	require.NoError(t, err)
	assert.Equal(t, AutoNumber, m.Mode)
	assert.Equal(t, "[1]", m.LookupParaRef(1, 3))
	assert.Equal(t, "[1]-[3]", m.LookupParaRef(4, 15))
}

func TestZeroParagraphsLookupIsEmpty(t *testing.T) {
	m, _, err := Build("")
	require.NoError(t, err)
	assert.Equal(t, "", m.LookupParaRef(0, 0))
	assert.Equal(t, "", m.LookupParaRef(5, 9))
}

func TestEmptyBlockConsumesNoNumber(t *testing.T) {
	m, _, err := Build(`<p>First.</p><p>   </p><p>Second.</p>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 5))
	assert.Equal(t, "[2]", m.LookupParaRef(9, 14))
}

func TestBlockquoteWrappingSingleParagraphDelegates(t *testing.T) {
	m, rendered, err := Build(`<blockquote><p>Quoted.</p></blockquote>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 6))
	assert.Contains(t, rendered, `data-para="1"`)
	assert.NotContains(t, rendered, `<blockquote data-para`)
}

func TestStandaloneBlockquoteGetsOwnNumber(t *testing.T) {
	m, _, err := Build(`<p>First.</p><blockquote>Quoted line one.<br>Quoted line two.</blockquote>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 5))
	assert.Equal(t, "[2]", m.LookupParaRef(9, 20))
}

func TestHeadingIsCountedAsParagraphBlock(t *testing.T) {
	m, _, err := Build(`<h2>Title</h2><p>Body.</p>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 4))
	assert.Equal(t, "[2]", m.LookupParaRef(5, 9))
}

func TestDoubleBrSplitsParagraphIntoPseudoParagraphs(t *testing.T) {
	m, rendered, err := Build(`<p>Alpha.<br><br>Beta.</p>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 5))
	assert.Equal(t, "[2]", m.LookupParaRef(6, 10))
	assert.Contains(t, rendered, `<span data-para="2">`)
}

func TestSingleBrDoesNotSplit(t *testing.T) {
	m, _, err := Build(`<p>Alpha.<br>Beta.</p>`)
	require.NoError(t, err)
	assert.Equal(t, "[1]", m.LookupParaRef(0, 10))
}

func TestSourceNumberModeReadsLiValue(t *testing.T) {
	html := `<ol><li value="5">First point.</li><li value="6">Second point.</li></ol>`
	m, rendered, err := Build(html)
	require.NoError(t, err)
	assert.Equal(t, SourceNumber, m.Mode)
	assert.Equal(t, "[5]", m.LookupParaRef(0, 9))
	assert.Equal(t, "[6]", m.LookupParaRef(13, 20))
	assert.Contains(t, rendered, `data-para="5"`)
}

func TestSourceNumberModeIgnoresUnorderedList(t *testing.T) {
	html := `<ol><li value="1">A.</li><li value="2">B.</li></ol><ul><li>Not numbered.</li></ul>`
	m, err := DetectMode(html)
	require.NoError(t, err)
	assert.Equal(t, SourceNumber, m)
}

func TestSingleLiValueStaysAutoNumber(t *testing.T) {
	mode, err := DetectMode(`<ol><li value="1">Only one.</li></ol><p>Text.</p>`)
	require.NoError(t, err)
	assert.Equal(t, AutoNumber, mode)
}
