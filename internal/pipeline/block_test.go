package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBlocksEmptyAndPlainText(t *testing.T) {
	assert.Empty(t, ExtractBlocks(""))
	assert.Empty(t, ExtractBlocks("no directives here, just prose with [brackets] and = signs"))
}

func TestExtractBlocksSingle(t *testing.T) {
	doc := "[number-line min=-5 max=5] 0,1,2 [/number-line]"
	blocks := ExtractBlocks(doc)
	require.Len(t, blocks, 1)

	b := blocks[0]
	assert.Equal(t, KindNumberLine, b.Kind)
	assert.Equal(t, doc, b.RawDirective)
	assert.Equal(t, " min=-5 max=5", b.OptionsText)
	assert.Equal(t, " 0,1,2 ", b.BodyText)
	assert.Equal(t, 0, b.SourcePosition)
}

func TestExtractBlocksPositionSortedAcrossKinds(t *testing.T) {
	// Graph first in the document even though number-line is scanned
	// first; output must be globally position-sorted.
	doc := "intro [graph w=2]plot x^2[/graph] middle [number-line]0,1[/number-line] end [graph]plot x[/graph]"
	blocks := ExtractBlocks(doc)
	require.Len(t, blocks, 3)

	assert.Equal(t, KindGraph, blocks[0].Kind)
	assert.Equal(t, KindNumberLine, blocks[1].Kind)
	assert.Equal(t, KindGraph, blocks[2].Kind)
	for i := 1; i < len(blocks); i++ {
		assert.Greater(t, blocks[i].SourcePosition, blocks[i-1].SourcePosition)
	}
}

func TestExtractBlocksNoOptions(t *testing.T) {
	blocks := ExtractBlocks("[graph]plot x[/graph]")
	require.Len(t, blocks, 1)
	assert.Equal(t, "", blocks[0].OptionsText)
	assert.Equal(t, "plot x", blocks[0].BodyText)
}

func TestExtractBlocksUnmatchedSkipped(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"no closing tag", "[number-line min=1] 0,1,2", 0},
		{"closing tag only", "0,1,2 [/number-line]", 0},
		{"wrong closing kind", "[graph]plot x[/number-line]", 0},
		{"one good one broken", "[graph]a[/graph] [graph]b", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Len(t, ExtractBlocks(tc.doc), tc.want)
		})
	}
}

func TestExtractBlocksNearestClosingTag(t *testing.T) {
	// Two consecutive directives of the same kind: each opening tag pairs
	// with the nearest following closing tag, not the last one.
	doc := "[graph]first[/graph][graph]second[/graph]"
	blocks := ExtractBlocks(doc)
	require.Len(t, blocks, 2)
	assert.Equal(t, "first", blocks[0].BodyText)
	assert.Equal(t, "second", blocks[1].BodyText)
}

func TestExtractBlocksMultilineBody(t *testing.T) {
	doc := "[number-line min=0]\n0,1\n2,3\n[/number-line]"
	blocks := ExtractBlocks(doc)
	require.Len(t, blocks, 1)
	assert.Equal(t, "\n0,1\n2,3\n", blocks[0].BodyText)
}

func TestExtractBlocksKindNameIsNotAPrefixMatch(t *testing.T) {
	// "graphite" must not be parsed as a "graph" directive.
	assert.Empty(t, ExtractBlocks("[graphite x]body[/graphite]"))
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind(KindNumberLine))
	assert.True(t, ValidKind(KindGraph))
	assert.False(t, ValidKind(Kind("pie-chart")))
}
