// Package pipeline implements the visual block pipeline: it scans a text
// document for embedded visual directives, renders each one through a page
// collaborator, optionally verifies the rendered artifact, and aggregates
// per-item results under a bounded retry policy.
package pipeline

import (
	"regexp"
	"sort"
)

// Kind identifies a visual directive kind.
type Kind string

const (
	KindNumberLine Kind = "number-line"
	KindGraph      Kind = "graph"
)

// directiveKinds lists the kinds the extractor scans for. Extraction scans
// kind by kind; output order is restored by source position afterwards.
var directiveKinds = []Kind{KindNumberLine, KindGraph}

// VisualBlock is one extracted directive. Immutable once produced.
type VisualBlock struct {
	Kind           Kind   `json:"kind"`
	RawDirective   string `json:"raw_directive"`
	OptionsText    string `json:"options_text"`
	BodyText       string `json:"body_text"`
	SourcePosition int    `json:"source_position"`
}

// ValidKind reports whether k is a known directive kind.
func ValidKind(k Kind) bool {
	for _, kind := range directiveKinds {
		if k == kind {
			return true
		}
	}
	return false
}

var directivePatterns = buildDirectivePatterns()

func buildDirectivePatterns() map[Kind]*regexp.Regexp {
	patterns := make(map[Kind]*regexp.Regexp, len(directiveKinds))
	for _, kind := range directiveKinds {
		name := regexp.QuoteMeta(string(kind))
		// Non-greedy body: each opening tag pairs with the nearest
		// following closing tag of the same kind. Nested same-kind
		// directives are unsupported. The options group must start
		// with whitespace so "[graph]" matches but "[graphite]" does
		// not.
		patterns[kind] = regexp.MustCompile(`(?s)\[` + name + `(\s[^\]]*)?\](.*?)\[/` + name + `\]`)
	}
	return patterns
}

// ExtractBlocks scans a document for visual directives and returns them
// sorted ascending by source position. It is total over any input: malformed
// or unmatched directives are skipped, and an empty document yields an empty
// slice.
func ExtractBlocks(document string) []VisualBlock {
	var blocks []VisualBlock
	for _, kind := range directiveKinds {
		re := directivePatterns[kind]
		for _, m := range re.FindAllStringSubmatchIndex(document, -1) {
			optionsText := ""
			if m[2] >= 0 {
				optionsText = document[m[2]:m[3]]
			}
			blocks = append(blocks, VisualBlock{
				Kind:           kind,
				RawDirective:   document[m[0]:m[1]],
				OptionsText:    optionsText,
				BodyText:       document[m[4]:m[5]],
				SourcePosition: m[0],
			})
		}
	}
	// Stable for determinism even though distinct directives cannot share
	// a start offset.
	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].SourcePosition < blocks[j].SourcePosition
	})
	return blocks
}
