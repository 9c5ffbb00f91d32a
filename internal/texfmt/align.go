// Package texfmt lays out algebraic equation steps as LaTeX array markup.
// Alignment is done with manual spacing heuristics: the relation symbol gets
// its own column and annotations are pushed right with computed hspace
// offsets so they line up across steps of different widths.
package texfmt

import (
	"fmt"
	"strings"
)

// Step is one line of an algebraic derivation.
type Step struct {
	Left       string `json:"left"`
	Relation   string `json:"relation,omitempty"` // defaults to "="
	Right      string `json:"right"`
	Annotation string `json:"annotation,omitempty"`
}

// relations maps source relation tokens to their LaTeX forms, longest first
// so "<=" is not split into "<" and "=".
var relations = []struct {
	token string
	latex string
}{
	{"<=", `\le`},
	{">=", `\ge`},
	{"!=", `\ne`},
	{"=", "="},
	{"<", "<"},
	{">", ">"},
}

// ParseSteps parses a plain-text derivation, one step per line, in the form
// "left = right # annotation". Blank lines and lines without a relation are
// skipped.
func ParseSteps(text string) []Step {
	var steps []Step
	for _, line := range strings.Split(text, "\n") {
		line, annotation, _ := strings.Cut(line, "#")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var step Step
		found := false
		for _, rel := range relations {
			if idx := strings.Index(line, rel.token); idx > 0 {
				step.Left = strings.TrimSpace(line[:idx])
				step.Relation = rel.latex
				step.Right = strings.TrimSpace(line[idx+len(rel.token):])
				found = true
				break
			}
		}
		if !found || step.Right == "" {
			continue
		}
		step.Annotation = strings.TrimSpace(annotation)
		steps = append(steps, step)
	}
	return steps
}

// FormatSteps renders steps as a right-center-left LaTeX array. Annotations
// are offset by an hspace proportional to how much narrower the step's right
// side is than the widest one, so they form a ragged-free column.
func FormatSteps(steps []Step) string {
	if len(steps) == 0 {
		return ""
	}

	maxRight := 0
	for _, s := range steps {
		if w := visibleWidth(s.Right); w > maxRight {
			maxRight = w
		}
	}

	var b strings.Builder
	b.WriteString("\\begin{array}{rcl}\n")
	for i, s := range steps {
		rel := s.Relation
		if rel == "" {
			rel = "="
		}
		b.WriteString(s.Left)
		b.WriteString(" & ")
		b.WriteString(rel)
		b.WriteString(" & ")
		b.WriteString(s.Right)
		if s.Annotation != "" {
			// Half an em per missing character, plus a fixed gap.
			offset := 1.0 + 0.5*float64(maxRight-visibleWidth(s.Right))
			b.WriteString(fmt.Sprintf(" \\hspace{%.1fem} \\text{%s}", offset, escapeText(s.Annotation)))
		}
		if i < len(steps)-1 {
			b.WriteString(" \\\\")
		}
		b.WriteString("\n")
	}
	b.WriteString("\\end{array}")
	return b.String()
}

// visibleWidth estimates the typeset width of a LaTeX fragment in
// characters: command names and grouping braces take no space, everything
// else counts as one.
func visibleWidth(s string) int {
	width := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '\\':
			i++
			for i < len(s) && isLetter(s[i]) {
				i++
			}
			width++ // a command typically typesets as one symbol
		case '{', '}':
			i++
		default:
			width++
			i++
		}
	}
	return width
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// escapeText escapes the characters that break out of \text{}.
func escapeText(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\textbackslash{}",
		"{", "\\{",
		"}", "\\}",
		"&", "\\&",
		"%", "\\%",
		"$", "\\$",
		"#", "\\#",
		"_", "\\_",
	)
	return replacer.Replace(s)
}
