package relay

import (
	"strings"

	"github.com/nextlevelbuilder/tgmirror/internal/config"
)

// Rewriter applies an ordered list of literal, case-insensitive text
// substitutions (bot-mention aliases, deep-link aliases) to outbound text.
// Rewrite is total and deterministic; empty input passes through unchanged.
// Span offsets are remapped when a substitution changes string length.
type Rewriter struct {
	rules []rewriteRule
}

type rewriteRule struct {
	from    string // lowercased needle
	to      string
	origLen int // byte length of the original needle
}

// edit is one applied substitution: oldLen bytes at pos became newLen bytes.
// Positions are byte offsets in the text the rule ran against.
type edit struct {
	pos    int
	oldLen int
	newLen int
}

// NewRewriter builds a Rewriter from config rules. Rules with an empty From
// are ignored.
func NewRewriter(rules []config.RewriteRule) *Rewriter {
	rw := &Rewriter{}
	for _, r := range rules {
		if r.From == "" {
			continue
		}
		rw.rules = append(rw.rules, rewriteRule{
			from:    strings.ToLower(r.From),
			to:      r.To,
			origLen: len(r.From),
		})
	}
	return rw
}

// Rewrite returns the text with all substitutions applied, in rule order.
func (rw *Rewriter) Rewrite(text string) string {
	for _, rule := range rw.rules {
		text, _ = applyRule(text, rule)
	}
	return text
}

// RewriteSpans applies all substitutions and shifts every span boundary at
// or after each edit point, so link/mention ranges survive length-changing
// replacements. Spans are byte-offset based; the client adapter converts to
// and from the wire encoding.
func (rw *Rewriter) RewriteSpans(text string, spans []FormattingSpan) (string, []FormattingSpan) {
	adjusted := make([]FormattingSpan, len(spans))
	copy(adjusted, spans)

	for _, rule := range rw.rules {
		var edits []edit
		text, edits = applyRule(text, rule)
		if len(edits) == 0 {
			continue
		}
		for i := range adjusted {
			start := shiftBoundary(adjusted[i].Offset, edits, false)
			end := shiftBoundary(adjusted[i].Offset+adjusted[i].Length, edits, true)
			adjusted[i].Offset = start
			adjusted[i].Length = end - start
		}
	}

	// Drop spans collapsed to nothing by a replacement.
	out := adjusted[:0]
	for _, s := range adjusted {
		if s.Length > 0 {
			out = append(out, s)
		}
	}
	return text, out
}

// AppendLines appends a blank line followed by the given lines. No-op when
// lines is empty.
func AppendLines(text string, lines []string) string {
	if len(lines) == 0 {
		return text
	}
	block := strings.Join(lines, "\n")
	if text == "" {
		return block
	}
	return text + "\n\n" + block
}

// applyRule replaces every case-insensitive occurrence of rule.from and
// returns the edit list in ascending position order (positions in the input
// text's coordinates are folded into the output via the running offset).
func applyRule(text string, rule rewriteRule) (string, []edit) {
	if text == "" {
		return text, nil
	}

	haystack := strings.ToLower(text)
	if len(haystack) != len(text) {
		// Case folding changed byte lengths (rare non-ASCII text); indices
		// would misalign, so match case-sensitively against the raw text.
		haystack = text
	}

	var (
		b     strings.Builder
		edits []edit
		i     int
	)
	for {
		j := strings.Index(haystack[i:], rule.from)
		if j < 0 {
			b.WriteString(text[i:])
			break
		}
		at := i + j
		b.WriteString(text[i:at])
		edits = append(edits, edit{pos: b.Len(), oldLen: rule.origLen, newLen: len(rule.to)})
		b.WriteString(rule.to)
		i = at + len(rule.from)
	}
	if len(edits) == 0 {
		return text, nil
	}
	return b.String(), edits
}

// shiftBoundary maps a span boundary from pre-rule to post-rule coordinates.
// Edits are ascending and already expressed in output coordinates at their
// own position, so only the oldLen/newLen delta of earlier edits applies.
// A boundary inside a replaced region snaps to the region's edge: starts to
// the left edge, ends to the right edge, keeping the span over the
// replacement text.
func shiftBoundary(b int, edits []edit, isEnd bool) int {
	shift := 0
	for _, e := range edits {
		srcPos := e.pos - shift // edit position in pre-rule coordinates
		if b >= srcPos+e.oldLen {
			shift += e.newLen - e.oldLen
			continue
		}
		if b > srcPos {
			if isEnd {
				return e.pos + e.newLen
			}
			return e.pos
		}
		break
	}
	return b + shift
}
