// internal/browser/dom/serializer.go
package dom

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// DefaultIncludeAttributes is the allow-list of attributes shown to the LLM,
// in emission order.
var DefaultIncludeAttributes = []string{
	"title", "type", "checked", "name", "role", "value", "placeholder",
	"data-date-format", "alt", "aria-label", "aria-expanded", "data-state",
	"aria-checked", "id", "for", "target", "aria-haspopup", "aria-controls",
	"aria-owns",
}

const attributeValueMaxLen = 20

// Serializer renders a snapshot as indented pseudo-HTML. One line per
// indexed element, bare text lines for text outside any indexed subtree.
type Serializer struct {
	includeAttributes []string
}

// NewSerializer builds a serializer. Extra attribute names are appended to
// the default allow-list; duplicates are ignored.
func NewSerializer(extraAttributes []string) *Serializer {
	include := make([]string, 0, len(DefaultIncludeAttributes)+len(extraAttributes))
	seen := map[string]bool{}
	for _, name := range DefaultIncludeAttributes {
		include = append(include, name)
		seen[name] = true
	}
	for _, name := range extraAttributes {
		if !seen[name] {
			include = append(include, name)
			seen[name] = true
		}
	}
	return &Serializer{includeAttributes: include}
}

// Serialize renders the snapshot and returns the pseudo-HTML plus the
// index -> rendered-line map used for friendly action messages.
func (s *Serializer) Serialize(snap *Snapshot) (string, map[int]string) {
	var lines []string
	textMap := map[int]string{}
	if snap != nil && snap.RootID != "" {
		s.render(snap, snap.RootID, 0, false, &lines, textMap)
	}
	return strings.Join(lines, "\n"), textMap
}

// render walks one node. depth counts indexed ancestors; insideIndexed
// suppresses bare text lines under an indexed element, whose text is folded
// into that element's own line instead.
func (s *Serializer) render(snap *Snapshot, id string, depth int, insideIndexed bool, lines *[]string, textMap map[int]string) {
	node, ok := snap.Nodes[id]
	if !ok {
		return
	}

	if node.Kind == KindText {
		if !insideIndexed && node.Visible && node.Text != "" {
			*lines = append(*lines, strings.Repeat("\t", depth)+node.Text)
		}
		return
	}

	if node.Interactive && node.Index != nil {
		line := s.renderElementLine(snap, node)
		indented := strings.Repeat("\t", depth) + line
		*lines = append(*lines, indented)
		textMap[*node.Index] = line
		for _, childID := range node.ChildIDs {
			s.render(snap, childID, depth+1, true, lines, textMap)
		}
		return
	}

	// Text under an element that is hidden or covered is never shown bare.
	childInsideIndexed := insideIndexed || !node.Visible || !node.Topmost
	for _, childID := range node.ChildIDs {
		child, ok := snap.Nodes[childID]
		if ok && child.Kind == KindText {
			s.render(snap, childID, depth, childInsideIndexed, lines, textMap)
			continue
		}
		s.render(snap, childID, depth, insideIndexed, lines, textMap)
	}
}

// renderElementLine builds the single pseudo-HTML line for an indexed element.
func (s *Serializer) renderElementLine(snap *Snapshot, node *Node) string {
	text := snap.FoldedText(node)
	attrs := s.filterAttributes(node, text)

	var b strings.Builder
	if node.IsNew {
		b.WriteString("*")
	}
	fmt.Fprintf(&b, "[%d]<%s", *node.Index, node.Tag)
	for _, kv := range attrs {
		b.WriteString(" ")
		b.WriteString(kv[0])
		b.WriteString("=")
		b.WriteString(kv[1])
	}
	if sc := node.Scroll; sc != nil && !sc.IsZero() {
		b.WriteString(" data-scrollable=\"")
		b.WriteString(formatScrollSides(*sc))
		b.WriteString("\"")
	}
	if text != "" {
		b.WriteString(">")
		b.WriteString(text)
		b.WriteString(" />")
	} else {
		b.WriteString(" />")
	}
	return b.String()
}

// filterAttributes applies the emission pipeline: allow-list, empty-value
// drop, long-value dedup, redundant role, text-echo drop, truncation.
// Returns ordered [name, value] pairs.
func (s *Serializer) filterAttributes(node *Node, elementText string) [][2]string {
	loweredText := strings.ToLower(strings.TrimSpace(elementText))
	seenValues := map[string]bool{}
	var out [][2]string

	for _, name := range s.includeAttributes {
		value, ok := node.Attributes[name]
		if !ok {
			continue
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		if len(value) > 5 {
			if seenValues[value] {
				continue
			}
			seenValues[value] = true
		}
		if name == "role" && value == node.Tag {
			continue
		}
		if name == "aria-label" || name == "placeholder" || name == "title" {
			if strings.ToLower(strings.TrimSpace(value)) == loweredText && loweredText != "" {
				continue
			}
		}
		out = append(out, [2]string{name, truncateRunes(value, attributeValueMaxLen)})
	}
	return out
}

// FoldedText concatenates descendant text of an element, stopping at any
// descendant indexed element (its text belongs to its own line).
func (s *Snapshot) FoldedText(node *Node) string {
	var parts []string
	var collect func(id string)
	collect = func(id string) {
		n, ok := s.Nodes[id]
		if !ok {
			return
		}
		if n.Kind == KindText {
			if n.Text != "" {
				parts = append(parts, n.Text)
			}
			return
		}
		if n.Interactive && n.Index != nil {
			return
		}
		for _, childID := range n.ChildIDs {
			collect(childID)
		}
	}
	for _, childID := range node.ChildIDs {
		collect(childID)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// formatScrollSides lists the non-zero sides in left, top, right, bottom order.
func formatScrollSides(sc ScrollInfo) string {
	var parts []string
	add := func(name string, v float64) {
		if v != 0 {
			parts = append(parts, fmt.Sprintf("%s=%.0f", name, v))
		}
	}
	add("left", sc.Left)
	add("top", sc.Top)
	add("right", sc.Right)
	add("bottom", sc.Bottom)
	return strings.Join(parts, ", ")
}

// truncateRunes caps a string at max runes, appending an ellipsis when cut.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}
