package dom

import (
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// snapshotBuilder assembles flat snapshots by hand for serializer tests.
type snapshotBuilder struct {
	snap   *Snapshot
	nextID int
}

func newSnapshotBuilder() *snapshotBuilder {
	return &snapshotBuilder{snap: &Snapshot{Nodes: map[string]*Node{}}}
}

func (b *snapshotBuilder) add(n *Node) string {
	id := fmt.Sprintf("n%d", b.nextID)
	b.nextID++
	b.snap.Nodes[id] = n
	return id
}

func (b *snapshotBuilder) text(s string) string {
	return b.add(&Node{Kind: KindText, Text: s, Visible: true})
}

func (b *snapshotBuilder) element(tag string, children ...string) string {
	return b.add(&Node{Kind: KindElement, Tag: tag, ChildIDs: children, Visible: true, Topmost: true, InViewport: true})
}

func (b *snapshotBuilder) interactive(tag string, index int, attrs map[string]string, children ...string) string {
	i := index
	return b.add(&Node{
		Kind: KindElement, Tag: tag, Attributes: attrs, ChildIDs: children,
		Visible: true, Topmost: true, InViewport: true, Interactive: true, Index: &i,
	})
}

func (b *snapshotBuilder) root(id string) *Snapshot {
	b.snap.RootID = id
	return b.snap
}

func TestSerialize_IndexedLinesAndTextMap(t *testing.T) {
	b := newSnapshotBuilder()
	heading := b.element("h1", b.text("Example"))
	link := b.interactive("a", 0, map[string]string{"href": "/x", "target": "_blank"}, b.text("more"))
	snap := b.root(b.element("body", heading, link))

	s := NewSerializer(nil)
	html, textMap := s.Serialize(snap)

	assert.Contains(t, html, "Example")
	assert.Contains(t, html, "[0]<a target=_blank>more />")
	require.Len(t, textMap, 1)
	assert.Equal(t, "[0]<a target=_blank>more />", textMap[0])
}

// Every [i] line must have exactly one selector-map entry and vice versa.
func TestSerialize_LineIndexBijection(t *testing.T) {
	b := newSnapshotBuilder()
	var children []string
	for i := 0; i < 5; i++ {
		children = append(children, b.interactive("button", i, nil, b.text(fmt.Sprintf("b%d", i))))
	}
	snap := b.root(b.element("body", children...))

	html, textMap := NewSerializer(nil).Serialize(snap)

	re := regexp.MustCompile(`^\*?\[(\d+)\]<`)
	found := map[string]int{}
	for _, line := range strings.Split(html, "\n") {
		if m := re.FindStringSubmatch(strings.TrimLeft(line, "\t")); m != nil {
			found[m[1]]++
		}
	}
	assert.Len(t, found, len(textMap))
	for i := range textMap {
		assert.Equal(t, 1, found[fmt.Sprint(i)])
	}
}

// Text under an indexed element folds into its line and never appears bare.
func TestSerialize_TextFoldsIntoIndexedAncestor(t *testing.T) {
	b := newSnapshotBuilder()
	inner := b.interactive("button", 1, nil, b.text("Inner"))
	outer := b.interactive("div", 0, map[string]string{"role": "button"}, b.text("Outer"), inner)
	snap := b.root(b.element("body", outer))

	html, _ := NewSerializer(nil).Serialize(snap)
	lines := strings.Split(html, "\n")

	require.Len(t, lines, 2)
	assert.Equal(t, "[0]<div role=button>Outer />", lines[0])
	// Nested indexed element is indented one level and keeps its own text.
	assert.Equal(t, "\t[1]<button>Inner />", lines[1])
	// "Outer" must not leak into the nested line, nor "Inner" into the outer.
	assert.NotContains(t, lines[0], "Inner")
	assert.NotContains(t, lines[1], "Outer")
}

func TestSerialize_HiddenAndCoveredTextSuppressed(t *testing.T) {
	b := newSnapshotBuilder()
	hiddenText := b.text("invisible")
	hidden := b.add(&Node{Kind: KindElement, Tag: "div", ChildIDs: []string{hiddenText}, Visible: false})
	coveredText := b.text("behind modal")
	covered := b.add(&Node{Kind: KindElement, Tag: "div", ChildIDs: []string{coveredText}, Visible: true, Topmost: false})
	visible := b.element("p", b.text("shown"))
	snap := b.root(b.element("body", hidden, covered, visible))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.NotContains(t, html, "invisible")
	assert.NotContains(t, html, "behind modal")
	assert.Contains(t, html, "shown")
}

func TestSerialize_IsNewMarker(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("button", 0, nil, b.text("Save"))
	b.snap.Nodes[id].IsNew = true
	snap := b.root(b.element("body", id))

	html, textMap := NewSerializer(nil).Serialize(snap)

	assert.Contains(t, html, "*[0]<button>Save />")
	// The text map keeps the marker so result messages match the prompt.
	assert.Equal(t, "*[0]<button>Save />", textMap[0])
}

func TestSerialize_ScrollableAnnotation(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("div", 0, map[string]string{"role": "listbox"}, b.text("rows"))
	b.snap.Nodes[id].Scroll = &ScrollInfo{Top: 120, Bottom: 480}
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.Contains(t, html, `data-scrollable="top=120, bottom=480"`)
	assert.NotContains(t, html, "left=")
}

// -- Attribute filter pipeline --

func TestFilterAttributes_AllowListAndOrder(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("input", 0, map[string]string{
		"type":        "text",
		"placeholder": "Search",
		"class":       "f-23 big", // not on the allow-list
		"name":        "q",
	})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.Equal(t, "[0]<input type=text name=q placeholder=Search />", html)
}

func TestFilterAttributes_CallerSuppliedNames(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("a", 0, map[string]string{"href": "/path", "data-test": "cta"})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer([]string{"href", "data-test"}).Serialize(snap)

	assert.Contains(t, html, "href=/path")
	assert.Contains(t, html, "data-test=cta")
}

func TestFilterAttributes_DropsEmptyValues(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("input", 0, map[string]string{"value": "   ", "name": "q"})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.NotContains(t, html, "value=")
	assert.Contains(t, html, "name=q")
}

func TestFilterAttributes_DeduplicatesLongValues(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("button", 0, map[string]string{
		"title":      "Submit order",
		"aria-label": "Submit order",
		"type":       "ok", // short values are never deduplicated
		"name":       "ok",
	})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.Equal(t, 1, strings.Count(html, "Submit order"))
	assert.Contains(t, html, "type=ok")
	assert.Contains(t, html, "name=ok")
}

func TestFilterAttributes_DropsRedundantRole(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("button", 0, map[string]string{"role": "button"})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.NotContains(t, html, "role=")
}

func TestFilterAttributes_DropsTextEcho(t *testing.T) {
	b := newSnapshotBuilder()
	id := b.interactive("button", 0, map[string]string{"aria-label": "save draft"}, b.text("Save Draft"))
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.NotContains(t, html, "aria-label")
	assert.Contains(t, html, ">Save Draft />")
}

func TestFilterAttributes_TruncatesLongValues(t *testing.T) {
	long := strings.Repeat("a", 30)
	b := newSnapshotBuilder()
	id := b.interactive("input", 0, map[string]string{"placeholder": long})
	snap := b.root(b.element("body", id))

	html, _ := NewSerializer(nil).Serialize(snap)

	assert.Contains(t, html, strings.Repeat("a", 20)+"…")
	assert.NotContains(t, html, strings.Repeat("a", 21))
}

func TestTruncateRunes_MultibyteSafe(t *testing.T) {
	s := strings.Repeat("ü", 25)
	got := truncateRunes(s, 20)
	assert.Equal(t, strings.Repeat("ü", 20)+"…", got)
}
