// internal/browser/dom/snapshot.go
package dom

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NodeKind discriminates the two snapshot node variants.
type NodeKind string

const (
	KindText    NodeKind = "text"
	KindElement NodeKind = "element"
)

// ScrollInfo reports how many pixels a scroll container can still travel on
// each side. Only present when the element overflows by at least 4 px.
type ScrollInfo struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Right  float64 `json:"right"`
	Bottom float64 `json:"bottom"`
}

// IsZero reports whether no side has scrollable room.
func (s ScrollInfo) IsZero() bool {
	return s.Left == 0 && s.Top == 0 && s.Right == 0 && s.Bottom == 0
}

// Node is one entry in a flat snapshot. Text nodes carry only Text and
// Visible; element nodes carry the rest. Interactive elements additionally
// carry a non-nil Index.
type Node struct {
	Kind        NodeKind          `json:"kind"`
	Text        string            `json:"text,omitempty"`
	Tag         string            `json:"tag,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	ChildIDs    []string          `json:"childIds,omitempty"`
	Visible     bool              `json:"visible"`
	Topmost     bool              `json:"topmost"`
	InViewport  bool              `json:"inViewport"`
	Interactive bool              `json:"interactive"`
	Index       *int              `json:"index,omitempty"`
	Scroll      *ScrollInfo       `json:"scrollInfo,omitempty"`

	// IsNew is computed controller-side by comparing against the previous
	// snapshot; it never travels over the wire.
	IsNew bool `json:"-"`
}

// Snapshot is the immutable result of one extraction pass over the page.
type Snapshot struct {
	RootID string           `json:"rootId"`
	Nodes  map[string]*Node `json:"nodes"`
}

// ParseSnapshot decodes the JSON the extraction script returns.
func ParseSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Nodes == nil {
		snap.Nodes = map[string]*Node{}
	}
	return &snap, nil
}

// InteractiveNodes returns the snapshot's indexed elements sorted by index.
func (s *Snapshot) InteractiveNodes() []*Node {
	var out []*Node
	for _, n := range s.Nodes {
		if n.Interactive && n.Index != nil {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].Index < *out[j].Index })
	return out
}

// identityHash fingerprints an interactive element by what the LLM can
// observe about it. Index is deliberately excluded so re-numbering across
// refreshes does not mark unchanged elements as new.
func (n *Node) identityHash(text string) string {
	h := sha256.New()
	h.Write([]byte(n.Tag))
	h.Write([]byte{0})
	keys := make([]string, 0, len(n.Attributes))
	for k := range n.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{1})
		h.Write([]byte(n.Attributes[k]))
		h.Write([]byte{1})
	}
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// MarkNew flags interactive nodes in next that have no identity match in
// prev. A nil prev (first snapshot of a task) marks nothing.
func MarkNew(prev, next *Snapshot) {
	if prev == nil || next == nil {
		return
	}
	seen := map[string]int{}
	for _, n := range prev.InteractiveNodes() {
		seen[n.identityHash(prev.FoldedText(n))]++
	}
	for _, n := range next.InteractiveNodes() {
		key := n.identityHash(next.FoldedText(n))
		if seen[key] > 0 {
			seen[key]--
			continue
		}
		n.IsNew = true
	}
}
