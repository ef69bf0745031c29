package page

import (
	"bytes"
	"io"
	"strings"

	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// MutationType mirrors the DOM MutationRecord types this package produces.
type MutationType int

const (
	ChildList MutationType = iota
	CharacterData
)

// MutationRecord describes one change to the tree.
type MutationRecord struct {
	Type    MutationType
	Target  *html.Node // parent for ChildList, the text node for CharacterData
	Added   []*html.Node
	Removed []*html.Node
}

// MutationCallback receives a batch of records.
type MutationCallback func(records []MutationRecord)

// Document is a live HTML tree. Every structural change made through its
// methods is recorded; Flush delivers the pending records to observers.
//
// A Document is not safe for concurrent use. All access goes through one
// goroutine (see package loop).
type Document struct {
	root      *html.Node
	pending   []MutationRecord
	observers map[int]MutationCallback
	nextID    int
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node) *Document {
	return &Document{root: root, observers: make(map[int]MutationCallback)}
}

// Parse reads an HTML page, converting its character encoding to UTF-8.
func Parse(r io.Reader) (*Document, error) {
	root, err := dom.Parse(r)
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// ParseString parses UTF-8 HTML.
func ParseString(s string) (*Document, error) {
	root, err := dom.FastParse(strings.NewReader(s))
	if err != nil {
		return nil, err
	}
	return NewDocument(root), nil
}

// Root returns the document node.
func (d *Document) Root() *html.Node { return d.root }

// Body returns the <body> element, or the root if there is none.
func (d *Document) Body() *html.Node {
	if body := dom.QuerySelector(d.root, "body"); body != nil {
		return body
	}
	return d.root
}

// Render serializes the current tree.
func (d *Document) Render() (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Observe registers fn for every future batch of records and returns a
// function that removes it.
func (d *Document) Observe(fn MutationCallback) (unobserve func()) {
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() { delete(d.observers, id) }
}

// TakeRecords returns and clears the pending records without delivering them.
func (d *Document) TakeRecords() []MutationRecord {
	recs := d.pending
	d.pending = nil
	return recs
}

// Flush delivers pending records to observers. Records produced by observers
// while handling a batch are delivered in a following round.
func (d *Document) Flush() {
	for len(d.pending) > 0 {
		recs := d.TakeRecords()
		if len(d.observers) == 0 {
			continue
		}
		for _, fn := range d.observers {
			fn(recs)
		}
	}
}

func (d *Document) record(r MutationRecord) {
	d.pending = append(d.pending, r)
}

// AppendChild moves or inserts child as the last child of parent.
func (d *Document) AppendChild(parent, child *html.Node) {
	d.InsertBefore(parent, child, nil)
}

// InsertBefore inserts child into parent before ref (append when ref is nil).
func (d *Document) InsertBefore(parent, child, ref *html.Node) {
	if child.Parent != nil {
		d.RemoveChild(child)
	}
	if ref != nil && ref.Parent == parent {
		parent.InsertBefore(child, ref)
	} else {
		parent.AppendChild(child)
	}
	d.record(MutationRecord{Type: ChildList, Target: parent, Added: []*html.Node{child}})
}

// RemoveChild detaches n from its parent. Detached nodes are ignored.
func (d *Document) RemoveChild(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.record(MutationRecord{Type: ChildList, Target: parent, Removed: []*html.Node{n}})
}

// ReplaceWith swaps old for nodes in a single record. It reports false if old
// is no longer attached.
func (d *Document) ReplaceWith(old *html.Node, nodes ...*html.Node) bool {
	parent := old.Parent
	if parent == nil {
		return false
	}
	for _, n := range nodes {
		dom.DetachChild(n)
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
	d.record(MutationRecord{Type: ChildList, Target: parent, Added: nodes, Removed: []*html.Node{old}})
	return true
}

// SetData changes the text of a text or comment node.
func (d *Document) SetData(n *html.Node, data string) {
	if n.Data == data {
		return
	}
	n.Data = data
	d.record(MutationRecord{Type: CharacterData, Target: n})
}

// SetTextContent replaces all children of el with a single text node.
func (d *Document) SetTextContent(el *html.Node, text string) {
	if dom.IsVoidElement(el) {
		return
	}
	var removed []*html.Node
	for c := el.FirstChild; c != nil; {
		next := c.NextSibling
		el.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	txt := dom.CreateTextNode(text)
	el.AppendChild(txt)
	d.record(MutationRecord{Type: ChildList, Target: el, Added: []*html.Node{txt}, Removed: removed})
}

// SetAttribute sets an attribute without producing a record; attribute
// changes are not observed.
func (d *Document) SetAttribute(el *html.Node, key, value string) {
	dom.SetAttribute(el, key, value)
}

// AppendHTML parses fragment in the context of parent and appends the
// resulting nodes, the way innerHTML += would.
func (d *Document) AppendHTML(parent *html.Node, fragment string) error {
	nodes, err := html.ParseFragment(strings.NewReader(fragment), parent)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		d.AppendChild(parent, n)
	}
	return nil
}
