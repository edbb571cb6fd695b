// Package xmltree parses and serializes parts as element trees. Lookups match
// elements by namespace URI and local name so documents that bind unusual
// prefixes are handled the same as the common ones.
package xmltree

import (
	"fmt"

	"github.com/beevik/etree"
	"golang.org/x/net/html/charset"
)

const (
	NsPresentation  = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NsDrawing       = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NsRelationships = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

var defaultPrefix = map[string]string{
	NsPresentation:  "p",
	NsDrawing:       "a",
	NsRelationships: "r",
}

// Parse reads a part into a tree. Non-UTF-8 encodings declared in the XML
// header are converted on the way in.
func Parse(data []byte) (*etree.Document, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = charset.NewReaderLabel
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("failed to parse xml: %w", err)
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("failed to parse xml: no root element")
	}
	return doc, nil
}

// Serialize writes the tree back to bytes.
func Serialize(doc *etree.Document) ([]byte, error) {
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize xml: %w", err)
	}
	return b, nil
}

// Is reports whether e is the element {ns}local.
func Is(e *etree.Element, ns, local string) bool {
	return e != nil && e.Tag == local && e.NamespaceURI() == ns
}

// Child returns the first child {ns}local of e, or nil.
func Child(e *etree.Element, ns, local string) *etree.Element {
	if e == nil {
		return nil
	}
	for _, c := range e.ChildElements() {
		if Is(c, ns, local) {
			return c
		}
	}
	return nil
}

// Children returns every child {ns}local of e in document order.
func Children(e *etree.Element, ns, local string) []*etree.Element {
	if e == nil {
		return nil
	}
	var out []*etree.Element
	for _, c := range e.ChildElements() {
		if Is(c, ns, local) {
			out = append(out, c)
		}
	}
	return out
}

// Descendants returns every element {ns}local below e in document order.
func Descendants(e *etree.Element, ns, local string) []*etree.Element {
	var out []*etree.Element
	var walk func(*etree.Element)
	walk = func(n *etree.Element) {
		for _, c := range n.ChildElements() {
			if Is(c, ns, local) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if e != nil {
		walk(e)
	}
	return out
}

// Path follows a chain of children in one namespace, returning nil as soon
// as a step is missing.
func Path(e *etree.Element, ns string, locals ...string) *etree.Element {
	for _, l := range locals {
		e = Child(e, ns, l)
		if e == nil {
			return nil
		}
	}
	return e
}

// Attr returns the attribute {ns}local of e. An empty ns matches only
// unprefixed attributes.
func Attr(e *etree.Element, ns, local string) *etree.Attr {
	if e == nil {
		return nil
	}
	for i := range e.Attr {
		a := &e.Attr[i]
		if a.Key != local || a.Space == "xmlns" {
			continue
		}
		if ns == "" && a.Space == "" {
			return a
		}
		if ns != "" && a.Space != "" && a.NamespaceURI() == ns {
			return a
		}
	}
	return nil
}

// AttrValue returns the value of {ns}local on e, or dflt.
func AttrValue(e *etree.Element, ns, local, dflt string) string {
	if a := Attr(e, ns, local); a != nil {
		return a.Value
	}
	return dflt
}

// Prefix returns the prefix bound to ns in scope at e. An empty prefix with
// ok true means ns is the default namespace.
func Prefix(e *etree.Element, ns string) (prefix string, ok bool) {
	for n := e; n != nil; n = n.Parent() {
		for _, a := range n.Attr {
			switch {
			case a.Space == "xmlns" && a.Value == ns:
				return a.Key, true
			case a.Space == "" && a.Key == "xmlns" && a.Value == ns:
				return "", true
			}
		}
	}
	return "", false
}

// QName returns the qualified name for {ns}local in scope at e, falling back
// to the conventional prefix when ns is not bound.
func QName(e *etree.Element, ns, local string) string {
	prefix, ok := Prefix(e, ns)
	if !ok {
		prefix = defaultPrefix[ns]
	}
	if prefix == "" {
		return local
	}
	return prefix + ":" + local
}

// NewElement returns a detached element {ns}local named for the scope at e.
// If ns is unbound there, the element declares it.
func NewElement(scope *etree.Element, ns, local string) *etree.Element {
	el := etree.NewElement(QName(scope, ns, local))
	if _, ok := Prefix(scope, ns); !ok {
		if p := defaultPrefix[ns]; p != "" {
			el.CreateAttr("xmlns:"+p, ns)
		} else {
			el.CreateAttr("xmlns", ns)
		}
	}
	return el
}

// SetAttr sets {ns}local on e, reusing the attribute if present.
func SetAttr(e *etree.Element, ns, local, value string) {
	if a := Attr(e, ns, local); a != nil {
		a.Value = value
		return
	}
	if ns == "" {
		e.CreateAttr(local, value)
		return
	}
	e.CreateAttr(QName(e, ns, local), value)
}

// Remove detaches e from its parent.
func Remove(e *etree.Element) {
	if p := e.Parent(); p != nil {
		p.RemoveChild(e)
	}
}

// InsertOrdered adds child to parent respecting a schema sequence given as
// local names. Children named outside the sequence sort after it.
func InsertOrdered(parent, child *etree.Element, order []string) {
	rank := func(local string) int {
		for i, o := range order {
			if o == local {
				return i
			}
		}
		return len(order)
	}
	want := rank(child.Tag)
	for _, c := range parent.ChildElements() {
		if rank(c.Tag) > want {
			parent.InsertChildAt(c.Index(), child)
			return
		}
	}
	parent.AddChild(child)
}

// Ensure returns the child {ns}local of parent, creating it in schema order
// when missing.
func Ensure(parent *etree.Element, ns, local string, order []string) *etree.Element {
	if c := Child(parent, ns, local); c != nil {
		return c
	}
	c := NewElement(parent, ns, local)
	InsertOrdered(parent, c, order)
	return c
}
