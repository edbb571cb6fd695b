package opc

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// Relationship type suffixes used by the engine.
const (
	RelTypeOfficeDocument = "/officeDocument"
	RelTypeSlide          = "/slide"
	RelTypeSlideLayout    = "/slideLayout"
	RelTypeSlideMaster    = "/slideMaster"
	RelTypeTheme          = "/theme"
	RelTypeImage          = "/image"
	RelTypeNotesSlide     = "/notesSlide"
)

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr"`
}

// External reports whether the target lives outside the package.
func (r Relationship) External() bool {
	return strings.EqualFold(r.TargetMode, "External")
}

// HasType reports whether the relationship type ends with suffix, which is
// how the transitional and strict namespaces are matched together.
func (r Relationship) HasType(suffix string) bool {
	return strings.HasSuffix(r.Type, suffix)
}

// Relationships is a parsed .rels part.
type Relationships struct {
	XMLName      xml.Name       `xml:"Relationships"`
	Relationship []Relationship `xml:"Relationship"`
}

// ParseRelationships decodes a .rels part.
func ParseRelationships(data []byte) (*Relationships, error) {
	rels := &Relationships{}
	if err := xml.Unmarshal(data, rels); err != nil {
		return nil, fmt.Errorf("parsing relationships: %w", err)
	}
	return rels, nil
}

// ByID returns the relationship with the given id.
func (r *Relationships) ByID(id string) (Relationship, bool) {
	for _, rel := range r.Relationship {
		if rel.ID == id {
			return rel, true
		}
	}
	return Relationship{}, false
}

// FirstOfType returns the first relationship whose type ends with suffix.
func (r *Relationships) FirstOfType(suffix string) (Relationship, bool) {
	for _, rel := range r.Relationship {
		if rel.HasType(suffix) {
			return rel, true
		}
	}
	return Relationship{}, false
}

// RelsPathFor returns the relationship part describing source.
// "ppt/slides/slide1.xml" -> "ppt/slides/_rels/slide1.xml.rels"; "" is the package.
func RelsPathFor(source string) string {
	if source == "" || source == "/" {
		return relsDir + "/" + relsExt
	}
	dir, base := path.Split(source)
	return dir + relsDir + "/" + base + relsExt
}

// SourceFor is the inverse of RelsPathFor. The package-level "_rels/.rels"
// maps to "".
func SourceFor(relsPath string) string {
	dir, base := path.Split(relsPath)
	dir = strings.TrimSuffix(dir, "/")
	if path.Base(dir) != relsDir {
		return ""
	}
	parent := strings.TrimSuffix(dir, relsDir)
	name := strings.TrimSuffix(base, relsExt)
	if name == "" {
		return ""
	}
	return parent + name
}

// ResolveTarget turns a relationship target into a package part path.
// Targets are relative to the source part's directory unless they start
// with "/".
func ResolveTarget(source, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(path.Clean(target), "/")
	}
	base := path.Dir(source)
	if source == "" {
		base = ""
	}
	resolved := path.Clean(path.Join(base, target))
	return strings.TrimPrefix(resolved, "/")
}
