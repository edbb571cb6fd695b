// Package opc holds the Open Packaging Conventions rules the engine relies
// on: part classification, relationship parts and the content-type manifest.
package opc

import (
	"path"
	"strings"
)

// Classification tags a part with the editing strategies allowed on it.
type Classification int

const (
	ClassOther Classification = iota
	ClassStructuralXML
	ClassRelationshipXML
	ClassManifest
	ClassBinaryMedia
)

const (
	// ManifestPath is the content-type manifest at the package root.
	ManifestPath = "[Content_Types].xml"

	relsDir     = "_rels"
	relsExt     = ".rels"
	contentRoot = "ppt/"
	mediaRoot   = "ppt/media/"
)

var mediaExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".tif": true, ".tiff": true, ".emf": true, ".wmf": true, ".svg": true,
	".webp": true, ".wdp": true, ".jfif": true, ".ico": true,
	".mp4": true, ".m4v": true, ".mov": true, ".wmv": true, ".avi": true,
	".mp3": true, ".m4a": true, ".wav": true, ".wma": true,
}

func (c Classification) String() string {
	switch c {
	case ClassStructuralXML:
		return "structural-xml"
	case ClassRelationshipXML:
		return "relationship-xml"
	case ClassManifest:
		return "manifest"
	case ClassBinaryMedia:
		return "binary-media"
	default:
		return "other"
	}
}

// ReadOnly reports whether parts of this class must never be rewritten.
func (c Classification) ReadOnly() bool {
	return c == ClassRelationshipXML || c == ClassManifest
}

// Classify decides how a part may be edited. It is the only gate between
// the engine and parts it does not understand.
func Classify(name string) Classification {
	if name == ManifestPath {
		return ClassManifest
	}
	dir := path.Dir(name)
	if path.Base(dir) == relsDir {
		return ClassRelationshipXML
	}
	ext := strings.ToLower(path.Ext(name))
	if strings.HasPrefix(name, mediaRoot) || mediaExt[ext] {
		return ClassBinaryMedia
	}
	if ext == ".xml" && strings.HasPrefix(name, contentRoot) {
		return ClassStructuralXML
	}
	return ClassOther
}
