package opc

import (
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

// ContentTypes is the parsed [Content_Types].xml manifest.
type ContentTypes struct {
	XMLName  xml.Name `xml:"Types"`
	Defaults []struct {
		Extension   string `xml:"Extension,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Default"`
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

// ParseContentTypes decodes the manifest part.
func ParseContentTypes(data []byte) (*ContentTypes, error) {
	ct := &ContentTypes{}
	if err := xml.Unmarshal(data, ct); err != nil {
		return nil, fmt.Errorf("parsing content types: %w", err)
	}
	return ct, nil
}

// ContentType returns the declared content type of a part, checking
// overrides first and then extension defaults. Part names compare
// case-insensitively as the packaging rules require.
func (c *ContentTypes) ContentType(name string) (string, bool) {
	partName := "/" + strings.TrimPrefix(name, "/")
	for _, o := range c.Overrides {
		if strings.EqualFold(o.PartName, partName) {
			return o.ContentType, true
		}
	}
	ext := strings.TrimPrefix(path.Ext(name), ".")
	for _, d := range c.Defaults {
		if strings.EqualFold(d.Extension, ext) {
			return d.ContentType, true
		}
	}
	return "", false
}

// Registered reports whether the manifest declares a content type for name.
func (c *ContentTypes) Registered(name string) bool {
	_, ok := c.ContentType(name)
	return ok
}
