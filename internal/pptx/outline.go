package pptx

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/gnemet/SlideClean/internal/opc"
)

const (
	relTypeComments       = "/comments"
	relTypeCommentAuthors = "/commentAuthors"
)

// SlideOutline is the text and style summary of one slide.
type SlideOutline struct {
	Index    int            `json:"index" yaml:"index"`
	Path     string         `json:"path" yaml:"path"`
	Text     string         `json:"text" yaml:"text"`
	Shapes   []ShapeOutline `json:"shapes" yaml:"shapes"`
	Pictures int            `json:"pictures,omitempty" yaml:"pictures,omitempty"`
	Notes    string         `json:"notes,omitempty" yaml:"notes,omitempty"`
	Comments []Comment      `json:"comments,omitempty" yaml:"comments,omitempty"`
}

type ShapeOutline struct {
	Type string    `json:"type" yaml:"type"` // title | body | other
	Name string    `json:"name" yaml:"name"`
	Runs []TextRun `json:"runs" yaml:"runs"`
}

type TextRun struct {
	Text  string `json:"text" yaml:"text"`
	Bold  bool   `json:"bold,omitempty" yaml:"bold,omitempty"`
	Size  int    `json:"size,omitempty" yaml:"size,omitempty"` // pt
	Font  string `json:"font,omitempty" yaml:"font,omitempty"`
	Color string `json:"color,omitempty" yaml:"color,omitempty"`
}

// Comment is a legacy slide comment.
type Comment struct {
	Author string    `json:"author" yaml:"author"`
	Text   string    `json:"text" yaml:"text"`
	Date   time.Time `json:"date,omitempty" yaml:"date,omitempty"`
}

// Outline summarizes every slide in presentation order.
func (d *Deck) Outline() ([]SlideOutline, error) {
	authors, err := d.commentAuthors()
	if err != nil {
		return nil, err
	}

	var out []SlideOutline
	for _, s := range d.slides {
		so, err := s.outline(authors)
		if err != nil {
			return nil, err
		}
		out = append(out, so)
	}
	return out, nil
}

func (s *Slide) outline(authors map[string]string) (SlideOutline, error) {
	so := SlideOutline{Index: s.index, Path: s.path}
	shapes, err := s.Shapes()
	if err != nil {
		return so, err
	}

	var text []string
	for _, sh := range shapes {
		switch v := sh.(type) {
		case *PictureShape:
			so.Pictures++
		case *TextShape:
			ph, _ := v.Placeholder()
			shape := ShapeOutline{Type: normalizePlaceholder(ph), Name: v.Name()}
			for _, r := range v.Runs() {
				if r.Text() == "" {
					continue
				}
				tr := TextRun{Text: r.Text(), Bold: r.Bold()}
				if sz, ok := r.Size(); ok {
					tr.Size = sz / 100 // 1/100 pt
				}
				tr.Font, _ = r.FontFamily()
				if c, ok := r.Color(); ok {
					tr.Color = c.String()
				}
				shape.Runs = append(shape.Runs, tr)
				text = append(text, tr.Text)
			}
			if len(shape.Runs) > 0 {
				so.Shapes = append(so.Shapes, shape)
			}
		}
	}
	so.Text = strings.TrimSpace(strings.Join(text, " "))

	notes, err := s.Notes()
	if err != nil {
		return so, err
	}
	if notes != nil {
		so.Notes = notes.Text()
	}

	so.Comments, err = s.comments(authors)
	return so, err
}

// commentAuthors reads the author table of legacy comments.
func (d *Deck) commentAuthors() (map[string]string, error) {
	authors := make(map[string]string)
	if d.mainPath == "" {
		return authors, nil
	}
	target, err := d.target(d.mainPath, relTypeCommentAuthors)
	if err != nil || target == "" || !d.store.Has(target) {
		return authors, err
	}
	data, err := d.store.ReadPart(target)
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if el, ok := tok.(xml.StartElement); ok && el.Name.Local == "cmAuthor" {
			var id, name string
			for _, a := range el.Attr {
				switch a.Name.Local {
				case "id":
					id = a.Value
				case "name":
					name = a.Value
				}
			}
			if id != "" {
				authors[id] = name
			}
		}
	}
	return authors, nil
}

// comments reads the legacy comments attached to the slide through its
// relationships.
func (s *Slide) comments(authors map[string]string) ([]Comment, error) {
	rels, err := s.deck.relationships(s.path)
	if err != nil {
		return nil, err
	}
	var target string
	for _, rel := range rels.Relationship {
		if rel.HasType(relTypeComments) && !rel.External() {
			target = opc.ResolveTarget(s.path, rel.Target)
			break
		}
	}
	if target == "" || !s.deck.store.Has(target) {
		return nil, nil
	}
	data, err := s.deck.store.ReadPart(target)
	if err != nil {
		return nil, err
	}

	var comments []Comment
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		el, ok := tok.(xml.StartElement)
		if !ok || el.Name.Local != "cm" {
			continue
		}
		var authorID, dateStr string
		for _, a := range el.Attr {
			switch a.Name.Local {
			case "authorId":
				authorID = a.Value
			case "dt":
				dateStr = a.Value
			}
		}
		var cm struct {
			Text string `xml:"text"`
		}
		if err := dec.DecodeElement(&cm, &el); err != nil {
			return nil, err
		}

		author := authors[authorID]
		if author == "" {
			author = "Unknown"
		}
		var date time.Time
		if dateStr != "" {
			// 2024-05-14T12:00:00.000
			date, _ = time.Parse("2006-01-02T15:04:05.000", dateStr)
		}
		comments = append(comments, Comment{Author: author, Text: cm.Text, Date: date})
	}
	return comments, nil
}

func normalizePlaceholder(ph string) string {
	switch ph {
	case "title", "ctrTitle":
		return "title"
	case "body", "subTitle":
		return "body"
	default:
		return "other"
	}
}
