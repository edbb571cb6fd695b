// Package patch rewrites attribute values directly in the text of structural
// parts, for attributes that cannot be set reliably through the document
// model. Parts are never parsed: bytes outside matched attributes are kept
// exactly as they were.
package patch

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/opc"
)

var attrNameRe = regexp.MustCompile(`^([A-Za-z_][\w.-]*:)?[A-Za-z_][\w.-]*$`)

// Rule sets every occurrence of Attribute to Value.
type Rule struct {
	Attribute string `mapstructure:"attribute" yaml:"attribute"`
	Value     string `mapstructure:"value" yaml:"value"`
}

func (r Rule) String() string { return fmt.Sprintf(`%s="%s"`, r.Attribute, r.Value) }

// ParseRule reads a rule written as attribute=value. Quotes around the
// value are dropped, so the String form parses back.
func ParseRule(s string) (Rule, error) {
	attr, value, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok || attr == "" {
		return Rule{}, fmt.Errorf("invalid rule %q (want attribute=value)", s)
	}
	return Rule{Attribute: attr, Value: strings.Trim(value, `"`)}, nil
}

type compiled struct {
	rule        Rule
	re          *regexp.Regexp
	replacement string
}

// Store is the part storage the patcher rewrites. *archive.Workspace
// implements it.
type Store interface {
	Parts() []archive.Part
	ReadPart(name string) ([]byte, error)
	ReplacePart(name string, data []byte) error
}

// Patcher applies an ordered list of rules.
type Patcher struct {
	rules  []compiled
	logger *slog.Logger
}

// Option customises New.
type Option func(*Patcher)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(p *Patcher) { p.logger = l } }

// New validates and compiles rules. A rule only matches the attribute name
// at a word boundary, so "spc" never touches "spcAbc" or "xspc".
func New(rules []Rule, opts ...Option) (*Patcher, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no patch rules")
	}
	p := &Patcher{logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	for _, r := range rules {
		if !attrNameRe.MatchString(r.Attribute) {
			return nil, fmt.Errorf("invalid attribute name %q", r.Attribute)
		}
		if strings.ContainsAny(r.Value, "\"<&") {
			return nil, fmt.Errorf("value for %s must not contain '\"', '<' or '&'", r.Attribute)
		}
		p.rules = append(p.rules, compiled{
			rule:        r,
			re:          regexp.MustCompile(`\b` + regexp.QuoteMeta(r.Attribute) + `="[^"]*"`),
			replacement: r.String(),
		})
	}
	return p, nil
}

// Rules returns the rules in application order.
func (p *Patcher) Rules() []Rule {
	out := make([]Rule, len(p.rules))
	for i, c := range p.rules {
		out[i] = c.rule
	}
	return out
}

// PatchText applies every rule to text and returns the result with the
// number of attribute occurrences matched.
func (p *Patcher) PatchText(text string) (string, int) {
	matched := 0
	for _, c := range p.rules {
		n := len(c.re.FindAllStringIndex(text, -1))
		if n == 0 {
			continue
		}
		matched += n
		text = c.re.ReplaceAllLiteralString(text, c.replacement)
	}
	return text, matched
}

// PartStatus is the outcome for one part.
type PartStatus string

const (
	// StatusPatched means the part text changed and was written back.
	StatusPatched PartStatus = "patched"
	// StatusUnchanged means attributes matched but already had the target value.
	StatusUnchanged PartStatus = "unchanged"
	// StatusSkipped means no rule attribute occurs in the part.
	StatusSkipped PartStatus = "skipped"
)

// PartResult records what happened to one structural part.
type PartResult struct {
	Path    string     `json:"path" yaml:"path"`
	Status  PartStatus `json:"status" yaml:"status"`
	Matches int        `json:"matches" yaml:"matches"`
}

// Result summarizes an Apply.
type Result struct {
	Parts []PartResult `json:"parts" yaml:"parts"`
}

// Count returns the number of parts with the given status.
func (r Result) Count(s PartStatus) int {
	n := 0
	for _, p := range r.Parts {
		if p.Status == s {
			n++
		}
	}
	return n
}

// Matches returns the total number of attribute occurrences matched.
func (r Result) Matches() int {
	n := 0
	for _, p := range r.Parts {
		n += p.Matches
	}
	return n
}

// Apply patches every structural part of store. Relationship parts, the
// manifest and media are never read. A part is written back only when its
// text actually changed.
func (p *Patcher) Apply(store Store) (Result, error) {
	var res Result
	for _, part := range store.Parts() {
		if part.Class != opc.ClassStructuralXML {
			continue
		}
		data, err := store.ReadPart(part.Path)
		if err != nil {
			return res, err
		}
		text := string(data)
		patched, n := p.PatchText(text)

		pr := PartResult{Path: part.Path, Matches: n}
		switch {
		case n == 0:
			pr.Status = StatusSkipped
		case patched == text:
			pr.Status = StatusUnchanged
		default:
			if err := store.ReplacePart(part.Path, []byte(patched)); err != nil {
				return res, err
			}
			pr.Status = StatusPatched
			p.logger.Debug("part patched", "path", part.Path, "matches", n)
		}
		res.Parts = append(res.Parts, pr)
	}
	p.logger.Info("raw patch applied",
		"patched", res.Count(StatusPatched),
		"unchanged", res.Count(StatusUnchanged),
		"skipped", res.Count(StatusSkipped))
	return res, nil
}
