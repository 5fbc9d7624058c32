// Package extract parses a document-bearing XML entry into typed metadata
// and an ordered block sequence.
package extract

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// Element is one parsed XML element. The tree keeps document order for both
// text and children so block ordinals follow the source.
type Element struct {
	Tag      string
	Attrs    map[string]string
	Text     string // direct character data, in order
	Children []*Element
}

// Attr returns an attribute value or "".
func (e *Element) Attr(name string) string {
	return e.Attrs[name]
}

// Child returns the first direct child with the given tag, or nil.
func (e *Element) Child(tag string) *Element {
	for _, c := range e.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// FlatText returns the collapsed text of the element's whole subtree:
// tags stripped, whitespace folded to single spaces.
func (e *Element) FlatText() string {
	var sb strings.Builder
	e.writeText(&sb)
	return collapse(sb.String())
}

func (e *Element) writeText(sb *strings.Builder) {
	sb.WriteString(e.Text)
	for _, c := range e.Children {
		sb.WriteByte(' ')
		c.writeText(sb)
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Parsed is one fully parsed document-bearing entry.
type Parsed struct {
	Basename      string
	Root          *Element
	ReferenceCode string
	Title         string
	ArchiveNum    string
	Jurisdiction  string
	DocType       domain.DocType
}

var jurisdictionRe = regexp.MustCompile(`-([A-Za-z]{2,3})\.xml$`)

// Parse builds the element tree for one entry and pulls the structured
// fields. A malformed entry fails with domain.ErrFileParse and contributes
// nothing to the run.
func Parse(basename string, content []byte) (*Parsed, error) {
	root, err := decode(content)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrFileParse, basename, err)
	}

	docType := domain.DocTypeClause
	if root.Tag == "specification" {
		docType = domain.DocTypeSpecification
	}

	p := &Parsed{
		Basename: basename,
		Root:     root,
		DocType:  docType,
	}

	if sptc := root.Child("sptc"); sptc != nil {
		p.ReferenceCode = collapse(sptc.Text)
	} else {
		p.ReferenceCode = root.Attr("id")
	}
	if title := root.Child("title"); title != nil {
		p.Title = title.FlatText()
	}
	if num := root.Child("archive-num"); num != nil {
		p.ArchiveNum = collapse(num.Text)
	}
	if m := jurisdictionRe.FindStringSubmatch(basename); m != nil {
		p.Jurisdiction = strings.ToUpper(m[1])
	}

	return p, nil
}

func decode(content []byte) (*Element, error) {
	dec := xml.NewDecoder(bytes.NewReader(content))

	var root *Element
	var stack []*Element

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &Element{
				Tag:   strings.ToLower(t.Name.Local),
				Attrs: make(map[string]string, len(t.Attr)),
			}
			for _, a := range t.Attr {
				el.Attrs[strings.ToLower(a.Name.Local)] = a.Value
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = el
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, el)
			}
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced end tag %s", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				cur := stack[len(stack)-1]
				cur.Text += string(t)
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("no root element")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element %s", stack[len(stack)-1].Tag)
	}
	return root, nil
}

// Blocks walks the body and emits the ordered block sequence for the
// document. Ordinals are dense and strictly increasing.
func (p *Parsed) Blocks(runID, documentID string) []*domain.Block {
	now := time.Now()
	var blocks []*domain.Block

	emit := func(b *domain.Block) {
		b.ID = domain.NewID()
		b.RunID = runID
		b.DocumentID = documentID
		b.Ordinal = len(blocks)
		b.CreatedAt = now
		blocks = append(blocks, b)
	}

	if p.Title != "" {
		emit(&domain.Block{Type: domain.BlockTypeHeading, Text: p.Title})
	}

	walkBody(p.Root, emit)
	return blocks
}

// Body constructs. Anything else recurses so paragraphs buried in unknown
// wrappers still surface.
func walkBody(el *Element, emit func(*domain.Block)) {
	for _, c := range el.Children {
		switch c.Tag {
		case "sptc", "num", "archive-num", "title":
			// structured fields, not body content
		case "clauseref", "subtopic":
			// cross-document inclusion, handled by the hierarchy builder
		case "p":
			if text := c.FlatText(); text != "" {
				emit(&domain.Block{Type: domain.BlockTypeParagraph, Text: text})
			}
		case "ol", "ul":
			emitList(c, emit)
		case "note", "callout":
			if text := c.FlatText(); text != "" {
				emit(&domain.Block{Type: domain.BlockTypeNote, Text: "Note: " + text})
			}
		case "table":
			emitTable(c, emit)
		case "image-reference", "image", "fig":
			emitImage(c, emit)
		default:
			walkBody(c, emit)
		}
	}
}

// emitList aggregates all items under a list construct into one block,
// keeping both the joined text and the raw item array.
func emitList(el *Element, emit func(*domain.Block)) {
	var items []string
	var collect func(*Element)
	collect = func(e *Element) {
		for _, c := range e.Children {
			if c.Tag == "li" {
				items = append(items, c.FlatText())
				continue
			}
			collect(c)
		}
	}
	collect(el)
	if len(items) == 0 {
		return
	}
	emit(&domain.Block{
		Type:  domain.BlockTypeList,
		Text:  strings.Join(items, "\n"),
		Items: items,
	})
}

var rowTags = map[string]bool{"row": true, "tr": true}
var cellTags = map[string]bool{"entry": true, "cell": true, "td": true, "th": true}

// emitTable captures the header row (if present) and data rows as arrays of
// stripped cell text.
func emitTable(el *Element, emit func(*domain.Block)) {
	var header []string
	var rows [][]string

	var walk func(e *Element, inHead bool)
	walk = func(e *Element, inHead bool) {
		for _, c := range e.Children {
			switch {
			case c.Tag == "thead":
				walk(c, true)
			case rowTags[c.Tag]:
				cells := rowCells(c)
				if inHead && header == nil {
					header = cells
				} else {
					rows = append(rows, cells)
				}
			default:
				walk(c, inHead)
			}
		}
	}
	walk(el, false)

	if header == nil && len(rows) == 0 {
		return
	}

	var text []string
	if header != nil {
		text = append(text, strings.Join(header, " | "))
	}
	for _, r := range rows {
		text = append(text, strings.Join(r, " | "))
	}
	emit(&domain.Block{
		Type:        domain.BlockTypeTable,
		Text:        strings.Join(text, "\n"),
		TableHeader: header,
		TableRows:   rows,
	})
}

func rowCells(row *Element) []string {
	var cells []string
	for _, c := range row.Children {
		if cellTags[c.Tag] {
			cells = append(cells, c.FlatText())
		}
	}
	return cells
}

// emitImage stores the unresolved descriptor reference for later asset
// resolution.
func emitImage(el *Element, emit func(*domain.Block)) {
	ref := el.Attr("conref")
	if ref == "" {
		ref = el.Attr("href")
	}
	if ref == "" {
		return
	}
	emit(&domain.Block{
		Type:     domain.BlockTypeImage,
		Text:     el.FlatText(), // caption text when present
		ImageRef: ref,
	})
}
