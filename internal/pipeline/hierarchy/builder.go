// Package hierarchy turns parsed documents into navigable node trees with
// materialized paths.
package hierarchy

import (
	"encoding/hex"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/extract"
	"github.com/custodia-labs/codex-ingest/internal/pipeline/refs"
)

// DocLookup resolves a basename to a parsed document in the same run.
// Used to inline clauseref and subtopic targets as synthetic children.
type DocLookup func(basename string) (parsed *extract.Parsed, documentID string, ok bool)

// Builder assigns run-wide sort order, so trees built from successive
// documents interleave correctly. Not safe for concurrent use.
type Builder struct {
	runID  string
	lookup DocLookup
	sort   int
}

func NewBuilder(runID string, lookup DocLookup) *Builder {
	return &Builder{runID: runID, lookup: lookup}
}

// StartAt seeds the sort counter past values already issued in earlier
// batches of the same run.
func (b *Builder) StartAt(n int) {
	if n > b.sort {
		b.sort = n
	}
}

var outputClassTypes = map[string]domain.NodeType{
	"volume":     domain.NodeTypeVolume,
	"section":    domain.NodeTypeSection,
	"part":       domain.NodeTypePart,
	"definition": domain.NodeTypeDefinition,
}

var tagTypes = map[string]domain.NodeType{
	"specification": domain.NodeTypeSpecification,
	"clause":        domain.NodeTypeClause,
	"subclause":     domain.NodeTypeSubclause,
}

func nodeType(el *extract.Element) domain.NodeType {
	if t, ok := outputClassTypes[strings.ToLower(el.Attr("outputclass"))]; ok {
		return t
	}
	if t, ok := tagTypes[el.Tag]; ok {
		return t
	}
	return domain.NodeTypeClause
}

// Build produces the node tree for one parsed document. Nodes come back in
// depth-first order with paths already materialized.
func (b *Builder) Build(documentID string, p *extract.Parsed) []*domain.Node {
	visited := map[string]bool{p.Basename: true}
	return b.build(documentID, p, "", "", 0, visited)
}

func (b *Builder) build(documentID string, p *extract.Parsed, parentID, parentPath string, depth int, visited map[string]bool) []*domain.Node {
	root := b.newNode(documentID, p.Root, parentID, parentPath, depth)
	root.Reference = p.ReferenceCode
	root.Title = p.Title
	root.Text = directText(p.Root)
	root.Path = childPath(parentPath, root.Reference, root.Type)
	root.ContentHash = contentHash(root)

	nodes := []*domain.Node{root}
	nodes = append(nodes, b.children(documentID, p.Root, root, visited)...)
	return nodes
}

func (b *Builder) children(documentID string, el *extract.Element, parent *domain.Node, visited map[string]bool) []*domain.Node {
	var nodes []*domain.Node
	for _, c := range el.Children {
		switch c.Tag {
		case "subclause":
			n := b.newNode(documentID, c, parent.ID, parent.Path, parent.Depth+1)
			if num := c.Child("num"); num != nil {
				n.Reference = strings.Join(strings.Fields(num.Text), " ")
			}
			if title := c.Child("title"); title != nil {
				n.Title = title.FlatText()
			}
			n.Text = directText(c)
			n.Path = childPath(parent.Path, n.Reference, n.Type)
			n.ContentHash = contentHash(n)
			nodes = append(nodes, n)
			nodes = append(nodes, b.children(documentID, c, n, visited)...)
		case "clauseref", "subtopic":
			nodes = append(nodes, b.inline(c, parent, visited)...)
		}
	}
	return nodes
}

// inline grafts a referenced document's tree under the current node. An
// unresolvable or already-visited target is skipped rather than failed: the
// target document still gets its own standalone tree.
func (b *Builder) inline(el *extract.Element, parent *domain.Node, visited map[string]bool) []*domain.Node {
	ref := el.Attr("href")
	if ref == "" {
		ref = el.Attr("conref")
	}
	base := refs.TargetBasename(ref)
	if base == "" || visited[base] || b.lookup == nil {
		return nil
	}
	target, targetDocID, ok := b.lookup(base)
	if !ok {
		return nil
	}
	visited[base] = true
	nodes := b.build(targetDocID, target, parent.ID, parent.Path, parent.Depth+1, visited)
	for _, n := range nodes {
		if n.Metadata == nil {
			n.Metadata = make(map[string]string, 1)
		}
		n.Metadata["inlined_from"] = base
	}
	delete(visited, base)
	return nodes
}

func (b *Builder) newNode(documentID string, el *extract.Element, parentID, parentPath string, depth int) *domain.Node {
	b.sort++
	return &domain.Node{
		ID:         domain.NewID(),
		RunID:      b.runID,
		DocumentID: documentID,
		Type:       nodeType(el),
		ParentID:   parentID,
		SortOrder:  b.sort,
		Depth:      depth,
		CreatedAt:  time.Now(),
	}
}

func childPath(parentPath, reference string, typ domain.NodeType) string {
	seg := reference
	if seg == "" {
		seg = string(typ)
	}
	seg = strings.ReplaceAll(seg, "/", "-")
	if parentPath == "" {
		return seg
	}
	return parentPath + "/" + seg
}

// directText collects the element's own paragraph-level text, leaving
// subclause and cross-document content to their own nodes.
func directText(el *extract.Element) string {
	var parts []string
	for _, c := range el.Children {
		switch c.Tag {
		case "sptc", "num", "archive-num", "title", "subclause", "clauseref", "subtopic":
		default:
			if t := c.FlatText(); t != "" {
				parts = append(parts, t)
			}
		}
	}
	return strings.Join(parts, " ")
}

// contentHash fingerprints a node for change detection across runs. Only
// the leading slice of text participates so trailing edits in long clauses
// stay cheap to compare.
func contentHash(n *domain.Node) string {
	text := n.Text
	if len(text) > 64 {
		text = text[:64]
	}
	sum := blake2b.Sum256([]byte(n.Reference + "\x00" + n.Title + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
