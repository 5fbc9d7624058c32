package domain

import "time"

// XMLObject is one XML entry from the archive, classified once during
// discovery and immutable thereafter.
type XMLObject struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Basename    string    `json:"basename"` // unique within a run
	RootTag     string    `json:"root_tag"`
	OutputClass string    `json:"outputclass,omitempty"`
	Checksum    string    `json:"checksum"`
	Raw         string    `json:"raw,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentBearing reports whether the entry carries a clause or specification.
func (x *XMLObject) DocumentBearing() bool {
	return x.RootTag == "clause" || x.RootTag == "specification"
}

// DocType identifies the flavor of a document-bearing entry
type DocType string

const (
	DocTypeClause        DocType = "clause"
	DocTypeSpecification DocType = "specification"
)

// Document is one clause or specification extracted from a source XML entry.
// Exactly one Document exists per document-bearing XMLObject.
type Document struct {
	ID            string    `json:"id"`
	RunID         string    `json:"run_id"`
	XMLObjectID   string    `json:"xml_object_id"`
	Basename      string    `json:"basename"`
	ReferenceCode string    `json:"reference_code"` // human citation, e.g. "A1G1"
	Title         string    `json:"title"`
	ArchiveNum    string    `json:"archive_num,omitempty"`
	Jurisdiction  string    `json:"jurisdiction,omitempty"` // empty = national
	DocType       DocType   `json:"doc_type"`
	CreatedAt     time.Time `json:"created_at"`
}

// BlockType identifies the kind of an ordered content unit
type BlockType string

const (
	BlockTypeHeading   BlockType = "heading"
	BlockTypeParagraph BlockType = "paragraph"
	BlockTypeList      BlockType = "list"
	BlockTypeNote      BlockType = "note"
	BlockTypeTable     BlockType = "table"
	BlockTypeImage     BlockType = "image"
)

// Block is one ordered content unit belonging to a Document. Ordinal defines
// render order and is strictly increasing with no gaps within a document.
type Block struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	DocumentID string    `json:"document_id"`
	Ordinal    int       `json:"ordinal"`
	Type       BlockType `json:"type"`
	Text       string    `json:"text"`

	// Structured payloads, populated per block type.
	Items       []string   `json:"items,omitempty"`        // list
	TableHeader []string   `json:"table_header,omitempty"` // table
	TableRows   [][]string `json:"table_rows,omitempty"`   // table
	ImageRef    string     `json:"image_ref,omitempty"`    // image: unresolved descriptor

	// Patched after asset upload when the descriptor resolves.
	AssetID  string `json:"asset_id,omitempty"`
	AssetKey string `json:"asset_key,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NodeType classifies a hierarchy entry
type NodeType string

const (
	NodeTypeVolume        NodeType = "volume"
	NodeTypeSection       NodeType = "section"
	NodeTypePart          NodeType = "part"
	NodeTypeSpecification NodeType = "specification"
	NodeTypeDefinition    NodeType = "definition"
	NodeTypeClause        NodeType = "clause"
	NodeTypeSubclause     NodeType = "subclause"
)

// Node is one entry in the hierarchical clause/part/section tree, distinct
// from the flat Block sequence. Root nodes have an empty ParentID and depth 0.
type Node struct {
	ID          string            `json:"id"`
	RunID       string            `json:"run_id"`
	DocumentID  string            `json:"document_id"`
	Type        NodeType          `json:"type"`
	Reference   string            `json:"reference,omitempty"` // official citation
	Title       string            `json:"title,omitempty"`
	Text        string            `json:"text,omitempty"`
	ParentID    string            `json:"parent_id,omitempty"`
	SortOrder   int               `json:"sort_order"` // monotonic across the run, never reused
	Path        string            `json:"path"`       // materialized, e.g. "A1/A1G1/1"
	Depth       int               `json:"depth"`
	ContentHash string            `json:"content_hash"` // change detection
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}
