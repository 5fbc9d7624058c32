package domain

import "time"

// RefKind distinguishes citation-style links from content transclusion
type RefKind string

const (
	// RefKindCross is a hyperlink-style cross-reference (href).
	RefKindCross RefKind = "xref"
	// RefKindContent is a content-reference/transclusion (conref).
	RefKindContent RefKind = "conref"
)

// Reference is a directed edge from a source Document (optionally a specific
// Block) to a target Document. A reference whose target basename was not
// ingested in the same run keeps its raw basename and an empty target ID
// rather than being dropped.
type Reference struct {
	ID               string    `json:"id"`
	RunID            string    `json:"run_id"`
	SourceDocumentID string    `json:"source_document_id"`
	BlockID          string    `json:"block_id,omitempty"`
	Kind             RefKind   `json:"kind"`
	TargetBasename   string    `json:"target_basename"`
	TargetDocumentID string    `json:"target_document_id,omitempty"` // empty = unresolved
	CreatedAt        time.Time `json:"created_at"`
}

// Resolved reports whether the target was matched to a same-run document.
func (r *Reference) Resolved() bool {
	return r.TargetDocumentID != ""
}
