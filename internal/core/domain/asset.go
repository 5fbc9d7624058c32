package domain

import "time"

// Asset is one uploaded binary (image/PDF) extracted from the archive.
type Asset struct {
	ID          string    `json:"id"`
	RunID       string    `json:"run_id"`
	Filename    string    `json:"filename"`
	Key         string    `json:"key"` // object-storage key
	ContentType string    `json:"content_type,omitempty"`
	Width       int       `json:"width,omitempty"`
	Height      int       `json:"height,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AssetPlacement joins an Asset to the Document/Block where it appears.
type AssetPlacement struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	AssetID    string    `json:"asset_id"`
	DocumentID string    `json:"document_id"`
	BlockID    string    `json:"block_id,omitempty"`
	Caption    string    `json:"caption,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
