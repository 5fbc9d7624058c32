// Package refs finds cross-document links inside raw XML content.
package refs

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

var refAttrRe = regexp.MustCompile(`(href|conref)\s*=\s*"([^"]*\.xml[^"]*)"`)

// Scan extracts every href and conref attribute pointing at an XML target
// and emits unresolved reference rows. Resolution to target documents
// happens once the whole run's documents exist.
func Scan(runID, sourceDocumentID string, raw []byte) []*domain.Reference {
	matches := refAttrRe.FindAllSubmatch(raw, -1)
	if len(matches) == 0 {
		return nil
	}

	now := time.Now()
	seen := make(map[string]bool, len(matches))
	var out []*domain.Reference
	for _, m := range matches {
		kind := domain.RefKindCross
		if string(m[1]) == "conref" {
			kind = domain.RefKindContent
		}
		base := TargetBasename(string(m[2]))
		if base == "" {
			continue
		}
		key := string(kind) + ":" + base
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, &domain.Reference{
			ID:               domain.NewID(),
			RunID:            runID,
			SourceDocumentID: sourceDocumentID,
			Kind:             kind,
			TargetBasename:   base,
			CreatedAt:        now,
		})
	}
	return out
}

// TargetBasename strips directories, fragments and query strings from a
// descriptor reference, leaving the bare target filename.
func TargetBasename(ref string) string {
	if i := strings.IndexAny(ref, "#?"); i >= 0 {
		ref = ref[:i]
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	base := path.Base(ref)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
