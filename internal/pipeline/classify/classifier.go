// Package classify buckets archive XML entries by root tag without paying
// for a full parse.
package classify

import (
	"encoding/hex"
	"path"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

var (
	// First open tag, namespace prefix tolerated. Skips the XML declaration,
	// comments and doctype because they never start with a name character.
	rootTagRe = regexp.MustCompile(`<\s*(?:[A-Za-z][\w.-]*:)?([A-Za-z][\w.-]*)`)

	outputClassRe = regexp.MustCompile(`outputclass\s*=\s*"([^"]*)"`)
)

// Classify inspects one XML entry just far enough to extract its root tag
// and outputclass attribute, and computes a stable content checksum.
func Classify(runID, entryPath string, content []byte) *domain.XMLObject {
	text := string(content)

	rootTag := ""
	for _, m := range rootTagRe.FindAllStringSubmatch(stripProlog(text), 1) {
		rootTag = strings.ToLower(m[1])
	}

	outputClass := ""
	if m := outputClassRe.FindStringSubmatch(text); m != nil {
		outputClass = m[1]
	}

	sum := blake2b.Sum256(content)

	return &domain.XMLObject{
		ID:          domain.NewID(),
		RunID:       runID,
		Basename:    path.Base(entryPath),
		RootTag:     rootTag,
		OutputClass: outputClass,
		Checksum:    hex.EncodeToString(sum[:]),
		Raw:         text,
		CreatedAt:   time.Now(),
	}
}

// stripProlog removes the XML declaration, comments, and doctype so the
// root-tag regex lands on the first real element.
func stripProlog(text string) string {
	for {
		trimmed := strings.TrimLeft(text, " \t\r\n")
		switch {
		case strings.HasPrefix(trimmed, "<?"):
			end := strings.Index(trimmed, "?>")
			if end < 0 {
				return trimmed
			}
			text = trimmed[end+2:]
		case strings.HasPrefix(trimmed, "<!--"):
			end := strings.Index(trimmed, "-->")
			if end < 0 {
				return trimmed
			}
			text = trimmed[end+3:]
		case strings.HasPrefix(trimmed, "<!"):
			end := strings.Index(trimmed, ">")
			if end < 0 {
				return trimmed
			}
			text = trimmed[end+1:]
		default:
			return trimmed
		}
	}
}
