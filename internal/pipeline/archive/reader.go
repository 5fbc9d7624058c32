// Package archive opens ingestion ZIP archives and locates the XML source
// folder and the optional image-asset folder.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/custodia-labs/codex-ingest/internal/core/domain"
)

// Entry is one usable file from the archive.
type Entry struct {
	Path string
	Data []byte
}

// Layout is the discovered structure of an ingestion archive.
type Layout struct {
	// SourceRoot is the top-level folder holding the XML source files.
	SourceRoot string
	// AssetRoot is the top-level folder holding binary assets; empty when
	// the archive ships no assets.
	AssetRoot string
	// Entries holds every readable file, including those outside both roots.
	Entries []Entry
}

// SourceEntries returns the XML files under the source root.
func (l *Layout) SourceEntries() []Entry {
	var out []Entry
	for _, e := range l.Entries {
		if underRoot(e.Path, l.SourceRoot) && strings.HasSuffix(strings.ToLower(e.Path), ".xml") {
			out = append(out, e)
		}
	}
	return out
}

// AssetEntries returns the files under the asset root, if one was found.
func (l *Layout) AssetEntries() []Entry {
	if l.AssetRoot == "" {
		return nil
	}
	var out []Entry
	for _, e := range l.Entries {
		if underRoot(e.Path, l.AssetRoot) {
			out = append(out, e)
		}
	}
	return out
}

func underRoot(p, root string) bool {
	return root != "" && strings.HasPrefix(p, root+"/")
}

// Folder-name candidates, matched case-insensitively against path segments.
var (
	sourceFolderNames = []string{"xml", "xml files", "xmlfiles", "source", "sptc"}
	assetFolderNames  = []string{"image", "images", "figures", "assets", "media"}
)

// Read opens a ZIP byte stream, drops hidden/system entries, and discovers
// the source and asset folder roots by best-match count over path segments.
// Returns domain.ErrArchiveStructure when no source folder is found; a
// missing asset folder is not an error.
func Read(data []byte) (*Layout, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open zip: %v", domain.ErrArchiveStructure, err)
	}

	var entries []Entry
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || hidden(f.Name) {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
		}
		entries = append(entries, Entry{Path: cleanPath(f.Name), Data: content})
	}

	sourceRoot := bestRoot(entries, sourceFolderNames)
	if sourceRoot == "" {
		return nil, fmt.Errorf("%w: no source-document folder found", domain.ErrArchiveStructure)
	}

	return &Layout{
		SourceRoot: sourceRoot,
		AssetRoot:  bestRoot(entries, assetFolderNames),
		Entries:    entries,
	}, nil
}

// hidden filters resource-fork style entries: any dot-prefixed path segment
// and the macOS __MACOSX tree.
func hidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") || seg == "__MACOSX" {
			return true
		}
	}
	return false
}

func cleanPath(name string) string {
	return strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
}

// bestRoot scans every entry's directory segments for the candidate names
// and picks the root with the highest number of matching files.
func bestRoot(entries []Entry, names []string) string {
	counts := make(map[string]int)
	for _, e := range entries {
		segs := strings.Split(e.Path, "/")
		if len(segs) < 2 {
			continue // top-level file, no folder
		}
		// Only directory segments participate.
		for i, seg := range segs[:len(segs)-1] {
			if !folderNameMatches(seg, names) {
				continue
			}
			root := strings.Join(segs[:i+1], "/")
			counts[root]++
		}
	}

	best, bestCount := "", 0
	for root, count := range counts {
		if count > bestCount || (count == bestCount && root < best) {
			best, bestCount = root, count
		}
	}
	return best
}

func folderNameMatches(seg string, names []string) bool {
	lower := strings.ToLower(seg)
	for _, name := range names {
		if strings.Contains(lower, name) {
			return true
		}
	}
	return false
}
