package adapter

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// withDependencies returns p extended with the files the analyzer reported
// under the project root that the capture did not include, such as library
// sources excluded from discovery. They are read from disk with version 0.
// Files outside the root or unreadable ones are left for Translate to
// reject.
func (a *Adapter) withDependencies(p Project, res *Result) Project {
	have := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		have[f.Path] = true
	}

	var missing []string
	want := func(path string) {
		if have[path] || !underRoot(p.Root, path) {
			return
		}
		have[path] = true
		missing = append(missing, path)
	}
	for _, fr := range res.Files {
		want(fr.Path)
	}
	for _, fd := range res.Findings {
		for _, el := range fd.Elements {
			want(el.Path)
		}
	}
	if len(missing) == 0 {
		return p
	}
	sort.Strings(missing)

	out := Project{Root: p.Root, Files: make([]SourceFile, len(p.Files), len(p.Files)+len(missing))}
	copy(out.Files, p.Files)
	for _, path := range missing {
		data, err := os.ReadFile(path)
		if err != nil {
			a.logger.Debug("dependency file unreadable", slog.String("path", path), slog.Any("error", err))
			continue
		}
		out.Files = append(out.Files, SourceFile{Path: path, Text: string(data)})
	}
	a.logger.Debug("dependency files loaded", slog.Int("count", len(out.Files)-len(p.Files)))
	return out
}

func underRoot(root, path string) bool {
	if root == "" || path == "" || !filepath.IsAbs(path) {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
