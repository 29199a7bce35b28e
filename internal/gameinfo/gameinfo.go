// Package gameinfo reads a game definition file and extracts its content
// search paths, the ordered roots that material and texture lookups walk.
package gameinfo

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Info describes one parsed game definition.
type Info struct {
	Path        string   // the definition file itself
	Dir         string   // the mod directory containing it
	SearchPaths []string // absolute content roots, highest priority first
}

// Load parses the game definition at path. Search path entries are resolved
// to absolute directories: |gameinfo_path| expands to the mod directory,
// |all_source_engine_paths| to its parent, relative entries hang off the
// parent, archive entries and wildcards are dropped or trimmed. When the
// file declares no search paths the mod directory itself is the only root.
func Load(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gameinfo: %w", err)
	}
	defer f.Close()

	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	info := &Info{Path: path, Dir: dir}
	engineRoot := filepath.Dir(dir)

	scanner := bufio.NewScanner(f)
	inBlock := false
	depth := 0
	seen := make(map[string]bool)
	for scanner.Scan() {
		line := strings.TrimSpace(stripComment(scanner.Text()))
		if line == "" {
			continue
		}
		if !inBlock {
			if strings.EqualFold(strings.Trim(line, `"`), "searchpaths") {
				inBlock = true
			}
			continue
		}
		switch line {
		case "{":
			depth++
			continue
		case "}":
			depth--
			if depth <= 0 {
				inBlock = false
			}
			continue
		}

		toks := fields(line)
		if len(toks) < 2 {
			continue
		}
		keys := strings.ToLower(toks[0])
		if !strings.Contains(keys, "game") && !strings.Contains(keys, "mod") {
			continue
		}
		resolved, ok := resolveEntry(toks[1], dir, engineRoot)
		if !ok {
			continue
		}
		lower := strings.ToLower(resolved)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		info.SearchPaths = append(info.SearchPaths, resolved)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read gameinfo: %w", err)
	}

	if len(info.SearchPaths) == 0 {
		info.SearchPaths = []string{dir}
	}
	return info, nil
}

func resolveEntry(value, dir, engineRoot string) (string, bool) {
	v := strings.ReplaceAll(strings.TrimSpace(value), "\\", "/")
	if v == "" {
		return "", false
	}
	if strings.HasSuffix(strings.ToLower(v), ".vpk") {
		return "", false
	}
	v = strings.TrimSuffix(v, "/*")
	v = strings.TrimSuffix(v, "*")

	const (
		giPath   = "|gameinfo_path|"
		allPaths = "|all_source_engine_paths|"
	)
	switch {
	case strings.HasPrefix(strings.ToLower(v), giPath):
		v = filepath.Join(dir, filepath.FromSlash(v[len(giPath):]))
	case strings.HasPrefix(strings.ToLower(v), allPaths):
		v = filepath.Join(engineRoot, filepath.FromSlash(v[len(allPaths):]))
	case !filepath.IsAbs(filepath.FromSlash(v)):
		v = filepath.Join(engineRoot, filepath.FromSlash(v))
	default:
		v = filepath.FromSlash(v)
	}
	return filepath.Clean(v), true
}

func stripComment(line string) string {
	if i := strings.Index(line, "//"); i >= 0 {
		return line[:i]
	}
	return line
}

func fields(line string) []string {
	var toks []string
	var buf strings.Builder
	inQuote := false
	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuote {
				toks = append(toks, buf.String())
				buf.Reset()
			} else {
				flush()
			}
			inQuote = !inQuote
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return toks
}
