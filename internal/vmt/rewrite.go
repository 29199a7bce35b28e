package vmt

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rewriteShader writes the localized form of a copied material: the include
// line of a patch material points at the relocated base, and every texture
// reference the material itself declares points at the relocated texture.
// Leading whitespace of each rewritten line is preserved; everything else
// passes through untouched.
func (c *Copier) rewriteShader(src, destVMT string, d *Descriptor, includedDest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}

	targets := d.rewriteTargets()
	keys := make([]string, 0, len(targets))
	for k := range targets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "//") {
			continue
		}
		if d.IsPatch && includedDest != "" && isIncludeLine(trimmed) {
			rel, err := filepath.Rel(c.DestRoot, includedDest)
			if err != nil {
				rel = includedDest
			}
			lines[i] = leadingSpace(line) + `include "` + filepath.ToSlash(rel) + `"`
			continue
		}
		if rewritten, ok := c.rewriteTextureLine(line, keys, targets, destVMT); ok {
			lines[i] = rewritten
		}
	}

	if err := os.WriteFile(destVMT, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", destVMT, err)
	}
	return nil
}

// rewriteTextureLine rewrites one texture-reference line if it names one of
// the target keys and its texture resolved. The replacement path is relative
// to the destination materials root, extensionless, forward-slashed.
func (c *Copier) rewriteTextureLine(line string, keys []string, targets map[string]string, destVMT string) (string, bool) {
	lower := strings.ToLower(line)
	for _, key := range keys {
		if !containsKey(lower, key) {
			continue
		}
		file := c.findTexture(targets[key])
		if file == "" {
			continue
		}
		dest := c.textureDest(file, destVMT, false)
		rel, err := filepath.Rel(filepath.Join(c.DestRoot, "materials"), dest)
		if err != nil {
			rel = filepath.Base(dest)
		}
		rel = strings.TrimSuffix(filepath.ToSlash(rel), filepath.Ext(rel))
		return leadingSpace(line) + key + ` "` + rel + `"`, true
	}
	return "", false
}

// containsKey reports whether line names key as a whole parameter, so that
// "$basetexture" does not claim a "$basetexture2" line.
func containsKey(lower, key string) bool {
	i := strings.Index(lower, key)
	if i < 0 {
		return false
	}
	end := i + len(key)
	if end < len(lower) {
		c := lower[end]
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_' {
			return false
		}
	}
	return true
}

func isIncludeLine(trimmed string) bool {
	return strings.HasPrefix(strings.ToLower(trimmed), "include") &&
		strings.Contains(trimmed, `"`)
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
