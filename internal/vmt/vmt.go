// Package vmt resolves material (shader) descriptions and relocates them,
// together with the textures they reference, into an output tree. Patch
// materials inherit a base material's textures and override a subset via
// replace/insert blocks.
package vmt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// textureKeys is the allow-list of texture-reference parameters recognized
// in material descriptions, matched case-insensitively.
var textureKeys = map[string]bool{
	"$basetexture":          true,
	"$basetexture2":         true,
	"$bumpmap":              true,
	"$bumpmap2":             true,
	"$normalmap":            true,
	"$phongexponenttexture": true,
	"$envmapmask":           true,
	"$detail":               true,
	"$selfillummask":        true,
	"$lightwarptexture":     true,
	"$ambientoccltexture":   true,
}

// Descriptor is the parsed representation of one material description.
// Non-patch materials carry their texture references in Textures; patch
// materials carry an include target plus Replace/Insert overrides.
type Descriptor struct {
	Path    string
	IsPatch bool
	Include string

	Textures map[string]string
	Replace  map[string]string
	Insert   map[string]string
}

// ParseFile parses the material description at path.
func ParseFile(path string) (*Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vmt: %w", err)
	}
	defer f.Close()

	d, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse vmt %s: %w", path, err)
	}
	d.Path = path
	return d, nil
}

// Parse reads a material description. The first non-comment, non-blank line
// decides patch-ness; for patch materials only replace/insert block entries
// count, for plain materials every recognized texture key counts.
func Parse(r io.Reader) (*Descriptor, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	d := &Descriptor{
		Textures: make(map[string]string),
		Replace:  make(map[string]string),
		Insert:   make(map[string]string),
	}

	first := true
	depth := 0
	block := ""     // active replace/insert block
	blockDepth := 0 // depth the active block opened at
	pending := ""   // block keyword awaiting its opening brace

	for scanner.Scan() {
		line := stripLineComment(scanner.Text())
		rest := strings.TrimSpace(line)
		if rest == "" {
			continue
		}

		if first {
			if toks := splitQuoted(rest); len(toks) > 0 {
				d.IsPatch = strings.EqualFold(toks[0], "patch")
			}
			first = false
			// The shader name may share a line with its opening brace.
			i := strings.IndexAny(rest, "{}")
			if i < 0 {
				continue
			}
			rest = rest[i:]
		}

		for rest != "" {
			switch rest[0] {
			case '{':
				depth++
				if pending != "" {
					block = pending
					blockDepth = depth
					pending = ""
				}
				rest = strings.TrimSpace(rest[1:])
				continue
			case '}':
				if block != "" && depth == blockDepth {
					block = ""
				}
				depth--
				rest = strings.TrimSpace(rest[1:])
				continue
			}

			var content string
			if i := strings.IndexAny(rest, "{}"); i >= 0 {
				content = strings.TrimSpace(rest[:i])
				rest = rest[i:]
			} else {
				content = rest
				rest = ""
			}
			if content == "" {
				continue
			}

			toks := splitQuoted(content)
			if len(toks) == 0 {
				continue
			}
			key := strings.ToLower(toks[0])
			switch {
			case key == "replace" || key == "insert":
				pending = key
			case key == "include" && len(toks) >= 2:
				d.Include = normalizePath(toks[1])
			case textureKeys[key] && len(toks) >= 2:
				value := normalizePath(toks[1])
				switch {
				case d.IsPatch && block == "replace":
					d.Replace[key] = value
				case d.IsPatch && block == "insert":
					d.Insert[key] = value
				case !d.IsPatch:
					d.Textures[key] = value
				}
			}
		}
	}
	return d, scanner.Err()
}

// EffectiveTextures merges the chain for this descriptor given the included
// base's resolved textures: base first, then insert, then replace; plain
// materials contribute their own entries.
func (d *Descriptor) EffectiveTextures(included map[string]string) map[string]string {
	final := make(map[string]string, len(included)+len(d.Insert)+len(d.Replace)+len(d.Textures))
	for k, v := range included {
		final[k] = v
	}
	for k, v := range d.Insert {
		final[k] = v
	}
	for k, v := range d.Replace {
		final[k] = v
	}
	if !d.IsPatch {
		for k, v := range d.Textures {
			final[k] = v
		}
	}
	return final
}

// rewriteTargets returns the texture entries whose reference lines should be
// rewritten in this descriptor's own text.
func (d *Descriptor) rewriteTargets() map[string]string {
	if !d.IsPatch {
		return d.Textures
	}
	targets := make(map[string]string, len(d.Replace)+len(d.Insert))
	for k, v := range d.Insert {
		targets[k] = v
	}
	for k, v := range d.Replace {
		targets[k] = v
	}
	return targets
}

func stripLineComment(line string) string {
	inQuote := false
	for i := 0; i < len(line)-1; i++ {
		switch line[i] {
		case '"':
			inQuote = !inQuote
		case '/':
			if !inQuote && line[i+1] == '/' {
				return line[:i]
			}
		}
	}
	return line
}

func normalizePath(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}

// splitQuoted splits on whitespace, keeping quoted runs together with their
// quotes removed.
func splitQuoted(s string) []string {
	var toks []string
	var buf strings.Builder
	inQuote := false
	flush := func() {
		if buf.Len() > 0 {
			toks = append(toks, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			if inQuote {
				toks = append(toks, buf.String())
				buf.Reset()
				inQuote = false
			} else {
				flush()
				inQuote = true
			}
		case (c == ' ' || c == '\t') && !inQuote:
			flush()
		default:
			buf.WriteByte(c)
		}
	}
	flush()
	return toks
}
