package qc

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// The static scan reads the unflattened QC tree for material references the
// compiler's own report may not include: skin-group entries, material
// renames, and the $cdmaterials search bases they combine with.

// ReadIncludes walks $include directives from qcPath, returning every
// transitively included file that exists. A visited set keeps self-referential
// chains finite; missing targets are skipped.
func ReadIncludes(qcPath string) []string {
	visited := make(map[string]bool)
	var includes []string

	var scan func(path string)
	scan = func(path string) {
		canon := canonicalPath(path)
		if visited[canon] {
			return
		}
		visited[canon] = true

		f, err := os.Open(canon)
		if err != nil {
			return
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(strings.ToLower(line), "$include") {
				continue
			}
			raw := strings.TrimSpace(line[len("$include"):])
			raw = unquote(raw)
			if raw == "" {
				continue
			}
			target := filepath.Join(filepath.Dir(canon), filepath.FromSlash(raw))
			if info, err := os.Stat(target); err == nil && !info.IsDir() {
				includes = append(includes, target)
				scan(target)
			}
		}
	}

	scan(qcPath)
	return includes
}

// ReadMaterials extracts material names from a QC file and its includes,
// combining the compiler-reported (dumped) names with skin-group entries,
// applying $renamematerial mappings, and prefixing each with every
// $cdmaterials base.
func ReadMaterials(qcPath string, dumped []string) []string {
	if _, err := os.Stat(qcPath); err != nil {
		return dumped
	}

	renames := parseRenames(qcPath)
	cdmats := parseCDMaterials(qcPath)
	skins := parseSkinFamilies(qcPath)

	for _, inc := range ReadIncludes(qcPath) {
		for k, v := range parseRenames(inc) {
			renames[k] = v
		}
		cdmats = append(cdmats, parseCDMaterials(inc)...)
		skins = append(skins, parseSkinFamilies(inc)...)
	}

	rename := func(m string) string {
		if to, ok := renames[m]; ok {
			return to
		}
		return m
	}

	renamedDumps := make([]string, 0, len(dumped))
	for _, m := range dumped {
		renamedDumps = append(renamedDumps, rename(m))
	}

	all := append([]string{}, renamedDumps...)
	for _, m := range skins {
		all = append(all, rename(m))
	}

	var combined []string
	if len(cdmats) > 0 {
		for _, base := range cdmats {
			base = strings.TrimRight(base, "/")
			for _, m := range all {
				combined = append(combined, base+"/"+m)
			}
		}
	} else {
		combined = all
	}

	return append(renamedDumps, combined...)
}

// parseRenames collects $renamematerial from→to pairs.
func parseRenames(path string) map[string]string {
	renames := make(map[string]string)
	forEachDirective(path, "$renamematerial", func(rest string) {
		args := pathTokens(rest)
		if len(args) == 2 {
			renames[args[0]] = args[1]
		}
	})
	return renames
}

// parseCDMaterials collects $cdmaterials search bases.
func parseCDMaterials(path string) []string {
	var bases []string
	forEachDirective(path, "$cdmaterials", func(rest string) {
		bases = append(bases, pathTokens(rest)...)
	})
	return bases
}

// parseSkinFamilies extracts the quoted material names inside a
// $texturegroup "skinfamilies" block.
func parseSkinFamilies(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := splitLines(string(data))

	var mats []string
	for i := 0; i < len(lines); i++ {
		lower := strings.ToLower(strings.TrimSpace(lines[i]))
		if !strings.HasPrefix(lower, "$texturegroup") || !strings.Contains(lower, "skinfamilies") {
			continue
		}
		for i < len(lines) && !strings.Contains(lines[i], "{") {
			i++
		}
		i++
		for i < len(lines) && !strings.Contains(lines[i], "}") {
			mats = append(mats, quotedTokens(lines[i])...)
			i++
		}
	}
	return mats
}

// forEachDirective calls fn with the argument text of every line starting
// with the given directive keyword.
func forEachDirective(path, directive string, fn func(rest string)) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(strings.ToLower(line), directive) {
			continue
		}
		fn(strings.TrimSpace(line[len(directive):]))
	}
}

// pathTokens splits quote-aware and normalizes backslashes to slashes.
func pathTokens(s string) []string {
	toks := splitQuoted(s)
	out := make([]string, 0, len(toks))
	for _, t := range toks {
		t = strings.TrimSpace(strings.ReplaceAll(t, "\\", "/"))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// quotedTokens returns only the double-quoted runs of a line, normalized.
func quotedTokens(line string) []string {
	var toks []string
	var buf strings.Builder
	inQuote := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '"' {
			if inQuote {
				t := strings.TrimSpace(strings.ReplaceAll(buf.String(), "\\", "/"))
				if t != "" {
					toks = append(toks, t)
				}
				buf.Reset()
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			buf.WriteByte(c)
		}
	}
	return toks
}
