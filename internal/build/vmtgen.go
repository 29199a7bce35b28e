package build

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultVMTTemplate = `"VertexLitGeneric"
{
	$basetexture ""
}
`

// WriteVMT writes a material description for an encoded texture. The
// template's $basetexture line is pointed at texture (a materials-relative,
// extensionless path); an empty templatePath uses a minimal default.
func WriteVMT(templatePath, texture, dst string) error {
	text := defaultVMTTemplate
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		if err != nil {
			return fmt.Errorf("read vmt template: %w", err)
		}
		text = string(data)
	}

	found := false
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") {
			continue
		}
		key := strings.ToLower(strings.Trim(firstToken(trimmed), `"`))
		if key != "$basetexture" {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		lines[i] = indent + `$basetexture "` + filepath.ToSlash(texture) + `"`
		found = true
	}
	if !found {
		return fmt.Errorf("vmt template %s has no $basetexture entry", templatePath)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		return fmt.Errorf("write vmt: %w", err)
	}
	return nil
}

func firstToken(s string) string {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i]
	}
	return s
}
