// Package build orchestrates the asset pipelines: model compiles, material
// resolution, texture encoding, data processing and packaging.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/karou/srcbuild/internal/logx"
)

// ModelCompiler wraps the external model compiler binary.
type ModelCompiler struct {
	Exe     string
	GameDir string // passed as -game; compiled artifacts land under it
	Log     logx.Sink
}

// CompileResult is what one compiler run produced, scraped from its output.
type CompileResult struct {
	Artifacts []string // written model files, as reported by the compiler
	Materials []string // material names from the dump, in report order
}

// Compile runs the compiler on one QC file. The compiler's stdout is scraped
// for written-artifact and dumped-material lines; a nonzero exit is fatal
// for this model but the scrape is still returned for diagnostics.
func (c *ModelCompiler) Compile(ctx context.Context, qcPath string) (*CompileResult, error) {
	args := []string{"-nop4", "-verbose", "-dumpmaterials"}
	if c.GameDir != "" {
		args = append(args, "-game", c.GameDir)
	}
	args = append(args, qcPath)

	cmd := exec.CommandContext(ctx, c.Exe, args...)
	cmd.Dir = filepath.Dir(qcPath)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	c.Log.Debugf("run %s %s", c.Exe, strings.Join(args, " "))
	runErr := cmd.Run()
	res := parseCompilerOutput(out.String())

	if runErr != nil {
		return res, fmt.Errorf("model compiler %s: %w\n%s", filepath.Base(qcPath), runErr, tail(out.String(), 20))
	}
	if len(res.Artifacts) == 0 {
		c.Log.Warnf("compiler reported no written artifacts for %s", filepath.Base(qcPath))
	}
	return res, nil
}

// parseCompilerOutput extracts "writing <path>" artifact lines and
// "material <n> <name>" dump lines.
func parseCompilerOutput(out string) *CompileResult {
	res := &CompileResult{}
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "writing "):
			path := strings.TrimSuffix(strings.TrimSpace(line[len("writing "):]), ":")
			if strings.EqualFold(filepath.Ext(path), ".mdl") {
				res.Artifacts = append(res.Artifacts, path)
			}
		case strings.HasPrefix(lower, "material "):
			fields := strings.Fields(line)
			if len(fields) >= 3 {
				if _, err := strconv.Atoi(fields[1]); err == nil {
					name := strings.Trim(strings.Join(fields[2:], " "), `"`)
					res.Materials = append(res.Materials, strings.ReplaceAll(name, "\\", "/"))
				}
			}
		}
	}
	return res
}

// MoveArtifacts relocates a compiled model and its sibling files (vertex,
// physics, animation and LOD data sharing the model's stem) from the game
// tree into exportRoot, keeping the path from its models/ component onward.
// It returns the destination model path.
func MoveArtifacts(mdlPath, exportRoot string, log logx.Sink) (string, error) {
	rel := relFromComponent(mdlPath, "models")
	destMDL := filepath.Join(exportRoot, rel)

	dir := filepath.Dir(mdlPath)
	stem := strings.TrimSuffix(filepath.Base(mdlPath), filepath.Ext(mdlPath))
	matches, err := filepath.Glob(filepath.Join(dir, stem+".*"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no compiled artifacts at %s", mdlPath)
	}

	destDir := filepath.Dir(destMDL)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", destDir, err)
	}
	for _, src := range matches {
		dst := filepath.Join(destDir, filepath.Base(src))
		if err := moveFile(src, dst); err != nil {
			return "", err
		}
		log.Debugf("moved %s", filepath.Base(src))
	}
	return destMDL, nil
}

// relFromComponent returns path from its first case-insensitive match of
// component onward, falling back to component/basename.
func relFromComponent(path, component string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if strings.EqualFold(part, component) {
			return filepath.FromSlash(strings.Join(parts[i:], "/"))
		}
	}
	return filepath.Join(component, filepath.Base(path))
}

// moveFile renames, falling back to copy-and-remove across filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("move %s: %w", dst, err)
	}
	return os.Remove(src)
}

// tail returns the last n lines of s.
func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
