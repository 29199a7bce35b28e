package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/logx"
)

// encoderFlags maps texture flag names to dedicated encoder switches; flags
// not listed here pass through as -flag <NAME>.
var encoderFlags = map[string]string{
	"nomip": "-nomipmaps",
	"nolod": "-nolod",
}

// TextureEncoder wraps the external texture encoder binary.
type TextureEncoder struct {
	Exe string
	Log logx.Sink
}

// Encode converts src into the texture at dst. A src that already is a
// texture is copied as-is. The encoder names its output after the source
// stem, so the result is renamed when dst asks for something else.
func (e *TextureEncoder) Encode(ctx context.Context, src, dst string, set *config.VTFSettings) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	if strings.EqualFold(filepath.Ext(src), ".vtf") {
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read texture: %w", err)
		}
		return os.WriteFile(dst, data, 0o644)
	}
	if e.Exe == "" {
		return fmt.Errorf("no texture encoder configured for %s", src)
	}

	args := encoderArgs(src, filepath.Dir(dst), set)
	cmd := exec.CommandContext(ctx, e.Exe, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	e.Log.Debugf("run %s %s", e.Exe, strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("texture encoder %s: %w\n%s", filepath.Base(src), err, tail(out.String(), 10))
	}

	produced := filepath.Join(filepath.Dir(dst), stem(src)+".vtf")
	if produced != dst {
		if err := moveFile(produced, dst); err != nil {
			return fmt.Errorf("rename encoder output: %w", err)
		}
	}
	if _, err := os.Stat(dst); err != nil {
		return fmt.Errorf("encoder produced no output for %s", src)
	}
	return nil
}

func encoderArgs(src, outDir string, set *config.VTFSettings) []string {
	args := []string{"-file", src, "-output", outDir}
	if set != nil {
		if set.Format != "" {
			args = append(args, "-format", strings.ToLower(set.Format))
		}
		if set.Version != "" {
			args = append(args, "-version", set.Version)
		}
		for _, flag := range set.Flags {
			if sw, ok := encoderFlags[strings.ToLower(flag)]; ok {
				args = append(args, sw)
			} else {
				args = append(args, "-flag", strings.ToUpper(flag))
			}
		}
		args = append(args, set.EncoderArgs...)
	}
	return args
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
