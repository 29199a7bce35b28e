package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/karou/srcbuild/internal/logx"
)

// Packager wraps the external archive packager binary.
type Packager struct {
	Exe string
	Log logx.Sink
}

// Package archives dir into a sibling <dir>.vpk and returns the archive
// path. The packager writes the archive next to the input directory.
func (p *Packager) Package(ctx context.Context, dir string) (string, error) {
	if p.Exe == "" {
		return "", fmt.Errorf("no packager configured")
	}
	cmd := exec.CommandContext(ctx, p.Exe, dir)
	cmd.Dir = filepath.Dir(dir)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	p.Log.Debugf("run %s %s", p.Exe, dir)
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("packager %s: %w\n%s", filepath.Base(dir), err, tail(out.String(), 10))
	}
	return dir + ".vpk", nil
}
