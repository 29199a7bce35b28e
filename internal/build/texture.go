package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/imaging"
	"github.com/karou/srcbuild/internal/logx"
)

// textureEncoder is what the runner needs from an encoder.
type textureEncoder interface {
	Encode(ctx context.Context, src, dst string, set *config.VTFSettings) error
}

// TextureRunner drives the texture pipeline: match each group's inputs,
// skip sources whose outputs are current, encode the rest, and keep output
// mtimes synced to their sources so the skip rule stays stable.
type TextureRunner struct {
	Cfg     *config.Config
	Encoder textureEncoder
	Cache   *Cache
	OutRoot string
	Log     logx.Sink

	Force          bool // re-encode even when current
	AllowReprocess bool // let later groups re-encode an already handled source
	Recursive      bool // walk into subdirectories for dir and pattern inputs

	processed map[string]bool
}

// Run processes every texture group in name order.
func (r *TextureRunner) Run(ctx context.Context) error {
	if r.processed == nil {
		r.processed = make(map[string]bool)
	}
	names := make([]string, 0, len(r.Cfg.Textures))
	for name := range r.Cfg.Textures {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := r.runGroup(ctx, name, r.Cfg.Textures[name]); err != nil {
			return fmt.Errorf("texture group %s: %w", name, err)
		}
	}
	return nil
}

func (r *TextureRunner) runGroup(ctx context.Context, name string, job config.TextureJob) error {
	input := r.Cfg.ResolvePath(job.Input)
	sources, root, err := r.matchSources(input)
	if err != nil {
		return err
	}
	if len(sources) == 0 {
		r.Log.Warnf("group %s matched no inputs: %s", name, job.Input)
		return nil
	}
	r.Log.Infof("group %s: %d input(s)", name, len(sources))

	for _, src := range sources {
		dst := r.outputPath(src, root, job.Output, len(sources) == 1)
		if err := r.encodeOne(ctx, src, dst, job.VTF); err != nil {
			return err
		}
	}
	return nil
}

// matchSources expands an input spec into concrete files plus the root the
// outputs mirror from. A spec is a file, a directory, or a glob pattern in
// its final element.
func (r *TextureRunner) matchSources(input string) ([]string, string, error) {
	if info, err := os.Stat(input); err == nil {
		if !info.IsDir() {
			return []string{input}, filepath.Dir(input), nil
		}
		files, err := r.collect(input, "*")
		return files, input, err
	}
	dir, pattern := filepath.Split(input)
	dir = filepath.Clean(dir)
	if _, err := os.Stat(dir); err != nil {
		return nil, "", fmt.Errorf("input not found: %s", input)
	}
	files, err := r.collect(dir, pattern)
	return files, dir, err
}

// collect gathers encodable files under dir whose names match pattern,
// descending only when the runner is recursive.
func (r *TextureRunner) collect(dir, pattern string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !r.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		ok, err := filepath.Match(pattern, d.Name())
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok && encodable(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// outputPath places the texture for src. An output spec naming a .vtf file
// binds a single source directly; anything else is a directory under the
// output root, mirroring src's position below the match root.
func (r *TextureRunner) outputPath(src, root, outSpec string, single bool) string {
	outSpec = strings.TrimLeft(filepath.ToSlash(outSpec), "/")
	if single && strings.EqualFold(filepath.Ext(outSpec), ".vtf") {
		return filepath.Join(r.OutRoot, filepath.FromSlash(outSpec))
	}
	rel, err := filepath.Rel(root, filepath.Dir(src))
	if err != nil || rel == "." {
		rel = ""
	}
	return filepath.Join(r.OutRoot, filepath.FromSlash(outSpec), rel, stem(src)+".vtf")
}

func (r *TextureRunner) encodeOne(ctx context.Context, src, dst string, set *config.VTFSettings) error {
	key := cacheKey(src)
	if r.processed[key] && !r.AllowReprocess {
		r.Log.Debugf("already processed, skipping %s", filepath.Base(src))
		return nil
	}
	r.processed[key] = true

	if !r.Force && r.Cache.UpToDate(src, dst) {
		r.Log.Infof("up to date: %s", filepath.Base(src))
		return nil
	}

	r.Log.Infof("encoding %s", filepath.Base(src))
	if err := r.Encoder.Encode(ctx, src, dst, set); err != nil {
		return err
	}
	if info, err := os.Stat(src); err == nil {
		if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
			r.Log.Warnf("sync mtime %s: %v", dst, err)
		}
	}
	if err := r.Cache.Record(src, dst); err != nil {
		r.Log.Warnf("%v", err)
	}
	return nil
}

func encodable(path string) bool {
	return imaging.SupportedInput(path) || strings.EqualFold(filepath.Ext(path), ".vtf")
}
