package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/karou/srcbuild/internal/config"
)

type fakeEncoder struct {
	encoded []string
}

func (f *fakeEncoder) Encode(_ context.Context, src, dst string, _ *config.VTFSettings) error {
	f.encoded = append(f.encoded, src)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte("vtf"), 0o644)
}

func newTextureRunner(t *testing.T, jobs map[string]config.TextureJob) (*TextureRunner, *fakeEncoder, string, string) {
	t.Helper()
	srcDir := t.TempDir()
	outDir := t.TempDir()
	cfg := &config.Config{Header: config.HeaderTexture, Textures: jobs}
	cfg.SetBaseDir(srcDir)
	enc := &fakeEncoder{}
	r := &TextureRunner{Cfg: cfg, Encoder: enc, OutRoot: outDir, Log: nopSink{}}
	return r, enc, srcDir, outDir
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestTextureRunSingleFile(t *testing.T) {
	r, enc, srcDir, outDir := newTextureRunner(t, map[string]config.TextureJob{
		"logo": {Input: "logo.tga", Output: "materials/ui/logo.vtf"},
	})
	touch(t, filepath.Join(srcDir, "logo.tga"))

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 1 {
		t.Fatalf("encoded = %v", enc.encoded)
	}
	if _, err := os.Stat(filepath.Join(outDir, "materials", "ui", "logo.vtf")); err != nil {
		t.Error("output missing at the requested path")
	}
}

func TestTexturePatternMatch(t *testing.T) {
	r, enc, srcDir, outDir := newTextureRunner(t, map[string]config.TextureJob{
		"walls": {Input: "walls/*_d.tga", Output: "materials/walls"},
	})
	touch(t, filepath.Join(srcDir, "walls", "brick_d.tga"))
	touch(t, filepath.Join(srcDir, "walls", "brick_n.tga"))
	touch(t, filepath.Join(srcDir, "walls", "stone_d.tga"))
	touch(t, filepath.Join(srcDir, "walls", "readme.txt"))

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 2 {
		t.Fatalf("encoded = %v, want the two *_d matches", enc.encoded)
	}
	for _, name := range []string{"brick_d.vtf", "stone_d.vtf"} {
		if _, err := os.Stat(filepath.Join(outDir, "materials", "walls", name)); err != nil {
			t.Errorf("missing output %s", name)
		}
	}
}

func TestTextureDirectoryRecursive(t *testing.T) {
	r, enc, srcDir, outDir := newTextureRunner(t, map[string]config.TextureJob{
		"all": {Input: "tex", Output: "materials"},
	})
	touch(t, filepath.Join(srcDir, "tex", "flat.tga"))
	touch(t, filepath.Join(srcDir, "tex", "deep", "nested.tga"))

	// Non-recursive first: only the top level.
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 1 {
		t.Fatalf("non-recursive encoded = %v", enc.encoded)
	}

	r.Recursive = true
	r.AllowReprocess = true
	r.Force = true
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "materials", "deep", "nested.vtf")); err != nil {
		t.Error("nested output did not mirror the source layout")
	}
}

func TestTextureUpToDateSkip(t *testing.T) {
	r, enc, srcDir, _ := newTextureRunner(t, map[string]config.TextureJob{
		"logo": {Input: "logo.tga", Output: "materials/ui/logo.vtf"},
	})
	src := filepath.Join(srcDir, "logo.tga")
	touch(t, src)

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	r.processed = nil // fresh run, same outputs
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 1 {
		t.Fatalf("unchanged source re-encoded: %v", enc.encoded)
	}

	// Touching the source forces a re-encode.
	later := time.Now().Add(5 * time.Second)
	if err := os.Chtimes(src, later, later); err != nil {
		t.Fatal(err)
	}
	r.processed = nil
	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 2 {
		t.Fatalf("stale source not re-encoded: %v", enc.encoded)
	}
}

func TestTextureOutputMtimeSynced(t *testing.T) {
	r, _, srcDir, outDir := newTextureRunner(t, map[string]config.TextureJob{
		"logo": {Input: "logo.tga", Output: "materials/ui/logo.vtf"},
	})
	src := filepath.Join(srcDir, "logo.tga")
	touch(t, src)
	past := time.Now().Add(-time.Hour).Truncate(time.Second)
	if err := os.Chtimes(src, past, past); err != nil {
		t.Fatal(err)
	}

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(filepath.Join(outDir, "materials", "ui", "logo.vtf"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(past) {
		t.Errorf("output mtime = %v, want synced to %v", info.ModTime(), past)
	}
}

func TestTextureProcessedOncePerRun(t *testing.T) {
	r, enc, srcDir, _ := newTextureRunner(t, map[string]config.TextureJob{
		"a": {Input: "logo.tga", Output: "materials/a/logo.vtf"},
		"b": {Input: "logo.tga", Output: "materials/b/logo.vtf"},
	})
	touch(t, filepath.Join(srcDir, "logo.tga"))

	if err := r.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc.encoded) != 1 {
		t.Fatalf("source encoded by both groups: %v", enc.encoded)
	}

	r2, enc2, srcDir2, _ := newTextureRunner(t, map[string]config.TextureJob{
		"a": {Input: "logo.tga", Output: "materials/a/logo.vtf"},
		"b": {Input: "logo.tga", Output: "materials/b/logo.vtf"},
	})
	touch(t, filepath.Join(srcDir2, "logo.tga"))
	r2.AllowReprocess = true
	if err := r2.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(enc2.encoded) != 2 {
		t.Fatalf("reprocess flag ignored: %v", enc2.encoded)
	}
}

func TestTextureMissingInputFails(t *testing.T) {
	r, enc, _, _ := newTextureRunner(t, map[string]config.TextureJob{
		"ghost": {Input: "nothere/*.tga"},
	})
	if err := r.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing input directory")
	}
	if len(enc.encoded) != 0 {
		t.Errorf("encoded = %v", enc.encoded)
	}
}
