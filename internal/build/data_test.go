package build

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/imaging"
)

func newDataProcessor(t *testing.T) (*DataProcessor, string, string) {
	t.Helper()
	srcDir := t.TempDir()
	outDir := t.TempDir()
	cfg := &config.Config{}
	cfg.SetBaseDir(srcDir)
	d := &DataProcessor{Cfg: cfg, Encoder: &TextureEncoder{Log: nopSink{}}, OutRoot: outDir, Log: nopSink{}}
	return d, srcDir, outDir
}

func TestDataTextReplacement(t *testing.T) {
	d, srcDir, outDir := newDataProcessor(t)
	src := filepath.Join(srcDir, "motd.txt")
	if err := os.WriteFile(src, []byte("Welcome to %SERVER% running %MAP%"), 0o644); err != nil {
		t.Fatal(err)
	}

	item := config.DataItem{
		Input:  "motd.txt",
		Output: "cfg/motd.txt",
		Replace: map[string]string{
			"%SERVER%": "testserver",
			"%MAP%":    "de_test",
		},
	}
	if err := d.Process(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "cfg", "motd.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "Welcome to testserver running de_test" {
		t.Errorf("replaced text = %q", data)
	}
}

func TestDataImageConversion(t *testing.T) {
	d, srcDir, outDir := newDataProcessor(t)
	src := filepath.Join(srcDir, "icon.png")
	if err := imaging.Encode(src, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatal(err)
	}

	item := config.DataItem{Input: "icon.png", Output: "resource/icon.tga"}
	if err := d.Process(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	if _, err := imaging.Decode(filepath.Join(outDir, "resource", "icon.tga")); err != nil {
		t.Fatalf("converted image unreadable: %v", err)
	}
}

func TestDataRawCopy(t *testing.T) {
	d, srcDir, outDir := newDataProcessor(t)
	src := filepath.Join(srcDir, "sound.wav")
	if err := os.WriteFile(src, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	item := config.DataItem{Input: "sound.wav", Output: "sound/ui/sound.wav"}
	if err := d.Process(context.Background(), item); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "sound", "ui", "sound.wav"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "RIFF" {
		t.Errorf("copied data = %q", data)
	}
}

func TestDataDefaultOutputName(t *testing.T) {
	d, srcDir, outDir := newDataProcessor(t)
	if err := os.WriteFile(filepath.Join(srcDir, "readme.md"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := d.Process(context.Background(), config.DataItem{Input: "readme.md"}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "readme.md")); err != nil {
		t.Error("default output name not used")
	}
}

func TestDataVTFPassthroughWithVMT(t *testing.T) {
	d, srcDir, outDir := newDataProcessor(t)
	if err := os.WriteFile(filepath.Join(srcDir, "logo.vtf"), []byte("VTF\x00"), 0o644); err != nil {
		t.Fatal(err)
	}
	template := filepath.Join(srcDir, "overlay.vmt")
	if err := os.WriteFile(template, []byte("\"UnlitGeneric\"\n{\n\t\"$basetexture\" \"placeholder\"\n\t$translucent 1\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	item := config.DataItem{
		Input:  "logo.vtf",
		Output: "materials/overlays/logo.vtf",
		VTF:    &config.VTFSettings{VMTTemplate: "overlay.vmt"},
	}
	if err := d.Process(context.Background(), item); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(outDir, "materials", "overlays", "logo.vtf")); err != nil {
		t.Fatal("texture not copied")
	}
	data, err := os.ReadFile(filepath.Join(outDir, "materials", "overlays", "logo.vmt"))
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	if !strings.Contains(text, "$basetexture \"overlays/logo\"") {
		t.Errorf("basetexture not rewritten:\n%s", text)
	}
	if !strings.Contains(text, "$translucent 1") {
		t.Errorf("template body lost:\n%s", text)
	}
}

func TestDataMissingInput(t *testing.T) {
	d, _, _ := newDataProcessor(t)
	if err := d.Process(context.Background(), config.DataItem{Input: "nope.txt"}); err == nil {
		t.Fatal("expected error for missing input")
	}
}
