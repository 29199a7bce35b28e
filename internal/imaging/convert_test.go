package imaging

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
)

func testImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 60), G: uint8(y * 60), B: 128, A: 255})
		}
	}
	return img
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := testImage()
	for _, name := range []string{"img.tga", "img.png", "img.bmp"} {
		path := filepath.Join(dir, name)
		if err := Encode(path, src); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		got, err := Decode(path)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got.Bounds() != src.Bounds() {
			t.Errorf("%s: bounds = %v, want %v", name, got.Bounds(), src.Bounds())
		}
	}
}

func TestConvertPNGToTGA(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.png")
	dst := filepath.Join(dir, "out", "in.tga")
	if err := Encode(src, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := Convert(src, dst); err != nil {
		t.Fatal(err)
	}
	img, err := Decode(dst)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 4 || img.Bounds().Dy() != 4 {
		t.Errorf("bounds = %v", img.Bounds())
	}
}

func TestConvertSameFormatCopies(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.tga")
	dst := filepath.Join(dir, "out.tga")
	if err := Encode(src, testImage()); err != nil {
		t.Fatal(err)
	}
	if err := Convert(src, dst); err != nil {
		t.Fatal(err)
	}
	a, _ := os.ReadFile(src)
	b, _ := os.ReadFile(dst)
	if string(a) != string(b) {
		t.Error("same-format convert re-encoded instead of copying")
	}
}

func TestEncodeJPEGFlattens(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 0}) // fully transparent
	path := filepath.Join(dir, "img.jpg")
	if err := Encode(path, img); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(path); err != nil {
		t.Fatal(err)
	}
}

func TestSupportedInput(t *testing.T) {
	for _, p := range []string{"a.TGA", "b.png", "c.jpeg", "d.bmp"} {
		if !SupportedInput(p) {
			t.Errorf("SupportedInput(%s) = false", p)
		}
	}
	for _, p := range []string{"a.vtf", "b.psd", "c"} {
		if SupportedInput(p) {
			t.Errorf("SupportedInput(%s) = true", p)
		}
	}
}

func TestDecodeUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.psd")
	if err := os.WriteFile(path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(path); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
