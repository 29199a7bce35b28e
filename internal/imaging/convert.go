// Package imaging converts between the image formats the texture pipeline
// moves through: targa for encoder input, plus png, jpeg and bmp sources.
package imaging

import (
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"golang.org/x/image/bmp"
)

// SupportedInput reports whether path has an extension the converter can
// decode.
func SupportedInput(path string) bool {
	switch ext(path) {
	case ".tga", ".png", ".jpg", ".jpeg", ".bmp":
		return true
	}
	return false
}

// Decode reads the image at path, picking the codec by extension.
func Decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	var img image.Image
	switch e := ext(path); e {
	case ".tga":
		img, err = tga.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	case ".bmp":
		img, err = bmp.Decode(f)
	default:
		return nil, fmt.Errorf("unsupported image format %q: %s", e, path)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

// Encode writes img to path, picking the codec by extension. JPEG output is
// flattened to discard alpha.
func Encode(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}
	defer f.Close()

	switch e := ext(path); e {
	case ".tga":
		err = tga.Encode(f, img)
	case ".png":
		err = png.Encode(f, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, flatten(img), &jpeg.Options{Quality: 95})
	case ".bmp":
		err = bmp.Encode(f, img)
	default:
		return fmt.Errorf("unsupported image format %q: %s", e, path)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}

// Convert decodes src and writes it to dst. When the extensions already
// match the file is copied bit-for-bit instead of being re-encoded.
func Convert(src, dst string) error {
	if ext(src) == ext(dst) {
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		data, err := os.ReadFile(src)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		return os.WriteFile(dst, data, 0o644)
	}
	img, err := Decode(src)
	if err != nil {
		return err
	}
	return Encode(dst, img)
}

// flatten composites img over opaque black, yielding an alpha-free RGBA.
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, image.Black, image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
