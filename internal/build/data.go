package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/imaging"
	"github.com/karou/srcbuild/internal/logx"
)

// textExts are the extensions eligible for text replacement.
var textExts = map[string]bool{
	".txt": true, ".cfg": true, ".vmt": true, ".vdf": true,
	".res": true, ".qc": true, ".kv": true, ".nut": true,
}

// DataProcessor runs data items through a fixed handler chain. For each
// item the first applicable handler wins: text replacement, then texture
// encoding, then image conversion, then a raw copy.
type DataProcessor struct {
	Cfg     *config.Config
	Encoder *TextureEncoder
	OutRoot string
	Log     logx.Sink
}

// Process runs one data item. The item's output is relative to the output
// root; an empty output mirrors the input's base name at the root.
func (d *DataProcessor) Process(ctx context.Context, item config.DataItem) error {
	src := d.Cfg.ResolvePath(item.Input)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("data input: %w", err)
	}
	out := item.Output
	if out == "" {
		out = filepath.Base(src)
	}
	dst := filepath.Join(d.OutRoot, filepath.FromSlash(strings.TrimLeft(out, "/\\")))

	switch {
	case len(item.Replace) > 0 && isText(src) && isText(dst):
		return d.replaceText(src, dst, item.Replace)
	case item.VTF != nil || strings.EqualFold(filepath.Ext(dst), ".vtf"):
		return d.encodeTexture(ctx, src, dst, item.VTF)
	case imaging.SupportedInput(src) && imaging.SupportedInput(dst):
		d.Log.Infof("converting %s", filepath.Base(src))
		return imaging.Convert(src, dst)
	default:
		d.Log.Infof("copying %s", filepath.Base(src))
		return copyFile(src, dst)
	}
}

// replaceText copies a text file applying literal substitutions, longest
// pattern first so overlapping keys behave predictably.
func (d *DataProcessor) replaceText(src, dst string, replace map[string]string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	keys := make([]string, 0, len(replace))
	for k := range replace {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	text := string(data)
	for _, k := range keys {
		text = strings.ReplaceAll(text, k, replace[k])
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	d.Log.Infof("writing %s (%d replacements)", filepath.Base(dst), len(keys))
	return os.WriteFile(dst, []byte(text), 0o644)
}

// encodeTexture encodes src to a texture at dst (forcing the extension) and
// optionally emits a sibling material description from the item's template.
func (d *DataProcessor) encodeTexture(ctx context.Context, src, dst string, set *config.VTFSettings) error {
	if !strings.EqualFold(filepath.Ext(dst), ".vtf") {
		dst = strings.TrimSuffix(dst, filepath.Ext(dst)) + ".vtf"
	}
	d.Log.Infof("encoding %s", filepath.Base(src))
	if err := d.Encoder.Encode(ctx, src, dst, set); err != nil {
		return err
	}
	if set == nil || set.VMTTemplate == "" {
		return nil
	}
	relTex, err := filepath.Rel(filepath.Join(d.OutRoot, "materials"), dst)
	if err != nil {
		relTex = filepath.Base(dst)
	}
	relTex = strings.TrimSuffix(filepath.ToSlash(relTex), ".vtf")
	vmtDst := strings.TrimSuffix(dst, ".vtf") + ".vmt"
	template := d.Cfg.ResolvePath(set.VMTTemplate)
	d.Log.Infof("writing %s", filepath.Base(vmtDst))
	return WriteVMT(template, relTex, vmtDst)
}

func isText(path string) bool {
	return textExts[strings.ToLower(filepath.Ext(path))]
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
