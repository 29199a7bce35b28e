package vmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karou/srcbuild/internal/logx"
)

// Copier relocates material descriptions and their textures from a set of
// content search roots into a destination tree. A Copier carries a per-run
// ledger so that shared materials and textures are copied once no matter how
// many models reference them.
type Copier struct {
	SearchRoots []string
	DestRoot    string
	Localize    bool
	Log         logx.Sink

	processed map[string]string // canonical shader source -> destination
	texCache  map[string]string // lowercased relative texture path -> source file
	copied    []string
}

// NewCopier builds a Copier writing under destRoot. With localize set,
// textures are pulled next to the materials that reference them (a shared/
// subfolder for base-material textures) and reference lines are rewritten;
// otherwise the source namespace is mirrored verbatim.
func NewCopier(searchRoots []string, destRoot string, localize bool, log logx.Sink) *Copier {
	return &Copier{
		SearchRoots: searchRoots,
		DestRoot:    destRoot,
		Localize:    localize,
		Log:         log,
		processed:   make(map[string]string),
		texCache:    make(map[string]string),
	}
}

// Copied reports every file written so far, in write order.
func (c *Copier) Copied() []string { return c.copied }

// CopyMaterials resolves each named material against the search roots and
// copies it, its patch chain, and its textures into the destination tree.
// Materials that cannot be located are warned about and skipped.
func (c *Copier) CopyMaterials(names []string) []string {
	for _, name := range names {
		src := c.findMaterial(name)
		if src == "" {
			c.Log.Warnf("material not found in any search root: %s", name)
			continue
		}
		c.processShader(src, "", false, true)
	}
	return c.copied
}

// findMaterial locates name (a materials-root-relative path, extension
// optional) under the search roots, first hit wins.
func (c *Copier) findMaterial(name string) string {
	rel := filepath.FromSlash(normalizePath(name))
	if !strings.EqualFold(filepath.Ext(rel), ".vmt") {
		rel += ".vmt"
	}
	for _, root := range c.SearchRoots {
		candidate := filepath.Join(root, "materials", rel)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// processShader copies one material description and recurses into its patch
// base. It returns the effective texture table and the written destination.
// The ledger entry is recorded before recursing so include cycles terminate.
func (c *Copier) processShader(src, destOverride string, noSubfolder, copyTextures bool) (map[string]string, string) {
	canon := canonicalFile(src)
	if dest, done := c.processed[canon]; done {
		return nil, dest
	}
	if !fileExists(src) {
		c.Log.Warnf("material file missing: %s", src)
		return nil, ""
	}

	dest := destOverride
	if dest == "" {
		dest = filepath.Join(c.DestRoot, relToMaterials(src))
	}
	c.processed[canon] = dest

	if err := copyPreserving(src, dest); err != nil {
		c.Log.Errorf("copy material: %v", err)
		return nil, ""
	}
	c.copied = append(c.copied, dest)
	c.Log.Infof("copied material %s", relToMaterials(src))

	desc, err := ParseFile(src)
	if err != nil {
		c.Log.Warnf("%v", err)
		return nil, dest
	}

	includedTex, includedDest := c.processInclude(desc, dest)
	final := desc.EffectiveTextures(includedTex)

	if copyTextures {
		c.copyTextures(final, dest, noSubfolder)
	}
	if c.Localize {
		if err := c.rewriteShader(src, dest, desc, includedDest); err != nil {
			c.Log.Warnf("rewrite material %s: %v", dest, err)
		}
	}
	return final, dest
}

// processInclude resolves a patch material's base against the search roots
// and copies it without its textures; the patch copies the merged set.
func (c *Copier) processInclude(d *Descriptor, destVMT string) (map[string]string, string) {
	if !d.IsPatch || d.Include == "" {
		return nil, ""
	}
	rel := filepath.FromSlash(d.Include)
	if !strings.EqualFold(filepath.Ext(rel), ".vmt") {
		rel += ".vmt"
	}
	for _, root := range c.SearchRoots {
		candidate := filepath.Join(root, rel)
		if !fileExists(candidate) {
			// Include paths are project-root relative ("materials/...")
			// but tolerate materials-root relative ones too.
			candidate = filepath.Join(root, "materials", rel)
			if !fileExists(candidate) {
				continue
			}
		}
		destOverride := ""
		if c.Localize {
			destOverride = filepath.Join(sharedDir(filepath.Dir(destVMT)), filepath.Base(candidate))
		}
		tex, dest := c.processShader(candidate, destOverride, true, false)
		return tex, dest
	}
	c.Log.Warnf("included material not found: %s", d.Include)
	return nil, ""
}

// copyTextures copies every referenced texture, deterministically by key.
func (c *Copier) copyTextures(textures map[string]string, destVMT string, noSubfolder bool) {
	keys := make([]string, 0, len(textures))
	for k := range textures {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		file := c.findTexture(textures[key])
		if file == "" {
			c.Log.Warnf("texture not found in any search root: %s (%s)", textures[key], key)
			continue
		}
		dest := c.textureDest(file, destVMT, noSubfolder)
		if err := copyPreserving(file, dest); err != nil {
			c.Log.Errorf("copy texture: %v", err)
			continue
		}
		c.copied = append(c.copied, dest)
		c.Log.Infof("copied texture %s", relToMaterials(file))
	}
}

// findTexture locates a materials-root-relative texture reference, swapping
// any extension for .vtf. Lookups are cached per run.
func (c *Copier) findTexture(rel string) string {
	key := strings.ToLower(normalizePath(rel))
	if file, ok := c.texCache[key]; ok {
		return file
	}
	name := filepath.FromSlash(normalizePath(rel))
	if ext := filepath.Ext(name); ext != "" {
		name = name[:len(name)-len(ext)]
	}
	name += ".vtf"
	for _, root := range c.SearchRoots {
		candidate := filepath.Join(root, "materials", name)
		if fileExists(candidate) {
			c.texCache[key] = candidate
			return candidate
		}
	}
	c.texCache[key] = ""
	return ""
}

// textureDest decides where a texture lands. Without localization the source
// namespace is mirrored. With it, a texture living beside its material (or
// one forced flat by noSubfolder) goes next to the written material, and
// everything else goes into a shared/ subfolder, never nested twice.
func (c *Copier) textureDest(texFile, destVMT string, noSubfolder bool) string {
	if !c.Localize {
		return filepath.Join(c.DestRoot, relToMaterials(texFile))
	}
	texRel := relToMaterials(texFile)
	vmtRel, err := filepath.Rel(c.DestRoot, destVMT)
	if err != nil {
		vmtRel = relToMaterials(destVMT)
	}
	if noSubfolder || filepath.Dir(texRel) == filepath.Dir(vmtRel) {
		return filepath.Join(filepath.Dir(destVMT), filepath.Base(texFile))
	}
	return filepath.Join(sharedDir(filepath.Dir(destVMT)), filepath.Base(texFile))
}

// sharedDir appends a shared/ component unless dir already is one.
func sharedDir(dir string) string {
	if filepath.Base(dir) == "shared" {
		return dir
	}
	return filepath.Join(dir, "shared")
}

// relToMaterials returns the path from its "materials" component onward, so
// destinations always sit under <dest>/materials/.
func relToMaterials(path string) string {
	parts := strings.Split(filepath.ToSlash(path), "/")
	for i, part := range parts {
		if strings.EqualFold(part, "materials") {
			return filepath.FromSlash(strings.Join(parts[i:], "/"))
		}
	}
	return filepath.Join("materials", filepath.Base(path))
}

func canonicalFile(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return strings.ToLower(filepath.ToSlash(abs))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// copyPreserving copies src to dst, creating parents and carrying the source
// modification time so downstream staleness checks stay meaningful.
func copyPreserving(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(dst), err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("close %s: %w", dst, err)
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
