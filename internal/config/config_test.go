package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const jsonConfig = `{
	"header": "ValveModel",
	"studiomdl": "bin/studiomdl.exe",
	"gameinfo": "game/gameinfo.txt",
	"definevariable": {
		"version": 2,
		"hd": {"value": true, "targets": ["crate"]}
	},
	"model": {
		"crate": {
			"qc": "models/crate.qc",
			"submodels": {"crate_lod": "models/crate_lod.qc"},
			"definevariable": {"skin": "wood"}
		},
		"disabled": {"qc": "models/old.qc", "compile": false}
	},
	"material": {
		"extra": {"materials": ["models/props/rope"]}
	},
	"data": {
		"scripts": [{"input": "motd.txt", "output": "cfg/motd.txt", "replace": {"%X%": "y"}}]
	}
}`

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "build.json", jsonConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Header != HeaderModel {
		t.Errorf("header = %q", cfg.Header)
	}
	if cfg.Defines["version"].Value != "2" {
		t.Errorf("version define = %+v", cfg.Defines["version"])
	}
	hd := cfg.Defines["hd"]
	if hd.Value != "true" || len(hd.Targets) != 1 || hd.Targets[0] != "crate" {
		t.Errorf("hd define = %+v", hd)
	}
	crate := cfg.Models["crate"]
	if !crate.ShouldCompile() {
		t.Error("crate should default to enabled")
	}
	if crate.Submodels["crate_lod"] != "models/crate_lod.qc" {
		t.Errorf("submodels = %v", crate.Submodels)
	}
	if crate.Defines["skin"].Value != "wood" {
		t.Errorf("model defines = %v", crate.Defines)
	}
	if cfg.Models["disabled"].ShouldCompile() {
		t.Error("compile:false ignored")
	}
	if len(cfg.Materials["extra"].Materials) != 1 {
		t.Errorf("materials = %v", cfg.Materials)
	}
	if cfg.Data["scripts"][0].Replace["%X%"] != "y" {
		t.Errorf("data = %v", cfg.Data)
	}
}

const yamlConfig = `header: ValveTexture
vtf:
  icons:
    input: icons/*.tga
    output: materials/ui
    vtf:
      format: dxt5
      flags: [nomip, nolod]
`

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "textures.yaml", yamlConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Header != HeaderTexture {
		t.Errorf("header = %q", cfg.Header)
	}
	job := cfg.Textures["icons"]
	if job.Input != "icons/*.tga" || job.Output != "materials/ui" {
		t.Errorf("job = %+v", job)
	}
	if job.VTF == nil || job.VTF.Format != "dxt5" || len(job.VTF.Flags) != 2 {
		t.Errorf("vtf settings = %+v", job.VTF)
	}
}

func TestLoadRequiresHeader(t *testing.T) {
	path := writeConfig(t, "bad.json", `{"model": {}}`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing header")
	}
}

func TestResolvePath(t *testing.T) {
	path := writeConfig(t, "c.json", `{"header": "ValveModel"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	base := filepath.Dir(path)

	if got := cfg.ResolvePath("models/crate.qc"); got != filepath.Join(base, "models", "crate.qc") {
		t.Errorf("relative = %s", got)
	}
	// Leading slashes keep project paths inside the config tree.
	if got := cfg.ResolvePath("/models/crate.qc"); got != filepath.Join(base, "models", "crate.qc") {
		t.Errorf("slash-anchored = %s", got)
	}
	if got := cfg.ResolvePath(""); got != "" {
		t.Errorf("empty = %q", got)
	}
	// A genuinely absolute, existing path stays as-is.
	if got := cfg.ResolvePath(path); got != path {
		t.Errorf("absolute = %s, want %s", got, path)
	}
}

func TestResolveTool(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	if err := os.WriteFile(path, []byte(`{"header": "ValveModel"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	exe := filepath.Join(dir, "studiomdl.exe")
	if err := os.WriteFile(exe, []byte("bin"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := cfg.ResolveTool("studiomdl.exe"); err != nil || got != exe {
		t.Errorf("ResolveTool = %q, %v", got, err)
	}
	if got, err := cfg.ResolveTool(""); err != nil || got != "" {
		t.Errorf("unset tool = %q, %v", got, err)
	}
	if _, err := cfg.ResolveTool("missing.exe"); err == nil {
		t.Error("missing tool not rejected")
	}
}
