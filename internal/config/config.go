// Package config loads srcbuild configuration files. Both JSON and YAML are
// accepted; the format is picked by file extension. Relative paths inside the
// config resolve against the config file's directory.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pipeline headers.
const (
	HeaderModel   = "ValveModel"
	HeaderTexture = "ValveTexture"
)

// Config is the root configuration document.
type Config struct {
	Header string `json:"header" yaml:"header"`

	// Tool paths.
	StudioMDL string `json:"studiomdl" yaml:"studiomdl"`
	GameInfo  string `json:"gameinfo" yaml:"gameinfo"`
	VTFCmd    string `json:"vtfcmd" yaml:"vtfcmd"`
	VPK       string `json:"vpk" yaml:"vpk"`

	// Global variable definitions, layered under each model's own.
	Defines map[string]Define `json:"definevariable" yaml:"definevariable"`

	Models    map[string]Model       `json:"model" yaml:"model"`
	Materials map[string]MaterialSet `json:"material" yaml:"material"`
	Data      map[string][]DataItem  `json:"data" yaml:"data"`
	Textures  map[string]TextureJob  `json:"vtf" yaml:"vtf"`

	// Directory of the config file, set by Load for path resolution.
	baseDir string
}

// Model describes one model compile entry.
type Model struct {
	QC        string            `json:"qc" yaml:"qc"`
	Compile   *bool             `json:"compile" yaml:"compile"`
	Submodels map[string]string `json:"submodels" yaml:"submodels"`
	Defines   map[string]Define `json:"definevariable" yaml:"definevariable"`
	Subdata   []DataItem        `json:"subdata" yaml:"subdata"`
}

// ShouldCompile reports whether the model is enabled (default true).
func (m Model) ShouldCompile() bool {
	return m.Compile == nil || *m.Compile
}

// MaterialSet is a standalone list of materials to resolve and copy.
type MaterialSet struct {
	Materials []string `json:"materials" yaml:"materials"`
}

// DataItem is one entry of a data section: a file to copy, convert, encode,
// or text-substitute into the output tree.
type DataItem struct {
	Input   string            `json:"input" yaml:"input"`
	Output  string            `json:"output" yaml:"output"`
	Replace map[string]string `json:"replace" yaml:"replace"`
	VTF     *VTFSettings      `json:"vtf" yaml:"vtf"`
}

// TextureJob is one texture group of the ValveTexture pipeline.
type TextureJob struct {
	Input  string       `json:"input" yaml:"input"`
	Output string       `json:"output" yaml:"output"`
	VTF    *VTFSettings `json:"vtf" yaml:"vtf"`
}

// VTFSettings carries texture encoder options.
type VTFSettings struct {
	Format      string   `json:"format" yaml:"format"`
	Version     string   `json:"version" yaml:"version"`
	Flags       []string `json:"flags" yaml:"flags"`
	EncoderArgs []string `json:"encoder_args" yaml:"encoder_args"`
	VMTTemplate string   `json:"vmt" yaml:"vmt"`
}

// Define is a variable definition: either a plain value, or a value with a
// list of target QC names it applies to.
type Define struct {
	Value   string
	Targets []string
}

type defineObject struct {
	Value   any      `json:"value" yaml:"value"`
	Targets []string `json:"targets" yaml:"targets"`
}

func (d *Define) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var obj defineObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		d.Value = scalarString(obj.Value)
		d.Targets = obj.Targets
		return nil
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	d.Value = scalarString(v)
	return nil
}

func (d *Define) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var obj defineObject
		if err := node.Decode(&obj); err != nil {
			return err
		}
		d.Value = scalarString(obj.Value)
		d.Targets = obj.Targets
		return nil
	}
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	d.Value = scalarString(v)
	return nil
}

// scalarString renders a decoded scalar the way it would appear in QC text.
func scalarString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	default:
		return fmt.Sprint(x)
	}
}

// Load reads and decodes a config file.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(abs)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if cfg.Header == "" {
		return nil, fmt.Errorf("config %s: missing required 'header' field", abs)
	}
	cfg.baseDir = filepath.Dir(abs)
	return &cfg, nil
}

// ResolvePath resolves a config-relative path. Absolute paths that exist on
// disk are kept; anything else has its leading slashes stripped so
// absolute-looking project paths stay inside the config tree.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		if _, err := os.Stat(p); err == nil {
			return filepath.Clean(p)
		}
	}
	trimmed := strings.TrimLeft(p, "/\\")
	return filepath.Join(c.baseDir, filepath.FromSlash(trimmed))
}

// BaseDir returns the directory containing the config file.
func (c *Config) BaseDir() string { return c.baseDir }

// SetBaseDir overrides the path resolution root, normally the config file's
// directory.
func (c *Config) SetBaseDir(dir string) { c.baseDir = dir }

// ResolveTool resolves an optional tool path, returning "" when unset and an
// error when set but missing on disk.
func (c *Config) ResolveTool(p string) (string, error) {
	if p == "" {
		return "", nil
	}
	resolved := c.ResolvePath(p)
	if _, err := os.Stat(resolved); err != nil {
		return "", fmt.Errorf("tool not found: %s", resolved)
	}
	return resolved, nil
}
