package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/gameinfo"
	"github.com/karou/srcbuild/internal/logx"
	"github.com/karou/srcbuild/internal/qc"
	"github.com/karou/srcbuild/internal/vmt"
)

// Material handling modes.
const (
	MatSkip     = 0 // leave materials alone
	MatMirror   = 1 // copy keeping the source namespace
	MatLocalize = 2 // copy next to the models, rewriting references
)

// Options are the run-wide switches, normally set from the command line.
type Options struct {
	ExportDir  string
	GameMode   bool // compile straight into the game tree, no post-processing
	MatMode    int
	NoMatLocal bool // force mirror layout even in localize mode
	Package    bool
	ArchiveOld bool
	FlattenQC  bool
	KeepFlatQC bool

	Force          bool
	AllowReprocess bool
	Recursive      bool
}

// Pipeline executes one configuration end to end.
type Pipeline struct {
	Cfg  *config.Config
	Log  *logx.Logger
	Opts Options

	game     *gameinfo.Info
	compiler *ModelCompiler
	encoder  *TextureEncoder
	packager *Packager
}

// New wires a pipeline for cfg. Tool paths are resolved eagerly so a broken
// config fails before any work starts.
func New(cfg *config.Config, log *logx.Logger, opts Options) (*Pipeline, error) {
	p := &Pipeline{Cfg: cfg, Log: log, Opts: opts}

	studiomdl, err := cfg.ResolveTool(cfg.StudioMDL)
	if err != nil {
		return nil, err
	}
	vtfcmd, err := cfg.ResolveTool(cfg.VTFCmd)
	if err != nil {
		return nil, err
	}
	vpkExe, err := cfg.ResolveTool(cfg.VPK)
	if err != nil {
		return nil, err
	}

	if cfg.GameInfo != "" {
		info, err := gameinfo.Load(cfg.ResolvePath(cfg.GameInfo))
		if err != nil {
			return nil, err
		}
		p.game = info
	}

	gameDir := ""
	if p.game != nil {
		gameDir = p.game.Dir
	}
	p.compiler = &ModelCompiler{Exe: studiomdl, GameDir: gameDir, Log: log.WithPrefix("MODEL")}
	p.encoder = &TextureEncoder{Exe: vtfcmd, Log: log.WithPrefix("DATA")}
	p.packager = &Packager{Exe: vpkExe, Log: log.WithPrefix("VPK")}
	return p, nil
}

// Run dispatches on the config header.
func (p *Pipeline) Run(ctx context.Context) error {
	switch p.Cfg.Header {
	case config.HeaderModel:
		return p.runModels(ctx)
	case config.HeaderTexture:
		return p.runTextures(ctx)
	default:
		return fmt.Errorf("unknown config header %q", p.Cfg.Header)
	}
}

func (p *Pipeline) outRoot() string {
	if p.Opts.GameMode && p.game != nil {
		return p.game.Dir
	}
	return p.Opts.ExportDir
}

// runModels compiles every enabled model, resolves its materials, runs its
// data items, then the standalone material sets and data sections, and
// finally packages the output. A failing model aborts that model only.
func (p *Pipeline) runModels(ctx context.Context) error {
	if p.compiler.Exe == "" {
		return fmt.Errorf("model config needs a studiomdl tool path")
	}
	if p.game == nil {
		return fmt.Errorf("model config needs a gameinfo path")
	}
	if !p.Opts.GameMode {
		if p.Opts.ExportDir == "" {
			return fmt.Errorf("no export directory set")
		}
		if err := prepareOutputRoot(p.Opts.ExportDir, p.Opts.ArchiveOld, p.Log); err != nil {
			return err
		}
	}

	copier := p.newCopier()
	data := &DataProcessor{Cfg: p.Cfg, Encoder: p.encoder, OutRoot: p.outRoot(), Log: p.Log.WithPrefix("DATA")}

	for _, name := range sortedKeys(p.Cfg.Models) {
		model := p.Cfg.Models[name]
		if !model.ShouldCompile() {
			p.Log.Debugf("model %s disabled, skipping", name)
			continue
		}
		dumped, err := p.buildModel(ctx, name, model)
		if err != nil {
			p.Log.WithPrefix("MODEL").Errorf("%s: %v", name, err)
			continue
		}
		if !p.Opts.GameMode {
			p.copyModelMaterials(copier, name, model, dumped)
			for _, item := range model.Subdata {
				if err := data.Process(ctx, item); err != nil {
					data.Log.Errorf("model %s: %v", name, err)
				}
			}
		}
	}

	if !p.Opts.GameMode {
		matLog := p.Log.WithPrefix("MATERIAL")
		for _, name := range sortedKeys(p.Cfg.Materials) {
			set := p.Cfg.Materials[name]
			if copier == nil {
				matLog.Debugf("material mode 0, skipping set %s", name)
				continue
			}
			matLog.Infof("material set %s: %d entries", name, len(set.Materials))
			copier.CopyMaterials(set.Materials)
		}
		for _, section := range sortedKeys(p.Cfg.Data) {
			for _, item := range p.Cfg.Data[section] {
				if err := data.Process(ctx, item); err != nil {
					data.Log.Errorf("section %s: %v", section, err)
				}
			}
		}
		if p.Opts.Package {
			p.packageOutput(ctx)
		}
	}
	return nil
}

// buildModel flattens and compiles one model plus its submodels, returning
// the accumulated dumped material names.
func (p *Pipeline) buildModel(ctx context.Context, name string, model config.Model) ([]string, error) {
	log := p.Log.WithPrefix("MODEL")
	log.Infof("building %s", name)

	qcPath := p.Cfg.ResolvePath(model.QC)
	dumped, err := p.compileOne(ctx, name, qcPath, model)
	if err != nil {
		return nil, err
	}
	for _, sub := range sortedKeys(model.Submodels) {
		subQC := p.Cfg.ResolvePath(model.Submodels[sub])
		log.Infof("building submodel %s", sub)
		subDumped, err := p.compileOne(ctx, sub, subQC, model)
		if err != nil {
			return dumped, fmt.Errorf("submodel %s: %w", sub, err)
		}
		dumped = append(dumped, subDumped...)
	}
	return dumped, nil
}

// compileOne flattens (when enabled) and compiles a single QC, moving the
// artifacts out of the game tree unless compiling in place.
func (p *Pipeline) compileOne(ctx context.Context, target, qcPath string, model config.Model) ([]string, error) {
	compileQC := qcPath
	if p.Opts.FlattenQC {
		flat, cleanup, err := p.flattenQC(target, qcPath, model)
		if err != nil {
			return nil, err
		}
		if cleanup != nil {
			defer cleanup()
		}
		compileQC = flat
	}

	res, err := p.compiler.Compile(ctx, compileQC)
	if err != nil {
		return nil, err
	}
	if !p.Opts.GameMode {
		for _, artifact := range res.Artifacts {
			if !filepath.IsAbs(artifact) {
				artifact = filepath.Join(p.game.Dir, artifact)
			}
			if _, err := MoveArtifacts(artifact, p.Opts.ExportDir, p.compiler.Log); err != nil {
				p.compiler.Log.Warnf("%v", err)
			}
		}
	}
	return res.Materials, nil
}

// flattenQC expands directives in qcPath with the model's variables layered
// over the global ones, writes the result beside the source, and returns it
// with a cleanup unless flat files are kept.
func (p *Pipeline) flattenQC(target, qcPath string, model config.Model) (string, func(), error) {
	log := p.Log.WithPrefix("QC")
	st := qc.NewState()
	seedDefines(st, p.Cfg.Defines, target)
	seedDefines(st, model.Defines, target)

	pp := &qc.Preprocessor{
		RootDir:    filepath.Dir(qcPath),
		SearchDirs: []string{p.Cfg.BaseDir()},
		Log:        log,
	}
	text, err := pp.Flatten(qcPath, st)
	if err != nil {
		return "", nil, err
	}

	flat := strings.TrimSuffix(qcPath, filepath.Ext(qcPath)) + "_flat.qc"
	if err := os.WriteFile(flat, []byte(text), 0o644); err != nil {
		return "", nil, fmt.Errorf("write flattened qc: %w", err)
	}
	log.Debugf("flattened %s", filepath.Base(qcPath))

	if p.Opts.KeepFlatQC {
		return flat, nil, nil
	}
	return flat, func() { os.Remove(flat) }, nil
}

// seedDefines loads variable definitions scoped to target: untargeted
// entries always apply, targeted ones only when target is listed.
func seedDefines(st *qc.State, defs map[string]config.Define, target string) {
	for _, name := range sortedKeys(defs) {
		def := defs[name]
		if len(def.Targets) > 0 && !containsFold(def.Targets, target) {
			continue
		}
		st.Vars.Seed(strings.Trim(name, "$"), def.Value)
	}
}

// newCopier builds the material copier for the configured mode, nil when
// material handling is off.
func (p *Pipeline) newCopier() *vmt.Copier {
	if p.Opts.MatMode == MatSkip || p.game == nil {
		return nil
	}
	localize := p.Opts.MatMode == MatLocalize && !p.Opts.NoMatLocal
	return vmt.NewCopier(p.game.SearchPaths, p.outRoot(), localize, p.Log.WithPrefix("MATERIAL"))
}

// copyModelMaterials resolves the model's full material list (dumped plus a
// static scan of the unflattened QC tree) and copies it.
func (p *Pipeline) copyModelMaterials(copier *vmt.Copier, name string, model config.Model, dumped []string) {
	if copier == nil {
		return
	}
	qcPath := p.Cfg.ResolvePath(model.QC)
	materials := qc.ReadMaterials(qcPath, dumped)
	copier.Log.Infof("model %s: %d material(s)", name, len(materials))
	copier.CopyMaterials(materials)
}

// runTextures drives the texture pipeline with the encode cache.
func (p *Pipeline) runTextures(ctx context.Context) error {
	if p.Opts.ExportDir == "" {
		return fmt.Errorf("no export directory set")
	}
	if err := prepareOutputRoot(p.Opts.ExportDir, p.Opts.ArchiveOld, p.Log); err != nil {
		return err
	}

	cache, err := OpenCache(filepath.Join(p.Opts.ExportDir, CacheFile))
	if err != nil {
		p.Log.Warnf("encode cache unavailable: %v", err)
		cache = nil
	}
	defer cache.Close()

	runner := &TextureRunner{
		Cfg:            p.Cfg,
		Encoder:        p.encoder,
		Cache:          cache,
		OutRoot:        p.Opts.ExportDir,
		Log:            p.Log.WithPrefix("DATA"),
		Force:          p.Opts.Force,
		AllowReprocess: p.Opts.AllowReprocess,
		Recursive:      p.Opts.Recursive,
	}
	return runner.Run(ctx)
}

// packageOutput archives each top-level output subfolder.
func (p *Pipeline) packageOutput(ctx context.Context) {
	log := p.packager.Log
	entries, err := os.ReadDir(p.Opts.ExportDir)
	if err != nil {
		log.Errorf("read export dir: %v", err)
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(p.Opts.ExportDir, entry.Name())
		archive, err := p.packager.Package(ctx, dir)
		if err != nil {
			log.Errorf("%v", err)
			continue
		}
		log.Infof("packaged %s", filepath.Base(archive))
	}
}

// prepareOutputRoot clears the way for a fresh build: an existing root is
// either moved under _archive with a timestamp suffix or deleted.
func prepareOutputRoot(dir string, archive bool, log logx.Sink) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("output root is not a directory: %s", dir)
	}

	if archive {
		stamp := time.Now().Format("20060102-150405")
		dest := filepath.Join(filepath.Dir(dir), "_archive", filepath.Base(dir)+"_"+stamp)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := os.Rename(dir, dest); err != nil {
			return fmt.Errorf("archive output root: %w", err)
		}
		log.Infof("archived previous output to %s", dest)
	} else if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("clear output root: %w", err)
	}
	return os.MkdirAll(dir, 0o755)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
