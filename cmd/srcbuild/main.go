// Command srcbuild runs an asset build described by a configuration file:
// model compiles with QC flattening, material resolution, texture encoding,
// data processing and packaging.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/karou/srcbuild/internal/build"
	"github.com/karou/srcbuild/internal/config"
	"github.com/karou/srcbuild/internal/logx"
)

func main() {
	var (
		logDir     = pflag.String("log", "", "write a timestamped log file into this directory")
		verbose    = pflag.BoolP("verbose", "v", false, "enable debug output")
		noColor    = pflag.Bool("no-color", false, "disable colored output")
		baseDir    = pflag.String("basedir", "", "override the path resolution root (default: config dir)")
		exportDir  = pflag.String("exportdir", "", "output directory (default: <config dir>/export)")
		gameMode   = pflag.Bool("game", false, "compile into the game directory and skip post-processing")
		matMode    = pflag.Int("mat-mode", build.MatLocalize, "material handling: 0 skip, 1 mirror, 2 localize")
		noMatLocal = pflag.Bool("no-mat-local", false, "copy materials without rewriting references")
		pkgFiles   = pflag.Bool("package-files", false, "package each output subfolder into an archive")
		archiveOld = pflag.Bool("archive-old-ver", false, "archive an existing output root instead of deleting it")
		qcMode     = pflag.Int("qc-mode", 1, "0 compiles QC files as-is, 1 flattens directives first")
		keepFlat   = pflag.Bool("keep-flat-qc", false, "keep the flattened QC files next to their sources")
		force      = pflag.Bool("forceupdate", false, "re-encode textures even when outputs are current")
		reprocess  = pflag.Bool("allow-reprocess", false, "let multiple texture groups encode the same source")
		recursive  = pflag.BoolP("recursive", "r", false, "descend into subdirectories for texture inputs")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] <config file>\n\n", filepath.Base(os.Args[0]))
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	logFile := ""
	if *logDir != "" {
		if err := os.MkdirAll(*logDir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logFile = filepath.Join(*logDir, "srcbuild_"+time.Now().Format("20060102-150405")+".log")
	}
	log, err := logx.New(logx.Options{Verbose: *verbose, NoColor: *noColor, LogFile: logFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Close()

	if err := run(log, runArgs{
		configPath: pflag.Arg(0),
		baseDir:    *baseDir,
		exportDir:  *exportDir,
		opts: build.Options{
			GameMode:       *gameMode,
			MatMode:        *matMode,
			NoMatLocal:     *noMatLocal,
			Package:        *pkgFiles,
			ArchiveOld:     *archiveOld,
			FlattenQC:      *qcMode != 0,
			KeepFlatQC:     *keepFlat,
			Force:          *force,
			AllowReprocess: *reprocess,
			Recursive:      *recursive,
		},
	}); err != nil {
		log.Errorf("%v", err)
		log.Summary()
		os.Exit(1)
	}

	log.Summary()
	if _, errors := log.Counts(); errors > 0 {
		os.Exit(1)
	}
}

type runArgs struct {
	configPath string
	baseDir    string
	exportDir  string
	opts       build.Options
}

func run(log *logx.Logger, args runArgs) error {
	cfg, err := config.Load(args.configPath)
	if err != nil {
		return err
	}
	if args.baseDir != "" {
		abs, err := filepath.Abs(args.baseDir)
		if err != nil {
			return err
		}
		cfg.SetBaseDir(abs)
	}

	export := args.exportDir
	if export == "" {
		export = filepath.Join(cfg.BaseDir(), "export")
	} else if export, err = filepath.Abs(export); err != nil {
		return err
	}
	args.opts.ExportDir = export

	log.Infof("config: %s (%s)", args.configPath, cfg.Header)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	pipeline, err := build.New(cfg, log, args.opts)
	if err != nil {
		return err
	}
	return pipeline.Run(ctx)
}
