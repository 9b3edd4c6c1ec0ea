package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/wgdzlh/segtile"
	"github.com/wgdzlh/segtile/config"
	"github.com/wgdzlh/segtile/log"
	"github.com/wgdzlh/segtile/pipeline"
	"github.com/wgdzlh/segtile/utils"

	"go.uber.org/zap"
)

const (
	exitInput  = 1
	exitUsage  = 2
	exitFailed = 3

	logTag = "Main:"
)

// ExitError carries the process exit code of a failed run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Args[1:])
	stop()
	log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(exitInput)
	}
}

// 解析参数：先读取任务文件，再以显式给出的命令行参数覆盖
func parseArgs(args []string, out io.Writer) (job *config.Job, dev, help bool, err error) {
	fs := flag.NewFlagSet("segtile", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, `
segtile - cut a georeferenced raster and its polygon annotations into aligned
training tiles and class masks.

Usage:
  segtile -c job.hcl [options]

Options:
`)
		fs.PrintDefaults()
	}
	var (
		jobFile     = fs.String("c", "", "Path to the HCL job file.")
		raster      = fs.String("raster", "", "Input raster, overrides the job file.")
		aoi         = fs.String("aoi", "", "AOI layer, overrides the job file.")
		annotations = fs.String("annotations", "", "Annotation layer, overrides the job file.")
		outDir      = fs.String("out", "", "Output directory, overrides the job file.")
		tileSize    = fs.Int("tile-size", config.DefaultTileSize, "Tile edge length in pixels.")
		bands       = fs.String("bands", "", "Comma separated 1-based band list, e.g. 3,2,1.")
		cells       = fs.String("cells", "", "Only process these cell indices, e.g. 3,7-9.")
		workers     = fs.Int("workers", 0, "Number of workers, 0 for one per CPU.")
		logLevel    = fs.String("log-level", config.DefaultLogLevel, "Log level: debug, info, warn or error.")
	)
	fs.BoolVar(&dev, "dev", false, "Human readable development logs.")

	if err = fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			help = true
			err = nil
			return
		}
		err = &ExitError{Code: exitUsage, Err: err}
		return
	}
	if *jobFile != "" {
		if job, err = config.Load(*jobFile); err != nil {
			err = &ExitError{Code: exitUsage, Err: err}
			return
		}
	} else {
		job = config.Default()
	}

	var e error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "raster":
			job.Raster = *raster
		case "aoi":
			job.AOI = *aoi
		case "annotations":
			job.Annotations = *annotations
		case "out":
			job.OutDir = *outDir
		case "tile-size":
			job.TileSize = *tileSize
		case "bands":
			if job.Bands, e = utils.ParsePositiveInts(*bands); e != nil {
				err = e
			}
		case "cells":
			if job.Cells, e = utils.ParsePositiveInts(*cells); e != nil {
				err = e
			}
		case "workers":
			job.Workers = *workers
		case "log-level":
			job.LogLevel = *logLevel
		}
	})
	if err == nil {
		err = job.Validate()
	}
	if err != nil {
		fs.Usage()
		err = &ExitError{Code: exitUsage, Err: err}
	}
	return
}

func run(ctx context.Context, out io.Writer, args []string) (err error) {
	job, dev, help, err := parseArgs(args, out)
	if err != nil || help {
		return
	}
	if err = log.Init(job.LogLevel, dev); err != nil {
		return &ExitError{Code: exitUsage, Err: err}
	}
	log.Info(logTag+"job loaded", zap.Any("job", job))

	g := segtile.NewGdalToolbox()
	defer g.Destroy()
	in, err := g.LoadInputs(job.Inputs())
	if err != nil {
		log.Error(logTag+"load inputs failed", zap.Error(err))
		return &ExitError{Code: exitInput, Err: err}
	}
	res, err := pipeline.Run(ctx, in, g.NewGTiffWriter(job.Compression), job.Options())
	if err != nil {
		log.Error(logTag+"run failed", zap.Error(err))
		return &ExitError{Code: exitInput, Err: err}
	}

	rep := res.Report
	fmt.Fprintf(out, "run %s: %s\n", res.RunID, rep.Summary())
	fmt.Fprintf(out, "classes: %d -> %s\n", res.Catalog.Len(), pipeline.CatalogFile)
	if ids := rep.DegradedIndices(); len(ids) > 0 {
		fmt.Fprintf(out, "degraded cells (skipped unlabeled polygons): %s\n", utils.IntsToStr(ids, ','))
	}
	if ids := rep.FailedIndices(); len(ids) > 0 {
		for _, i := range ids {
			fmt.Fprintf(out, "  cell %d: %v\n", i, rep.Failed[i])
		}
		fmt.Fprintf(out, "re-run failed cells with: -cells %s\n", utils.IntsToStr(ids, ','))
		return &ExitError{Code: exitFailed, Err: fmt.Errorf("%d of %d cells failed", len(ids), rep.Total)}
	}
	return
}
