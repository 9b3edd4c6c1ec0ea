// Package config loads a segtile job from an HCL file. A job names the input
// raster and vector layers, the output directory and the tiling parameters:
//
//	raster      = "scene.tif"
//	aoi         = "aoi.shp"
//	annotations = "labels.gpkg"
//	out_dir     = "dataset"
//	tile_size   = 512
//	bands       = [3, 2, 1]
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"go.uber.org/zap/zapcore"

	"github.com/wgdzlh/segtile"
	"github.com/wgdzlh/segtile/pipeline"
)

const (
	DefaultTileSize    = 512
	DefaultLabelField  = "label"
	DefaultStatusField = "status"
	DefaultLogLevel    = "info"
)

var (
	ErrMissingField  = errors.New("required job field is empty")
	ErrInvalidField  = errors.New("invalid job field")
	ErrParseJobFile  = errors.New("failed to parse job file")
	ErrDecodeJobFile = errors.New("failed to decode job file")
)

// Job is the decoded job file. Absent optional attributes keep the defaults
// set by Default.
type Job struct {
	Raster        string `hcl:"raster,optional"`
	AOI           string `hcl:"aoi,optional"`
	Annotations   string `hcl:"annotations,optional"`
	OutDir        string `hcl:"out_dir,optional"`
	TileSize      int    `hcl:"tile_size,optional"`
	Bands         []int  `hcl:"bands,optional"`
	Background    int    `hcl:"background,optional"`
	Compression   string `hcl:"compression,optional"`
	LabelField    string `hcl:"label_field,optional"`
	StatusField   string `hcl:"status_field,optional"`
	LabelEncoding string `hcl:"label_encoding,optional"`
	Workers       int    `hcl:"workers,optional"`
	Cells         []int  `hcl:"cells,optional"`
	LogLevel      string `hcl:"log_level,optional"`
}

func Default() *Job {
	return &Job{
		TileSize:      DefaultTileSize,
		Compression:   segtile.DEFAULT_COMPRESSION,
		LabelField:    DefaultLabelField,
		StatusField:   DefaultStatusField,
		LabelEncoding: segtile.SHAPE_ENCODING,
		LogLevel:      DefaultLogLevel,
	}
}

// Load decodes the HCL job file at path over the defaults. The job is not
// validated; callers apply overrides first and then call Validate.
func Load(path string) (*Job, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w %s: %w", ErrParseJobFile, path, diags)
	}
	job := Default()
	if diags = gohcl.DecodeBody(file.Body, nil, job); diags.HasErrors() {
		return nil, fmt.Errorf("%w %s: %w", ErrDecodeJobFile, path, diags)
	}
	return job, nil
}

// Parse is Load for in-memory sources; filename only labels diagnostics.
func Parse(src []byte, filename string) (*Job, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%w %s: %w", ErrParseJobFile, filename, diags)
	}
	job := Default()
	if diags = gohcl.DecodeBody(file.Body, nil, job); diags.HasErrors() {
		return nil, fmt.Errorf("%w %s: %w", ErrDecodeJobFile, filename, diags)
	}
	return job, nil
}

func (j *Job) Validate() error {
	for _, f := range [][2]string{
		{"raster", j.Raster},
		{"aoi", j.AOI},
		{"annotations", j.Annotations},
		{"out_dir", j.OutDir},
		{"label_field", j.LabelField},
		{"status_field", j.StatusField},
	} {
		if strings.TrimSpace(f[1]) == "" {
			return fmt.Errorf("%w: %s", ErrMissingField, f[0])
		}
	}
	if j.TileSize <= 0 {
		return fmt.Errorf("%w: tile_size must be positive, got %d", ErrInvalidField, j.TileSize)
	}
	if j.Background < 0 || j.Background > 255 {
		return fmt.Errorf("%w: background must be within 0..255, got %d", ErrInvalidField, j.Background)
	}
	if j.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidField, j.Workers)
	}
	for _, b := range j.Bands {
		if b < 1 {
			return fmt.Errorf("%w: band indices are 1-based, got %d", ErrInvalidField, b)
		}
	}
	for _, c := range j.Cells {
		if c < 1 {
			return fmt.Errorf("%w: cell indices are 1-based, got %d", ErrInvalidField, c)
		}
	}
	switch strings.ToUpper(j.LabelEncoding) {
	case "", "UTF-8", "UTF8", segtile.ZH_ENC:
	default:
		return fmt.Errorf("%w: label_encoding must be UTF-8 or GBK, got %q", ErrInvalidField, j.LabelEncoding)
	}
	if j.LogLevel != "" {
		if _, err := zapcore.ParseLevel(j.LogLevel); err != nil {
			return fmt.Errorf("%w: log_level: %v", ErrInvalidField, err)
		}
	}
	return nil
}

func (j *Job) Inputs() segtile.InputFiles {
	return segtile.InputFiles{
		Raster:      j.Raster,
		AOI:         segtile.LayerOptions{Path: j.AOI, Field: j.StatusField, Encoding: j.LabelEncoding},
		Annotations: segtile.LayerOptions{Path: j.Annotations, Field: j.LabelField, Encoding: j.LabelEncoding},
	}
}

func (j *Job) Options() pipeline.Options {
	return pipeline.Options{
		OutDir:     j.OutDir,
		TileSize:   j.TileSize,
		Bands:      j.Bands,
		Background: uint8(j.Background),
		Workers:    j.Workers,
		Cells:      j.Cells,
	}
}
