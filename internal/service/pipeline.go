package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/domain"
	"github.com/qaisarrafique/image-vectorizer/internal/tools"
	"github.com/qaisarrafique/image-vectorizer/pkg/utils"
)

// Pipeline drives a batch of uploads through preprocessing, tracing,
// optional recoloring, grouping and packaging.
type Pipeline interface {
	// Process returns the per-file report and the ZIP archive bytes. When
	// every file fails, the report is returned together with an
	// AggregateFailure error and no archive.
	Process(ctx context.Context, uploads []domain.Upload, settings domain.Settings) (*domain.BatchResult, []byte, error)
}

type pipeline struct {
	cfg       config.PipelineConfig
	pre       *Preprocessor
	grouper   *Grouper
	packager  *Packager
	tracer    tools.Tracer
	recolorer tools.Recolorer
	log       *zap.Logger
}

func NewPipeline(cfg config.PipelineConfig, tracer tools.Tracer, recolorer tools.Recolorer, log *zap.Logger) Pipeline {
	pre := NewPreprocessor(cfg)
	return &pipeline{
		cfg:       cfg,
		pre:       pre,
		grouper:   NewGrouper(cfg, pre, tracer, recolorer, log),
		packager:  NewPackager(log),
		tracer:    tracer,
		recolorer: recolorer,
		log:       log,
	}
}

func (p *pipeline) Process(ctx context.Context, uploads []domain.Upload, settings domain.Settings) (*domain.BatchResult, []byte, error) {
	if len(uploads) == 0 {
		return nil, nil, domain.InvalidInput("no files uploaded", nil)
	}
	if settings.Threshold < 0 || settings.Threshold > 255 {
		return nil, nil, domain.InvalidThreshold(
			fmt.Sprintf("threshold %d outside [0,255]", settings.Threshold), nil)
	}

	ws, err := NewWorkspace(p.log)
	if err != nil {
		return nil, nil, err
	}
	defer ws.Cleanup()

	results := make([]domain.FileResult, len(uploads))
	bitmaps := make([]*image.Gray, len(uploads))

	// Fan out over files with a bounded number of external processes in
	// flight. Per-file failures are recorded, never propagated.
	var eg errgroup.Group
	eg.SetLimit(p.cfg.Concurrency)
	for i, up := range uploads {
		i, up := i, up
		eg.Go(func() error {
			results[i], bitmaps[i] = p.processFile(ctx, ws, up, settings)
			return nil
		})
	}
	eg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	batch := &domain.BatchResult{
		Settings: settings,
		Files:    results,
		Groups:   []domain.GroupResult{},
	}

	if batch.AllFailed() {
		return batch, nil, domain.AggregateFailure(
			fmt.Sprintf("all %d files failed", len(uploads)), nil)
	}

	// Grouping starts only after every member has finished or failed.
	if settings.GroupByPrefix && settings.IncludeEPS {
		byStem := make(map[string]*image.Gray, len(results))
		for i, r := range results {
			if r.OK {
				byStem[r.Stem] = bitmaps[i]
			}
		}
		batch.Groups = p.grouper.Group(ctx, ws, results, byStem)
	}

	var buf bytes.Buffer
	if err := p.packager.Package(&buf, batch); err != nil {
		return batch, nil, err
	}

	p.log.Info("batch processed",
		zap.Int("files", len(uploads)),
		zap.Int("succeeded", len(batch.Succeeded())),
		zap.Int("groups", len(batch.Groups)),
		zap.Int("archive_bytes", buf.Len()))

	return batch, buf.Bytes(), nil
}

func (p *pipeline) processFile(ctx context.Context, ws *Workspace, up domain.Upload, settings domain.Settings) (domain.FileResult, *image.Gray) {
	name := utils.SanitizeFilename(up.Filename)
	ext := strings.ToLower(filepath.Ext(name))
	stem := strings.TrimSuffix(name, filepath.Ext(name))

	res := domain.FileResult{
		Filename: name,
		Stem:     stem,
		Prefix:   DerivePrefix(stem),
		Stage:    domain.StageValidating,
	}

	fail := func(msg string, err error) (domain.FileResult, *image.Gray) {
		if err != nil {
			msg = msg + ": " + err.Error()
		}
		res.Error = msg
		p.log.Warn("file failed",
			zap.String("filename", name),
			zap.String("stage", string(res.Stage)),
			zap.String("reason", msg))
		return res, nil
	}

	if stem == "" {
		return fail("empty filename", nil)
	}
	if !p.allowedFormat(ext) {
		return fail(fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(p.cfg.AllowedFormats, ", ")), nil)
	}
	if int64(len(up.Data)) > p.cfg.MaxFileSize {
		return fail(fmt.Sprintf("file exceeds size limit of %d bytes", p.cfg.MaxFileSize), nil)
	}

	res.Stage = domain.StagePreprocessing
	bitmap, err := p.pre.Preprocess(up.Data, settings.Threshold)
	if err != nil {
		return fail("preprocessing failed", err)
	}

	pbmPath := filepath.Join(ws.BitmapDir, stem+".pbm")
	if err := writePBM(pbmPath, bitmap); err != nil {
		return fail("failed to write bitmap", err)
	}
	res.BitmapPath = pbmPath

	res.Stage = domain.StageTracing
	svgPath := filepath.Join(ws.SVGDir, stem+".svg")
	if err := p.tracer.TraceSVG(ctx, pbmPath, svgPath); err != nil {
		return fail("tracing failed", err)
	}
	res.SVGPath = svgPath

	if settings.IncludeEPS {
		rawPath := filepath.Join(ws.EPSDir, stem+"_raw.eps")
		epsPath := filepath.Join(ws.EPSDir, stem+".eps")

		if err := p.tracer.TraceEPS(ctx, pbmPath, rawPath); err != nil {
			return fail("tracing failed", err)
		}

		res.Stage = domain.StageRecoloring
		if err := p.recolorer.Recolor(ctx, rawPath, epsPath); err != nil {
			return fail("recoloring failed", err)
		}
		os.Remove(rawPath)
		res.EPSPath = epsPath
	}

	res.Stage = domain.StageComplete
	res.OK = true
	return res, bitmap
}

func (p *pipeline) allowedFormat(ext string) bool {
	for _, allowed := range p.cfg.AllowedFormats {
		if ext == allowed {
			return true
		}
	}
	return false
}

func writePBM(path string, img *image.Gray) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := EncodePBM(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
