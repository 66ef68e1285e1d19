package service

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/domain"
	"github.com/qaisarrafique/image-vectorizer/internal/tools"
)

// Grouper merges the bitmaps of files sharing a filename prefix into one
// composite and traces it to a single CMYK EPS per group.
type Grouper struct {
	layout     string
	singletons bool
	pre        *Preprocessor
	tracer     tools.Tracer
	recolorer  tools.Recolorer
	log        *zap.Logger
}

func NewGrouper(cfg config.PipelineConfig, pre *Preprocessor, tracer tools.Tracer, recolorer tools.Recolorer, log *zap.Logger) *Grouper {
	return &Grouper{
		layout:     cfg.GroupLayout,
		singletons: cfg.GroupSingletons,
		pre:        pre,
		tracer:     tracer,
		recolorer:  recolorer,
		log:        log,
	}
}

// DerivePrefix returns the part of a filename stem before the first `_` or
// `-`. A stem without a separator is its own prefix.
func DerivePrefix(stem string) string {
	if i := strings.IndexAny(stem, "_-"); i > 0 {
		return stem[:i]
	}
	return stem
}

// Group builds one composite EPS per prefix out of the successful files'
// bitmaps. Members are merged in ascending filename order. Singleton groups
// are skipped unless configured otherwise; a group whose composite cannot be
// produced is recorded as skipped with its error, never silently dropped.
func (g *Grouper) Group(ctx context.Context, ws *Workspace, files []domain.FileResult, bitmaps map[string]*image.Gray) []domain.GroupResult {
	byPrefix := make(map[string][]domain.FileResult)
	for _, f := range files {
		if !f.OK {
			continue
		}
		byPrefix[f.Prefix] = append(byPrefix[f.Prefix], f)
	}

	prefixes := make([]string, 0, len(byPrefix))
	for p := range byPrefix {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)

	results := make([]domain.GroupResult, 0, len(prefixes))
	for _, prefix := range prefixes {
		members := byPrefix[prefix]
		sort.Slice(members, func(i, j int) bool { return members[i].Filename < members[j].Filename })

		names := make([]string, len(members))
		for i, m := range members {
			names[i] = m.Filename
		}
		res := domain.GroupResult{Prefix: prefix, Members: names}

		if len(members) == 1 && !g.singletons {
			res.Skipped = true
			results = append(results, res)
			continue
		}

		if err := g.composite(ctx, ws, prefix, members, bitmaps, &res); err != nil {
			res.Skipped = true
			res.Error = err.Error()
			g.log.Warn("group composite failed",
				zap.String("prefix", prefix),
				zap.Strings("members", names),
				zap.Error(err))
		} else {
			res.OK = true
		}
		results = append(results, res)
	}
	return results
}

func (g *Grouper) composite(ctx context.Context, ws *Workspace, prefix string, members []domain.FileResult, bitmaps map[string]*image.Gray, res *domain.GroupResult) error {
	imgs := make([]*image.Gray, 0, len(members))
	for _, m := range members {
		bm, ok := bitmaps[m.Stem]
		if !ok {
			return domain.GroupingFailure("missing bitmap for member "+m.Stem, nil)
		}
		imgs = append(imgs, bm)
	}

	merged := g.mergeBitmaps(imgs)

	mergedPath := filepath.Join(ws.BitmapDir, prefix+"_merged.pbm")
	f, err := os.Create(mergedPath)
	if err != nil {
		return domain.GroupingFailure("failed to write merged bitmap", err)
	}
	if err := EncodePBM(f, merged); err != nil {
		f.Close()
		return domain.GroupingFailure("failed to encode merged bitmap", err)
	}
	if err := f.Close(); err != nil {
		return domain.GroupingFailure("failed to write merged bitmap", err)
	}

	rawPath := filepath.Join(ws.GroupDir, prefix+"_final_raw.eps")
	finalPath := filepath.Join(ws.GroupDir, prefix+"_final.eps")

	if err := g.tracer.TraceEPS(ctx, mergedPath, rawPath); err != nil {
		return domain.GroupingFailure("failed to trace composite", err)
	}
	if err := g.recolorer.Recolor(ctx, rawPath, finalPath); err != nil {
		return domain.GroupingFailure("failed to recolor composite", err)
	}
	os.Remove(rawPath)

	res.EPSPath = finalPath
	return nil
}

// mergeBitmaps lays member bitmaps out per the configured layout (grid or a
// single vertical column), then rescales the mosaic back onto the standard
// canvas and re-thresholds it to pure black/white.
func (g *Grouper) mergeBitmaps(imgs []*image.Gray) *image.Gray {
	cols := 1
	if g.layout == "grid" {
		cols = int(math.Ceil(math.Sqrt(float64(len(imgs)))))
	}
	rows := (len(imgs) + cols - 1) / cols

	cell := imgs[0].Bounds()
	w, h := cell.Dx(), cell.Dy()

	mosaic := imaging.New(cols*w, rows*h, color.White)
	for i, img := range imgs {
		r, c := i/cols, i%cols
		mosaic = imaging.Paste(mosaic, img, image.Pt(c*w, r*h))
	}

	return Threshold(g.pre.placeOnCanvas(mosaic), 128)
}
