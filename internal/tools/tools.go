// Package tools wraps the external binaries the pipeline shells out to:
// potrace for bitmap tracing and Ghostscript for CMYK recoloring. The
// pipeline depends only on the Tracer and Recolorer interfaces so it can be
// tested without either binary installed.
package tools

import (
	"context"
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

// Tracer converts a black/white bitmap file into a vector path file.
type Tracer interface {
	TraceSVG(ctx context.Context, inputPath, outputPath string) error
	TraceEPS(ctx context.Context, inputPath, outputPath string) error
}

// Recolorer converts a traced vector file into a CMYK EPS.
type Recolorer interface {
	Recolor(ctx context.Context, inputPath, outputPath string) error
}

// Prober reports availability of the external dependencies for the health
// endpoint and the /process pre-flight check.
type Prober interface {
	Dependencies(ctx context.Context) map[string]bool
}

const (
	depTracer         = "tracer"
	depColorConverter = "colorConverter"
)

type Potrace struct {
	bin string
	log *zap.Logger
}

func NewPotrace(bin string, log *zap.Logger) *Potrace {
	return &Potrace{bin: bin, log: log}
}

func (p *Potrace) TraceSVG(ctx context.Context, inputPath, outputPath string) error {
	return p.run(ctx, "-s", "-o", outputPath, inputPath)
}

func (p *Potrace) TraceEPS(ctx context.Context, inputPath, outputPath string) error {
	return p.run(ctx, "-e", "-o", outputPath, inputPath)
}

func (p *Potrace) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, p.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		p.log.Error("potrace failed",
			zap.Strings("args", args),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("potrace %v: %w", args, err)
	}
	return nil
}

type Ghostscript struct {
	bin string
	ppi int
	log *zap.Logger
}

func NewGhostscript(bin string, ppi int, log *zap.Logger) *Ghostscript {
	return &Ghostscript{bin: bin, ppi: ppi, log: log}
}

// Recolor rewrites an EPS through Ghostscript's eps2write device with CIE
// color, yielding a CMYK EPS at the configured resolution.
func (g *Ghostscript) Recolor(ctx context.Context, inputPath, outputPath string) error {
	args := []string{
		"-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE=eps2write",
		"-dUseCIEColor",
		fmt.Sprintf("-r%d", g.ppi),
		"-dEPSCrop",
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}

	cmd := exec.CommandContext(ctx, g.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		g.log.Error("ghostscript failed",
			zap.String("input", inputPath),
			zap.ByteString("output", out),
			zap.Error(err))
		return fmt.Errorf("ghostscript recolor %s: %w", inputPath, err)
	}
	return nil
}

// BinaryProber probes the configured binaries by running `--version`.
type BinaryProber struct {
	tracerBin  string
	recolorBin string
	log        *zap.Logger
}

func NewBinaryProber(tracerBin, recolorBin string, log *zap.Logger) *BinaryProber {
	return &BinaryProber{tracerBin: tracerBin, recolorBin: recolorBin, log: log}
}

func (b *BinaryProber) Dependencies(ctx context.Context) map[string]bool {
	return map[string]bool{
		depTracer:         b.probe(ctx, b.tracerBin),
		depColorConverter: b.probe(ctx, b.recolorBin),
	}
}

func (b *BinaryProber) probe(ctx context.Context, bin string) bool {
	if err := exec.CommandContext(ctx, bin, "--version").Run(); err != nil {
		b.log.Warn("dependency probe failed", zap.String("binary", bin), zap.Error(err))
		return false
	}
	return true
}

// Ready reports whether every probed dependency is available, and the name
// of the first missing one otherwise.
func Ready(deps map[string]bool) (bool, string) {
	for _, name := range []string{depTracer, depColorConverter} {
		if !deps[name] {
			return false, name
		}
	}
	return true, ""
}
