package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// fakeTracer and fakeRecolorer stand in for potrace and Ghostscript so the
// pipeline can be exercised without external binaries. They write marker
// bytes to the output path and can be told to fail for specific inputs.
type fakeTracer struct {
	mu    sync.Mutex
	fail  map[string]bool // keyed by input file basename
	calls []string
}

func (f *fakeTracer) trace(ctx context.Context, kind, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	f.calls = append(f.calls, kind+":"+filepath.Base(inputPath))
	failed := f.fail[filepath.Base(inputPath)]
	f.mu.Unlock()

	if failed {
		return errors.New("trace failed")
	}
	return os.WriteFile(outputPath, []byte(kind+":"+filepath.Base(inputPath)), 0o644)
}

func (f *fakeTracer) TraceSVG(ctx context.Context, inputPath, outputPath string) error {
	return f.trace(ctx, "svg", inputPath, outputPath)
}

func (f *fakeTracer) TraceEPS(ctx context.Context, inputPath, outputPath string) error {
	return f.trace(ctx, "eps", inputPath, outputPath)
}

type fakeRecolorer struct {
	mu   sync.Mutex
	fail map[string]bool // keyed by input file basename
}

func (f *fakeRecolorer) Recolor(ctx context.Context, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	failed := f.fail[filepath.Base(inputPath)]
	f.mu.Unlock()

	if failed {
		return errors.New("recolor failed")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, append([]byte("cmyk:"), data...), 0o644)
}
