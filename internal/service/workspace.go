package service

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Workspace is the request-scoped temporary directory tree the pipeline
// works in. Every request gets its own; Cleanup must run on every exit path.
type Workspace struct {
	Root      string
	BitmapDir string
	SVGDir    string
	EPSDir    string
	GroupDir  string

	log *zap.Logger
}

func NewWorkspace(log *zap.Logger) (*Workspace, error) {
	root, err := os.MkdirTemp("", "vectorizer-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	ws := &Workspace{
		Root:      root,
		BitmapDir: filepath.Join(root, "bw"),
		SVGDir:    filepath.Join(root, "svg"),
		EPSDir:    filepath.Join(root, "eps"),
		GroupDir:  filepath.Join(root, "groups"),
		log:       log,
	}

	for _, dir := range []string{ws.BitmapDir, ws.SVGDir, ws.EPSDir, ws.GroupDir} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			os.RemoveAll(root)
			return nil, fmt.Errorf("failed to create workspace directory %s: %w", dir, err)
		}
	}

	return ws, nil
}

// Cleanup removes the whole workspace tree. Safe to call more than once.
func (w *Workspace) Cleanup() {
	if err := os.RemoveAll(w.Root); err != nil && !os.IsNotExist(err) {
		w.log.Warn("failed to remove workspace", zap.String("root", w.Root), zap.Error(err))
	}
}
