package service

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/domain"
)

// Packager serializes a batch result into one ZIP archive with the fixed
// layout svg/, eps/, groups/ plus a manifest.json describing per-file and
// per-group outcomes. Empty subtrees are valid.
type Packager struct {
	log *zap.Logger
}

func NewPackager(log *zap.Logger) *Packager {
	return &Packager{log: log}
}

func (p *Packager) Package(w io.Writer, res *domain.BatchResult) error {
	zw := zip.NewWriter(w)

	files := res.Succeeded()
	sort.Slice(files, func(i, j int) bool { return files[i].Filename < files[j].Filename })

	for _, f := range files {
		if err := p.addFile(zw, "svg/"+f.Stem+".svg", f.SVGPath); err != nil {
			return err
		}
	}
	for _, f := range files {
		if f.EPSPath == "" {
			continue
		}
		if err := p.addFile(zw, "eps/"+f.Stem+".eps", f.EPSPath); err != nil {
			return err
		}
	}

	groups := append([]domain.GroupResult(nil), res.Groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].Prefix < groups[j].Prefix })
	for _, g := range groups {
		if !g.OK {
			continue
		}
		if err := p.addFile(zw, "groups/"+g.Prefix+"_final.eps", g.EPSPath); err != nil {
			return err
		}
	}

	if err := p.addManifest(zw, res); err != nil {
		return err
	}

	if err := zw.Close(); err != nil {
		return domain.PackagingFailure("failed to finalize archive", err)
	}
	return nil
}

func (p *Packager) addFile(zw *zip.Writer, name, path string) error {
	src, err := os.Open(path)
	if err != nil {
		return domain.PackagingFailure("failed to read artifact "+name, err)
	}
	defer src.Close()

	dst, err := zw.Create(name)
	if err != nil {
		return domain.PackagingFailure("failed to create archive entry "+name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return domain.PackagingFailure("failed to write archive entry "+name, err)
	}
	return nil
}

func (p *Packager) addManifest(zw *zip.Writer, res *domain.BatchResult) error {
	dst, err := zw.Create("manifest.json")
	if err != nil {
		return domain.PackagingFailure("failed to create manifest entry", err)
	}
	enc := json.NewEncoder(dst)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return domain.PackagingFailure("failed to encode manifest", err)
	}
	return nil
}
