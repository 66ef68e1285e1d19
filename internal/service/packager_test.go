package service

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/domain"
)

func writeArtifact(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func zipEntries(t *testing.T, data []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	entries := make(map[string]string, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		entries[f.Name] = string(content)
	}
	return entries
}

func TestPackageRoundTrip(t *testing.T) {
	dir := t.TempDir()

	res := &domain.BatchResult{
		Settings: domain.Settings{Threshold: 120, IncludeEPS: true, GroupByPrefix: true},
		Files: []domain.FileResult{
			{
				Filename: "a_1.png", Stem: "a_1", Prefix: "a", OK: true, Stage: domain.StageComplete,
				SVGPath: writeArtifact(t, dir, "a_1.svg", "svg-a1"),
				EPSPath: writeArtifact(t, dir, "a_1.eps", "eps-a1"),
			},
			{
				Filename: "broken.png", Stem: "broken", Prefix: "broken",
				OK: false, Stage: domain.StagePreprocessing, Error: "cannot decode image",
			},
		},
		Groups: []domain.GroupResult{
			{
				Prefix: "a", Members: []string{"a_1.png"}, OK: true,
				EPSPath: writeArtifact(t, dir, "a_final.eps", "group-a"),
			},
			{Prefix: "broken", Members: nil, Skipped: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, NewPackager(zap.NewNop()).Package(&buf, res))

	entries := zipEntries(t, buf.Bytes())

	// Exactly the succeeded artifacts, each under the right subtree.
	assert.Equal(t, "svg-a1", entries["svg/a_1.svg"])
	assert.Equal(t, "eps-a1", entries["eps/a_1.eps"])
	assert.Equal(t, "group-a", entries["groups/a_final.eps"])
	assert.Contains(t, entries, "manifest.json")
	assert.Len(t, entries, 4)

	var manifest domain.BatchResult
	require.NoError(t, json.Unmarshal([]byte(entries["manifest.json"]), &manifest))
	require.Len(t, manifest.Files, 2)
	assert.True(t, manifest.Files[0].OK)
	assert.Equal(t, "cannot decode image", manifest.Files[1].Error)
	require.Len(t, manifest.Groups, 2)
	assert.True(t, manifest.Groups[1].Skipped)
}

func TestPackageEmptySubtreesAreValid(t *testing.T) {
	dir := t.TempDir()

	res := &domain.BatchResult{
		Settings: domain.Settings{Threshold: 120},
		Files: []domain.FileResult{
			{
				Filename: "solo.png", Stem: "solo", Prefix: "solo", OK: true, Stage: domain.StageComplete,
				SVGPath: writeArtifact(t, dir, "solo.svg", "svg-solo"),
			},
		},
		Groups: []domain.GroupResult{},
	}

	var buf bytes.Buffer
	require.NoError(t, NewPackager(zap.NewNop()).Package(&buf, res))

	entries := zipEntries(t, buf.Bytes())
	assert.Contains(t, entries, "svg/solo.svg")
	assert.Contains(t, entries, "manifest.json")
	assert.Len(t, entries, 2)
}

func TestPackageEntriesSortedByFilename(t *testing.T) {
	dir := t.TempDir()

	res := &domain.BatchResult{
		Files: []domain.FileResult{
			{Filename: "b.png", Stem: "b", Prefix: "b", OK: true, SVGPath: writeArtifact(t, dir, "b.svg", "b")},
			{Filename: "a.png", Stem: "a", Prefix: "a", OK: true, SVGPath: writeArtifact(t, dir, "a.svg", "a")},
		},
		Groups: []domain.GroupResult{},
	}

	var buf bytes.Buffer
	require.NoError(t, NewPackager(zap.NewNop()).Package(&buf, res))

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"svg/a.svg", "svg/b.svg", "manifest.json"}, names)
}

func TestPackageFailsOnMissingArtifact(t *testing.T) {
	res := &domain.BatchResult{
		Files: []domain.FileResult{
			{Filename: "a.png", Stem: "a", Prefix: "a", OK: true, SVGPath: "/nonexistent/a.svg"},
		},
		Groups: []domain.GroupResult{},
	}

	var buf bytes.Buffer
	err := NewPackager(zap.NewNop()).Package(&buf, res)
	require.Error(t, err)
	assert.Equal(t, domain.KindPackagingFailure, domain.KindOf(err))
}
