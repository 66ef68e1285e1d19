package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/domain"
)

type fakePipeline struct {
	batch   *domain.BatchResult
	archive []byte
	err     error

	gotUploads  []domain.Upload
	gotSettings domain.Settings
}

func (f *fakePipeline) Process(ctx context.Context, uploads []domain.Upload, settings domain.Settings) (*domain.BatchResult, []byte, error) {
	f.gotUploads = uploads
	f.gotSettings = settings
	return f.batch, f.archive, f.err
}

type fakeProber struct {
	tracer         bool
	colorConverter bool
}

func (f *fakeProber) Dependencies(ctx context.Context) map[string]bool {
	return map[string]bool{
		"tracer":         f.tracer,
		"colorConverter": f.colorConverter,
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5},
		Pipeline: config.PipelineConfig{
			DefaultThreshold: 120,
			MaxFileSize:      10 * 1024 * 1024,
		},
	}
}

func newTestRouter(p *fakePipeline, prober *fakeProber) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(p, prober, nil, testConfig(), zap.NewNop())

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	router.POST("/process", h.ProcessImages)
	return router
}

func multipartRequest(t *testing.T, files map[string][]byte, fields map[string]string) *http.Request {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, data := range files {
		fw, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for key, value := range fields {
		require.NoError(t, mw.WriteField(key, value))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestHealthCheckReady(t *testing.T) {
	router := newTestRouter(&fakePipeline{}, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeJSON(t, w.Body)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, true, body["ready"])
	deps := body["dependencies"].(map[string]any)
	assert.Equal(t, true, deps["tracer"])
	assert.Equal(t, true, deps["colorConverter"])
}

func TestHealthCheckNotReady(t *testing.T) {
	router := newTestRouter(&fakePipeline{}, &fakeProber{tracer: true, colorConverter: false})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeJSON(t, w.Body)["ready"])
}

func TestProcessRejectedWhenToolMissing(t *testing.T) {
	router := newTestRouter(&fakePipeline{}, &fakeProber{tracer: false, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, decodeJSON(t, w.Body)["error"], "tracer")
}

func TestProcessNoFiles(t *testing.T) {
	router := newTestRouter(&fakePipeline{}, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, nil, map[string]string{"threshold": "120"}))

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeJSON(t, w.Body)["error"], "no files")
}

func TestProcessMalformedSettings(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"non-integer threshold", map[string]string{"threshold": "dark"}},
		{"non-boolean include_eps", map[string]string{"include_eps": "kinda"}},
		{"non-boolean group_by_prefix", map[string]string{"group_by_prefix": "2x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakePipeline{}, &fakeProber{tracer: true, colorConverter: true})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, tt.fields))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestProcessDefaultsAndOverrides(t *testing.T) {
	p := &fakePipeline{
		batch:   &domain.BatchResult{},
		archive: []byte("zip-bytes"),
	}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Settings{Threshold: 120, IncludeEPS: true, GroupByPrefix: true}, p.gotSettings)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, map[string]string{
		"threshold":       "42",
		"include_eps":     "false",
		"group_by_prefix": "false",
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.Settings{Threshold: 42, IncludeEPS: false, GroupByPrefix: false}, p.gotSettings)
}

func TestProcessReturnsArchive(t *testing.T) {
	p := &fakePipeline{
		batch:   &domain.BatchResult{},
		archive: []byte("zip-bytes"),
	}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("png-data")}, nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "vectorized_outputs.zip")
	assert.Equal(t, "zip-bytes", w.Body.String())

	require.Len(t, p.gotUploads, 1)
	assert.Equal(t, "a.png", p.gotUploads[0].Filename)
	assert.Equal(t, []byte("png-data"), p.gotUploads[0].Data)
}

func TestProcessInvalidInputMapsTo400(t *testing.T) {
	p := &fakePipeline{err: domain.InvalidThreshold("threshold 300 outside [0,255]", nil)}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProcessAggregateFailureMapsTo422(t *testing.T) {
	p := &fakePipeline{
		batch: &domain.BatchResult{
			Files: []domain.FileResult{
				{Filename: "a.png", OK: false, Stage: domain.StagePreprocessing, Error: "cannot decode image"},
			},
		},
		err: domain.AggregateFailure("all 1 files failed", nil),
	}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decodeJSON(t, w.Body)
	assert.Contains(t, body["error"], "all 1 files failed")
	files := body["files"].([]any)
	require.Len(t, files, 1)
}

func TestProcessInternalErrorMapsTo500(t *testing.T) {
	p := &fakePipeline{err: domain.PackagingFailure("failed to finalize archive", nil)}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestProcessTimeoutMapsTo504(t *testing.T) {
	p := &fakePipeline{err: context.DeadlineExceeded}
	router := newTestRouter(p, &fakeProber{tracer: true, colorConverter: true})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, map[string][]byte{"a.png": []byte("x")}, nil))
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}
