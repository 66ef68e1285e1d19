package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qaisarrafique/image-vectorizer/internal/config"
	"github.com/qaisarrafique/image-vectorizer/internal/handler"
	"github.com/qaisarrafique/image-vectorizer/internal/repository"
	"github.com/qaisarrafique/image-vectorizer/internal/service"
	"github.com/qaisarrafique/image-vectorizer/internal/tools"
)

type Server struct {
	httpServer *http.Server
	cfg        *config.Config
	log        *zap.Logger
}

func New(cfg *config.Config, log *zap.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	tracer := tools.NewPotrace(cfg.Tools.PotracePath, log)
	recolorer := tools.NewGhostscript(cfg.Tools.GhostscriptPath, cfg.Tools.PPI, log)
	prober := tools.NewBinaryProber(cfg.Tools.PotracePath, cfg.Tools.GhostscriptPath, log)

	pipeline := service.NewPipeline(cfg.Pipeline, tracer, recolorer, log)

	var store repository.ArchiveStore
	if cfg.S3.Enabled {
		var err error
		store, err = repository.NewS3ArchiveStore(&cfg.S3, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create archive store: %w", err)
		}
	}

	h := handler.NewHandler(pipeline, prober, store, cfg, log)

	router.GET("/health", h.HealthCheck)
	router.POST("/process", h.ProcessImages)

	if store != nil {
		api := router.Group("/api")
		{
			api.GET("/archives", h.ListArchives)
			api.GET("/archives/:id", h.DownloadArchive)
		}
	}

	router.StaticFile("/", filepath.Join(cfg.Server.StaticDir, "index.html"))
	router.Static("/static", cfg.Server.StaticDir)

	server := &Server{
		httpServer: &http.Server{
			Addr:           cfg.Server.Host + ":" + cfg.Server.Port,
			Handler:        router,
			ReadTimeout:    time.Duration(cfg.Server.RequestTimeout) * time.Second,
			WriteTimeout:   time.Duration(cfg.Server.RequestTimeout) * time.Second,
			MaxHeaderBytes: 1 << 20, // 1 MB
		},
		cfg: cfg,
		log: log,
	}

	log.Info("server created",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.Bool("archive_store", store != nil))

	return server, nil
}

func (s *Server) Run() error {
	s.log.Info("server is running", zap.String("address", s.httpServer.Addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
