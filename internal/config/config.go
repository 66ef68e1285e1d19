package config

import (
	"fmt"
	"runtime"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Pipeline PipelineConfig
	Tools    ToolsConfig
	S3       S3Config
}

type ServerConfig struct {
	Host           string
	Port           string
	RequestTimeout int // seconds, applied to /process
	StaticDir      string
}

// PipelineConfig carries every pipeline tunable so components receive their
// knobs explicitly instead of reading module-level constants.
type PipelineConfig struct {
	DefaultThreshold int
	CanvasSize       int
	ScaleFactor      float64
	MaxFileSize      int64
	Concurrency      int
	GroupLayout      string // "grid" or "vertical"
	GroupSingletons  bool
	AllowedFormats   []string
}

type ToolsConfig struct {
	PotracePath     string
	GhostscriptPath string
	PPI             int
}

type S3Config struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
	Region          string
}

func Load() (*Config, error) {
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_REQUEST_TIMEOUT", 120)
	viper.SetDefault("SERVER_STATIC_DIR", "./web/static")

	viper.SetDefault("APP_THRESHOLD", 120)
	viper.SetDefault("APP_CANVAS_SIZE", 3000)
	viper.SetDefault("APP_SCALE_FACTOR", 0.85)
	viper.SetDefault("APP_MAX_FILE_SIZE", 10*1024*1024) // 10 MiB per file
	viper.SetDefault("APP_CONCURRENCY", 4)
	viper.SetDefault("APP_GROUP_LAYOUT", "grid")
	viper.SetDefault("APP_GROUP_SINGLETONS", false)
	viper.SetDefault("APP_ALLOWED_FORMATS", []string{".png", ".jpg", ".jpeg"})

	viper.SetDefault("TOOLS_POTRACE", "potrace")
	viper.SetDefault("TOOLS_GHOSTSCRIPT", defaultGhostscript())
	viper.SetDefault("TOOLS_PPI", 300)

	viper.SetDefault("S3_ENABLED", false)
	viper.SetDefault("S3_ENDPOINT", "localhost:9000")
	viper.SetDefault("S3_ACCESS_KEY_ID", "minioadmin")
	viper.SetDefault("S3_SECRET_ACCESS_KEY", "minioadmin")
	viper.SetDefault("S3_USE_SSL", false)
	viper.SetDefault("S3_BUCKET_NAME", "vector-archives")
	viper.SetDefault("S3_REGION", "us-east-1")

	viper.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host:           viper.GetString("SERVER_HOST"),
			Port:           viper.GetString("SERVER_PORT"),
			RequestTimeout: viper.GetInt("SERVER_REQUEST_TIMEOUT"),
			StaticDir:      viper.GetString("SERVER_STATIC_DIR"),
		},
		Pipeline: PipelineConfig{
			DefaultThreshold: viper.GetInt("APP_THRESHOLD"),
			CanvasSize:       viper.GetInt("APP_CANVAS_SIZE"),
			ScaleFactor:      viper.GetFloat64("APP_SCALE_FACTOR"),
			MaxFileSize:      viper.GetInt64("APP_MAX_FILE_SIZE"),
			Concurrency:      viper.GetInt("APP_CONCURRENCY"),
			GroupLayout:      viper.GetString("APP_GROUP_LAYOUT"),
			GroupSingletons:  viper.GetBool("APP_GROUP_SINGLETONS"),
			AllowedFormats:   viper.GetStringSlice("APP_ALLOWED_FORMATS"),
		},
		Tools: ToolsConfig{
			PotracePath:     viper.GetString("TOOLS_POTRACE"),
			GhostscriptPath: viper.GetString("TOOLS_GHOSTSCRIPT"),
			PPI:             viper.GetInt("TOOLS_PPI"),
		},
		S3: S3Config{
			Enabled:         viper.GetBool("S3_ENABLED"),
			Endpoint:        viper.GetString("S3_ENDPOINT"),
			AccessKeyID:     viper.GetString("S3_ACCESS_KEY_ID"),
			SecretAccessKey: viper.GetString("S3_SECRET_ACCESS_KEY"),
			UseSSL:          viper.GetBool("S3_USE_SSL"),
			BucketName:      viper.GetString("S3_BUCKET_NAME"),
			Region:          viper.GetString("S3_REGION"),
		},
	}

	if err := cfg.Pipeline.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	return cfg, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (p *PipelineConfig) Validate() error {
	if p.DefaultThreshold < 0 || p.DefaultThreshold > 255 {
		return fmt.Errorf("default threshold %d outside [0,255]", p.DefaultThreshold)
	}
	if p.CanvasSize <= 0 {
		return fmt.Errorf("canvas size must be positive, got %d", p.CanvasSize)
	}
	if p.ScaleFactor <= 0 || p.ScaleFactor > 1 {
		return fmt.Errorf("scale factor must be in (0,1], got %g", p.ScaleFactor)
	}
	if p.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", p.MaxFileSize)
	}
	if p.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", p.Concurrency)
	}
	if p.GroupLayout != "grid" && p.GroupLayout != "vertical" {
		return fmt.Errorf("group layout must be grid or vertical, got %q", p.GroupLayout)
	}
	return nil
}

// defaultGhostscript picks the conventional binary name for the platform.
// Windows installs name the console binary gswin64c.
func defaultGhostscript() string {
	if runtime.GOOS == "windows" {
		return "gswin64c"
	}
	return "gs"
}
