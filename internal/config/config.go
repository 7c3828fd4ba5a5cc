package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// CanonicalSampleRate is the rate the detector runs at and all segment timing
// is computed in.
const CanonicalSampleRate = 16000

const (
	DefaultModelURL      = "https://github.com/snakers4/silero-vad/raw/master/src/silero_vad/data/silero_vad.onnx"
	DefaultArchiveURL    = "https://github.com/snakers4/silero-vad/archive/refs/heads/master.zip"
	DefaultArchiveDir    = "src/silero_vad/data"
	DefaultModelFileName = "silero_vad.onnx"
)

// Config holds all application configuration.
type Config struct {
	Model     ModelConfig    `yaml:"model"`
	Cache     CacheConfig    `yaml:"cache"`
	Detector  DetectorConfig `yaml:"detector"`
	Audio     AudioConfig    `yaml:"audio"`
	Output    OutputConfig   `yaml:"output"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	LogLevel  string         `yaml:"log_level"`
	LogFormat string         `yaml:"log_format"` // "console" or "json"
}

// ModelConfig describes where the VAD model comes from.
type ModelConfig struct {
	URL        string `yaml:"url"`
	ArchiveURL string `yaml:"archive_url"`
	// ArchiveDir is the directory inside the archive that holds the .onnx files.
	ArchiveDir string `yaml:"archive_dir"`
	FileName   string `yaml:"file_name"`
	// DownloadTimeout bounds a single HTTP download. Zero means no limit.
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// CacheConfig selects the persistent model cache backend.
type CacheConfig struct {
	Backend string   `yaml:"backend"` // "dir", "badger", or "s3"
	Dir     string   `yaml:"dir"`
	S3      S3Config `yaml:"s3"`
}

// S3Config configures the s3 cache backend.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	UsePathStyle    bool   `yaml:"use_path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// DetectorConfig holds Silero VAD runtime and timestamp settings.
type DetectorConfig struct {
	OnnxRuntimeLib       string  `yaml:"onnxruntime_lib"`
	Threshold            float32 `yaml:"threshold"`
	MinSpeechDurationMs  int     `yaml:"min_speech_duration_ms"`
	MinSilenceDurationMs int     `yaml:"min_silence_duration_ms"`
	SpeechPadMs          int     `yaml:"speech_pad_ms"`
	// MaxSpeechDurationS splits longer speech runs. Zero means unlimited.
	MaxSpeechDurationS float64 `yaml:"max_speech_duration_s"`
}

// AudioConfig holds decoding settings.
type AudioConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// OutputConfig holds segment output settings.
type OutputConfig struct {
	// CleanupOnFailure removes segment files written by a run that fails
	// partway through extraction.
	CleanupOnFailure bool `yaml:"cleanup_on_failure"`
}

// MetricsConfig holds metrics export settings.
type MetricsConfig struct {
	// Textfile, when set, receives the run's metrics in Prometheus text format.
	Textfile string `yaml:"textfile"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "vadsplit")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultCacheDir returns the model cache directory. VADSPLIT_CACHE_DIR wins
// over the per-user default.
func DefaultCacheDir() string {
	if dir := strings.TrimSpace(os.Getenv("VADSPLIT_CACHE_DIR")); dir != "" {
		return expandTilde(dir)
	}
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "vadsplit")
	}
	return filepath.Join(os.TempDir(), "vadsplit-cache")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			URL:        DefaultModelURL,
			ArchiveURL: DefaultArchiveURL,
			ArchiveDir: DefaultArchiveDir,
			FileName:   DefaultModelFileName,
		},
		Cache: CacheConfig{
			Backend: "dir",
			Dir:     DefaultCacheDir(),
			S3: S3Config{
				Prefix: "vadsplit/models",
				Region: "us-east-1",
			},
		},
		Detector: DetectorConfig{
			Threshold:            0.5,
			MinSpeechDurationMs:  250,
			MinSilenceDurationMs: 100,
			SpeechPadMs:          30,
		},
		Audio: AudioConfig{
			FFmpegPath: "ffmpeg",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Cache.Dir = expandTilde(cfg.Cache.Dir)
	cfg.Detector.OnnxRuntimeLib = expandTilde(cfg.Detector.OnnxRuntimeLib)
	cfg.Audio.FFmpegPath = expandTilde(cfg.Audio.FFmpegPath)
	cfg.Metrics.Textfile = expandTilde(cfg.Metrics.Textfile)

	return cfg, nil
}

// ApplyEnv overrides config values from the process environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("VADSPLIT_CACHE_DIR")); v != "" {
		c.Cache.Dir = expandTilde(v)
	}
	if v := strings.TrimSpace(os.Getenv("VADSPLIT_LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("ONNXRUNTIME_LIB")); v != "" {
		c.Detector.OnnxRuntimeLib = expandTilde(v)
	}
	if v := strings.TrimSpace(os.Getenv("VADSPLIT_FFMPEG")); v != "" {
		c.Audio.FFmpegPath = expandTilde(v)
	}
	if c.Cache.S3.AccessKeyID == "" {
		c.Cache.S3.AccessKeyID = os.Getenv("AWS_ACCESS_KEY_ID")
	}
	if c.Cache.S3.SecretAccessKey == "" {
		c.Cache.S3.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Model.URL == "" && c.Model.ArchiveURL == "" {
		return fmt.Errorf("model.url or model.archive_url must be set")
	}
	if c.Model.FileName == "" {
		return fmt.Errorf("model.file_name must not be empty")
	}
	if c.Model.DownloadTimeout < 0 {
		return fmt.Errorf("model.download_timeout must be >= 0")
	}

	switch c.Cache.Backend {
	case "dir", "badger":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir must not be empty for the %s backend", c.Cache.Backend)
		}
	case "s3":
		if c.Cache.S3.Bucket == "" {
			return fmt.Errorf("cache.s3.bucket must not be empty for the s3 backend")
		}
	default:
		return fmt.Errorf("cache.backend must be \"dir\", \"badger\", or \"s3\", got %q", c.Cache.Backend)
	}

	d := c.Detector
	if d.Threshold <= 0 || d.Threshold >= 1 {
		return fmt.Errorf("detector.threshold must be in (0, 1), got %v", d.Threshold)
	}
	if d.MinSpeechDurationMs < 0 || d.MinSilenceDurationMs < 0 || d.SpeechPadMs < 0 {
		return fmt.Errorf("detector durations must be >= 0")
	}
	if d.MaxSpeechDurationS < 0 {
		return fmt.Errorf("detector.max_speech_duration_s must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

const defaultHeader = `# vadsplit configuration
# Every key is optional; missing keys fall back to built-in defaults.
`

// WriteDefault writes the default config to DefaultConfigPath. It returns
// ("", nil) without touching anything when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}

	if err := os.WriteFile(path, append([]byte(defaultHeader), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
