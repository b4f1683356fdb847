package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	S3         S3Config
	OCR        OCRConfig
	AI         AIConfig
	Preprocess PreprocessConfig
	Upload     UploadConfig
	Queue      QueueConfig
	CORS       CORSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	Environment  string        `mapstructure:"environment"`
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxOpen  int    `mapstructure:"max_open"`
	MaxIdle  int    `mapstructure:"max_idle"`
}

// DSN returns the PostgreSQL connection string.
func (d *DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// S3Config holds object storage settings for original-file persistence.
type S3Config struct {
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	PresignExpiry int64  `mapstructure:"presign_expiry"`
}

// OCRConfig holds text extraction settings. Backend is a pipeline-level
// choice between the local tesseract binary and the cloud OCR API; it is
// never decided per call.
type OCRConfig struct {
	Backend       string  `mapstructure:"backend"`
	Tesseract     string  `mapstructure:"tesseract"`
	TesseractLang string  `mapstructure:"tesseract_lang"`
	TimeoutSecs   int     `mapstructure:"timeout_secs"`
	CloudEndpoint string  `mapstructure:"cloud_endpoint"`
	CloudAPIKey   string  `mapstructure:"cloud_api_key"`
	PageWorkers   int     `mapstructure:"page_workers"`
	DPI           float64 `mapstructure:"dpi"`
	PageRetries   int     `mapstructure:"page_retries"`
}

// AIConfig holds language model analysis settings.
type AIConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	TimeoutSecs int     `mapstructure:"timeout_secs"`
	MaxAttempts int     `mapstructure:"max_attempts"`
	RatePerSec  float64 `mapstructure:"rate_per_sec"`
	RateBurst   int     `mapstructure:"rate_burst"`
}

// PreprocessConfig toggles the image preprocessing steps applied before OCR.
type PreprocessConfig struct {
	Deskew     bool `mapstructure:"deskew"`
	Binarize   bool `mapstructure:"binarize"`
	Denoise    bool `mapstructure:"denoise"`
	BlurRadius int  `mapstructure:"blur_radius"`
}

// UploadConfig holds ingest validation limits.
type UploadConfig struct {
	MaxFileSizeMB     int64    `mapstructure:"max_file_size_mb"`
	AllowedExtensions []string `mapstructure:"allowed_extensions"`
}

// QueueConfig holds processing queue worker settings.
type QueueConfig struct {
	PollIntervalSecs int `mapstructure:"poll_interval_secs"`
	Concurrency      int `mapstructure:"concurrency"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from environment variables with the DOCPROC_ prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("DOCPROC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Server defaults
	v.SetDefault("server.port", ":8080")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.environment", "development")

	// DB defaults
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "docproc")
	v.SetDefault("db.password", "docproc_secret")
	v.SetDefault("db.name", "docproc_db")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open", 25)
	v.SetDefault("db.max_idle", 10)

	// S3 defaults
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.bucket", "docproc-uploads")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.presign_expiry", 3600)

	// OCR defaults
	v.SetDefault("ocr.backend", "tesseract")
	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.tesseract_lang", "eng")
	v.SetDefault("ocr.timeout_secs", 60)
	v.SetDefault("ocr.cloud_endpoint", "")
	v.SetDefault("ocr.cloud_api_key", "")
	v.SetDefault("ocr.page_workers", 4)
	v.SetDefault("ocr.dpi", 200)
	v.SetDefault("ocr.page_retries", 1)

	// AI defaults
	v.SetDefault("ai.endpoint", "https://openrouter.ai/api/v1/chat/completions")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "mistralai/mistral-small-3.2-24b-instruct:free")
	v.SetDefault("ai.timeout_secs", 30)
	v.SetDefault("ai.max_attempts", 3)
	v.SetDefault("ai.rate_per_sec", 1)
	v.SetDefault("ai.rate_burst", 2)

	// Preprocess defaults, tuned for OCR accuracy
	v.SetDefault("preprocess.deskew", true)
	v.SetDefault("preprocess.binarize", true)
	v.SetDefault("preprocess.denoise", true)
	v.SetDefault("preprocess.blur_radius", 1)

	// Upload defaults
	v.SetDefault("upload.max_file_size_mb", 10)
	v.SetDefault("upload.allowed_extensions", "pdf,jpg,jpeg,png")

	// Queue defaults
	v.SetDefault("queue.poll_interval_secs", 10)
	v.SetDefault("queue.concurrency", 5)

	// CORS defaults (localhost origins for development)
	v.SetDefault("cors.allowed_origins", "http://localhost:3000,http://127.0.0.1:3000")

	// Bind environment variables explicitly for nested keys
	envBindings := map[string]string{
		"server.port":              "DOCPROC_SERVER_PORT",
		"server.read_timeout":      "DOCPROC_SERVER_READ_TIMEOUT",
		"server.write_timeout":     "DOCPROC_SERVER_WRITE_TIMEOUT",
		"server.environment":       "DOCPROC_SERVER_ENVIRONMENT",
		"db.host":                  "DOCPROC_DB_HOST",
		"db.port":                  "DOCPROC_DB_PORT",
		"db.user":                  "DOCPROC_DB_USER",
		"db.password":              "DOCPROC_DB_PASSWORD",
		"db.name":                  "DOCPROC_DB_NAME",
		"db.sslmode":               "DOCPROC_DB_SSLMODE",
		"db.max_open":              "DOCPROC_DB_MAX_OPEN",
		"db.max_idle":              "DOCPROC_DB_MAX_IDLE",
		"s3.region":                "DOCPROC_S3_REGION",
		"s3.bucket":                "DOCPROC_S3_BUCKET",
		"s3.endpoint":              "DOCPROC_S3_ENDPOINT",
		"s3.access_key":            "DOCPROC_S3_ACCESS_KEY",
		"s3.secret_key":            "DOCPROC_S3_SECRET_KEY",
		"s3.presign_expiry":        "DOCPROC_S3_PRESIGN_EXPIRY",
		"ocr.backend":              "DOCPROC_OCR_BACKEND",
		"ocr.tesseract":            "DOCPROC_OCR_TESSERACT",
		"ocr.tesseract_lang":       "DOCPROC_OCR_TESSERACT_LANG",
		"ocr.timeout_secs":         "DOCPROC_OCR_TIMEOUT_SECS",
		"ocr.cloud_endpoint":       "DOCPROC_OCR_CLOUD_ENDPOINT",
		"ocr.cloud_api_key":        "DOCPROC_OCR_CLOUD_API_KEY",
		"ocr.page_workers":         "DOCPROC_OCR_PAGE_WORKERS",
		"ocr.dpi":                  "DOCPROC_OCR_DPI",
		"ocr.page_retries":         "DOCPROC_OCR_PAGE_RETRIES",
		"ai.endpoint":              "DOCPROC_AI_ENDPOINT",
		"ai.api_key":               "DOCPROC_AI_API_KEY",
		"ai.model":                 "DOCPROC_AI_MODEL",
		"ai.timeout_secs":          "DOCPROC_AI_TIMEOUT_SECS",
		"ai.max_attempts":          "DOCPROC_AI_MAX_ATTEMPTS",
		"ai.rate_per_sec":          "DOCPROC_AI_RATE_PER_SEC",
		"ai.rate_burst":            "DOCPROC_AI_RATE_BURST",
		"preprocess.deskew":        "DOCPROC_PREPROCESS_DESKEW",
		"preprocess.binarize":      "DOCPROC_PREPROCESS_BINARIZE",
		"preprocess.denoise":       "DOCPROC_PREPROCESS_DENOISE",
		"preprocess.blur_radius":   "DOCPROC_PREPROCESS_BLUR_RADIUS",
		"upload.max_file_size_mb":  "DOCPROC_UPLOAD_MAX_FILE_SIZE_MB",
		"upload.allowed_extensions": "DOCPROC_UPLOAD_ALLOWED_EXTENSIONS",
		"queue.poll_interval_secs": "DOCPROC_QUEUE_POLL_INTERVAL_SECS",
		"queue.concurrency":        "DOCPROC_QUEUE_CONCURRENCY",
		"cors.allowed_origins":     "DOCPROC_CORS_ALLOWED_ORIGINS",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{}

	// Railway/Heroku/Render set a PORT env var. Use it if DOCPROC_SERVER_PORT
	// is not explicitly set.
	serverPort := v.GetString("server.port")
	if port := os.Getenv("PORT"); port != "" && os.Getenv("DOCPROC_SERVER_PORT") == "" {
		serverPort = ":" + port
	}

	cfg.Server = ServerConfig{
		Port:         serverPort,
		ReadTimeout:  v.GetDuration("server.read_timeout"),
		WriteTimeout: v.GetDuration("server.write_timeout"),
		Environment:  v.GetString("server.environment"),
	}
	cfg.DB = DBConfig{
		Host:     v.GetString("db.host"),
		Port:     v.GetInt("db.port"),
		User:     v.GetString("db.user"),
		Password: v.GetString("db.password"),
		Name:     v.GetString("db.name"),
		SSLMode:  v.GetString("db.sslmode"),
		MaxOpen:  v.GetInt("db.max_open"),
		MaxIdle:  v.GetInt("db.max_idle"),
	}
	cfg.S3 = S3Config{
		Region:        v.GetString("s3.region"),
		Bucket:        v.GetString("s3.bucket"),
		Endpoint:      v.GetString("s3.endpoint"),
		AccessKey:     v.GetString("s3.access_key"),
		SecretKey:     v.GetString("s3.secret_key"),
		PresignExpiry: v.GetInt64("s3.presign_expiry"),
	}
	cfg.OCR = OCRConfig{
		Backend:       v.GetString("ocr.backend"),
		Tesseract:     v.GetString("ocr.tesseract"),
		TesseractLang: v.GetString("ocr.tesseract_lang"),
		TimeoutSecs:   v.GetInt("ocr.timeout_secs"),
		CloudEndpoint: v.GetString("ocr.cloud_endpoint"),
		CloudAPIKey:   v.GetString("ocr.cloud_api_key"),
		PageWorkers:   v.GetInt("ocr.page_workers"),
		DPI:           v.GetFloat64("ocr.dpi"),
		PageRetries:   v.GetInt("ocr.page_retries"),
	}
	cfg.AI = AIConfig{
		Endpoint:    v.GetString("ai.endpoint"),
		APIKey:      v.GetString("ai.api_key"),
		Model:       v.GetString("ai.model"),
		TimeoutSecs: v.GetInt("ai.timeout_secs"),
		MaxAttempts: v.GetInt("ai.max_attempts"),
		RatePerSec:  v.GetFloat64("ai.rate_per_sec"),
		RateBurst:   v.GetInt("ai.rate_burst"),
	}
	cfg.Preprocess = PreprocessConfig{
		Deskew:     v.GetBool("preprocess.deskew"),
		Binarize:   v.GetBool("preprocess.binarize"),
		Denoise:    v.GetBool("preprocess.denoise"),
		BlurRadius: v.GetInt("preprocess.blur_radius"),
	}
	cfg.Upload = UploadConfig{
		MaxFileSizeMB:     v.GetInt64("upload.max_file_size_mb"),
		AllowedExtensions: splitList(v.GetString("upload.allowed_extensions")),
	}
	cfg.Queue = QueueConfig{
		PollIntervalSecs: v.GetInt("queue.poll_interval_secs"),
		Concurrency:      v.GetInt("queue.concurrency"),
	}
	cfg.CORS = CORSConfig{
		AllowedOrigins: splitList(v.GetString("cors.allowed_origins")),
	}

	return cfg, nil
}

// Validate checks startup-fatal configuration. Security-relevant values (API
// credentials) are never silently defaulted: a missing key fails startup.
func (c *Config) Validate() error {
	var missing []string

	if c.AI.APIKey == "" {
		missing = append(missing, "DOCPROC_AI_API_KEY")
	}
	if c.AI.Model == "" {
		missing = append(missing, "DOCPROC_AI_MODEL")
	}

	switch c.OCR.Backend {
	case "tesseract":
	case "cloud":
		if c.OCR.CloudEndpoint == "" {
			missing = append(missing, "DOCPROC_OCR_CLOUD_ENDPOINT")
		}
		if c.OCR.CloudAPIKey == "" {
			missing = append(missing, "DOCPROC_OCR_CLOUD_API_KEY")
		}
	default:
		return fmt.Errorf("unknown ocr backend: %q (must be tesseract or cloud)", c.OCR.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
