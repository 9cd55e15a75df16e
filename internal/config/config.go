package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout int
	Timeout     int
	Prefix      string
}

type S3Config struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
	Prefix          string
}

type LogConfig struct {
	Level  string
	Format string
}

type AppConfig struct {
	Port     string
	Location *time.Location
	Log      LogConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	S3       S3Config

	// EvidenceBackend selects where evidence files live: "s3" or "local".
	EvidenceBackend   string
	EvidenceDir       string
	ExportDir         string
	FilesPublicPrefix string
	ExternalURL       string
	ExportPrefix      string

	CORSAllowedOrigins []string
	MaxUploadBytes     int64
}

var defaults = map[string]any{
	"APP_PORT":             "8000",
	"APP_TIMEZONE":         "UTC",
	"LOG_LEVEL":            "info",
	"LOG_FORMAT":           "json",
	"PG_HOST":              "127.0.0.1",
	"PG_PORT":              5432,
	"PG_USER":              "root",
	"PG_PASSWORD":          "hello-world",
	"PG_DB":                "paytrack",
	"PG_SSLMODE":           "disable",
	"REDIS_ADDR":           "127.0.0.1:6379",
	"REDIS_PASSWORD":       "",
	"REDIS_DB":             0,
	"REDIS_MAX_RETRIES":    5,
	"REDIS_DIAL_TIMEOUT":   10,
	"REDIS_TIMEOUT":        5,
	"REDIS_PREFIX":         "paytrack_",
	"S3_ENDPOINT":          "localhost:9000",
	"S3_ACCESS_KEY":        "minio",
	"S3_SECRET_KEY":        "minio123",
	"S3_BUCKET":            "evidence",
	"S3_REGION":            "us-east-1",
	"S3_USE_SSL":           false,
	"S3_PREFIX":            "",
	"EVIDENCE_BACKEND":     "local",
	"EVIDENCE_DIR":         "./evidence",
	"EXPORT_DIR":           "./exports",
	"FILES_PUBLIC_PREFIX":  "/files",
	"EXTERNAL_URL":         "",
	"EXPORT_CACHE_PREFIX":  "jobs:",
	"CORS_ALLOWED_ORIGINS": "*",
	"MAX_UPLOAD_MB":        10,
}

// Load resolves configuration from the process environment, falling back to
// defaults. A .env file, if any, is expected to be loaded by the caller.
func Load() (AppConfig, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (AppConfig, error) {
	loc, err := time.LoadLocation(v.GetString("APP_TIMEZONE"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid APP_TIMEZONE %q: %w", v.GetString("APP_TIMEZONE"), err)
	}

	backend := strings.ToLower(v.GetString("EVIDENCE_BACKEND"))
	if backend != "s3" && backend != "local" {
		return AppConfig{}, fmt.Errorf("invalid EVIDENCE_BACKEND %q: want s3 or local", backend)
	}

	// the export cleanup deletes everything old under EXPORT_DIR
	if backend == "local" {
		overlap, err := dirsOverlap(v.GetString("EVIDENCE_DIR"), v.GetString("EXPORT_DIR"))
		if err != nil {
			return AppConfig{}, err
		}
		if overlap {
			return AppConfig{}, fmt.Errorf("EVIDENCE_DIR %q and EXPORT_DIR %q must not contain one another",
				v.GetString("EVIDENCE_DIR"), v.GetString("EXPORT_DIR"))
		}
	}

	return AppConfig{
		Port:     v.GetString("APP_PORT"),
		Location: loc,
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("PG_HOST"),
			Port:     v.GetInt("PG_PORT"),
			User:     v.GetString("PG_USER"),
			Password: v.GetString("PG_PASSWORD"),
			DBName:   v.GetString("PG_DB"),
			SSLMode:  v.GetString("PG_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr:        v.GetString("REDIS_ADDR"),
			Password:    v.GetString("REDIS_PASSWORD"),
			DB:          v.GetInt("REDIS_DB"),
			MaxRetries:  v.GetInt("REDIS_MAX_RETRIES"),
			DialTimeout: v.GetInt("REDIS_DIAL_TIMEOUT"),
			Timeout:     v.GetInt("REDIS_TIMEOUT"),
			Prefix:      v.GetString("REDIS_PREFIX"),
		},
		S3: S3Config{
			Endpoint:        v.GetString("S3_ENDPOINT"),
			AccessKeyID:     v.GetString("S3_ACCESS_KEY"),
			SecretAccessKey: v.GetString("S3_SECRET_KEY"),
			Bucket:          v.GetString("S3_BUCKET"),
			Region:          v.GetString("S3_REGION"),
			UseSSL:          v.GetBool("S3_USE_SSL"),
			Prefix:          v.GetString("S3_PREFIX"),
		},
		EvidenceBackend:    backend,
		EvidenceDir:        v.GetString("EVIDENCE_DIR"),
		ExportDir:          v.GetString("EXPORT_DIR"),
		FilesPublicPrefix:  v.GetString("FILES_PUBLIC_PREFIX"),
		ExternalURL:        v.GetString("EXTERNAL_URL"),
		ExportPrefix:       v.GetString("EXPORT_CACHE_PREFIX"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		MaxUploadBytes:     v.GetInt64("MAX_UPLOAD_MB") << 20,
	}, nil
}

// dirsOverlap reports whether a and b are the same directory or one is
// nested inside the other.
func dirsOverlap(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", a, err)
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, fmt.Errorf("resolve %q: %w", b, err)
	}
	return within(absA, absB) || within(absB, absA), nil
}

func within(dir, parent string) bool {
	rel, err := filepath.Rel(parent, dir)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
