package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/labmate/labmate/internal/constants"
	"github.com/labmate/labmate/internal/types"
)

// Artifact backends
const (
	BackendFile = "file"
	BackendGCS  = "gcs"
	BackendS3   = "s3"
)

// Config holds the runtime configuration assembled from the environment
type Config struct {
	DB        DBConfig
	Artifacts ArtifactConfig
	Sandbox   SandboxConfig
	Suggest   SuggestConfig

	DefaultInsertion types.InsertionPoint
}

// DBConfig configures the database connection
type DBConfig struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// ArtifactConfig configures where screenshots and reports are stored
type ArtifactConfig struct {
	Backend     string
	Dir         string
	GCSBucket   string
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3UseSSL    bool
}

// SandboxConfig configures code execution
type SandboxConfig struct {
	Interpreter   []string
	Timeout       time.Duration
	MaxCodeLength int
	WorkDir       string
}

// SuggestConfig configures the suggestion provider
type SuggestConfig struct {
	Project     string
	Region      string
	Model       string
	Timeout     time.Duration
	Concurrency int
	// ConfidenceThreshold < 0 means confidence is informational only
	ConfidenceThreshold int
}

// GetEnv retrieves the value of an environment variable with a fallback value if not set
func GetEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Load assembles a Config from the environment and validates it
func Load() (*Config, error) {
	var errs []string
	intVar := func(key string, fallback int) int {
		raw := GetEnv(key, strconv.Itoa(fallback))
		v, err := strconv.Atoi(raw)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %q is not an integer", key, raw))
			return fallback
		}
		return v
	}
	durationVar := func(key string, fallback time.Duration) time.Duration {
		raw := GetEnv(key, fallback.String())
		v, err := time.ParseDuration(raw)
		if err != nil || v <= 0 {
			errs = append(errs, fmt.Sprintf("%s: %q is not a positive duration", key, raw))
			return fallback
		}
		return v
	}

	cfg := &Config{
		DB: DBConfig{
			Driver:   GetEnv(constants.EnvDBDriver, "sqlite"),
			DSN:      GetEnv(constants.EnvDBDSN, ""),
			Host:     GetEnv(constants.EnvDBHost, "localhost"),
			Port:     intVar(constants.EnvDBPort, 5432),
			User:     GetEnv(constants.EnvDBUser, "postgres"),
			Password: GetEnv(constants.EnvDBPassword, "postgres"),
			Name:     GetEnv(constants.EnvDBName, "labmate"),
		},
		Artifacts: ArtifactConfig{
			Backend:     GetEnv(constants.EnvArtifactBackend, BackendFile),
			Dir:         GetEnv(constants.EnvArtifactDir, "artifacts"),
			GCSBucket:   GetEnv(constants.EnvGCSBucket, ""),
			S3Endpoint:  GetEnv(constants.EnvS3Endpoint, ""),
			S3Bucket:    GetEnv(constants.EnvS3Bucket, ""),
			S3AccessKey: GetEnv(constants.EnvS3AccessKey, ""),
			S3SecretKey: GetEnv(constants.EnvS3SecretKey, ""),
			S3UseSSL:    GetEnv(constants.EnvS3UseSSL, "false") == "true",
		},
		Sandbox: SandboxConfig{
			Interpreter:   strings.Fields(GetEnv(constants.EnvInterpreter, "python3")),
			Timeout:       durationVar(constants.EnvExecTimeout, 30*time.Second),
			MaxCodeLength: intVar(constants.EnvMaxCodeLength, 5000),
			WorkDir:       GetEnv(constants.EnvWorkDir, os.TempDir()),
		},
		Suggest: SuggestConfig{
			Project:             GetEnv(constants.EnvGoogleProject, ""),
			Region:              GetEnv(constants.EnvVertexRegion, "us-central1"),
			Model:               GetEnv(constants.EnvVertexModel, "gemini-2.0-flash"),
			Timeout:             durationVar(constants.EnvSuggestTimeout, 60*time.Second),
			Concurrency:         intVar(constants.EnvSuggestConcurrency, 4),
			ConfidenceThreshold: intVar(constants.EnvConfidenceThreshold, -1),
		},
	}

	insertion, err := types.ParseInsertionPoint(GetEnv(constants.EnvDefaultInsertion, string(types.InsertBelowQuestion)))
	if err != nil {
		errs = append(errs, fmt.Sprintf("%s: %v", constants.EnvDefaultInsertion, err))
	}
	cfg.DefaultInsertion = insertion

	switch cfg.Artifacts.Backend {
	case BackendFile:
	case BackendGCS:
		if cfg.Artifacts.GCSBucket == "" {
			errs = append(errs, constants.EnvGCSBucket+" is required for the gcs backend")
		}
	case BackendS3:
		if cfg.Artifacts.S3Endpoint == "" || cfg.Artifacts.S3Bucket == "" {
			errs = append(errs, constants.EnvS3Endpoint+" and "+constants.EnvS3Bucket+" are required for the s3 backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown backend %q", constants.EnvArtifactBackend, cfg.Artifacts.Backend))
	}
	if len(cfg.Sandbox.Interpreter) == 0 {
		errs = append(errs, constants.EnvInterpreter+" cannot be empty")
	}
	if cfg.Suggest.Concurrency < 1 {
		errs = append(errs, constants.EnvSuggestConcurrency+" must be at least 1")
	}
	if cfg.Suggest.ConfidenceThreshold > 100 {
		errs = append(errs, constants.EnvConfidenceThreshold+" must not exceed 100")
	}

	if len(errs) > 0 {
		return nil, types.NewError(types.KindValidation, "load config", fmt.Errorf("%s", strings.Join(errs, "; ")))
	}
	return cfg, nil
}
