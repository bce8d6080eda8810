package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// Environment variable names consumed by the service. Everything is read
// once at startup; there is no live reconfiguration.
const (
	HostKey         = "HOST"
	PortKey         = "PORT"
	MaxQueueSizeKey = "MAX_QUEUE_SIZE"
	TaskTimeoutKey  = "TASK_TIMEOUT"
	OutputDirKey    = "OUTPUT_DIR"

	DefaultHeightKey = "DEFAULT_HEIGHT"
	DefaultWidthKey  = "DEFAULT_WIDTH"
	DefaultStepsKey  = "DEFAULT_NUM_INFERENCE_STEPS"

	ArkAPIKeyKey = "ARK_API_KEY"
	ModelNameKey = "MODEL_NAME"
)

type Config struct {
	Host         string
	Port         string
	MaxQueueSize int
	// TaskTimeout is the wall-clock bound on a single generation; a task
	// still processing past it is force-failed by the worker.
	TaskTimeout time.Duration
	OutputDir   string

	DefaultHeight int
	DefaultWidth  int
	DefaultSteps  int

	ArkAPIKey string
	ModelName string
}

// Load reads the full configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Host:      GetEnv(HostKey, "0.0.0.0"),
		Port:      GetEnv(PortKey, "5000"),
		OutputDir: GetEnv(OutputDirKey, "outputs"),
		ArkAPIKey: GetEnv(ArkAPIKeyKey, ""),
		ModelName: GetEnv(ModelNameKey, "doubao-seedream-4-0-250828"),
	}

	var err error
	if cfg.MaxQueueSize, err = getEnvInt(MaxQueueSizeKey, 100); err != nil {
		return Config{}, err
	}
	timeoutSec, err := getEnvInt(TaskTimeoutKey, 300)
	if err != nil {
		return Config{}, err
	}
	cfg.TaskTimeout = time.Duration(timeoutSec) * time.Second

	if cfg.DefaultHeight, err = getEnvInt(DefaultHeightKey, 1024); err != nil {
		return Config{}, err
	}
	if cfg.DefaultWidth, err = getEnvInt(DefaultWidthKey, 1024); err != nil {
		return Config{}, err
	}
	if cfg.DefaultSteps, err = getEnvInt(DefaultStepsKey, 9); err != nil {
		return Config{}, err
	}

	if cfg.MaxQueueSize < 1 {
		return Config{}, fmt.Errorf("%s must be at least 1, got %d", MaxQueueSizeKey, cfg.MaxQueueSize)
	}
	if cfg.TaskTimeout <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %s", TaskTimeoutKey, cfg.TaskTimeout)
	}
	return cfg, nil
}

// GetEnv returns the environment value for key, falling back to the given
// default when unset.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	if fallback != "" {
		zap.L().Info("environment variable not set, using default",
			zap.String("key", key), zap.String("default", fallback))
	} else {
		zap.L().Warn("environment variable not set and no default provided",
			zap.String("key", key))
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := GetEnv(key, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: expected integer, got %q: %w", key, raw, err)
	}
	return v, nil
}
