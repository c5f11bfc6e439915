package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	AppName     = "tix-seo-studio"
	EnvFileName = "config.env"
)

// Defaults used when the corresponding environment variable is unset.
const (
	DefaultPort              = "8080"
	DefaultDBPath            = "tix.db"
	DefaultGenerationTimeout = 90 * time.Second
	DefaultImageTimeout      = 120 * time.Second
	DefaultRatePerMinute     = 6
	DefaultRateBurst         = 2
)

// RequiredEnvVars lists the variables the server cannot start without.
var RequiredEnvVars = []string{"GEMINI_API_KEY"}

// Config holds runtime settings resolved from the environment.
type Config struct {
	Port              string
	DBPath            string
	LogDir            string
	PolicyPath        string
	GeminiAPIKey      string
	VisionProvider    string // "gemini" or "openai"
	OpenAIAPIKey      string
	GenerationTimeout time.Duration
	ImageTimeout      time.Duration
	RatePerMinute     int
	RateBurst         int
}

// ConfigDir returns the application's directory under the user config dir.
func ConfigDir() (string, error) {
	configBase, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configBase, AppName), nil
}

// EnvFilePath returns the full path to the config.env file.
func EnvFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, EnvFileName), nil
}

// LoadEnvFile loads environment variables from the config file in the user's
// config directory. Errors are ignored since the file may not exist.
func LoadEnvFile() {
	configPath, err := EnvFilePath()
	if err != nil {
		return
	}
	_ = godotenv.Load(configPath)
}

// WriteEnvFile writes values to the config file in the given key order,
// creating the config directory if needed. The file is created with 0600
// permissions since it holds API keys. Returns the path written.
func WriteEnvFile(values map[string]string, order []string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	configPath := filepath.Join(dir, EnvFileName)

	f, err := os.OpenFile(configPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	for _, key := range order {
		if val, ok := values[key]; ok && val != "" {
			if _, err := fmt.Fprintf(f, "%s=%q\n", key, val); err != nil {
				return "", fmt.Errorf("failed to write %s: %w", key, err)
			}
		}
	}
	return configPath, nil
}

// MissingRequired returns the names of required variables that are unset.
func MissingRequired() []string {
	var missing []string
	for _, v := range RequiredEnvVars {
		if os.Getenv(v) == "" {
			missing = append(missing, v)
		}
	}
	return missing
}

// Load reads the configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", DefaultPort),
		DBPath:            envOr("TIX_DB_PATH", DefaultDBPath),
		LogDir:            envOr("TIX_LOG_DIR", "."),
		PolicyPath:        os.Getenv("TIX_POLICY_PATH"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		VisionProvider:    envOr("VISION_PROVIDER", "gemini"),
		OpenAIAPIKey:      os.Getenv("OPENAI_API_KEY"),
		GenerationTimeout: DefaultGenerationTimeout,
		ImageTimeout:      DefaultImageTimeout,
		RatePerMinute:     DefaultRatePerMinute,
		RateBurst:         DefaultRateBurst,
	}

	var err error
	if cfg.GenerationTimeout, err = durationEnv("GENERATION_TIMEOUT", DefaultGenerationTimeout); err != nil {
		return nil, err
	}
	if cfg.ImageTimeout, err = durationEnv("IMAGE_TIMEOUT", DefaultImageTimeout); err != nil {
		return nil, err
	}
	if cfg.RatePerMinute, err = intEnv("RATE_PER_MINUTE", DefaultRatePerMinute); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = intEnv("RATE_BURST", DefaultRateBurst); err != nil {
		return nil, err
	}

	switch cfg.VisionProvider {
	case "gemini":
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("VISION_PROVIDER=openai requires OPENAI_API_KEY")
		}
	default:
		return nil, fmt.Errorf("unknown VISION_PROVIDER %q (use gemini or openai)", cfg.VisionProvider)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 90s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}
