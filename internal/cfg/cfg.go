package cfg

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	DataPath         string
	DatasetURL       string
	FallbackURL      string
	FetchTimeout     time.Duration
	ArtifactsDir     string
	ModelPath        string
	PreprocessorPath string
	TrackingPath     string
	LogPredictions   bool
	APIPort          int
	DashboardPort    int
	DashboardEnabled bool
	TestFraction     float64
	Seed             int64
	CVFolds          int
	Logistic         LogisticParams
	Forest           ForestParams
}

type LogisticParams struct {
	LearningRate float64 `yaml:"learningRate"`
	L2Penalty    float64 `yaml:"l2Penalty"`
	MaxIter      int     `yaml:"maxIter"`
}

type ForestParams struct {
	Estimators      int `yaml:"estimators"`
	MaxDepth        int `yaml:"maxDepth"`
	MinSamplesSplit int `yaml:"minSamplesSplit"`
	MinSamplesLeaf  int `yaml:"minSamplesLeaf"`
}

type ConfigFile struct {
	Data struct {
		Path         string `yaml:"path"`
		URL          string `yaml:"url"`
		FallbackURL  string `yaml:"fallbackURL"`
		FetchTimeout string `yaml:"fetchTimeout"`
	} `yaml:"data"`

	Artifacts struct {
		Dir              string `yaml:"dir"`
		ModelPath        string `yaml:"modelPath"`
		PreprocessorPath string `yaml:"preprocessorPath"`
	} `yaml:"artifacts"`

	Training struct {
		TestFraction float64        `yaml:"testFraction"`
		Seed         int64          `yaml:"seed"`
		CVFolds      int            `yaml:"cvFolds"`
		Logistic     LogisticParams `yaml:"logistic"`
		Forest       ForestParams   `yaml:"forest"`
	} `yaml:"training"`

	Serving struct {
		Port             int  `yaml:"port"`
		DashboardPort    int  `yaml:"dashboardPort"`
		DashboardEnabled bool `yaml:"dashboardEnabled"`
	} `yaml:"serving"`

	Tracking struct {
		Path           string `yaml:"path"`
		LogPredictions bool   `yaml:"logPredictions"`
	} `yaml:"tracking"`
}

const (
	DefaultDatasetURL  = "https://archive.ics.uci.edu/ml/machine-learning-databases/heart-disease/processed.cleveland.data"
	DefaultFallbackURL = "https://raw.githubusercontent.com/plotly/datasets/master/heart.csv"
)

func Load() (Settings, error) {
	// A .env file is optional, ignore when absent
	_ = godotenv.Load()

	// Try to load from YAML file first
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromYAML(configPath)
	}

	// Fallback to environment variables
	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Parse durations
	fetchTimeout, err := time.ParseDuration(config.Data.FetchTimeout)
	if err != nil {
		fetchTimeout = 30 * time.Second
	}

	settings := Settings{
		DataPath:         getEnvOrDefault("DATA_PATH", stringOrDefault(config.Data.Path, "data/heart_disease.csv")),
		DatasetURL:       getEnvOrDefault("DATASET_URL", stringOrDefault(config.Data.URL, DefaultDatasetURL)),
		FallbackURL:      getEnvOrDefault("DATASET_FALLBACK_URL", stringOrDefault(config.Data.FallbackURL, DefaultFallbackURL)),
		FetchTimeout:     fetchTimeout,
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", stringOrDefault(config.Artifacts.Dir, "artifacts")),
		ModelPath:        getEnvOrDefault("MODEL_PATH", config.Artifacts.ModelPath),
		PreprocessorPath: getEnvOrDefault("PREPROCESSOR_PATH", config.Artifacts.PreprocessorPath),
		TrackingPath:     getEnvOrDefault("TRACKING_PATH", stringOrDefault(config.Tracking.Path, "data/experiments.db")),
		LogPredictions:   getBoolFromEnvOrConfig("LOG_PREDICTIONS", config.Tracking.LogPredictions),
		APIPort:          getIntFromEnvOrConfig("API_PORT", config.Serving.Port),
		DashboardPort:    getIntFromEnvOrConfig("DASHBOARD_PORT", config.Serving.DashboardPort),
		DashboardEnabled: getBoolFromEnvOrConfig("DASHBOARD_ENABLED", config.Serving.DashboardEnabled),
		TestFraction:     getFloatFromEnvOrConfig("TEST_FRACTION", config.Training.TestFraction),
		Seed:             getInt64FromEnvOrConfig("RANDOM_SEED", config.Training.Seed),
		CVFolds:          getIntFromEnvOrConfig("CV_FOLDS", config.Training.CVFolds),
		Logistic: LogisticParams{
			LearningRate: getFloatFromEnvOrConfig("LOGISTIC_LEARNING_RATE", config.Training.Logistic.LearningRate),
			L2Penalty:    getFloatFromEnvOrConfig("LOGISTIC_L2_PENALTY", config.Training.Logistic.L2Penalty),
			MaxIter:      getIntFromEnvOrConfig("LOGISTIC_MAX_ITER", config.Training.Logistic.MaxIter),
		},
		Forest: ForestParams{
			Estimators:      getIntFromEnvOrConfig("FOREST_ESTIMATORS", config.Training.Forest.Estimators),
			MaxDepth:        getIntFromEnvOrConfig("FOREST_MAX_DEPTH", config.Training.Forest.MaxDepth),
			MinSamplesSplit: getIntFromEnvOrConfig("FOREST_MIN_SPLIT", config.Training.Forest.MinSamplesSplit),
			MinSamplesLeaf:  getIntFromEnvOrConfig("FOREST_MIN_LEAF", config.Training.Forest.MinSamplesLeaf),
		},
	}
	applyDefaults(&settings)

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		DataPath:         getEnvOrDefault("DATA_PATH", "data/heart_disease.csv"),
		DatasetURL:       getEnvOrDefault("DATASET_URL", DefaultDatasetURL),
		FallbackURL:      getEnvOrDefault("DATASET_FALLBACK_URL", DefaultFallbackURL),
		FetchTimeout:     getDurationOrDefault("FETCH_TIMEOUT", 30*time.Second),
		ArtifactsDir:     getEnvOrDefault("ARTIFACTS_DIR", "artifacts"),
		ModelPath:        os.Getenv("MODEL_PATH"),        // optional, registry resolves active model when empty
		PreprocessorPath: os.Getenv("PREPROCESSOR_PATH"), // optional
		TrackingPath:     getEnvOrDefault("TRACKING_PATH", "data/experiments.db"),
		LogPredictions:   getBoolOrDefault("LOG_PREDICTIONS", true),
		APIPort:          getIntOrDefault("API_PORT", 8000),
		DashboardPort:    getIntOrDefault("DASHBOARD_PORT", 8050),
		DashboardEnabled: getBoolOrDefault("DASHBOARD_ENABLED", false),
		TestFraction:     getFloatOrDefault("TEST_FRACTION", 0.2),
		Seed:             getInt64OrDefault("RANDOM_SEED", 42),
		CVFolds:          getIntOrDefault("CV_FOLDS", 5),
		Logistic: LogisticParams{
			LearningRate: getFloatOrDefault("LOGISTIC_LEARNING_RATE", 0.1),
			L2Penalty:    getFloatOrDefault("LOGISTIC_L2_PENALTY", 1.0),
			MaxIter:      getIntOrDefault("LOGISTIC_MAX_ITER", 1000),
		},
		Forest: ForestParams{
			Estimators:      getIntOrDefault("FOREST_ESTIMATORS", 100),
			MaxDepth:        getIntOrDefault("FOREST_MAX_DEPTH", 10),
			MinSamplesSplit: getIntOrDefault("FOREST_MIN_SPLIT", 5),
			MinSamplesLeaf:  getIntOrDefault("FOREST_MIN_LEAF", 2),
		},
	}

	// Validate configuration
	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// applyDefaults fills numeric fields a YAML file omitted. Zero is not a
// usable value for any of them, so zero means unset.
func applyDefaults(s *Settings) {
	if s.APIPort == 0 {
		s.APIPort = 8000
	}
	if s.DashboardPort == 0 {
		s.DashboardPort = 8050
	}
	if s.TestFraction == 0 {
		s.TestFraction = 0.2
	}
	if s.Seed == 0 {
		s.Seed = 42
	}
	if s.CVFolds == 0 {
		s.CVFolds = 5
	}
	if s.Logistic.LearningRate == 0 {
		s.Logistic.LearningRate = 0.1
	}
	if s.Logistic.L2Penalty == 0 {
		s.Logistic.L2Penalty = 1.0
	}
	if s.Logistic.MaxIter == 0 {
		s.Logistic.MaxIter = 1000
	}
	if s.Forest.Estimators == 0 {
		s.Forest.Estimators = 100
	}
	if s.Forest.MaxDepth == 0 {
		s.Forest.MaxDepth = 10
	}
	if s.Forest.MinSamplesSplit == 0 {
		s.Forest.MinSamplesSplit = 5
	}
	if s.Forest.MinSamplesLeaf == 0 {
		s.Forest.MinSamplesLeaf = 2
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func stringOrDefault(v, defaultValue string) string {
	if v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	return configValue
}

func getInt64FromEnvOrConfig(key string, configValue int64) int64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getFloatFromEnvOrConfig(key string, configValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	return configValue
}

func getBoolFromEnvOrConfig(key string, configValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	return configValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	// Validate paths
	if settings.DataPath == "" {
		return fmt.Errorf("data path cannot be empty")
	}
	if settings.ArtifactsDir == "" {
		return fmt.Errorf("artifacts directory cannot be empty")
	}
	if settings.TrackingPath == "" {
		return fmt.Errorf("tracking store path cannot be empty")
	}

	// Validate URLs
	if settings.DatasetURL == "" {
		return fmt.Errorf("dataset URL cannot be empty")
	}
	if settings.FallbackURL == "" {
		return fmt.Errorf("dataset fallback URL cannot be empty")
	}

	// Validate time durations
	if settings.FetchTimeout < time.Second || settings.FetchTimeout > 5*time.Minute {
		return fmt.Errorf("fetch timeout must be between 1s and 5m, got %v", settings.FetchTimeout)
	}

	// Validate ports
	if settings.APIPort < 1024 || settings.APIPort > 65535 {
		return fmt.Errorf("API port must be between 1024 and 65535, got %d", settings.APIPort)
	}
	if settings.DashboardPort < 1024 || settings.DashboardPort > 65535 {
		return fmt.Errorf("dashboard port must be between 1024 and 65535, got %d", settings.DashboardPort)
	}
	if settings.DashboardEnabled && settings.DashboardPort == settings.APIPort {
		return fmt.Errorf("dashboard port must differ from API port, both are %d", settings.APIPort)
	}

	// Validate split parameters
	if settings.TestFraction <= 0 || settings.TestFraction > 0.9 {
		return fmt.Errorf("test fraction must be between 0 and 0.9, got %f", settings.TestFraction)
	}
	if settings.Seed < 0 {
		return fmt.Errorf("random seed must be non-negative, got %d", settings.Seed)
	}
	if settings.CVFolds < 2 || settings.CVFolds > 20 {
		return fmt.Errorf("cross-validation folds must be between 2 and 20, got %d", settings.CVFolds)
	}

	// Validate logistic regression parameters
	if settings.Logistic.LearningRate <= 0 || settings.Logistic.LearningRate > 10 {
		return fmt.Errorf("logistic learning rate must be between 0 and 10, got %f", settings.Logistic.LearningRate)
	}
	if settings.Logistic.L2Penalty < 0 {
		return fmt.Errorf("logistic L2 penalty must be non-negative, got %f", settings.Logistic.L2Penalty)
	}
	if settings.Logistic.MaxIter <= 0 || settings.Logistic.MaxIter > 1000000 {
		return fmt.Errorf("logistic max iterations must be between 1 and 1000000, got %d", settings.Logistic.MaxIter)
	}

	// Validate random forest parameters
	if settings.Forest.Estimators <= 0 || settings.Forest.Estimators > 1000 {
		return fmt.Errorf("forest estimators must be between 1 and 1000, got %d", settings.Forest.Estimators)
	}
	if settings.Forest.MaxDepth <= 0 || settings.Forest.MaxDepth > 100 {
		return fmt.Errorf("forest max depth must be between 1 and 100, got %d", settings.Forest.MaxDepth)
	}
	if settings.Forest.MinSamplesSplit < 2 {
		return fmt.Errorf("forest min samples split must be at least 2, got %d", settings.Forest.MinSamplesSplit)
	}
	if settings.Forest.MinSamplesLeaf < 1 {
		return fmt.Errorf("forest min samples leaf must be at least 1, got %d", settings.Forest.MinSamplesLeaf)
	}

	return nil
}
