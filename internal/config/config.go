package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the claimguard configuration.
type Config struct {
	Log        LogConfig        `yaml:"log"`
	Validation ValidationConfig `yaml:"validation"`
	Features   FeaturesConfig   `yaml:"features"`
	Clustering ClusteringConfig `yaml:"clustering"`
	Training   TrainingConfig   `yaml:"training"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Stderr bool   `yaml:"stderr"` // Mirror log records to stderr
}

// ValidationConfig holds raw-file validation settings.
type ValidationConfig struct {
	TrainingSchema   string `yaml:"training_schema"`   // Schema document for training batches
	PredictionSchema string `yaml:"prediction_schema"` // Schema document for prediction batches
	IdentifierColumn string `yaml:"identifier_column"` // Name given to the positional index column
}

// FeaturesConfig describes the feature-engineering transforms.
type FeaturesConfig struct {
	DropColumns     []string                      `yaml:"drop_columns"`     // Columns removed before training
	MissingMarkers  []string                      `yaml:"missing_markers"`  // Cell values treated as missing
	LabelColumn     string                        `yaml:"label_column"`     // Target column
	LabelMapping    map[string]int                `yaml:"label_mapping"`    // Target value -> class
	OrdinalMappings map[string]map[string]float64 `yaml:"ordinal_mappings"` // Column -> value -> number
	NumericColumns  []string                      `yaml:"numeric_columns"`  // Columns standardized per cluster
	BalanceClasses  bool                          `yaml:"balance_classes"`  // Random over-sampling of minority class
	PositiveLabel   string                        `yaml:"positive_label"`   // Prediction output for class 1
	NegativeLabel   string                        `yaml:"negative_label"`   // Prediction output for class 0
}

// ClusteringConfig holds partitioning settings.
type ClusteringConfig struct {
	MaxClusters int   `yaml:"max_clusters"` // Upper bound for the elbow search
	MaxIter     int   `yaml:"max_iter"`     // Lloyd iterations per fit
	Seed        int64 `yaml:"seed"`         // Initialization seed
	ElbowChart  bool  `yaml:"elbow_chart"`  // Write the elbow chart PNG
}

// TrainingConfig holds model selection settings.
type TrainingConfig struct {
	TestFraction float64      `yaml:"test_fraction"` // Held-out share per cluster
	SplitSeed    int64        `yaml:"split_seed"`    // Train/test shuffle seed
	Folds        int          `yaml:"folds"`         // Cross-validation folds
	Logistic     LogisticGrid `yaml:"logistic"`      // Linear classifier grid
	Boosting     BoostingGrid `yaml:"boosting"`      // Tree ensemble grid
}

// LogisticGrid is the hyperparameter grid of the linear classifier.
type LogisticGrid struct {
	Penalties []string  `yaml:"penalties"` // l1, l2
	C         []float64 `yaml:"c"`         // Inverse regularization strength
}

// BoostingGrid is the hyperparameter grid of the tree ensemble.
type BoostingGrid struct {
	NEstimators   []int     `yaml:"n_estimators"`
	LearningRates []float64 `yaml:"learning_rates"`
	MaxDepths     []int     `yaml:"max_depths"`
}

// DefaultConfig returns the default configuration, tuned for the
// insurance-claims dataset.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Stderr: false,
		},
		Validation: ValidationConfig{
			TrainingSchema:   "schema_training.json",
			PredictionSchema: "schema_prediction.json",
			IdentifierColumn: "record_id",
		},
		Features: FeaturesConfig{
			DropColumns: []string{
				"policy_number", "policy_bind_date", "policy_state", "insured_zip",
				"incident_location", "incident_date", "incident_state", "incident_city",
				"insured_hobbies", "auto_make", "auto_model", "auto_year", "age",
				"total_claim_amount",
			},
			MissingMarkers: []string{"?"},
			LabelColumn:    "fraud_reported",
			LabelMapping:   map[string]int{"N": 0, "Y": 1},
			OrdinalMappings: map[string]map[string]float64{
				"policy_csl": {"100/300": 1, "250/500": 2.5, "500/1000": 5},
				"insured_education_level": {
					"JD": 1, "High School": 2, "College": 3, "Masters": 4,
					"Associate": 5, "MD": 6, "PhD": 7,
				},
				"incident_severity": {
					"Trivial Damage": 1, "Minor Damage": 2, "Major Damage": 3, "Total Loss": 4,
				},
				"insured_sex":             {"FEMALE": 0, "MALE": 1},
				"property_damage":         {"NO": 0, "YES": 1},
				"police_report_available": {"NO": 0, "YES": 1},
			},
			NumericColumns: []string{
				"months_as_customer", "policy_deductable", "umbrella_limit",
				"capital-gains", "capital-loss", "incident_hour_of_the_day",
				"number_of_vehicles_involved", "bodily_injuries", "witnesses",
				"injury_claim", "property_claim", "vehicle_claim",
			},
			BalanceClasses: true,
			PositiveLabel:  "Y",
			NegativeLabel:  "N",
		},
		Clustering: ClusteringConfig{
			MaxClusters: 10,
			MaxIter:     300,
			Seed:        42,
			ElbowChart:  true,
		},
		Training: TrainingConfig{
			TestFraction: 1.0 / 3.0,
			SplitSeed:    355,
			Folds:        5,
			Logistic: LogisticGrid{
				Penalties: []string{"l1", "l2"},
				C:         []float64{0.01, 0.1, 1.0, 10.0},
			},
			Boosting: BoostingGrid{
				NEstimators:   []int{100, 130},
				LearningRates: []float64{0.1, 0.01},
				MaxDepths:     []int{8, 9},
			},
		},
	}
}

// Load loads configuration for the given root directory.
func Load(root string) (*Config, error) {
	return LoadFromFile(NewPaths(root).ConfigFile())
}

// LoadFromFile loads configuration from the specified file.
// If the file doesn't exist, returns default configuration.
// Environment variable overrides are applied after file loading.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.ApplyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to the specified file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Get retrieves a scalar configuration value by dot-separated key.
// For example: "log.level" or "clustering.max_clusters".
func (c *Config) Get(key string) (string, error) {
	section, field, err := splitKey(key)
	if err != nil {
		return "", err
	}

	switch section {
	case "log":
		return c.getLogField(field)
	case "validation":
		return c.getValidationField(field)
	case "features":
		return c.getFeaturesField(field)
	case "clustering":
		return c.getClusteringField(field)
	case "training":
		return c.getTrainingField(field)
	default:
		return "", fmt.Errorf("unknown section: %s", section)
	}
}

// Set sets a scalar configuration value by dot-separated key.
func (c *Config) Set(key, value string) error {
	section, field, err := splitKey(key)
	if err != nil {
		return err
	}

	switch section {
	case "log":
		return c.setLogField(field, value)
	case "validation":
		return c.setValidationField(field, value)
	case "features":
		return c.setFeaturesField(field, value)
	case "clustering":
		return c.setClusteringField(field, value)
	case "training":
		return c.setTrainingField(field, value)
	default:
		return fmt.Errorf("unknown section: %s", section)
	}
}

func splitKey(key string) (string, string, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 2 {
		return "", "", errors.New("key must be in format 'section.key'")
	}
	return parts[0], parts[1], nil
}

func (c *Config) getLogField(field string) (string, error) {
	switch field {
	case "level":
		return c.Log.Level, nil
	case "stderr":
		return strconv.FormatBool(c.Log.Stderr), nil
	default:
		return "", fmt.Errorf("unknown field: log.%s", field)
	}
}

func (c *Config) setLogField(field, value string) error {
	switch field {
	case "level":
		if !isValidLogLevel(value) {
			return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", value)
		}
		c.Log.Level = value
	case "stderr":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for stderr: %w", err)
		}
		c.Log.Stderr = b
	default:
		return fmt.Errorf("unknown field: log.%s", field)
	}
	return nil
}

func (c *Config) getValidationField(field string) (string, error) {
	switch field {
	case "training_schema":
		return c.Validation.TrainingSchema, nil
	case "prediction_schema":
		return c.Validation.PredictionSchema, nil
	case "identifier_column":
		return c.Validation.IdentifierColumn, nil
	default:
		return "", fmt.Errorf("unknown field: validation.%s", field)
	}
}

func (c *Config) setValidationField(field, value string) error {
	switch field {
	case "training_schema":
		c.Validation.TrainingSchema = value
	case "prediction_schema":
		c.Validation.PredictionSchema = value
	case "identifier_column":
		c.Validation.IdentifierColumn = value
	default:
		return fmt.Errorf("unknown field: validation.%s", field)
	}
	return nil
}

func (c *Config) getFeaturesField(field string) (string, error) {
	switch field {
	case "label_column":
		return c.Features.LabelColumn, nil
	case "balance_classes":
		return strconv.FormatBool(c.Features.BalanceClasses), nil
	case "positive_label":
		return c.Features.PositiveLabel, nil
	case "negative_label":
		return c.Features.NegativeLabel, nil
	default:
		return "", fmt.Errorf("unknown field: features.%s", field)
	}
}

func (c *Config) setFeaturesField(field, value string) error {
	switch field {
	case "label_column":
		c.Features.LabelColumn = value
	case "balance_classes":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for balance_classes: %w", err)
		}
		c.Features.BalanceClasses = b
	case "positive_label":
		c.Features.PositiveLabel = value
	case "negative_label":
		c.Features.NegativeLabel = value
	default:
		return fmt.Errorf("unknown field: features.%s", field)
	}
	return nil
}

func (c *Config) getClusteringField(field string) (string, error) {
	switch field {
	case "max_clusters":
		return strconv.Itoa(c.Clustering.MaxClusters), nil
	case "max_iter":
		return strconv.Itoa(c.Clustering.MaxIter), nil
	case "seed":
		return strconv.FormatInt(c.Clustering.Seed, 10), nil
	case "elbow_chart":
		return strconv.FormatBool(c.Clustering.ElbowChart), nil
	default:
		return "", fmt.Errorf("unknown field: clustering.%s", field)
	}
}

func (c *Config) setClusteringField(field, value string) error {
	switch field {
	case "max_clusters":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_clusters: %w", err)
		}
		c.Clustering.MaxClusters = n
	case "max_iter":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_iter: %w", err)
		}
		c.Clustering.MaxIter = n
	case "seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for seed: %w", err)
		}
		c.Clustering.Seed = n
	case "elbow_chart":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid value for elbow_chart: %w", err)
		}
		c.Clustering.ElbowChart = b
	default:
		return fmt.Errorf("unknown field: clustering.%s", field)
	}
	return nil
}

func (c *Config) getTrainingField(field string) (string, error) {
	switch field {
	case "test_fraction":
		return strconv.FormatFloat(c.Training.TestFraction, 'g', -1, 64), nil
	case "split_seed":
		return strconv.FormatInt(c.Training.SplitSeed, 10), nil
	case "folds":
		return strconv.Itoa(c.Training.Folds), nil
	default:
		return "", fmt.Errorf("unknown field: training.%s", field)
	}
}

func (c *Config) setTrainingField(field, value string) error {
	switch field {
	case "test_fraction":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid value for test_fraction: %w", err)
		}
		c.Training.TestFraction = f
	case "split_seed":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid value for split_seed: %w", err)
		}
		c.Training.SplitSeed = n
	case "folds":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for folds: %w", err)
		}
		c.Training.Folds = n
	default:
		return fmt.Errorf("unknown field: training.%s", field)
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level must be debug, info, warn, or error (got: %s)", c.Log.Level)
	}

	if c.Validation.TrainingSchema == "" {
		return errors.New("validation.training_schema is required")
	}
	if c.Validation.PredictionSchema == "" {
		return errors.New("validation.prediction_schema is required")
	}
	if c.Validation.IdentifierColumn == "" {
		return errors.New("validation.identifier_column is required")
	}

	if c.Features.LabelColumn == "" {
		return errors.New("features.label_column is required")
	}
	if len(c.Features.LabelMapping) == 0 {
		return errors.New("features.label_mapping must not be empty")
	}
	for value, class := range c.Features.LabelMapping {
		if class != 0 && class != 1 {
			return fmt.Errorf("features.label_mapping[%s] must be 0 or 1 (got: %d)", value, class)
		}
	}

	if c.Clustering.MaxClusters < 1 {
		return errors.New("clustering.max_clusters must be >= 1")
	}
	if c.Clustering.MaxIter < 1 {
		return errors.New("clustering.max_iter must be >= 1")
	}

	if c.Training.TestFraction <= 0 || c.Training.TestFraction >= 1 {
		return fmt.Errorf("training.test_fraction must be in (0, 1) (got: %g)", c.Training.TestFraction)
	}
	if c.Training.Folds < 2 {
		return errors.New("training.folds must be >= 2")
	}
	if len(c.Training.Logistic.Penalties) == 0 || len(c.Training.Logistic.C) == 0 {
		return errors.New("training.logistic grid must not be empty")
	}
	for _, p := range c.Training.Logistic.Penalties {
		if p != "l1" && p != "l2" {
			return fmt.Errorf("training.logistic.penalties must be l1 or l2 (got: %s)", p)
		}
	}
	for _, v := range c.Training.Logistic.C {
		if v <= 0 {
			return fmt.Errorf("training.logistic.c must be > 0 (got: %g)", v)
		}
	}
	b := c.Training.Boosting
	if len(b.NEstimators) == 0 || len(b.LearningRates) == 0 || len(b.MaxDepths) == 0 {
		return errors.New("training.boosting grid must not be empty")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}

// ApplyEnvOverrides applies environment variable overrides to the config.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("CLAIMGUARD_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil && b {
			c.Log.Level = "debug"
		}
	}
	if v := os.Getenv("CLAIMGUARD_LOG_LEVEL"); v != "" {
		if isValidLogLevel(v) {
			c.Log.Level = v
		}
	}
}

// ListKeys returns the scalar configuration keys accepted by Get and Set.
func ListKeys() []string {
	keys := []string{
		"log.level",
		"log.stderr",
		"validation.training_schema",
		"validation.prediction_schema",
		"validation.identifier_column",
		"features.label_column",
		"features.balance_classes",
		"features.positive_label",
		"features.negative_label",
		"clustering.max_clusters",
		"clustering.max_iter",
		"clustering.seed",
		"clustering.elbow_chart",
		"training.test_fraction",
		"training.split_seed",
		"training.folds",
	}
	sort.Strings(keys)
	return keys
}
