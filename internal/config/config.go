package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadscore/internal/feature"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig       `yaml:"store" mapstructure:"store"`
	Log     LogConfig         `yaml:"log" mapstructure:"log"`
	Ingest  IngestConfig      `yaml:"ingest" mapstructure:"ingest"`
	Feature FeatureConfig     `yaml:"feature" mapstructure:"feature"`
	Model   ModelConfig       `yaml:"model" mapstructure:"model"`
	Score   ScoreConfig       `yaml:"score" mapstructure:"score"`
	Export  ExportConfig      `yaml:"export" mapstructure:"export"`
	Mirror  map[string]string `yaml:"mirror" mapstructure:"mirror"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Connect     ConnectConfig `yaml:"connect" mapstructure:"connect"`
}

// ConnectConfig bounds connection retries for network-backed stores.
type ConnectConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// IngestConfig configures landing-area ingestion.
type IngestConfig struct {
	LandingDir   string `yaml:"landing_dir" mapstructure:"landing_dir"`
	Encoding     string `yaml:"encoding" mapstructure:"encoding"`
	Delimiter    string `yaml:"delimiter" mapstructure:"delimiter"`
	TransformSQL string `yaml:"transform_sql" mapstructure:"transform_sql"`
}

// FeatureConfig configures frame assembly and the predictor schema. A
// schema file, when set, takes precedence over the inline lists.
type FeatureConfig struct {
	View         string   `yaml:"view" mapstructure:"view"`
	OrdersTable  string   `yaml:"orders_table" mapstructure:"orders_table"`
	TransformSQL string   `yaml:"transform_sql" mapstructure:"transform_sql"`
	SchemaFile   string   `yaml:"schema_file" mapstructure:"schema_file"`
	Numeric      []string `yaml:"numeric" mapstructure:"numeric"`
	Categorical  []string `yaml:"categorical" mapstructure:"categorical"`
}

// Schema resolves the predictor schema.
func (f FeatureConfig) Schema() (feature.Schema, error) {
	if f.SchemaFile != "" {
		return feature.LoadSchema(f.SchemaFile)
	}
	s := feature.Schema{Numeric: f.Numeric, Categorical: f.Categorical}
	return s, s.Validate()
}

// ModelConfig configures training and artifact storage.
type ModelConfig struct {
	Enabled       bool        `yaml:"enabled" mapstructure:"enabled"`
	Backend       string      `yaml:"backend" mapstructure:"backend"`
	Dir           string      `yaml:"dir" mapstructure:"dir"`
	ClassifierKey string      `yaml:"classifier_key" mapstructure:"classifier_key"`
	RegressorKey  string      `yaml:"regressor_key" mapstructure:"regressor_key"`
	Seed          uint64      `yaml:"seed" mapstructure:"seed"`
	TestSize      float64     `yaml:"test_size" mapstructure:"test_size"`
	MaxIter       int         `yaml:"max_iter" mapstructure:"max_iter"`
	Azure         AzureConfig `yaml:"azure" mapstructure:"azure"`
}

// AzureConfig holds Azure Blob Storage settings for model artifacts.
type AzureConfig struct {
	ConnectionString string `yaml:"connection_string" mapstructure:"connection_string"`
	Container        string `yaml:"container" mapstructure:"container"`
}

// ScoreConfig configures the score command.
type ScoreConfig struct {
	Output string `yaml:"output" mapstructure:"output"`
}

// ExportConfig configures the workbook export.
type ExportConfig struct {
	Path   string   `yaml:"path" mapstructure:"path"`
	Tables []string `yaml:"tables" mapstructure:"tables"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscore.db")
	v.SetDefault("store.connect.max_attempts", 5)
	v.SetDefault("store.connect.initial_backoff_ms", 250)
	v.SetDefault("store.connect.max_backoff_ms", 10000)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("ingest.landing_dir", "data/landing")
	v.SetDefault("ingest.encoding", "utf-8")
	v.SetDefault("ingest.delimiter", ",")
	v.SetDefault("feature.view", "feature_view")
	v.SetDefault("feature.orders_table", "orders")
	v.SetDefault("feature.transform_sql", "sql/transform.sql")
	v.SetDefault("feature.numeric", []string{
		"bed_count", "interactions_90d", "orders_cnt_180d", "monetary_180d", "active_install_equipment_count",
	})
	v.SetDefault("feature.categorical", []string{"account_type", "ownership_type"})
	v.SetDefault("model.enabled", true)
	v.SetDefault("model.backend", "local")
	v.SetDefault("model.dir", "models")
	v.SetDefault("model.classifier_key", "lead_model.json")
	v.SetDefault("model.regressor_key", "amount_model.json")
	v.SetDefault("model.seed", 42)
	v.SetDefault("model.test_size", 0.25)
	v.SetDefault("model.max_iter", 1000)
	v.SetDefault("model.azure.container", "leadscore-models")
	v.SetDefault("export.path", "powerbi_data/leadscore.xlsx")
	v.SetDefault("mirror", map[string]string{
		"opportunities": "bi_opportunities",
		"orders":        "bi_orders",
	})

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
