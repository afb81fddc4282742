package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "leadscore.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Store.Connect.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "utf-8", cfg.Ingest.Encoding)
	assert.Equal(t, ",", cfg.Ingest.Delimiter)
	assert.Equal(t, "feature_view", cfg.Feature.View)
	assert.Equal(t, "orders", cfg.Feature.OrdersTable)
	assert.Contains(t, cfg.Feature.Numeric, "interactions_90d")
	assert.Equal(t, []string{"account_type", "ownership_type"}, cfg.Feature.Categorical)
	assert.True(t, cfg.Model.Enabled)
	assert.Equal(t, "local", cfg.Model.Backend)
	assert.Equal(t, "lead_model.json", cfg.Model.ClassifierKey)
	assert.Equal(t, "amount_model.json", cfg.Model.RegressorKey)
	assert.Equal(t, uint64(42), cfg.Model.Seed)
	assert.InDelta(t, 0.25, cfg.Model.TestSize, 0.001)
	assert.Equal(t, 1000, cfg.Model.MaxIter)
	assert.Equal(t, map[string]string{"opportunities": "bi_opportunities", "orders": "bi_orders"}, cfg.Mirror)

	assert.NoError(t, cfg.Validate("score"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/leads
log:
  level: debug
  format: console
ingest:
  encoding: euc-kr
model:
  backend: azure
  azure:
    connection_string: UseDevelopmentStorage=true
feature:
  numeric: [bed_count]
  categorical: []
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/leads", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "euc-kr", cfg.Ingest.Encoding)
	assert.Equal(t, "azure", cfg.Model.Backend)
	assert.Equal(t, "UseDevelopmentStorage=true", cfg.Model.Azure.ConnectionString)
	assert.Equal(t, []string{"bed_count"}, cfg.Feature.Numeric)
	// Defaults still apply for unset values
	assert.Equal(t, "leadscore-models", cfg.Model.Azure.Container)
	assert.Equal(t, 1000, cfg.Model.MaxIter)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("LEADSCORE_STORE_DRIVER", "postgres")
	t.Setenv("LEADSCORE_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("LEADSCORE_MODEL_ENABLED", "false")
	t.Setenv("LEADSCORE_MODEL_MAX_ITER", "200")

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.Model.Enabled)
	assert.Equal(t, 200, cfg.Model.MaxIter)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.ErrorContains(t, err, "config: read file")
}

func TestFeatureSchema(t *testing.T) {
	s, err := FeatureConfig{Numeric: []string{"bed_count"}, Categorical: []string{"city"}}.Schema()
	require.NoError(t, err)
	assert.Equal(t, []string{"bed_count", "city"}, s.Columns())

	_, err = FeatureConfig{}.Schema()
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte("numeric: [monetary_180d]\n"), 0644))
	s, err = FeatureConfig{SchemaFile: path, Numeric: []string{"ignored"}}.Schema()
	require.NoError(t, err)
	assert.Equal(t, []string{"monetary_180d"}, s.Numeric)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "leadscore.db"
	cfg.Ingest.LandingDir = "data/landing"
	cfg.Ingest.Delimiter = ","
	cfg.Feature.View = "feature_view"
	cfg.Feature.Numeric = []string{"bed_count"}
	cfg.Model.Enabled = true
	cfg.Model.Backend = "local"
	cfg.Model.Dir = "models"
	cfg.Model.TestSize = 0.25
	cfg.Model.MaxIter = 1000
	cfg.Export.Path = "out.xlsx"
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"migrate", "ledger", "ingest", "retrain", "score", "export"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateIngest(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.LandingDir = ""
	cfg.Ingest.Delimiter = ";;"

	err := cfg.Validate("ingest")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.landing_dir is required")
	assert.Contains(t, err.Error(), "single character")
}

func TestValidateModel(t *testing.T) {
	cfg := validDefaults()
	cfg.Model.Backend = "azure"

	err := cfg.Validate("retrain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.azure.connection_string is required")

	cfg.Model.Backend = "gcs"
	err = cfg.Validate("retrain")
	assert.ErrorContains(t, err, "model.backend must be local or azure")

	cfg.Model.Backend = "local"
	cfg.Model.TestSize = 1
	cfg.Model.MaxIter = 0
	err = cfg.Validate("score")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.test_size")
	assert.Contains(t, err.Error(), "model.max_iter")

	// Model settings are ignored when modeling is disabled.
	cfg.Model.Enabled = false
	assert.NoError(t, cfg.Validate("score"))
}

func TestValidateFeatureAndExport(t *testing.T) {
	cfg := validDefaults()
	cfg.Feature.Numeric = nil
	cfg.Export.Path = ""

	err := cfg.Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "feature.numeric or feature.categorical is required")
	assert.Contains(t, err.Error(), "export.path is required")

	cfg.Feature.SchemaFile = "schema.yaml"
	cfg.Export.Path = "out.xlsx"
	assert.NoError(t, cfg.Validate("export"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
