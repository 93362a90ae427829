package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/reliefsim/internal/engine"
	"github.com/talgya/reliefsim/internal/policy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reliefsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())

	ec, err := Default().Engine()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultConfig(), ec)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
dataset: world.json.zst
log_level: debug
simulation:
  ticks: 30
  rates_preset: alternate
  requery: once
policy:
  default: learned
  learned:
    url: http://model:9000/predict
    features: raw6
    output: continuous
    timeout_seconds: 5
    max_per_minute: 600
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "world.json.zst", cfg.Dataset)
	assert.Equal(t, "data/reliefsim.db", cfg.DB, "unset keys keep defaults")

	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, 30, ec.Ticks)
	assert.Equal(t, engine.RatesAlternate, ec.Rates)
	assert.Equal(t, engine.RequeryOnce, ec.Requery)

	pc := cfg.PredictorConfig()
	assert.Equal(t, "http://model:9000/predict", pc.URL)
	assert.Equal(t, 6, pc.InputDim)
	assert.Equal(t, 5*time.Second, pc.Timeout)
	assert.Equal(t, 600, pc.MaxPerMin)

	lvl, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_ExplicitRates(t *testing.T) {
	path := writeConfig(t, `
simulation:
  ticks: 15
  rates: {ambulance: 45, transport: 55, shelter: 22}
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	ec, err := cfg.Engine()
	require.NoError(t, err)
	assert.Equal(t, engine.Rates{Ambulance: 45, Transport: 55, Shelter: 22}, ec.Rates)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"zero ticks":     "simulation: {ticks: 0}",
		"bad preset":     "simulation: {rates_preset: fastest}",
		"bad requery":    "simulation: {requery: sometimes}",
		"bad policy":     "policy: {default: random}",
		"bad features":   "policy: {learned: {features: raw7}}",
		"bad output":     "policy: {learned: {output: softmax}}",
		"bad log level":  "log_level: chatty",
		"bad port":       "port: 70000",
		"malformed yaml": "simulation: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("RELIEFSIM_PORT", "9090")
	t.Setenv("RELIEFSIM_PREDICTOR_URL", "http://model/predict")
	t.Setenv("RELIEFSIM_DATASET", "custom.json")

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "http://model/predict", cfg.Policy.Learned.URL)
	assert.Equal(t, "custom.json", cfg.Dataset)
	assert.Equal(t, "data/reliefsim.db", cfg.DB)

	t.Setenv("RELIEFSIM_PORT", "eighty")
	assert.Error(t, cfg.ApplyEnv())
}

func TestLearnedPolicy(t *testing.T) {
	cfg := Default()
	l, err := cfg.LearnedPolicy()
	require.NoError(t, err)
	assert.Nil(t, l, "no URL disables the learned policy")

	cfg.Policy.Learned.URL = "http://model/predict"
	cfg.Policy.Learned.Features = "raw6"
	l, err = cfg.LearnedPolicy()
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.Equal(t, "raw6", l.Convention().String())

	cfg.Policy.Learned.InputDim = 8
	_, err = cfg.LearnedPolicy()
	assert.ErrorIs(t, err, policy.ErrFeatureShapeMismatch)
}
