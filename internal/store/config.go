package store

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type ModelConfig struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"` // HTTP, CLI
	Endpoint  string  `yaml:"endpoint"`
	Model     string  `yaml:"model"`
	Binary    string  `yaml:"binary"`
	ModelPath string  `yaml:"model_path"`
	Threads   int     `yaml:"threads"`
	Predict   int     `yaml:"predict"`
	Temp      float64 `yaml:"temperature"`
}

type Config struct {
	Mode        string   `yaml:"mode"` // DRY_RUN or LIVE
	Symbols     []string `yaml:"symbols"`
	Timeframe   string   `yaml:"timeframe"`
	LoopSeconds int      `yaml:"loop_seconds"`
	MinHistory  int      `yaml:"min_history"`

	Bridge struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"bridge"`

	Ensemble struct {
		Models          []ModelConfig `yaml:"models"`
		ActiveModels    int           `yaml:"active_models"`
		CallTimeoutSec  int           `yaml:"call_timeout_seconds"`
		TotalTimeoutSec int           `yaml:"total_timeout_seconds"`
		BackoffSeconds  int           `yaml:"backoff_seconds"`
		PromptMaxChars  int           `yaml:"prompt_max_chars"`
		MinBucketScore  float64       `yaml:"min_bucket_score"`
	} `yaml:"ensemble"`

	Stats struct {
		Path             string `yaml:"path"`
		FlushIntervalSec int    `yaml:"flush_interval_seconds"`
	} `yaml:"stats"`

	Strategies struct {
		Enabled             bool               `yaml:"enabled"`
		Weights             map[string]float64 `yaml:"weights"`
		HybridMinConfidence float64            `yaml:"hybrid_min_confidence"`
		TimeoutSeconds      int                `yaml:"timeout_seconds"`
		Workers             int                `yaml:"workers"`
	} `yaml:"strategies"`

	Cascade struct {
		ExternalMinConfidence float64 `yaml:"external_min_confidence"`
		HybridExternalFloor   float64 `yaml:"hybrid_external_floor"`
		HybridConfidenceCap   float64 `yaml:"hybrid_confidence_cap"`
		RLOverrideConfidence  float64 `yaml:"rl_override_confidence"`
	} `yaml:"cascade"`

	Risk struct {
		PerTradeRiskPct  float64 `yaml:"per_trade_risk_pct"`
		PipValueEst      float64 `yaml:"pip_value_est"`
		MinTradeInterval int     `yaml:"min_trade_interval_seconds"`
		MinConfidence    float64 `yaml:"min_confidence"`
		DefaultVolume    float64 `yaml:"default_volume"`
		MaxVolume        float64 `yaml:"max_volume"`
	} `yaml:"risk"`

	Dispatch struct {
		MaxRetries     int      `yaml:"max_retries"`
		BackoffBaseMs  int      `yaml:"backoff_base_ms"`
		FillingLadder  []string `yaml:"filling_ladder"`
		AuditPath      string   `yaml:"audit_path"`
		HistoryCSVPath string   `yaml:"history_csv_path"`
	} `yaml:"dispatch"`

	Indicators struct {
		RSIPeriod int `yaml:"rsi_period"`
		MAFast    int `yaml:"ma_fast"`
		MASlow    int `yaml:"ma_slow"`
	} `yaml:"indicators"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if len(c.Symbols) == 0 {
		return errors.New("symbols cannot be empty")
	}
	if c.Risk.PerTradeRiskPct < 0 || c.Risk.PerTradeRiskPct > 100 {
		return fmt.Errorf("risk.per_trade_risk_pct must be between 0-100, got %.2f", c.Risk.PerTradeRiskPct)
	}
	if c.Ensemble.ActiveModels < 0 {
		return fmt.Errorf("ensemble.active_models must be >= 0, got %d", c.Ensemble.ActiveModels)
	}
	if c.Cascade.ExternalMinConfidence < 0 || c.Cascade.ExternalMinConfidence > 1 {
		return fmt.Errorf("cascade.external_min_confidence must be in [0,1], got %.3f", c.Cascade.ExternalMinConfidence)
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.LoopSeconds == 0 {
		c.LoopSeconds = 60
	}
	if c.Timeframe == "" {
		c.Timeframe = "M5"
	}
	if c.MinHistory == 0 {
		c.MinHistory = 50
	}
	if c.Bridge.TimeoutSeconds == 0 {
		c.Bridge.TimeoutSeconds = 10
	}
	if c.Ensemble.ActiveModels == 0 {
		c.Ensemble.ActiveModels = 3
	}
	if c.Ensemble.CallTimeoutSec == 0 {
		c.Ensemble.CallTimeoutSec = 45
	}
	if c.Ensemble.TotalTimeoutSec == 0 {
		c.Ensemble.TotalTimeoutSec = 90
	}
	if c.Ensemble.BackoffSeconds == 0 {
		c.Ensemble.BackoffSeconds = 120
	}
	if c.Ensemble.PromptMaxChars == 0 {
		c.Ensemble.PromptMaxChars = 6000
	}
	if c.Ensemble.MinBucketScore == 0 {
		c.Ensemble.MinBucketScore = 0.3
	}
	if c.Stats.Path == "" {
		c.Stats.Path = "model_stats.json"
	}
	if c.Stats.FlushIntervalSec == 0 {
		c.Stats.FlushIntervalSec = 30
	}
	if c.Strategies.HybridMinConfidence == 0 {
		c.Strategies.HybridMinConfidence = 0.35
	}
	if c.Strategies.TimeoutSeconds == 0 {
		c.Strategies.TimeoutSeconds = 10
	}
	if c.Strategies.Workers == 0 {
		c.Strategies.Workers = 4
	}
	if c.Cascade.ExternalMinConfidence == 0 {
		c.Cascade.ExternalMinConfidence = 0.15
	}
	if c.Cascade.HybridExternalFloor == 0 {
		c.Cascade.HybridExternalFloor = 0.40
	}
	if c.Cascade.HybridConfidenceCap == 0 {
		c.Cascade.HybridConfidenceCap = 0.85
	}
	if c.Cascade.RLOverrideConfidence == 0 {
		c.Cascade.RLOverrideConfidence = 0.60
	}
	if c.Risk.PipValueEst == 0 {
		c.Risk.PipValueEst = 10.0
	}
	if c.Risk.MinTradeInterval == 0 {
		c.Risk.MinTradeInterval = 300
	}
	if c.Risk.MinConfidence == 0 {
		c.Risk.MinConfidence = 0.25
	}
	if c.Risk.DefaultVolume == 0 {
		c.Risk.DefaultVolume = 0.01
	}
	if c.Risk.MaxVolume == 0 {
		c.Risk.MaxVolume = 5.0
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = 3
	}
	if c.Dispatch.BackoffBaseMs == 0 {
		c.Dispatch.BackoffBaseMs = 500
	}
	if len(c.Dispatch.FillingLadder) == 0 {
		c.Dispatch.FillingLadder = []string{"", "IOC", "FOK"}
	}
	if c.Dispatch.AuditPath == "" {
		c.Dispatch.AuditPath = "orders_audit.jsonl"
	}
	if c.Dispatch.HistoryCSVPath == "" {
		c.Dispatch.HistoryCSVPath = "trade_history.csv"
	}
	if c.Indicators.RSIPeriod == 0 {
		c.Indicators.RSIPeriod = 14
	}
	if c.Indicators.MAFast == 0 {
		c.Indicators.MAFast = 10
	}
	if c.Indicators.MASlow == 0 {
		c.Indicators.MASlow = 30
	}
}
