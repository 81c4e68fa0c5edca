// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"billz/internal/domain/model"
)

// devnetUSDCMint is used by -dev runs without a configured asset.
const devnetUSDCMint = "4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU"

type RuntimeConfig struct {
	Dev  bool
	Role string // all | web | queue | refund
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	PublicAPIURL   string        `yaml:"public_api_url"` // used to build the x402 resource field
	RequestTimeout time.Duration `yaml:"request_timeout"`
	AdminJWTSecret string        `yaml:"admin_jwt_secret"`
	RateLimit      int           `yaml:"rate_limit"` // intake requests per client per window; 0 disables
	RateWindow     time.Duration `yaml:"rate_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	ProofTTL time.Duration `yaml:"proof_ttl"`
}

type PaymentConfig struct {
	Network           string `yaml:"network"` // solana | solana-devnet
	TreasuryAddress   string `yaml:"treasury_address"`
	FacilitatorURL    string `yaml:"facilitator_url"`
	AssetAddress      string `yaml:"asset_address"` // USDC mint
	MaxTimeoutSeconds int    `yaml:"max_timeout_seconds"`
}

type WorkflowMapping struct {
	Type     string `yaml:"type"`     // webhook | api
	Endpoint string `yaml:"endpoint"` // webhook path or workflow id
}

type WorkflowConfig struct {
	BaseURL   string                     `yaml:"base_url"`
	APIKey    string                     `yaml:"api_key"`
	Timeout   time.Duration              `yaml:"timeout"`
	Workflows map[string]WorkflowMapping `yaml:"workflows"`
}

type TransferConfig struct {
	SignerURL string        `yaml:"signer_url"`
	APIKey    string        `yaml:"api_key"`
	Decimals  int           `yaml:"decimals"`
	Timeout   time.Duration `yaml:"timeout"`
}

type WorkersConfig struct {
	ExecutionIdle     time.Duration `yaml:"execution_idle"`
	ExecutionCooldown time.Duration `yaml:"execution_cooldown"`
	ExecutionWorkers  int           `yaml:"execution_workers"` // parallel queue loops per process
	MaxAttempts       int           `yaml:"max_attempts"`
	BackoffBase       time.Duration `yaml:"backoff_base"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`

	RefundInterval    time.Duration `yaml:"refund_interval"`
	RefundCooldown    time.Duration `yaml:"refund_cooldown"`
	ApproveBatch      int           `yaml:"approve_batch"`
	ExecuteBatch      int           `yaml:"execute_batch"`
	RefundLockTTL     time.Duration `yaml:"refund_lock_ttl"`
	RefundAlertEvery  time.Duration `yaml:"refund_alert_every"` // per-payment failure alert window
	TransferTimeout   time.Duration `yaml:"transfer_timeout"`
	SettlementTimeout time.Duration `yaml:"settlement_timeout"`
}

type AlertsConfig struct {
	TelegramToken string  `yaml:"telegram_token"`
	ChatIDs       []int64 `yaml:"chat_ids"`
}

type AutomationConfig struct {
	Name             string `yaml:"name"`
	PriceAtomicUnits int64  `yaml:"price_atomic_units"`
	Description      string `yaml:"description"`
}

type Config struct {
	Log         LogConfig                   `yaml:"log"`
	HTTP        HTTPConfig                  `yaml:"http"`
	Database    DatabaseConfig              `yaml:"database"`
	Redis       RedisConfig                 `yaml:"redis"`
	Payment     PaymentConfig               `yaml:"payment"`
	Workflow    WorkflowConfig              `yaml:"workflow"`
	Transfer    TransferConfig              `yaml:"transfer"`
	Workers     WorkersConfig               `yaml:"workers"`
	Alerts      AlertsConfig                `yaml:"alerts"`
	Automations map[string]AutomationConfig `yaml:"automations"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads and validates the YAML file at path.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b, dev)
}

// Parse applies defaults and minimal validation to raw YAML.
func Parse(b []byte, dev bool) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	cfg.Runtime.Role = "all"
	if dev && cfg.Payment.AssetAddress == "" {
		cfg.Payment.AssetAddress = devnetUSDCMint
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 3000
	}
	if c.HTTP.PublicAPIURL == "" {
		c.HTTP.PublicAPIURL = fmt.Sprintf("http://localhost:%d", c.HTTP.Port)
	}
	c.HTTP.PublicAPIURL = strings.TrimRight(c.HTTP.PublicAPIURL, "/")
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.RateWindow <= 0 {
		c.HTTP.RateWindow = time.Minute
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	if c.Redis.ProofTTL <= 0 {
		c.Redis.ProofTTL = 24 * time.Hour
	}
	if c.Payment.Network == "" {
		c.Payment.Network = "solana-devnet"
	}
	if c.Payment.FacilitatorURL == "" {
		c.Payment.FacilitatorURL = "https://facilitator.payai.network"
	}
	if c.Payment.MaxTimeoutSeconds <= 0 {
		c.Payment.MaxTimeoutSeconds = 300
	}
	if c.Workflow.BaseURL == "" {
		c.Workflow.BaseURL = "http://localhost:5678"
	}
	if c.Workflow.Timeout <= 0 {
		c.Workflow.Timeout = 5 * time.Minute
	}
	if c.Workflow.Workflows == nil {
		c.Workflow.Workflows = map[string]WorkflowMapping{
			"cs-skin-scraper":  {Type: "webhook", Endpoint: "/webhook/cs-skin-scraper"},
			"email-automation": {Type: "webhook", Endpoint: "/webhook/email-automation"},
		}
	}
	if c.Transfer.Decimals <= 0 {
		c.Transfer.Decimals = 6
	}
	if c.Transfer.Timeout <= 0 {
		c.Transfer.Timeout = time.Minute
	}
	c.Workers.applyDefaults()
	if len(c.Automations) == 0 {
		c.Automations = map[string]AutomationConfig{
			"cs-skin-scraper": {
				Name:             "CS Skin Price Scraper",
				PriceAtomicUnits: 2_500_000,
				Description:      "Scrape CS skin prices from 20+ websites",
			},
			"email-automation": {
				Name:             "Email Automation",
				PriceAtomicUnits: 500_000,
				Description:      "Automated email workflow",
			},
		}
	}
}

func (w *WorkersConfig) applyDefaults() {
	if w.ExecutionIdle <= 0 {
		w.ExecutionIdle = 2 * time.Second
	}
	if w.ExecutionCooldown <= 0 {
		w.ExecutionCooldown = 5 * time.Second
	}
	if w.ExecutionWorkers <= 0 {
		w.ExecutionWorkers = 1
	}
	if w.MaxAttempts <= 0 {
		w.MaxAttempts = 3
	}
	if w.BackoffBase <= 0 {
		w.BackoffBase = time.Second
	}
	if w.AttemptTimeout <= 0 {
		w.AttemptTimeout = 5 * time.Minute
	}
	if w.RefundInterval <= 0 {
		w.RefundInterval = 10 * time.Second
	}
	if w.RefundCooldown <= 0 {
		w.RefundCooldown = 30 * time.Second
	}
	if w.ApproveBatch <= 0 {
		w.ApproveBatch = 10
	}
	if w.ExecuteBatch <= 0 {
		w.ExecuteBatch = 5
	}
	if w.RefundLockTTL <= 0 {
		w.RefundLockTTL = 2 * time.Minute
	}
	if w.RefundAlertEvery <= 0 {
		w.RefundAlertEvery = time.Hour
	}
	if w.TransferTimeout <= 0 {
		w.TransferTimeout = 2 * time.Minute
	}
	if w.SettlementTimeout <= 0 {
		w.SettlementTimeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if !c.Runtime.Dev {
		if c.Database.URL == "" {
			return errors.New("database.url is required")
		}
		if c.Payment.TreasuryAddress == "" {
			return errors.New("payment.treasury_address is required")
		}
		if c.Payment.AssetAddress == "" {
			return errors.New("payment.asset_address is required")
		}
	}
	for id, a := range c.Automations {
		if a.PriceAtomicUnits <= 0 {
			return fmt.Errorf("automations.%s.price_atomic_units must be positive", id)
		}
	}
	for id, m := range c.Workflow.Workflows {
		switch strings.ToLower(m.Type) {
		case "webhook", "api":
		default:
			return fmt.Errorf("workflow.workflows.%s.type must be webhook or api", id)
		}
	}
	return nil
}

// Catalog converts the configured automations into the domain price catalog.
func (c *Config) Catalog() model.Catalog {
	out := make(model.Catalog, len(c.Automations))
	for id, a := range c.Automations {
		out[id] = model.Automation{
			ID:               id,
			Name:             a.Name,
			PriceAtomicUnits: a.PriceAtomicUnits,
			Description:      a.Description,
		}
	}
	return out
}
