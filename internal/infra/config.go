package infra

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/sheikh-saqib/giving-vault/internal/models"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv string `env:"APP_ENV,default=development"`
	Port   string `env:"PORT,default=8080"`

	// DatabaseURL selects the Postgres ledger store; empty keeps the ledger in memory.
	DatabaseURL string `env:"DATABASE_URL"`

	VaultAddress       string `env:"VAULT_ADDRESS,required"`
	BeneficiaryAddress string `env:"BENEFICIARY_ADDRESS,required"`
	AssetDecimals      int32  `env:"ASSET_DECIMALS,default=18"`

	// GatewayURL points at the custody service; empty uses the simulated gateway.
	GatewayURL     string        `env:"GATEWAY_URL"`
	GatewayToken   string        `env:"GATEWAY_TOKEN"`
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT,default=15s"`
	GatewayRPS     float64       `env:"GATEWAY_RPS,default=20"`

	KafkaBrokers     []string `env:"KAFKA_BROKERS"`
	KafkaTopicPrefix string   `env:"KAFKA_TOPIC_PREFIX,default=giving-"`

	HTTPReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	HTTPWriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT,default=60s"`
	HTTPIdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT,default=60s"`
	RateLimitPerSec  int           `env:"RATE_LIMIT_PER_SECOND,default=10"`
	RateLimitBurst   int           `env:"RATE_LIMIT_BURST,default=20"`
}

// LoadConfig decodes the environment and normalises the vault and
// beneficiary addresses.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	vault, err := models.ChecksumAddress(cfg.VaultAddress)
	if err != nil {
		return nil, fmt.Errorf("VAULT_ADDRESS: %w", err)
	}
	beneficiary, err := models.ChecksumAddress(cfg.BeneficiaryAddress)
	if err != nil {
		return nil, fmt.Errorf("BENEFICIARY_ADDRESS: %w", err)
	}
	if vault == beneficiary {
		return nil, fmt.Errorf("BENEFICIARY_ADDRESS must differ from VAULT_ADDRESS")
	}
	cfg.VaultAddress = vault
	cfg.BeneficiaryAddress = beneficiary

	if cfg.AssetDecimals < 0 || cfg.AssetDecimals > 36 {
		return nil, fmt.Errorf("ASSET_DECIMALS out of range: %d", cfg.AssetDecimals)
	}
	return &cfg, nil
}

func (c *Config) Simulated() bool {
	return c.GatewayURL == ""
}
