package infra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("VAULT_ADDRESS", "0xfb6916095ca1df60bb79ce92ce3ea74c37c5d359")
	t.Setenv("BENEFICIARY_ADDRESS", "0xdbf03b407c01e7cd3cbea99509d93f8dddc8c6fb")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int32(18), cfg.AssetDecimals)
	assert.Equal(t, 15*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, "giving-", cfg.KafkaTopicPrefix)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.True(t, cfg.Simulated())

	// addresses are normalised to their checksummed form
	assert.Equal(t, "0xfB6916095ca1df60bB79Ce92cE3Ea74c37c5d359", cfg.VaultAddress)
	assert.Equal(t, "0xdbF03B407c01E7cD3CBea99509d93f8DDDC8C6FB", cfg.BeneficiaryAddress)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("GATEWAY_URL", "https://custody.internal")
	t.Setenv("ASSET_DECIMALS", "6")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092;kafka-2:9092")
	t.Setenv("RATE_LIMIT_PER_SECOND", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.False(t, cfg.Simulated())
	assert.Equal(t, int32(6), cfg.AssetDecimals)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 3, cfg.RateLimitPerSec)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad vault address", map[string]string{"VAULT_ADDRESS": "vault"}},
		{"bad beneficiary address", map[string]string{"BENEFICIARY_ADDRESS": "0x12"}},
		{"beneficiary is vault", map[string]string{"BENEFICIARY_ADDRESS": "0xFB6916095CA1DF60BB79CE92CE3EA74C37C5D359"}},
		{"decimals out of range", map[string]string{"ASSET_DECIMALS": "40"}},
		{"unparseable timeout", map[string]string{"GATEWAY_TIMEOUT": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestNewDBWithoutURL(t *testing.T) {
	db, err := NewDB(context.Background(), &Config{})
	require.NoError(t, err)
	assert.Nil(t, db)
}
