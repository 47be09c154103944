package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.HTTPPort)
	require.Empty(t, cfg.KafkaBrokers)
	require.Equal(t, "transfer-events", cfg.KafkaTopic)
	require.True(t, cfg.RunMigrations)
	require.Equal(t, time.Second, cfg.SettlementPollInterval)
	require.Equal(t, int32(50), cfg.SettlementPollSize)
	require.Equal(t, 30*time.Second, cfg.SettlementLease)
	require.Equal(t, int32(10), cfg.MaxSettlementAttempts)
	require.Equal(t, 5*time.Minute, cfg.RebalanceInterval)
	require.Equal(t, 30*time.Minute, cfg.RebalanceLookback)
	require.Equal(t, "0.2", cfg.RebalanceThreshold.String())
	require.Equal(t, "1000", cfg.RebalanceMinAmount.String())
	require.Equal(t, "0.3", cfg.RebalanceSafetyBuffer.String())
	require.Equal(t, time.Hour, cfg.ReconciliationInterval)
	require.Equal(t, uint32(5), cfg.ProviderBreakerFailures)
	require.Equal(t, 50, cfg.PublicRateLimitRPS)
	require.Empty(t, cfg.MarginRates)
}

func TestLoadReadsPrefixedEnv(t *testing.T) {
	t.Setenv("LIQUIDITY_SETTLEMENT_POLL_SIZE", "7")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("MARGIN_RATES", "usd=0.01,EUR=0.015")

	cfg, err := load(viper.New())
	require.NoError(t, err)
	require.Equal(t, int32(7), cfg.SettlementPollSize)
	require.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, "0.01", cfg.MarginRates["USD"].String())
	require.Equal(t, "0.015", cfg.MarginRates["EUR"].String())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{name: "negative_threshold", key: "REBALANCE_THRESHOLD", value: "-0.1"},
		{name: "zero_interval", key: "SETTLEMENT_POLL_INTERVAL", value: "0s"},
		{name: "bad_duration", key: "RATE_CACHE_TTL", value: "soon"},
		{name: "zero_poll_size", key: "SETTLEMENT_POLL_SIZE", value: "0"},
		{name: "bad_margin", key: "MARGIN_RATES", value: "USD"},
		{name: "margin_too_large", key: "MARGIN_RATES", value: "USD=1.5"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := load(viper.New())
			require.Error(t, err)
		})
	}
}
