package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"STORAGE_BACKEND", "STORAGE_GATEWAY_BASE_URL", "STORAGE_API_KEY",
		"LIGHTHOUSE_GATEWAY", "LIGHTHOUSE_API_KEY",
		"CUSTODIAL_MNEMONIC", "BLOCKTO_MNEMONIC", "CUSTODIAL_SECRET_NAME",
		"SOLANA_NETWORK", "INCIDENT_STORE", "DATABASE_URL", "METADATA_GCS_BUCKET",
		"COLLECTION_NAME", "TOKEN_SYMBOL", "FINALITY_TIMEOUT", "RESOLVE_INTERVAL", "MINT_TIMEOUT",
		"FINALITY_POLL_INTERVAL", "FINALITY_MAX_INTERVAL", "RESOLVE_MAX_ATTEMPTS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_OriginalEnvNamesAreAliases(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIGHTHOUSE_GATEWAY", "https://gateway.lighthouse.storage/ipfs")
	t.Setenv("LIGHTHOUSE_API_KEY", "lh-key")
	t.Setenv("BLOCKTO_MNEMONIC", "legal winner thank year wave sausage worth useful legal winner thank yellow")
	t.Setenv("FINALITY_TIMEOUT", "30s")

	cfg := Load()
	assert.Equal(t, "https://gateway.lighthouse.storage/ipfs", cfg.StorageGatewayBase)
	assert.Equal(t, "lh-key", cfg.StorageAPIKey)
	assert.NotEmpty(t, cfg.CustodialMnemonic)
	assert.Equal(t, StorageLighthouse, cfg.StorageBackend)
	assert.Equal(t, "devnet", cfg.SolanaNetwork)
	assert.Equal(t, "Blockto", cfg.CollectionName)
	assert.Equal(t, 30*time.Second, cfg.FinalityTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NewNamesWin(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_GATEWAY_BASE_URL", "https://new")
	t.Setenv("LIGHTHOUSE_GATEWAY", "https://old")
	assert.Equal(t, "https://new", Load().StorageGatewayBase)
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "gcs")
	t.Setenv("INCIDENT_STORE", "postgres")
	t.Setenv("SOLANA_NETWORK", "moonnet")

	err := Load().Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	msg := err.Error()
	assert.Contains(t, msg, "METADATA_GCS_BUCKET")
	assert.Contains(t, msg, "CUSTODIAL_MNEMONIC")
	assert.Contains(t, msg, "DATABASE_URL")
	assert.Contains(t, msg, "moonnet")
}

func TestGetenvDuration_FallsBackOnGarbage(t *testing.T) {
	clearEnv(t)
	t.Setenv("RESOLVE_INTERVAL", "soon")
	assert.Equal(t, time.Second, Load().ResolveInterval)
}

func validEnv(t *testing.T) {
	t.Helper()
	clearEnv(t)
	t.Setenv("STORAGE_GATEWAY_BASE_URL", "https://gateway.lighthouse.storage/ipfs")
	t.Setenv("STORAGE_API_KEY", "lh-key")
	t.Setenv("CUSTODIAL_MNEMONIC", "legal winner thank year wave sausage worth useful legal winner thank yellow")
}

func TestValidate_PollingIntervals(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		want string
	}{
		"zero max interval": {
			env:  map[string]string{"FINALITY_MAX_INTERVAL": "0s"},
			want: "FINALITY_MAX_INTERVAL",
		},
		"max below poll": {
			env:  map[string]string{"FINALITY_POLL_INTERVAL": "2s", "FINALITY_MAX_INTERVAL": "1s"},
			want: "FINALITY_MAX_INTERVAL",
		},
		"zero resolve interval": {
			env:  map[string]string{"RESOLVE_INTERVAL": "0s"},
			want: "RESOLVE_INTERVAL",
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			validEnv(t)
			for k, v := range c.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestValidate_GatewayAndSymbolLimits(t *testing.T) {
	validEnv(t)
	require.NoError(t, Load().Validate())

	t.Setenv("STORAGE_GATEWAY_BASE_URL", "https://gw.example/"+strings.Repeat("p", 150))
	err := Load().Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "gateway base")

	validEnv(t)
	t.Setenv("TOKEN_SYMBOL", "TOOLONGSYMBOL")
	err = Load().Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "TOKEN_SYMBOL")
}
