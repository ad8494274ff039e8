package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mintdom "blockto/internal/domain/mint"
	appcfg "blockto/internal/infra/config"
)

func testConfig() *appcfg.Config {
	return &appcfg.Config{
		StorageBackend:       appcfg.StorageLighthouse,
		StorageGatewayBase:   "https://gateway.lighthouse.storage/ipfs",
		StorageAPIKey:        "lh-key",
		LighthouseAPIURL:     "http://127.0.0.1:1",
		CustodialMnemonic:    "legal winner thank year wave sausage worth useful legal winner thank yellow",
		SolanaNetwork:        "localnet",
		CollectionName:       "Blockto",
		TokenSymbol:          "BLKTO",
		FinalityTimeout:      time.Second,
		FinalityPollInterval: 10 * time.Millisecond,
		FinalityMaxInterval:  50 * time.Millisecond,
		ResolveMaxAttempts:   1,
		ResolveInterval:      time.Millisecond,
		MintTimeout:          time.Second,
		IncidentStore:        appcfg.IncidentStoreNone,
		MintRateLimitRPS:     1,
		MintRateLimitBurst:   1,
		AllowedOrigin:        "*",
		DevWalletHeader:      true,
	}
}

func TestNewContainerWithConfig_Wires(t *testing.T) {
	c, err := NewContainerWithConfig(context.Background(), testConfig())
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Signer)
	assert.True(t, mintdom.IsValidAddress(c.Signer.Address()))
	assert.NotNil(t, c.MintUC)
	assert.Same(t, c.Metrics, c.Submitter.Observer)

	deps := c.RouterDeps()
	assert.NotNil(t, deps.MintUC)
	assert.NotNil(t, deps.MintLimiter)
	assert.Equal(t, devWalletHeader, deps.Auth.DevHeader)
	assert.Nil(t, deps.Auth.Verifier)
}

func TestNewContainerWithConfig_BadMnemonicStillServes(t *testing.T) {
	cfg := testConfig()
	cfg.CustodialMnemonic = "not a mnemonic"

	c, err := NewContainerWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()
	assert.Nil(t, c.Signer)

	_, derr := unavailableSigner{err: assert.AnError}.DeriveAccount(context.Background())
	assert.ErrorIs(t, derr, mintdom.ErrKeyDerivation)
}

func TestNewContainerWithConfig_UnknownStorage(t *testing.T) {
	cfg := testConfig()
	cfg.StorageBackend = "ftp"
	_, err := NewContainerWithConfig(context.Background(), cfg)
	assert.ErrorIs(t, err, appcfg.ErrInvalidConfig)
}

func TestRouterDeps_NoLimiterWhenDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MintRateLimitRPS = 0
	c, err := NewContainerWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	deps := c.RouterDeps()
	assert.Nil(t, deps.MintLimiter)

	rec := httptest.NewRecorder()
	deps.Metrics.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
