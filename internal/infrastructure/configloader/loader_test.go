package configloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExpandsEndpointEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_RPC_KEY", "secret-key")

	path := writeConfig(t, `
chains:
  - name: ethereum
    chainID: 1
    endpoints:
      - https://eth.example.com/v3/${TEST_RPC_KEY}
      - https://eth-fallback.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Chains, 1)
	require.Equal(t, "https://eth.example.com/v3/secret-key", cfg.Chains[0].Endpoints[0])
	require.Equal(t, config.DefaultMulticallAddress, cfg.Chains[0].Multicall)
	require.Equal(t, uint64(1_000_000), cfg.Chains[0].LookbackBlocks)
	require.Equal(t, 4, cfg.Aggregator.MaxConcurrentChains)
	require.Equal(t, "https://coins.llama.fi", cfg.DefiLlama.BaseURL)
}

func TestLoadRejectsConfigWithoutChains(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8080
`)

	_, err := Load(path)
	require.ErrorIs(t, err, entity.ErrNoChainsConfigured)
}

func TestValidateRejectsDuplicates(t *testing.T) {
	cfg := &config.Config{
		Chains: []config.ChainNode{
			{Name: "ethereum", Endpoints: []string{"https://a"}},
			{Name: "ethereum", Endpoints: []string{"https://b"}},
		},
	}
	require.ErrorContains(t, Validate(cfg), "duplicate chain name")

	cfg = &config.Config{
		Chains: []config.ChainNode{{Name: "ethereum", Endpoints: []string{"https://a"}}},
		Protocols: []config.ProtocolConfig{
			{Name: "aave_v3"},
			{Name: "aave_v3"},
		},
	}
	require.ErrorContains(t, Validate(cfg), "duplicate protocol name")
}

func TestChainLookbackOverrideWins(t *testing.T) {
	path := writeConfig(t, `
scanner:
  lookbackBlocks: 500000
chains:
  - name: base
    chainID: 8453
    lookbackBlocks: 250000
    endpoints:
      - https://base.example.com
  - name: ethereum
    chainID: 1
    endpoints:
      - https://eth.example.com
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(250_000), cfg.Chains[0].LookbackBlocks)
	require.Equal(t, uint64(500_000), cfg.Chains[1].LookbackBlocks)
}
