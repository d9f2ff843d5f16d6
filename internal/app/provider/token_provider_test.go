package provider

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio_tracker/internal/domain/entity"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func TestTokenCatalogLookups(t *testing.T) {
	dir := t.TempDir()
	catalog := `[{"address": "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", "symbol": "USDC", "name": "USD Coin", "decimals": 6}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ethereum.json"), []byte(catalog), 0o600))

	chains := []entity.ChainDescriptor{{ChainID: 1, Identifier: "ethereum"}}
	tokens := NewTokenCatalog(dir, chains, nopLogger{})

	byAddr, ok := tokens.TokenByAddress("ethereum", "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.True(t, ok)
	assert.Equal(t, "USDC", byAddr.Symbol)
	assert.Equal(t, uint8(6), byAddr.Decimals)

	bySymbol, ok := tokens.TokenBySymbol("ethereum", "usdc")
	require.True(t, ok)
	assert.Equal(t, byAddr, bySymbol)

	assert.Len(t, tokens.TokensForChain("ethereum"), 1)
	assert.Empty(t, tokens.TokensForChain("base"))

	_, ok = tokens.TokenByAddress("ethereum", "0x0000000000000000000000000000000000000009")
	assert.False(t, ok)
}

func TestTokenCatalogMissingDirectoryIsEmpty(t *testing.T) {
	chains := []entity.ChainDescriptor{{ChainID: 1, Identifier: "ethereum"}}
	tokens := NewTokenCatalog(filepath.Join(t.TempDir(), "missing"), chains, nopLogger{})

	assert.Empty(t, tokens.TokensForChain("ethereum"))
	_, ok := tokens.TokenBySymbol("ethereum", "usdc")
	assert.False(t, ok)
}
