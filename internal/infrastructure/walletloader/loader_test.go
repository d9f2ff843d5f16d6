package walletloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeWalletFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wallets.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestGetWalletsParsesFile(t *testing.T) {
	path := writeWalletFile(t, `# tracked wallets
0x1111111111111111111111111111111111111111
0x2222222222222222222222222222222222222222 cold storage

not-an-address
0x3333
0x4444444444444444444444444444444444444444
`)

	loader := NewWalletFileLoader(path, nil)
	wallets, err := loader.GetWallets()
	require.NoError(t, err)

	require.Len(t, wallets, 3)
	assert.Equal(t, "0x1111111111111111111111111111111111111111", wallets[0].Address)
	assert.Empty(t, wallets[0].Label)
	assert.Equal(t, "0x2222222222222222222222222222222222222222", wallets[1].Address)
	assert.Equal(t, "cold storage", wallets[1].Label)
	assert.Equal(t, "0x4444444444444444444444444444444444444444", wallets[2].Address)
}

func TestGetWalletsMissingFile(t *testing.T) {
	loader := NewWalletFileLoader(filepath.Join(t.TempDir(), "missing.txt"), nil)
	_, err := loader.GetWallets()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open wallet file")
}

func TestGetWalletsEmptyFile(t *testing.T) {
	path := writeWalletFile(t, "\n# nothing here\n")
	loader := NewWalletFileLoader(path, nil)
	wallets, err := loader.GetWallets()
	require.NoError(t, err)
	assert.Empty(t, wallets)
}
