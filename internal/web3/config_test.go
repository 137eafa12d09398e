package web3

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadChainDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chains:
  base-sepolia:
    type: evm
    rpc_url: https://sepolia.base.org
    explorer_url: https://sepolia.basescan.org/
    description: Base testnet
`), 0o600))

	defs, err := LoadChainDefinitions(path)
	require.NoError(t, err)
	require.Contains(t, defs.Chains, "base-sepolia")

	chain := defs.Chains["base-sepolia"]
	assert.Equal(t, "evm", chain.Type)
	assert.Equal(t, "https://sepolia.basescan.org/tx/0x01", chain.TxURL("0x01"))
}

func TestLoadChainDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadChainDefinitions("  ")
	require.NoError(t, err)
	assert.Empty(t, defs.Chains)
}

func TestParseChainDefinitionsRequiresRPC(t *testing.T) {
	_, err := ParseChainDefinitions([]byte("chains:\n  broken:\n    type: evm\n"))
	require.Error(t, err)
}

func TestTxURLWithoutExplorer(t *testing.T) {
	assert.Empty(t, ChainDefinition{}.TxURL("0x01"))
}
