package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "basedagent.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"web3":{"chain_config":"chain.yaml","artifacts":{"erc20":"/abs/erc20.json"}}}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.OpenAI.Model)
	assert.Equal(t, "gpt-4o-mini", cfg.Agent.Model)
	assert.Equal(t, "Based Agent", cfg.Agent.Name)
	assert.Equal(t, 10, cfg.Agent.MaxTurns)
	assert.Equal(t, "OPENAI_API_KEY", cfg.LLM.OpenAI.APIKeyEnv)
	assert.Equal(t, "BASED_AGENT_PRIVATE_KEY", cfg.Web3.PrivateKeyEnv)
	assert.Equal(t, filepath.Join(dir, "chain.yaml"), cfg.Web3.ChainConfig)
	assert.Equal(t, "/abs/erc20.json", cfg.Web3.Artifacts.ERC20)
	assert.Equal(t, 120*time.Second, cfg.Web3.ReceiptTimeout())
	assert.Zero(t, cfg.LLM.OpenAI.Timeout())
}

func TestMaxTurnsNegativeMeansUnlimited(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(writeConfig(t, dir, `{"agent":{"max_turns":-1}}`))
	require.NoError(t, err)
	assert.Equal(t, -1, cfg.Agent.MaxTurns)

	cfg, err = Load(writeConfig(t, dir, `{"agent":{"max_turns":0}}`))
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Agent.MaxTurns)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("BASED_AGENT_ADDR", ":9090")
	t.Setenv("BASED_AGENT_RPC_URL", "https://sepolia.base.org")
	t.Setenv("OPENAI_MODEL", "gpt-4o")

	path := writeConfig(t, t.TempDir(), `{"server":{"address":":7070"},"web3":{"rpc_url":"http://localhost:8545"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "https://sepolia.base.org", cfg.Web3.RPCURL)
	assert.Equal(t, "gpt-4o", cfg.Agent.Model)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := writeConfig(t, t.TempDir(), `{not json`)
	_, err = Load(path)
	require.Error(t, err)
}

func TestSecretsResolveFromEnvironment(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", " sk-test ")
	t.Setenv("TEST_WALLET_KEY", "abcd")

	llm := OpenAIConfig{APIKeyEnv: "TEST_OPENAI_KEY"}
	assert.Equal(t, "sk-test", llm.ResolveAPIKey())

	llm.APIKey = "explicit"
	assert.Equal(t, "explicit", llm.ResolveAPIKey())

	web3 := Web3Config{PrivateKeyEnv: "TEST_WALLET_KEY"}
	assert.Equal(t, "abcd", web3.ResolvePrivateKey())
}

func TestValidate(t *testing.T) {
	t.Setenv("TEST_OPENAI_KEY", "sk-test")

	cfg := &Config{}
	cfg.finalize(t.TempDir())
	cfg.LLM.OpenAI.APIKeyEnv = "TEST_OPENAI_KEY"
	require.Error(t, cfg.Validate(), "rpc endpoint is required")

	cfg.Web3.RPCURL = "http://localhost:8545"
	require.NoError(t, cfg.Validate())

	cfg.LLM.Provider = "python_bridge"
	require.Error(t, cfg.Validate())
}

func TestResolveWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	t.Setenv(EnvConfigPath, "")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BASED_AGENT_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("BASED_AGENT_TEST_DOTENV") })

	cfg, err := Resolve()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "loaded", os.Getenv("BASED_AGENT_TEST_DOTENV"))
}
