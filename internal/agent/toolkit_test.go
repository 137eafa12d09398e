package agent

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/swarm"
	"based-agent/internal/wallet"
	"based-agent/internal/web3"
	"based-agent/internal/web3/ethereum"
)

// storageBin deploys a contract that accepts any call: calls with arguments
// store their first word and succeed, calls without arguments return it.
const storageBin = "0x601a600c600039601a6000f33660041060125760005460005260206000f35b60043560005500"

const tokenArtifact = `{
	"abi": [
		{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"supply","type":"uint256"}],"stateMutability":"nonpayable"}
	],
	"bytecode": "` + storageBin + `"
}`

const nftArtifact = `{
	"abi": [
		{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"},{"name":"baseURI","type":"string"}],"stateMutability":"nonpayable"},
		{"type":"function","name":"mint","inputs":[{"name":"to","type":"address"}],"outputs":[],"stateMutability":"nonpayable"}
	],
	"bytecode": {"object": "` + storageBin + `"}
}`

var oneEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

func newToolkit(t *testing.T, opts ...Option) (*Toolkit, web3.Client) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	alloc := types.GenesisAlloc{
		crypto.PubkeyToAddress(key.PublicKey): {Balance: new(big.Int).Mul(oneEther, big.NewInt(100))},
	}
	backend := backends.NewSimulatedBackend(alloc, 30_000_000)
	t.Cleanup(func() { _ = backend.Close() })

	chain := ethereum.NewSimulatedClient("base-sepolia", big.NewInt(1337), backend)
	w, err := wallet.FromKey(key, chain)
	require.NoError(t, err)

	opts = append([]Option{WithReceiptTimeout(10 * time.Second)}, opts...)
	return NewToolkit(w, opts...), chain
}

func invoke(t *testing.T, tk *Toolkit, name string, args map[string]any) (string, error) {
	t.Helper()
	for _, fn := range tk.Functions() {
		if fn.Name == name {
			result, err := fn.Call(context.Background(), args, swarm.ContextVariables{})
			return result.Value, err
		}
	}
	t.Fatalf("tool %s not registered", name)
	return "", nil
}

func TestFunctionsDeclareSchemas(t *testing.T) {
	tk, _ := newToolkit(t)
	names := make([]string, 0)
	for _, fn := range tk.Functions() {
		names = append(names, fn.Name)
		assert.Equal(t, "object", fn.Parameters["type"], fn.Name)
		assert.NotEmpty(t, fn.Description, fn.Name)
		assert.NotNil(t, fn.Call, fn.Name)
	}
	assert.ElementsMatch(t, []string{
		"get_balance", "transfer_asset", "create_token", "deploy_nft",
		"mint_nft", "request_eth_from_faucet", "get_chain_info",
	}, names)
}

func TestGetBalanceETH(t *testing.T) {
	tk, _ := newToolkit(t)
	out, err := invoke(t, tk, "get_balance", map[string]any{"asset_id": "ETH"})
	require.NoError(t, err)
	assert.Equal(t, "Balance of eth: 100", out)
}

func TestGetBalanceRejectsUnknownAsset(t *testing.T) {
	tk, _ := newToolkit(t)
	_, err := invoke(t, tk, "get_balance", map[string]any{"asset_id": "usdc"})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = invoke(t, tk, "get_balance", map[string]any{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestTransferETH(t *testing.T) {
	tk, chain := newToolkit(t, WithChainDefinition(web3.ChainDefinition{ExplorerURL: "https://explorer.test"}))
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	out, err := invoke(t, tk, "transfer_asset", map[string]any{
		"amount":              0.5,
		"asset_id":            "eth",
		"destination_address": recipient.Hex(),
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Transferred 0.5 eth to "+recipient.Hex())
	assert.Contains(t, out, "https://explorer.test/tx/0x")

	balance, err := chain.BalanceAt(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", balance.String())
}

func TestToolArgumentsKeepExactAmounts(t *testing.T) {
	cases := map[string]string{
		`{"amount":123456789012345678901,"asset_id":"eth","destination_address":"0x00000000000000000000000000000000000000b0"}`: "123456789012345678901",
		`{"amount":0.0000001,"asset_id":"eth","destination_address":"0x00000000000000000000000000000000000000b0"}`:             "0.0000001",
	}
	for raw, want := range cases {
		args, err := swarm.DecodeArguments(raw)
		require.NoError(t, err)

		var got transferArgs
		call := adapt(func(_ context.Context, a transferArgs) (string, error) {
			got = a
			return "ok", nil
		})
		_, err = call(context.Background(), args, nil)
		require.NoError(t, err)
		assert.Equal(t, want, string(got.Amount))

		_, err = parseUnits(string(got.Amount), ethDecimals)
		assert.NoError(t, err, raw)
	}
}

func TestTransferSmallETHAmount(t *testing.T) {
	tk, chain := newToolkit(t)
	recipient := common.HexToAddress("0x00000000000000000000000000000000000000b1")

	args, err := swarm.DecodeArguments(`{"amount":0.0000001,"asset_id":"eth","destination_address":"` + recipient.Hex() + `"}`)
	require.NoError(t, err)
	out, err := invoke(t, tk, "transfer_asset", args)
	require.NoError(t, err)
	assert.Contains(t, out, "Transferred 0.0000001 eth to "+recipient.Hex())

	balance, err := chain.BalanceAt(context.Background(), recipient)
	require.NoError(t, err)
	assert.Equal(t, "100000000000", balance.String())
}

func TestTransferValidatesArguments(t *testing.T) {
	tk, _ := newToolkit(t)

	_, err := invoke(t, tk, "transfer_asset", map[string]any{
		"amount": "1", "asset_id": "eth", "destination_address": "not-an-address",
	})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	_, err = invoke(t, tk, "transfer_asset", map[string]any{
		"amount": "-3", "asset_id": "eth", "destination_address": "0x00000000000000000000000000000000000000b0",
	})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}

func TestCreateTokenAndDeployNFT(t *testing.T) {
	token, err := ParseArtifact([]byte(tokenArtifact))
	require.NoError(t, err)
	nft, err := ParseArtifact([]byte(nftArtifact))
	require.NoError(t, err)

	tk, _ := newToolkit(t, WithERC20Artifact(token), WithERC721Artifact(nft))

	out, err := invoke(t, tk, "create_token", map[string]any{"name": "Based", "symbol": "BSD", "initial_supply": 1000})
	require.NoError(t, err)
	assert.Contains(t, out, "Created token Based (BSD) with initial supply of 1000 at address 0x")

	out, err = invoke(t, tk, "deploy_nft", map[string]any{"name": "Punks", "symbol": "PNK", "base_uri": "ipfs://meta/"})
	require.NoError(t, err)
	assert.Contains(t, out, "Deployed NFT contract Punks (PNK)")
}

func TestDeployRejectsConstructorMismatch(t *testing.T) {
	twoArgs, err := ParseArtifact([]byte(`{
		"abi": [{"type":"constructor","inputs":[{"name":"name","type":"string"},{"name":"symbol","type":"string"}],"stateMutability":"nonpayable"}],
		"bytecode": "` + storageBin + `"
	}`))
	require.NoError(t, err)

	tk, _ := newToolkit(t, WithERC20Artifact(twoArgs), WithERC721Artifact(twoArgs))

	_, err = invoke(t, tk, "create_token", map[string]any{"name": "Based", "symbol": "BSD", "initial_supply": "1000"})
	require.Error(t, err)
	assert.Equal(t, xerrors.CodeToolFailure, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "需要 2 个参数")

	_, err = invoke(t, tk, "deploy_nft", map[string]any{"name": "Punks", "symbol": "PNK", "base_uri": "ipfs://meta/"})
	assert.Equal(t, xerrors.CodeToolFailure, xerrors.CodeOf(err))
}

func TestDeployWithoutArtifact(t *testing.T) {
	tk, _ := newToolkit(t)
	_, err := invoke(t, tk, "create_token", map[string]any{"name": "A", "symbol": "A", "initial_supply": "1"})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
	_, err = invoke(t, tk, "deploy_nft", map[string]any{"name": "A", "symbol": "A", "base_uri": "x"})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))
}

func TestMintNFT(t *testing.T) {
	tk, chain := newToolkit(t)
	opts, err := tk.wallet.Transactor(context.Background())
	require.NoError(t, err)
	deployed, err := chain.DeployContract(context.Background(), opts, "[]", common.FromHex(storageBin))
	require.NoError(t, err)

	out, err := invoke(t, tk, "mint_nft", map[string]any{
		"contract_address": deployed.ContractAddress.Hex(),
		"mint_to":          "0x00000000000000000000000000000000000000c0",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Minted NFT from contract "+deployed.ContractAddress.Hex())
}

func TestGetChainInfo(t *testing.T) {
	tk, _ := newToolkit(t)
	out, err := invoke(t, tk, "get_chain_info", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Connected to base-sepolia (chain ID 1337)")
	assert.Contains(t, out, tk.wallet.Address().Hex())
}

func TestRequestFaucet(t *testing.T) {
	var got faucetRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"transaction_hash":"0xfeed"}`))
	}))
	defer srv.Close()

	tk, _ := newToolkit(t, WithFaucet(srv.URL, srv.Client()))
	out, err := invoke(t, tk, "request_eth_from_faucet", map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Requested ETH from faucet. Transaction hash: 0xfeed", out)
	assert.Equal(t, tk.wallet.Address().Hex(), got.Address)
	assert.Equal(t, "base-sepolia", got.Network)
}

func TestRequestFaucetFailures(t *testing.T) {
	tk, _ := newToolkit(t)
	_, err := invoke(t, tk, "request_eth_from_faucet", nil)
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tk, _ = newToolkit(t, WithFaucet(srv.URL, nil))
	_, err = invoke(t, tk, "request_eth_from_faucet", nil)
	assert.Equal(t, xerrors.CodeToolFailure, xerrors.CodeOf(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestNewAgentDefaults(t *testing.T) {
	tk, _ := newToolkit(t)
	ag := New(Config{Model: "gpt-4o-mini"}, tk)
	assert.Equal(t, "Based Agent", ag.Name)
	assert.Equal(t, DefaultInstructions, ag.Instructions)
	assert.Len(t, ag.Functions, 7)

	custom := New(Config{Name: "Ops", Instructions: "short"}, nil)
	assert.Equal(t, "Ops", custom.Name)
	assert.Empty(t, custom.Functions)
}
