package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/swarm"
	"based-agent/internal/wallet"
	"based-agent/internal/web3"
	"based-agent/pkg/logger"
)

const defaultReceiptTimeout = 2 * time.Minute

var (
	argsJSON = jsoniter.ConfigCompatibleWithStandardLibrary
	validate = validator.New(validator.WithRequiredStructEnabled())
)

// Toolkit 把代理钱包暴露为大模型可调用的工具。
type Toolkit struct {
	wallet         *wallet.Wallet
	chain          web3.Client
	chainDef       web3.ChainDefinition
	erc20          *Artifact
	erc721         *Artifact
	faucetURL      string
	httpClient     *http.Client
	receiptTimeout time.Duration
	log            *slog.Logger
	audit          *slog.Logger
}

// Option 定义可选的 Toolkit 配置。
type Option func(*Toolkit)

// WithERC20Artifact 设置 create_token 使用的合约产物。
func WithERC20Artifact(a *Artifact) Option {
	return func(t *Toolkit) { t.erc20 = a }
}

// WithERC721Artifact 设置 deploy_nft 使用的合约产物。
func WithERC721Artifact(a *Artifact) Option {
	return func(t *Toolkit) { t.erc721 = a }
}

// WithFaucet 配置测试网水龙头地址，client 为空时使用默认 HTTP 客户端。
func WithFaucet(url string, client *http.Client) Option {
	return func(t *Toolkit) {
		t.faucetURL = strings.TrimSpace(url)
		if client != nil {
			t.httpClient = client
		}
	}
}

// WithReceiptTimeout 设置等待交易回执的超时时间。
func WithReceiptTimeout(timeout time.Duration) Option {
	return func(t *Toolkit) {
		if timeout > 0 {
			t.receiptTimeout = timeout
		}
	}
}

// WithChainDefinition 提供链目录信息，用于生成区块浏览器链接。
func WithChainDefinition(def web3.ChainDefinition) Option {
	return func(t *Toolkit) { t.chainDef = def }
}

// NewToolkit 创建工具集。
func NewToolkit(w *wallet.Wallet, opts ...Option) *Toolkit {
	t := &Toolkit{
		wallet:         w,
		chain:          w.Chain(),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		receiptTimeout: defaultReceiptTimeout,
		log:            logger.Named("agent"),
		audit:          logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Functions 返回全部工具定义。
func (t *Toolkit) Functions() []swarm.Function {
	return []swarm.Function{
		{
			Name:        "get_balance",
			Description: "Get the agent wallet balance of an asset. Use asset_id \"eth\" for native ETH or an ERC-20 contract address.",
			Parameters:  schema(map[string]any{"asset_id": stringProp("\"eth\" or an ERC-20 contract address")}, "asset_id"),
			Call:        adapt(t.getBalance),
		},
		{
			Name:        "transfer_asset",
			Description: "Transfer an amount of ETH or an ERC-20 token from the agent wallet to a destination address.",
			Parameters: schema(map[string]any{
				"amount":              stringProp("Decimal amount to send, e.g. \"0.01\""),
				"asset_id":            stringProp("\"eth\" or an ERC-20 contract address"),
				"destination_address": stringProp("Recipient 0x address"),
			}, "amount", "asset_id", "destination_address"),
			Call: adapt(t.transferAsset),
		},
		{
			Name:        "create_token",
			Description: "Deploy a new ERC-20 token. The whole initial supply is minted to the agent wallet.",
			Parameters: schema(map[string]any{
				"name":           stringProp("Token name"),
				"symbol":         stringProp("Token symbol"),
				"initial_supply": stringProp("Initial supply in whole tokens"),
			}, "name", "symbol", "initial_supply"),
			Call: adapt(t.createToken),
		},
		{
			Name:        "deploy_nft",
			Description: "Deploy a new ERC-721 NFT collection.",
			Parameters: schema(map[string]any{
				"name":     stringProp("Collection name"),
				"symbol":   stringProp("Collection symbol"),
				"base_uri": stringProp("Base URI for token metadata"),
			}, "name", "symbol", "base_uri"),
			Call: adapt(t.deployNFT),
		},
		{
			Name:        "mint_nft",
			Description: "Mint one NFT from an ERC-721 contract to a recipient address.",
			Parameters: schema(map[string]any{
				"contract_address": stringProp("NFT contract 0x address"),
				"mint_to":          stringProp("Recipient 0x address"),
			}, "contract_address", "mint_to"),
			Call: adapt(t.mintNFT),
		},
		{
			Name:        "request_eth_from_faucet",
			Description: "Request test ETH for the agent wallet from the testnet faucet.",
			Parameters:  schema(map[string]any{}),
			Call:        adapt(t.requestFaucet),
		},
		{
			Name:        "get_chain_info",
			Description: "Describe the network the agent wallet is connected to: name, chain ID and latest block.",
			Parameters:  schema(map[string]any{}),
			Call:        adapt(t.chainInfo),
		},
	}
}

// adapt 把强类型工具函数转换为 swarm.Function 的调用签名，参数先解码再校验。
func adapt[A any](fn func(context.Context, A) (string, error)) func(context.Context, map[string]any, swarm.ContextVariables) (swarm.Result, error) {
	return func(ctx context.Context, raw map[string]any, _ swarm.ContextVariables) (swarm.Result, error) {
		var args A
		encoded, err := argsJSON.Marshal(raw)
		if err != nil {
			return swarm.Result{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "工具参数编码失败")
		}
		if err := argsJSON.Unmarshal(encoded, &args); err != nil {
			return swarm.Result{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "工具参数格式错误")
		}
		if err := validate.Struct(args); err != nil {
			return swarm.Result{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "工具参数校验失败")
		}
		value, err := fn(ctx, args)
		if err != nil {
			return swarm.Result{}, err
		}
		return swarm.Result{Value: value}, nil
	}
}

// submit 发送一笔交易并等待上链，提交与确认都会写入审计日志。
func (t *Toolkit) submit(ctx context.Context, tool string, send func(*bind.TransactOpts) (*types.Transaction, error)) (*types.Receipt, error) {
	opts, err := t.wallet.Transactor(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := send(opts)
	if err != nil {
		t.audit.Warn("transaction rejected", "tool", tool, "from", opts.From.Hex(), "error", err)
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "交易提交失败", xerrors.WithMetadata("tool", tool))
	}
	t.audit.Info("transaction submitted", "tool", tool, "from", opts.From.Hex(), "hash", tx.Hash().Hex(), "nonce", tx.Nonce())

	waitCtx, cancel := context.WithTimeout(ctx, t.receiptTimeout)
	defer cancel()
	receipt, err := t.chain.WaitMined(waitCtx, tx)
	if err != nil {
		t.audit.Warn("transaction not confirmed", "tool", tool, "hash", tx.Hash().Hex(), "error", err)
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, fmt.Sprintf("等待交易 %s 上链超时", tx.Hash().Hex()))
		}
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, fmt.Sprintf("交易 %s 未成功执行", tx.Hash().Hex()))
	}
	t.audit.Info("transaction mined", "tool", tool, "hash", tx.Hash().Hex(), "block", receipt.BlockNumber.String(), "gas_used", receipt.GasUsed)
	return receipt, nil
}

// txSummary 返回交易哈希以及可选的浏览器链接。
func (t *Toolkit) txSummary(receipt *types.Receipt) string {
	hash := receipt.TxHash.Hex()
	if link := t.chainDef.TxURL(hash); link != "" {
		return fmt.Sprintf("Transaction hash: %s (%s)", hash, link)
	}
	return "Transaction hash: " + hash
}

func schema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
