package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"based-agent/internal/web3"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/backends"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

const defaultPollInterval = 2 * time.Second

// baseFeeMultiplier 与 bind 保持一致：feeCap = tip + 2 * baseFee。
const baseFeeMultiplier = 2

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name   string
	RPCURL string
	Notes  string
	// PollInterval is the receipt polling period; zero uses two seconds.
	PollInterval time.Duration
}

// chainBackend is satisfied by both ethclient.Client and the simulated backend.
type chainBackend interface {
	bind.ContractBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
}

// committer is implemented by the simulated backend, which only mines on demand.
type committer interface {
	Commit() common.Hash
}

// Client implements the web3.Client interface for EVM compatible chains.
type Client struct {
	name      string
	notes     string
	rpcClient *gethrpc.Client
	backend   chainBackend
	poll      time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	return &Client{
		name:      cfg.Name,
		notes:     cfg.Notes,
		rpcClient: rpcClient,
		backend:   ethclient.NewClient(rpcClient),
		poll:      poll,
	}, nil
}

// NewSimulatedClient wraps a go-ethereum simulated backend for testing purposes.
func NewSimulatedClient(name string, chainID *big.Int, backend *backends.SimulatedBackend) *Client {
	return &Client{
		name:    name,
		backend: backend,
		chainID: new(big.Int).Set(chainID),
		notes:   "simulated backend",
		poll:    20 * time.Millisecond,
	}
}

// Name returns the chain name the client was registered under.
func (c *Client) Name() string { return c.name }

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID returns the network identifier, caching it after the first lookup.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取链 ID 失败: %w", err)
	}
	c.mu.Lock()
	c.chainID = id
	c.mu.Unlock()
	return new(big.Int).Set(id), nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("获取最新区块高度失败: %w", err)
	}
	return web3.ChainSnapshot{
		Name:        c.name,
		ChainID:     toHexBig(chainID),
		BlockNumber: fmt.Sprintf("0x%x", blockNumber),
		Notes:       c.notes,
	}, nil
}

// BalanceAt returns the latest wei balance of account.
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	balance, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("查询余额失败: %w", err)
	}
	return balance, nil
}

// SendValue transfers amount wei from the signer to the recipient, which may
// be an account without code.
func (c *Client) SendValue(ctx context.Context, auth *bind.TransactOpts, to common.Address, amount *big.Int) (*coretypes.Transaction, error) {
	if auth == nil || auth.Signer == nil {
		return nil, errors.New("未提供交易签名器")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("转账金额必须大于零")
	}
	value := new(big.Int).Set(amount)

	nonce, err := c.nonce(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("获取 nonce 失败: %w", err)
	}
	gas := auth.GasLimit
	if gas == 0 {
		gas, err = c.backend.EstimateGas(ctx, gethcore.CallMsg{From: auth.From, To: &to, Value: value})
		if err != nil {
			return nil, fmt.Errorf("估算 gas 失败: %w", err)
		}
	}

	head, err := c.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("读取最新区块失败: %w", err)
	}

	var tx *coretypes.Transaction
	if head.BaseFee != nil {
		tip, err := c.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取小费失败: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(baseFeeMultiplier)))
		tx = coretypes.NewTx(&coretypes.DynamicFeeTx{
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
		})
	} else {
		price, err := c.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("获取 gas 价格失败: %w", err)
		}
		tx = coretypes.NewTx(&coretypes.LegacyTx{
			Nonce:    nonce,
			GasPrice: price,
			Gas:      gas,
			To:       &to,
			Value:    value,
		})
	}

	signed, err := auth.Signer(auth.From, tx)
	if err != nil {
		return nil, fmt.Errorf("签名转账失败: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送转账失败: %w", err)
	}
	c.commit()
	return signed, nil
}

func (c *Client) nonce(ctx context.Context, auth *bind.TransactOpts) (uint64, error) {
	if auth.Nonce != nil {
		return auth.Nonce.Uint64(), nil
	}
	return c.backend.PendingNonceAt(ctx, auth.From)
}

// DeployContract sends the contract creation transaction using the provided
// transact opts and bytecode.
func (c *Client) DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (web3.DeploymentResult, error) {
	if auth == nil {
		return web3.DeploymentResult{}, errors.New("未提供交易签名器")
	}
	if len(bytecode) == 0 {
		return web3.DeploymentResult{}, errors.New("合约字节码不能为空")
	}

	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("解析 ABI 失败: %w", err)
	}

	address, tx, _, err := bind.DeployContract(withContext(auth, ctx), parsedABI, bytecode, c.backend, params...)
	if err != nil {
		return web3.DeploymentResult{}, fmt.Errorf("部署合约失败: %w", err)
	}
	c.commit()

	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// Transact invokes a state-changing contract method.
func (c *Client) Transact(ctx context.Context, auth *bind.TransactOpts, contract common.Address, abiJSON, method string, params ...any) (*coretypes.Transaction, error) {
	if auth == nil {
		return nil, errors.New("未提供交易签名器")
	}
	bound, err := c.bind(contract, abiJSON)
	if err != nil {
		return nil, err
	}
	tx, err := bound.Transact(withContext(auth, ctx), method, params...)
	if err != nil {
		return nil, fmt.Errorf("调用合约方法 %s 失败: %w", method, err)
	}
	c.commit()
	return tx, nil
}

// Call executes a read-only contract method and returns its decoded outputs.
func (c *Client) Call(ctx context.Context, contract common.Address, abiJSON, method string, params ...any) ([]any, error) {
	bound, err := c.bind(contract, abiJSON)
	if err != nil {
		return nil, err
	}
	var out []any
	if err := bound.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, fmt.Errorf("读取合约方法 %s 失败: %w", method, err)
	}
	return out, nil
}

// WaitMined polls until the transaction has a receipt or ctx ends. A
// reverted transaction returns its receipt together with an error.
func (c *Client) WaitMined(ctx context.Context, tx *coretypes.Transaction) (*coretypes.Receipt, error) {
	if tx == nil {
		return nil, errors.New("交易不能为空")
	}

	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	for {
		receipt, err := c.backend.TransactionReceipt(ctx, tx.Hash())
		if err == nil && receipt != nil {
			if receipt.Status != coretypes.ReceiptStatusSuccessful {
				return receipt, fmt.Errorf("交易 %s 执行失败", tx.Hash().Hex())
			}
			return receipt, nil
		}
		if err != nil && !errors.Is(err, gethcore.NotFound) {
			return nil, fmt.Errorf("查询交易回执失败: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			c.commit()
		}
	}
}

func (c *Client) bind(contract common.Address, abiJSON string) (*bind.BoundContract, error) {
	if c == nil || c.backend == nil {
		return nil, errors.New("未初始化的以太坊客户端")
	}
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("解析 ABI 失败: %w", err)
	}
	return bind.NewBoundContract(contract, parsedABI, c.backend, c.backend, c.backend), nil
}

func (c *Client) commit() {
	if sim, ok := c.backend.(committer); ok {
		sim.Commit()
	}
}

// withContext returns a shallow copy of auth bound to ctx.
func withContext(auth *bind.TransactOpts, ctx context.Context) *bind.TransactOpts {
	opts := *auth
	opts.Context = ctx
	return &opts
}

func toHexBig(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}
