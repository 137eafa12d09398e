package web3

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSnapshot represents summarized network metadata for UI/reporting.
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Notes       string `json:"notes,omitempty"`
}

// DeploymentResult captures the outcome of a contract deployment request.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}

// Client is the chain surface the wallet toolkit depends on.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SendValue(ctx context.Context, auth *bind.TransactOpts, to common.Address, amount *big.Int) (*types.Transaction, error)
	DeployContract(ctx context.Context, auth *bind.TransactOpts, abiJSON string, bytecode []byte, params ...any) (DeploymentResult, error)
	Transact(ctx context.Context, auth *bind.TransactOpts, contract common.Address, abiJSON, method string, params ...any) (*types.Transaction, error)
	Call(ctx context.Context, contract common.Address, abiJSON, method string, params ...any) ([]any, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
	Close()
}
