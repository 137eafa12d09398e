// Package wallet holds the agent's signing key and exposes its default
// address and transaction signer for the configured chain.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	xerrors "based-agent/internal/errors"
	"based-agent/internal/web3"
)

// Wallet signs transactions for one account on one chain.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chain   web3.Client
}

// New loads a wallet from a hex encoded private key, with or without the 0x
// prefix.
func New(hexKey string, chain web3.Client) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置代理钱包私钥")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "代理钱包私钥无效")
	}
	return FromKey(key, chain)
}

// FromKey wraps an already parsed key.
func FromKey(key *ecdsa.PrivateKey, chain web3.Client) (*Wallet, error) {
	if key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "代理钱包私钥为空")
	}
	if chain == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "代理钱包缺少链客户端")
	}
	return &Wallet{key: key, address: crypto.PubkeyToAddress(key.PublicKey), chain: chain}, nil
}

// Address returns the wallet account.
func (w *Wallet) Address() common.Address { return w.address }

// Chain returns the client the wallet transacts through.
func (w *Wallet) Chain() web3.Client { return w.chain }

// DefaultAddress returns the checksummed account address shown to operators.
func (w *Wallet) DefaultAddress(context.Context) (string, error) {
	if w == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "代理钱包未初始化")
	}
	return w.address.Hex(), nil
}

// Transactor builds a signer bound to the chain's ID.
func (w *Wallet) Transactor(ctx context.Context) (*bind.TransactOpts, error) {
	chainID, err := w.chain.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取链 ID 失败")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(w.key, chainID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "创建交易签名器失败")
	}
	opts.Context = ctx
	return opts, nil
}
