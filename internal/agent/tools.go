package agent

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	xerrors "based-agent/internal/errors"
)

const ethDecimals = 18

// decimal 接受 JSON 字符串或数字形式的金额。
type decimal string

func (d *decimal) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := argsJSON.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = decimal(s)
		return nil
	}
	*d = decimal(data)
	return nil
}

type balanceArgs struct {
	AssetID string `json:"asset_id" validate:"required"`
}

type transferArgs struct {
	Amount      decimal `json:"amount" validate:"required"`
	AssetID     string  `json:"asset_id" validate:"required"`
	Destination string  `json:"destination_address" validate:"required,eth_addr"`
}

type createTokenArgs struct {
	Name          string  `json:"name" validate:"required"`
	Symbol        string  `json:"symbol" validate:"required,max=11"`
	InitialSupply decimal `json:"initial_supply" validate:"required"`
}

type deployNFTArgs struct {
	Name    string `json:"name" validate:"required"`
	Symbol  string `json:"symbol" validate:"required,max=11"`
	BaseURI string `json:"base_uri" validate:"required"`
}

type mintArgs struct {
	ContractAddress string `json:"contract_address" validate:"required,eth_addr"`
	MintTo          string `json:"mint_to" validate:"required,eth_addr"`
}

type noArgs struct{}

func isETH(assetID string) bool {
	return strings.EqualFold(strings.TrimSpace(assetID), "eth")
}

func (t *Toolkit) getBalance(ctx context.Context, args balanceArgs) (string, error) {
	if isETH(args.AssetID) {
		balance, err := t.chain.BalanceAt(ctx, t.wallet.Address())
		if err != nil {
			return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 ETH 余额失败")
		}
		return fmt.Sprintf("Balance of eth: %s", formatUnits(balance, ethDecimals)), nil
	}

	token, err := tokenAddress(args.AssetID)
	if err != nil {
		return "", err
	}
	decimals, err := t.tokenDecimals(ctx, token)
	if err != nil {
		return "", err
	}
	out, err := t.chain.Call(ctx, token, erc20ABI, "balanceOf", t.wallet.Address())
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "查询代币余额失败")
	}
	balance, ok := firstBig(out)
	if !ok {
		return "", xerrors.New(xerrors.CodeChainFailure, "balanceOf 返回值无效")
	}
	return fmt.Sprintf("Balance of %s: %s", token.Hex(), formatUnits(balance, decimals)), nil
}

func (t *Toolkit) transferAsset(ctx context.Context, args transferArgs) (string, error) {
	to := common.HexToAddress(args.Destination)

	if isETH(args.AssetID) {
		amount, err := parseUnits(string(args.Amount), ethDecimals)
		if err != nil {
			return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "转账金额无效")
		}
		receipt, err := t.submit(ctx, "transfer_asset", func(opts *bind.TransactOpts) (*types.Transaction, error) {
			return t.chain.SendValue(ctx, opts, to, amount)
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Transferred %s eth to %s. %s", args.Amount, to.Hex(), t.txSummary(receipt)), nil
	}

	token, err := tokenAddress(args.AssetID)
	if err != nil {
		return "", err
	}
	decimals, err := t.tokenDecimals(ctx, token)
	if err != nil {
		return "", err
	}
	amount, err := parseUnits(string(args.Amount), decimals)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "转账金额无效")
	}
	receipt, err := t.submit(ctx, "transfer_asset", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return t.chain.Transact(ctx, opts, token, erc20ABI, "transfer", to, amount)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Transferred %s of %s to %s. %s", args.Amount, token.Hex(), to.Hex(), t.txSummary(receipt)), nil
}

func (t *Toolkit) createToken(ctx context.Context, args createTokenArgs) (string, error) {
	if t.erc20 == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置 ERC-20 合约产物，无法创建代币")
	}
	supply, err := parseUnits(string(args.InitialSupply), ethDecimals)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "初始供应量无效")
	}
	address, receipt, err := t.deploy(ctx, "create_token", t.erc20, args.Name, args.Symbol, supply)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created token %s (%s) with initial supply of %s at address %s. %s",
		args.Name, args.Symbol, args.InitialSupply, address.Hex(), t.txSummary(receipt)), nil
}

func (t *Toolkit) deployNFT(ctx context.Context, args deployNFTArgs) (string, error) {
	if t.erc721 == nil {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置 ERC-721 合约产物，无法部署 NFT 合约")
	}
	address, receipt, err := t.deploy(ctx, "deploy_nft", t.erc721, args.Name, args.Symbol, args.BaseURI)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Deployed NFT contract %s (%s) at address %s with base URI %s. %s",
		args.Name, args.Symbol, address.Hex(), args.BaseURI, t.txSummary(receipt)), nil
}

func (t *Toolkit) mintNFT(ctx context.Context, args mintArgs) (string, error) {
	contract := common.HexToAddress(args.ContractAddress)
	to := common.HexToAddress(args.MintTo)

	abiJSON := erc721MintABI
	if t.erc721 != nil && t.erc721.HasMethod("mint") {
		abiJSON = t.erc721.ABI
	}
	receipt, err := t.submit(ctx, "mint_nft", func(opts *bind.TransactOpts) (*types.Transaction, error) {
		return t.chain.Transact(ctx, opts, contract, abiJSON, "mint", to)
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Minted NFT from contract %s to address %s. %s", contract.Hex(), to.Hex(), t.txSummary(receipt)), nil
}

func (t *Toolkit) chainInfo(ctx context.Context, _ noArgs) (string, error) {
	snapshot, err := t.chain.FetchChainSnapshot(ctx)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeChainFailure, err, "获取链信息失败")
	}
	id, ok := new(big.Int).SetString(strings.TrimPrefix(snapshot.ChainID, "0x"), 16)
	if !ok {
		id = big.NewInt(0)
	}
	block, ok := new(big.Int).SetString(strings.TrimPrefix(snapshot.BlockNumber, "0x"), 16)
	if !ok {
		block = big.NewInt(0)
	}
	name := snapshot.Name
	if name == "" {
		name = "unnamed chain"
	}
	return fmt.Sprintf("Connected to %s (chain ID %s), latest block %s. Agent wallet: %s",
		name, id.String(), block.String(), t.wallet.Address().Hex()), nil
}

// deploy 部署合约产物，构造函数参数个数必须与工具参数一致。
func (t *Toolkit) deploy(ctx context.Context, tool string, artifact *Artifact, params ...any) (common.Address, *types.Receipt, error) {
	if n := artifact.ConstructorInputs(); n != len(params) {
		return common.Address{}, nil, xerrors.New(xerrors.CodeToolFailure,
			fmt.Sprintf("合约产物的构造函数需要 %d 个参数，%s 提供 %d 个", n, tool, len(params)),
			xerrors.WithMetadata("tool", tool))
	}
	var address common.Address
	receipt, err := t.submit(ctx, tool, func(opts *bind.TransactOpts) (*types.Transaction, error) {
		result, err := t.chain.DeployContract(ctx, opts, artifact.ABI, artifact.Bytecode, params...)
		if err != nil {
			return nil, err
		}
		address = result.ContractAddress
		return result.Transaction, nil
	})
	if err != nil {
		return common.Address{}, nil, err
	}
	return address, receipt, nil
}

func (t *Toolkit) tokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	out, err := t.chain.Call(ctx, token, erc20ABI, "decimals")
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeChainFailure, err, "读取代币精度失败")
	}
	if len(out) == 1 {
		if d, ok := out[0].(uint8); ok {
			return d, nil
		}
	}
	return 0, xerrors.New(xerrors.CodeChainFailure, "decimals 返回值无效")
}

func tokenAddress(assetID string) (common.Address, error) {
	assetID = strings.TrimSpace(assetID)
	if !common.IsHexAddress(assetID) {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("不支持的资产 %q：请使用 eth 或 ERC-20 合约地址", assetID))
	}
	return common.HexToAddress(assetID), nil
}

func firstBig(out []any) (*big.Int, bool) {
	if len(out) != 1 {
		return nil, false
	}
	v, ok := out[0].(*big.Int)
	return v, ok
}
