package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	xerrors "based-agent/internal/errors"
)

type faucetRequest struct {
	Address string `json:"address"`
	Network string `json:"network,omitempty"`
}

type faucetResponse struct {
	TransactionHash string `json:"transaction_hash"`
	TxHash          string `json:"tx_hash"`
	Message         string `json:"message"`
}

// requestFaucet 向配置的水龙头请求测试币。
func (t *Toolkit) requestFaucet(ctx context.Context, _ noArgs) (string, error) {
	if t.faucetURL == "" {
		return "", xerrors.New(xerrors.CodeInitializationFailure, "未配置水龙头地址")
	}

	snapshot, _ := t.chain.FetchChainSnapshot(ctx)
	body, err := argsJSON.Marshal(faucetRequest{Address: t.wallet.Address().Hex(), Network: snapshot.Name})
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeUnknown, err, "编码水龙头请求失败")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.faucetURL, bytes.NewReader(body))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeInvalidArgument, err, "构造水龙头请求失败")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeToolFailure, err, "请求水龙头失败")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeToolFailure, err, "读取水龙头响应失败")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", xerrors.New(xerrors.CodeToolFailure,
			fmt.Sprintf("水龙头返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(payload))))
	}

	var parsed faucetResponse
	if err := argsJSON.Unmarshal(payload, &parsed); err != nil {
		t.log.Debug("水龙头响应不是 JSON", "error", err)
	}
	hash := parsed.TransactionHash
	if hash == "" {
		hash = parsed.TxHash
	}

	t.audit.Info("faucet requested", "address", t.wallet.Address().Hex(), "hash", hash)
	switch {
	case hash != "":
		return fmt.Sprintf("Requested ETH from faucet. Transaction hash: %s", hash), nil
	case parsed.Message != "":
		return "Requested ETH from faucet. " + parsed.Message, nil
	default:
		return "Requested ETH from faucet.", nil
	}
}
