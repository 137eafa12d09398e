package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Artifact 是编译后的合约：ABI 与部署字节码。
type Artifact struct {
	ABI      string
	Bytecode []byte
	parsed   abi.ABI
}

// LoadArtifact 读取 Hardhat 或 Foundry 风格的合约产物 JSON。
func LoadArtifact(path string) (*Artifact, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取合约产物失败: %w", err)
	}
	return ParseArtifact(content)
}

// ParseArtifact 解析合约产物。bytecode 可以是十六进制字符串，或包含 object 字段的对象。
func ParseArtifact(content []byte) (*Artifact, error) {
	var raw struct {
		ABI      json.RawMessage `json:"abi"`
		Bytecode json.RawMessage `json:"bytecode"`
	}
	if err := argsJSON.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("解析合约产物失败: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, fmt.Errorf("合约产物缺少 abi")
	}

	var code string
	if err := argsJSON.Unmarshal(raw.Bytecode, &code); err != nil {
		var nested struct {
			Object string `json:"object"`
		}
		if err := argsJSON.Unmarshal(raw.Bytecode, &nested); err != nil {
			return nil, fmt.Errorf("合约产物 bytecode 格式无效: %w", err)
		}
		code = nested.Object
	}
	code = strings.TrimSpace(code)
	if code == "" || code == "0x" {
		return nil, fmt.Errorf("合约产物缺少 bytecode")
	}

	parsed, err := abi.JSON(strings.NewReader(string(raw.ABI)))
	if err != nil {
		return nil, fmt.Errorf("解析 ABI 失败: %w", err)
	}
	return &Artifact{ABI: string(raw.ABI), Bytecode: common.FromHex(code), parsed: parsed}, nil
}

// ConstructorInputs 返回构造函数参数数量。
func (a *Artifact) ConstructorInputs() int {
	return len(a.parsed.Constructor.Inputs)
}

// HasMethod 判断 ABI 是否声明了指定方法。
func (a *Artifact) HasMethod(name string) bool {
	_, ok := a.parsed.Methods[name]
	return ok
}
