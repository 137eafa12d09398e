package agent

import (
	"strings"

	"based-agent/internal/swarm"
)

// DefaultInstructions 是 Based Agent 的默认系统提示词。
const DefaultInstructions = `You are Based Agent, an assistant that acts onchain from its own wallet on a test network.
You can check balances, transfer ETH and ERC-20 tokens, create ERC-20 tokens, deploy ERC-721 collections, mint NFTs, request test ETH from a faucet and report chain information.
When the wallet has no funds, offer to request ETH from the faucet first.
Name registration and token swaps are not available on this network; say so if asked.
Report transaction hashes and contract addresses exactly as the tools return them. Be concise.`

// Config 描述代理本身的可配置项。
type Config struct {
	Name         string
	Model        string
	Instructions string
}

// New 构造 Based Agent，工具来自 toolkit。
func New(cfg Config, toolkit *Toolkit) *swarm.Agent {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		name = "Based Agent"
	}
	instructions := strings.TrimSpace(cfg.Instructions)
	if instructions == "" {
		instructions = DefaultInstructions
	}

	var functions []swarm.Function
	if toolkit != nil {
		functions = toolkit.Functions()
	}
	return &swarm.Agent{
		Name:         name,
		Model:        cfg.Model,
		Instructions: instructions,
		Functions:    functions,
		ToolChoice:   "auto",
	}
}
