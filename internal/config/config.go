package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	// EnvConfigPath 指定 JSON 配置文件路径的环境变量。
	EnvConfigPath = "BASED_AGENT_CONFIG"
	// DefaultConfigPath 为未显式指定时尝试加载的配置文件。
	DefaultConfigPath = "configs/basedagent.json"

	defaultAddress        = ":8080"
	defaultModel          = "gpt-4o-mini"
	defaultAgentName      = "Based Agent"
	defaultMaxTurns       = 10
	defaultAPIKeyEnv      = "OPENAI_API_KEY"
	defaultPrivateKeyEnv  = "BASED_AGENT_PRIVATE_KEY"
	defaultReceiptTimeout = 120
)

// Config 描述了服务在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     LLMConfig     `json:"llm"`
	Web3    Web3Config    `json:"web3"`
	Agent   AgentConfig   `json:"agent"`
	Logging LoggingConfig `json:"logging"`
}

// ServerConfig 控制 HTTP 服务的监听地址。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string       `json:"provider"`
	OpenAI   OpenAIConfig `json:"openai"`
}

// OpenAIConfig 描述 OpenAI 兼容接口的调用参数。
type OpenAIConfig struct {
	APIKey         string `json:"api_key"`
	APIKeyEnv      string `json:"api_key_env"`
	BaseURL        string `json:"base_url"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Timeout 返回单次请求的超时时间，0 表示不限制。
func (c OpenAIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// ResolveAPIKey 优先使用显式配置的密钥，其次读取环境变量。
func (c OpenAIConfig) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.APIKey); key != "" {
		return key
	}
	if c.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

// Web3Config 包含访问区块链节点与钱包所需的信息。
type Web3Config struct {
	RPCURL                string         `json:"rpc_url"`
	ChainConfig           string         `json:"chain_config"`
	DefaultChain          string         `json:"default_chain"`
	PrivateKey            string         `json:"private_key"`
	PrivateKeyEnv         string         `json:"private_key_env"`
	FaucetURL             string         `json:"faucet_url"`
	ReceiptTimeoutSeconds int            `json:"receipt_timeout_seconds"`
	Artifacts             ArtifactConfig `json:"artifacts"`
}

// ResolvePrivateKey 返回钱包私钥的十六进制表示。
func (c Web3Config) ResolvePrivateKey() string {
	if key := strings.TrimSpace(c.PrivateKey); key != "" {
		return key
	}
	if c.PrivateKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.PrivateKeyEnv))
}

// ReceiptTimeout 返回等待交易上链的最长时间。
func (c Web3Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.ReceiptTimeoutSeconds) * time.Second
}

// ArtifactConfig 指向编译好的合约产物（包含 abi 与 bytecode 的 JSON 文件）。
type ArtifactConfig struct {
	ERC20  string `json:"erc20"`
	ERC721 string `json:"erc721"`
}

// AgentConfig 描述链上智能体本身。
type AgentConfig struct {
	Name         string `json:"name"`
	Model        string `json:"model"`
	Instructions string `json:"instructions"`
	// MaxTurns 为单次请求最多产生的消息数，0 使用默认值，负数表示不限制。
	MaxTurns     int    `json:"max_turns"`
}

// LoggingConfig 对应 pkg/logger 的配置。
type LoggingConfig struct {
	Level       string      `json:"level"`
	Format      string      `json:"format"`
	OutputPaths []string    `json:"output_paths"`
	Audit       AuditConfig `json:"audit"`
}

// AuditConfig 控制交易审计日志。
type AuditConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Resolve 按约定位置加载配置：先读取 .env，再读取配置文件（若存在），最后应用环境变量覆盖。
func Resolve() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("加载 .env 失败: %w", err)
	}

	path := strings.TrimSpace(os.Getenv(EnvConfigPath))
	if path == "" {
		if _, err := os.Stat(DefaultConfigPath); err == nil {
			path = DefaultConfigPath
		}
	}
	if path == "" {
		cfg := &Config{}
		cfg.finalize(".")
		return cfg, nil
	}
	return Load(path)
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.finalize(filepath.Dir(path))
	return &cfg, nil
}

func (c *Config) finalize(baseDir string) {
	c.applyEnv()
	c.applyDefaults(baseDir)
}

// applyEnv 使用环境变量覆盖非敏感字段，密钥类字段通过 *_env 间接读取。
func (c *Config) applyEnv() {
	override := func(target *string, key string) {
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			*target = value
		}
	}
	override(&c.Server.Address, "BASED_AGENT_ADDR")
	override(&c.Web3.RPCURL, "BASED_AGENT_RPC_URL")
	override(&c.Web3.FaucetURL, "BASED_AGENT_FAUCET_URL")
	override(&c.LLM.OpenAI.BaseURL, "OPENAI_BASE_URL")
	override(&c.LLM.OpenAI.Model, "OPENAI_MODEL")
	override(&c.Logging.Level, "BASED_AGENT_LOG_LEVEL")
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.OpenAI.APIKeyEnv == "" {
		c.LLM.OpenAI.APIKeyEnv = defaultAPIKeyEnv
	}
	if c.LLM.OpenAI.Model == "" {
		c.LLM.OpenAI.Model = defaultModel
	}

	if c.Web3.PrivateKeyEnv == "" {
		c.Web3.PrivateKeyEnv = defaultPrivateKeyEnv
	}
	if c.Web3.ReceiptTimeoutSeconds <= 0 {
		c.Web3.ReceiptTimeoutSeconds = defaultReceiptTimeout
	}
	c.Web3.ChainConfig = resolvePath(baseDir, c.Web3.ChainConfig)
	c.Web3.Artifacts.ERC20 = resolvePath(baseDir, c.Web3.Artifacts.ERC20)
	c.Web3.Artifacts.ERC721 = resolvePath(baseDir, c.Web3.Artifacts.ERC721)

	if c.Agent.Name == "" {
		c.Agent.Name = defaultAgentName
	}
	if c.Agent.Model == "" {
		c.Agent.Model = c.LLM.OpenAI.Model
	}
	if c.Agent.MaxTurns == 0 {
		c.Agent.MaxTurns = defaultMaxTurns
	}

	if c.Logging.Audit.Enabled {
		if c.Logging.Audit.Path == "" {
			c.Logging.Audit.Path = filepath.Join(baseDir, "logs", "audit.log")
		} else {
			c.Logging.Audit.Path = resolvePath(baseDir, c.Logging.Audit.Path)
		}
	}
}

// Validate 检查启动所必需的配置项。
func (c *Config) Validate() error {
	if c.LLM.Provider != "openai" {
		return fmt.Errorf("未知的大模型 provider: %s", c.LLM.Provider)
	}
	if c.LLM.OpenAI.ResolveAPIKey() == "" {
		return errors.New("OpenAI provider 需要配置 api_key 或 api_key_env")
	}
	if strings.TrimSpace(c.Web3.RPCURL) == "" && strings.TrimSpace(c.Web3.ChainConfig) == "" {
		return errors.New("需要配置 web3.rpc_url 或 web3.chain_config")
	}
	return nil
}

func resolvePath(baseDir, path string) string {
	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
