package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"balance-attestor/internal/domain/apperr"

	"gopkg.in/yaml.v3"
)

const (
	PrivacyOff    = "off"
	PrivacyMasked = "masked"
)

// 环境变量覆盖项（优先级高于 YAML）。
const (
	EnvSignerKey     = "ATTESTOR_SIGNER_KEY"
	EnvSignerKeyFile = "ATTESTOR_SIGNER_KEY_FILE"
	EnvListen        = "ATTESTOR_LISTEN"
	EnvDBPath        = "ATTESTOR_DB_PATH"
	EnvChainsPath    = "ATTESTOR_CHAINS_PATH"
	EnvLogLevel      = "ATTESTOR_LOG_LEVEL"
	EnvPrivacyMode   = "ATTESTOR_PRIVACY_MODE"
)

// Config 存放进程级配置。
//
// 签名私钥只从环境变量或 signer_key_file 指向的文件读取，不写在配置文件里。
type Config struct {
	ListenAddr    string `yaml:"listen_addr"`
	DBPath        string `yaml:"db_path"`
	ChainsPath    string `yaml:"chains_path"`
	LogLevel      string `yaml:"log_level"`
	PrivacyMode   string `yaml:"privacy_mode"`
	SignerKeyFile string `yaml:"signer_key_file"`

	SignerKey string `yaml:"-"`
}

// DefaultConfig 返回本地运行的默认配置：不落库、使用内置链表。
func DefaultConfig() Config {
	return Config{
		ListenAddr:  "127.0.0.1:8080",
		LogLevel:    "info",
		PrivacyMode: PrivacyOff,
	}
}

// Load 在默认值之上叠加 YAML（path 为空则跳过）与 ATTESTOR_ 环境变量。
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path = strings.TrimSpace(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config load: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config unmarshal: %w", err)
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnvOverrides(c *Config) {
	if v := os.Getenv(EnvSignerKey); v != "" {
		c.SignerKey = v
	}
	if v := os.Getenv(EnvSignerKeyFile); v != "" {
		c.SignerKeyFile = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvChainsPath); v != "" {
		c.ChainsPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrivacyMode); v != "" {
		c.PrivacyMode = v
	}
}

// Validate 校验取值范围，并把空值归一为默认值。
func (c *Config) Validate() error {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}

	c.PrivacyMode = strings.ToLower(strings.TrimSpace(c.PrivacyMode))
	switch c.PrivacyMode {
	case "":
		c.PrivacyMode = PrivacyOff
	case PrivacyOff, PrivacyMasked:
	default:
		return fmt.Errorf("invalid privacy_mode %q (want off|masked)", c.PrivacyMode)
	}

	if strings.TrimSpace(c.ListenAddr) == "" {
		return errors.New("listen_addr is required")
	}
	return nil
}

// Masked 表示日志中需要脱敏地址与 RPC URL。
func (c Config) Masked() bool {
	return c.PrivacyMode == PrivacyMasked
}

// SigningKey 返回签名私钥文本：环境变量优先，其次 signer_key_file。
func (c Config) SigningKey() (string, error) {
	if k := strings.TrimSpace(c.SignerKey); k != "" {
		return k, nil
	}
	if p := strings.TrimSpace(c.SignerKeyFile); p != "" {
		raw, err := os.ReadFile(p)
		if err != nil {
			return "", apperr.Wrap(apperr.KindKeyParse, "read signer key file", err)
		}
		k := strings.TrimSpace(string(raw))
		if k == "" {
			return "", apperr.New(apperr.KindKeyParse, "signer key file is empty")
		}
		return k, nil
	}
	return "", apperr.New(apperr.KindKeyParse, "signing key not configured (set "+EnvSignerKey+" or "+EnvSignerKeyFile+")")
}
