package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Directory DirectoryConfig `json:"directory"`
	Ledger    LedgerConfig    `json:"ledger"`
	Advisory  AdvisoryConfig  `json:"advisory"`
	Gateway   GatewayConfig   `json:"gateway"`
	Flow      FlowConfig      `json:"flow"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token" env:"SIGNALBOT_TELEGRAM_TOKEN"`
	// AllowedChatID restricts the listener to a single chat when non-zero.
	AllowedChatID int64 `json:"allowed_chat_id" env:"SIGNALBOT_TELEGRAM_ALLOWED_CHAT_ID"`
	// PollTimeout is the long-poll wait in seconds.
	PollTimeout int `json:"poll_timeout" env:"SIGNALBOT_TELEGRAM_POLL_TIMEOUT"`
}

type DirectoryConfig struct {
	DBPath string `json:"db_path" env:"SIGNALBOT_DIRECTORY_DB_PATH"`
}

type LedgerConfig struct {
	Enabled bool   `json:"enabled" env:"SIGNALBOT_LEDGER_ENABLED"`
	URL     string `json:"url" env:"SIGNALBOT_LEDGER_URL"`
	APIKey  string `json:"api_key" env:"SIGNALBOT_LEDGER_API_KEY"`
	// TimeoutSeconds bounds a single archive call.
	TimeoutSeconds int `json:"timeout_seconds" env:"SIGNALBOT_LEDGER_TIMEOUT_SECONDS"`
}

type AdvisoryConfig struct {
	// Provider selects the text-generation backend: "anthropic", "openai" or "" (disabled).
	Provider  string `json:"provider" env:"SIGNALBOT_ADVISORY_PROVIDER"`
	APIKey    string `json:"api_key" env:"SIGNALBOT_ADVISORY_API_KEY"`
	Model     string `json:"model" env:"SIGNALBOT_ADVISORY_MODEL"`
	MaxTokens int    `json:"max_tokens" env:"SIGNALBOT_ADVISORY_MAX_TOKENS"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"SIGNALBOT_GATEWAY_HOST"`
	Port int    `json:"port" env:"SIGNALBOT_GATEWAY_PORT"`
}

type FlowConfig struct {
	// ImageURL is the teaser image sent ahead of the open prompt.
	ImageURL string `json:"image_url" env:"SIGNALBOT_FLOW_IMAGE_URL"`
	// SweepCron schedules eviction of stale pending interactions.
	// Empty disables sweeping; interactions then live until resolved.
	SweepCron string `json:"sweep_cron" env:"SIGNALBOT_FLOW_SWEEP_CRON"`
	// SweepMaxAgeHours is the age past which a swept interaction is evicted.
	SweepMaxAgeHours int `json:"sweep_max_age_hours" env:"SIGNALBOT_FLOW_SWEEP_MAX_AGE_HOURS"`
}

type LoggingConfig struct {
	Debug       bool   `json:"debug" env:"SIGNALBOT_LOGGING_DEBUG"`
	FileEnabled bool   `json:"file_enabled" env:"SIGNALBOT_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"SIGNALBOT_LOGGING_FILE_PATH"`
}

// DefaultConfigPath is where the bot looks for its config file unless told
// otherwise on the command line.
func DefaultConfigPath() string {
	return ExpandHome("~/.signalbot/config.json")
}

func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Token:       "",
			PollTimeout: 50,
		},
		Directory: DirectoryConfig{
			DBPath: "~/.signalbot/directory.db",
		},
		Ledger: LedgerConfig{
			Enabled:        false,
			URL:            "",
			TimeoutSeconds: 30,
		},
		Advisory: AdvisoryConfig{
			Provider:  "",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 1024,
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 2053,
		},
		Flow: FlowConfig{
			ImageURL:         "https://i.pinimg.com/736x/3b/23/73/3b2373dbe67caa18cbfd8f21ff4aa8f7.jpg",
			SweepCron:        "",
			SweepMaxAgeHours: 24,
		},
		Logging: LoggingConfig{
			Debug:       false,
			FileEnabled: false,
			FilePath:    "~/.signalbot/signalbot.log",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			resolveSecretRefs(cfg)
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	resolveSecretRefs(cfg)

	return cfg, nil
}

// Validate reports configuration that must stop the process at startup.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return fmt.Errorf("telegram token is required (SIGNALBOT_TELEGRAM_TOKEN)")
	}
	if c.Ledger.Enabled && strings.TrimSpace(c.Ledger.URL) == "" {
		return fmt.Errorf("ledger is enabled but no ledger URL configured")
	}
	return nil
}

// resolveSecretRefs expands $VAR / ${VAR} values so secrets can live in the
// environment while the config file stays committable.
func resolveSecretRefs(cfg *Config) {
	cfg.Telegram.Token = resolveEnvRef(cfg.Telegram.Token)
	cfg.Ledger.APIKey = resolveEnvRef(cfg.Ledger.APIKey)
	cfg.Advisory.APIKey = resolveEnvRef(cfg.Advisory.APIKey)
}

func resolveEnvRef(v string) string {
	s := strings.TrimSpace(v)
	if s == "" {
		return v
	}
	if strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}") {
		key := strings.TrimSpace(s[2 : len(s)-1])
		if key == "" {
			return v
		}
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		return v
	}
	if strings.HasPrefix(s, "$") && len(s) > 1 {
		key := strings.TrimSpace(s[1:])
		if val, ok := os.LookupEnv(key); ok {
			return val
		}
	}
	return v
}

func SaveConfig(path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

func (c *Config) DirectoryDBPath() string {
	return ExpandHome(c.Directory.DBPath)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
