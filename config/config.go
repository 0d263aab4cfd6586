// Package config loads gateway and worker process configuration from TOML.
//
// Every field has a working default: an empty file, or no file at all, is a
// valid configuration for local development.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration for TOML decoding ("30s", "1m").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML values.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// GatewayConfig configures a gateway process.
type GatewayConfig struct {
	// Listen is the HTTP listen address.
	Listen string `toml:"listen"`

	// Path is the WebSocket endpoint path workers dial.
	Path string `toml:"path"`

	// LivenessTimeout is how long a silent worker survives.
	LivenessTimeout Duration `toml:"liveness_timeout"`

	// SweepInterval is how often the liveness sweep runs.
	SweepInterval Duration `toml:"sweep_interval"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `toml:"log_level"`
}

// DefaultGatewayConfig returns configuration with sensible defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Listen:          ":8765",
		Path:            "/ws",
		LivenessTimeout: Duration{60 * time.Second},
		SweepInterval:   Duration{30 * time.Second},
		LogLevel:        "INFO",
	}
}

// Validate checks the configuration.
func (c *GatewayConfig) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen address required")
	}
	if c.Path == "" {
		return fmt.Errorf("websocket path required")
	}
	if c.LivenessTimeout.Duration <= 0 {
		return fmt.Errorf("liveness timeout must be positive")
	}
	if c.SweepInterval.Duration <= 0 {
		return fmt.Errorf("sweep interval must be positive")
	}
	if c.SweepInterval.Duration > c.LivenessTimeout.Duration {
		return fmt.Errorf("sweep interval exceeds liveness timeout")
	}
	return validateLogLevel(c.LogLevel)
}

// WorkerConfig configures a worker process.
type WorkerConfig struct {
	// GatewayURL is the WebSocket URL of the gateway.
	GatewayURL string `toml:"gateway_url"`

	// RPCTimeout bounds how long an outgoing call stays pending.
	RPCTimeout Duration `toml:"rpc_timeout"`

	// HeartbeatInterval is how often an idle worker sends a heartbeat.
	HeartbeatInterval Duration `toml:"heartbeat_interval"`

	// MailboxSize is the per-agent delivery queue depth.
	MailboxSize int `toml:"mailbox_size"`

	// LogLevel is one of DEBUG, INFO, WARN, ERROR.
	LogLevel string `toml:"log_level"`

	// State configures the durable agent state store. Empty URL means
	// in-memory state.
	State StateConfig `toml:"state"`

	// LLM configures the model provider for LLM-backed agents.
	LLM LLMConfig `toml:"llm"`
}

// StateConfig selects and configures the agent state store.
type StateConfig struct {
	// NATSURL is the NATS server URL, e.g. "nats://localhost:4222".
	NATSURL string `toml:"nats_url"`

	// Bucket is the JetStream KV bucket name.
	Bucket string `toml:"bucket"`
}

// LLMConfig selects the model provider for LLM-backed agents. API keys come
// from the provider's standard environment variable, never from this file.
type LLMConfig struct {
	// Provider is one of "anthropic", "openai", "google", "mock".
	Provider string `toml:"provider"`

	// Model is the provider-specific model name.
	Model string `toml:"model"`

	// MaxTokens bounds each completion.
	MaxTokens int `toml:"max_tokens"`
}

// DefaultWorkerConfig returns configuration with sensible defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		GatewayURL:        "ws://localhost:8765/ws",
		RPCTimeout:        Duration{30 * time.Second},
		HeartbeatInterval: Duration{30 * time.Second},
		MailboxSize:       64,
		LogLevel:          "INFO",
		State: StateConfig{
			Bucket: "agent-state",
		},
		LLM: LLMConfig{
			Provider:  "mock",
			MaxTokens: 1024,
		},
	}
}

// Validate checks the configuration.
func (c *WorkerConfig) Validate() error {
	if c.GatewayURL == "" {
		return fmt.Errorf("gateway url required")
	}
	if c.RPCTimeout.Duration <= 0 {
		return fmt.Errorf("rpc timeout must be positive")
	}
	if c.HeartbeatInterval.Duration <= 0 {
		return fmt.Errorf("heartbeat interval must be positive")
	}
	if c.MailboxSize <= 0 {
		return fmt.Errorf("mailbox size must be positive")
	}
	switch c.LLM.Provider {
	case "", "anthropic", "openai", "google", "mock":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	return validateLogLevel(c.LogLevel)
}

func validateLogLevel(level string) error {
	switch level {
	case "DEBUG", "INFO", "WARN", "ERROR":
		return nil
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
}

// LoadGateway reads a gateway configuration file. Missing fields keep their
// defaults; a missing file yields the defaults unchanged.
func LoadGateway(path string) (GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadWorker reads a worker configuration file. Missing fields keep their
// defaults; a missing file yields the defaults unchanged.
func LoadWorker(path string) (WorkerConfig, error) {
	cfg := DefaultWorkerConfig()
	if err := loadInto(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func loadInto(path string, cfg interface{}) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
