package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type DaemonConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type TelemetryConfig struct {
	LogLevel     string `yaml:"log_level"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type SessionConfig struct {
	// TimeoutSeconds bounds a single recording; the watchdog stops the
	// session when it elapses, exactly as an explicit stop would.
	TimeoutSeconds       int `yaml:"timeout_seconds"`
	DecodeTimeoutSeconds int `yaml:"decode_timeout_seconds"`
}

type StateStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type CaptureConfig struct {
	Mode             string `yaml:"mode"` // bus, mock
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	FrameDurationMS  int    `yaml:"frame_duration_ms"`
	MaxBufferSeconds int    `yaml:"max_buffer_seconds"`
}

type ModelConfig struct {
	Mode        string `yaml:"mode"` // stub, exec
	Command     string `yaml:"command"`
	TargetPath  string `yaml:"target_path"`
	DraftPath   string `yaml:"draft_path"`
	Prompt      string `yaml:"prompt"`
	Language    string `yaml:"language"`
	MaxTokens   int    `yaml:"max_tokens"`
	DraftTokens int    `yaml:"draft_tokens"`
}

type OutputConfig struct {
	Mode             string `yaml:"mode"` // type, clipboard
	TypeCommand      string `yaml:"type_command"`
	ClipboardCommand string `yaml:"clipboard_command"`
	NotifyCommand    string `yaml:"notify_command"`
}

type Config struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	HTTP       HTTPConfig       `yaml:"http"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Bus        BusConfig        `yaml:"bus"`
	Session    SessionConfig    `yaml:"session"`
	StateStore StateStoreConfig `yaml:"state_store"`
	Capture    CaptureConfig    `yaml:"capture"`
	Model      ModelConfig      `yaml:"model"`
	Output     OutputConfig     `yaml:"output"`
}

func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			Name:        "hyprvoice",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Bind: "127.0.0.1",
			Port: 8489,
		},
		Telemetry: TelemetryConfig{
			LogLevel:     "info",
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4333,
			Servers:        []string{"nats://localhost:4333"},
			ConnectTimeout: 2000,
		},
		Session: SessionConfig{
			TimeoutSeconds:       300,
			DecodeTimeoutSeconds: 60,
		},
		StateStore: StateStoreConfig{
			Path:          "./data/hyprvoice.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Capture: CaptureConfig{
			Mode:             "bus",
			SampleRate:       16000,
			Channels:         1,
			FrameDurationMS:  20,
			MaxBufferSeconds: 330,
		},
		Model: ModelConfig{
			Mode:        "stub",
			Language:    "en",
			MaxTokens:   224,
			DraftTokens: 8,
		},
		Output: OutputConfig{
			Mode:             "type",
			TypeCommand:      "wtype -",
			ClipboardCommand: "wl-copy",
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.Daemon.Name, "HYPRVOICE_DAEMON_NAME")
	overrideString(&cfg.Daemon.Environment, "HYPRVOICE_DAEMON_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "HYPRVOICE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "HYPRVOICE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "HYPRVOICE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "HYPRVOICE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "HYPRVOICE_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Bus.Embedded, "HYPRVOICE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "HYPRVOICE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "HYPRVOICE_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "HYPRVOICE_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.Session.TimeoutSeconds, "HYPRVOICE_SESSION_TIMEOUT_SECONDS")
	overrideInt(&cfg.Session.DecodeTimeoutSeconds, "HYPRVOICE_SESSION_DECODE_TIMEOUT_SECONDS")
	overrideString(&cfg.StateStore.Path, "HYPRVOICE_STATE_STORE_PATH")
	overrideString(&cfg.StateStore.RetentionMode, "HYPRVOICE_STATE_STORE_RETENTION_MODE")
	overrideInt(&cfg.StateStore.RetentionDays, "HYPRVOICE_STATE_STORE_RETENTION_DAYS")
	overrideInt(&cfg.StateStore.MaxSessions, "HYPRVOICE_STATE_STORE_MAX_SESSIONS")
	overrideBool(&cfg.StateStore.VacuumOnStart, "HYPRVOICE_STATE_STORE_VACUUM_ON_START")
	overrideString(&cfg.Capture.Mode, "HYPRVOICE_CAPTURE_MODE")
	overrideInt(&cfg.Capture.SampleRate, "HYPRVOICE_CAPTURE_SAMPLE_RATE")
	overrideInt(&cfg.Capture.Channels, "HYPRVOICE_CAPTURE_CHANNELS")
	overrideInt(&cfg.Capture.FrameDurationMS, "HYPRVOICE_CAPTURE_FRAME_DURATION_MS")
	overrideInt(&cfg.Capture.MaxBufferSeconds, "HYPRVOICE_CAPTURE_MAX_BUFFER_SECONDS")
	overrideString(&cfg.Model.Mode, "HYPRVOICE_MODEL_MODE")
	overrideString(&cfg.Model.Command, "HYPRVOICE_MODEL_COMMAND")
	overrideString(&cfg.Model.TargetPath, "HYPRVOICE_MODEL_TARGET_PATH")
	overrideString(&cfg.Model.DraftPath, "HYPRVOICE_MODEL_DRAFT_PATH")
	overrideString(&cfg.Model.Prompt, "HYPRVOICE_MODEL_PROMPT")
	overrideString(&cfg.Model.Language, "HYPRVOICE_MODEL_LANGUAGE")
	overrideInt(&cfg.Model.MaxTokens, "HYPRVOICE_MODEL_MAX_TOKENS")
	overrideInt(&cfg.Model.DraftTokens, "HYPRVOICE_MODEL_DRAFT_TOKENS")
	overrideString(&cfg.Output.Mode, "HYPRVOICE_OUTPUT_MODE")
	overrideString(&cfg.Output.TypeCommand, "HYPRVOICE_OUTPUT_TYPE_COMMAND")
	overrideString(&cfg.Output.ClipboardCommand, "HYPRVOICE_OUTPUT_CLIPBOARD_COMMAND")
	overrideString(&cfg.Output.NotifyCommand, "HYPRVOICE_OUTPUT_NOTIFY_COMMAND")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.Daemon.Name == "" {
		return errors.New("daemon.name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Session.TimeoutSeconds <= 0 {
		return errors.New("session.timeout_seconds must be positive")
	}
	if cfg.Session.DecodeTimeoutSeconds <= 0 {
		return errors.New("session.decode_timeout_seconds must be positive")
	}
	if cfg.StateStore.Path == "" {
		return errors.New("state_store.path must not be empty")
	}
	switch cfg.StateStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("state_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.StateStore.RetentionDays < 0 {
		return errors.New("state_store.retention_days must be >= 0")
	}
	switch cfg.Capture.Mode {
	case "bus", "mock":
	default:
		return errors.New("capture.mode must be one of bus|mock")
	}
	if cfg.Capture.SampleRate <= 0 {
		return errors.New("capture.sample_rate must be positive")
	}
	if cfg.Capture.Channels <= 0 {
		return errors.New("capture.channels must be positive")
	}
	if cfg.Capture.FrameDurationMS <= 0 {
		return errors.New("capture.frame_duration_ms must be positive")
	}
	if cfg.Capture.MaxBufferSeconds < cfg.Session.TimeoutSeconds {
		return errors.New("capture.max_buffer_seconds must cover session.timeout_seconds")
	}
	switch cfg.Model.Mode {
	case "stub", "exec":
	default:
		return errors.New("model.mode must be one of stub|exec")
	}
	if cfg.Model.Mode == "exec" {
		if cfg.Model.Command == "" {
			return errors.New("model.command must be set when mode=exec")
		}
		if cfg.Model.TargetPath == "" {
			return errors.New("model.target_path must be set when mode=exec")
		}
	}
	if cfg.Model.MaxTokens <= 0 {
		return errors.New("model.max_tokens must be positive")
	}
	if cfg.Model.DraftTokens < 0 {
		return errors.New("model.draft_tokens must be >= 0")
	}
	switch cfg.Output.Mode {
	case "type", "clipboard":
	default:
		return errors.New("output.mode must be one of type|clipboard")
	}
	if cfg.Output.Mode == "type" && cfg.Output.TypeCommand == "" {
		return errors.New("output.type_command must be set when mode=type")
	}
	if cfg.Output.Mode == "clipboard" && cfg.Output.ClipboardCommand == "" {
		return errors.New("output.clipboard_command must be set when mode=clipboard")
	}
	return nil
}
