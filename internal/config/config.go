// Package config provides the configuration schema, loader and provider
// registry of voxmail.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level converts l to a slog level. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Backend selects where the contact directory is persisted.
type Backend string

const (
	BackendFile     Backend = "file"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// IsValid reports whether b is a recognised directory backend.
func (b Backend) IsValid() bool {
	return b == BackendFile || b == BackendPostgres || b == BackendSQLite
}

// Config is the root configuration structure, loaded with [Load] or
// [LoadFromReader].
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Providers     ProvidersConfig     `yaml:"providers"`
	Mail          MailConfig          `yaml:"mail"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Compose       ComposeConfig       `yaml:"compose"`
	History       HistoryConfig       `yaml:"history"`
	Resilience    ResilienceConfig    `yaml:"resilience"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP API (e.g. ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// MaxAudioBytes caps the size of an uploaded recording.
	MaxAudioBytes int64 `yaml:"max_audio_bytes"`
}

// ProvidersConfig selects the external services of each pipeline stage.
// TTS is optional; without it the assistant flow answers in text only.
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
// Name selects the constructor in the [Registry].
type ProviderEntry struct {
	Name    string `yaml:"name"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`

	// Options holds provider-specific values (voice, language, vendor, ...).
	Options map[string]any `yaml:"options"`

	// Fallbacks are tried in order when this provider fails or its circuit
	// is open.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`
}

// StringOption returns Options[key] as a string, or def when unset.
func (e ProviderEntry) StringOption(key, def string) string {
	if v, ok := e.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// MailConfig configures the SMTP transport.
type MailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// From is the sender address of every dispatched email.
	From string `yaml:"from"`

	// TLS is one of "mandatory", "opportunistic" or "none".
	TLS string `yaml:"tls"`
}

// DirectoryConfig selects the contact storage backend.
type DirectoryConfig struct {
	Backend Backend `yaml:"backend"`

	// Path is the contact file for the file backend. The extension picks the
	// format: .yaml, .yml, .toml, .json or .csv.
	Path string `yaml:"path"`

	PostgresDSN string `yaml:"postgres_dsn"`
	SQLitePath  string `yaml:"sqlite_path"`
}

// ComposeConfig tunes drafting and spoken replies.
type ComposeConfig struct {
	// Temperature is the sampling temperature in [0, 2]. Nil keeps the
	// built-in default.
	Temperature *float64 `yaml:"temperature"`

	Signature SignatureConfig `yaml:"signature"`

	// AssistantPrompt replaces the default assistant system prompt.
	AssistantPrompt string `yaml:"assistant_prompt"`
}

// SignatureConfig is the closing block appended to every email body.
type SignatureConfig struct {
	SignOff string `yaml:"sign_off"`
	Name    string `yaml:"name"`
	Phone   string `yaml:"phone"`
}

// HistoryConfig configures the conversation history.
type HistoryConfig struct {
	// LogPath, when set, receives every exchange as a JSON line.
	LogPath string `yaml:"log_path"`
}

// ResilienceConfig tunes the circuit breakers in front of external services.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ObservabilityConfig configures metrics export.
type ObservabilityConfig struct {
	ServiceName string `yaml:"service_name"`
	MetricsPath string `yaml:"metrics_path"`
}
