package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr    = ":8080"
	DefaultMaxAudioBytes = 25 << 20
	DefaultContactsPath  = "contacts.yaml"
	DefaultMailPort      = 587
	DefaultMailTLS       = "mandatory"
	DefaultServiceName   = "voxmail"
	DefaultMetricsPath   = "/metrics"
)

// ValidProviderNames lists the provider names with a built-in factory.
// [Validate] warns about any other name.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"openai", "whisper"},
	"tts": {"openai", "coqui"},
}

var validTLS = []string{"mandatory", "opportunistic", "none"}

// Load reads, expands and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r. ${VAR} references are
// replaced with environment values before decoding so secrets can stay out
// of the file. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset optional fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxAudioBytes == 0 {
		cfg.Server.MaxAudioBytes = DefaultMaxAudioBytes
	}
	if cfg.Directory.Backend == "" {
		cfg.Directory.Backend = BackendFile
	}
	if cfg.Directory.Backend == BackendFile && cfg.Directory.Path == "" {
		cfg.Directory.Path = DefaultContactsPath
	}
	if cfg.Mail.Port == 0 {
		cfg.Mail.Port = DefaultMailPort
	}
	if cfg.Mail.TLS == "" {
		cfg.Mail.TLS = DefaultMailTLS
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = DefaultServiceName
	}
	if cfg.Observability.MetricsPath == "" {
		cfg.Observability.MetricsPath = DefaultMetricsPath
	}
}

// Validate checks that cfg is coherent and returns every problem found,
// joined.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxAudioBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_audio_bytes must not be negative"))
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt.name is required"))
	}
	errs = append(errs, validateEntry("llm", "providers.llm", cfg.Providers.LLM)...)
	errs = append(errs, validateEntry("stt", "providers.stt", cfg.Providers.STT)...)
	errs = append(errs, validateEntry("tts", "providers.tts", cfg.Providers.TTS)...)

	if cfg.Mail.Host == "" {
		errs = append(errs, errors.New("mail.host is required"))
	}
	if cfg.Mail.From == "" {
		errs = append(errs, errors.New("mail.from is required"))
	}
	if cfg.Mail.Port < 0 || cfg.Mail.Port > 65535 {
		errs = append(errs, fmt.Errorf("mail.port %d is out of range", cfg.Mail.Port))
	}
	if cfg.Mail.TLS != "" && !slices.Contains(validTLS, cfg.Mail.TLS) {
		errs = append(errs, fmt.Errorf("mail.tls %q is invalid; valid values: mandatory, opportunistic, none", cfg.Mail.TLS))
	}
	if cfg.Mail.Username != "" && cfg.Mail.Password == "" {
		slog.Warn("mail.username is set without mail.password; authentication will likely fail")
	}

	switch d := cfg.Directory; d.Backend {
	case "", BackendFile:
	case BackendPostgres:
		if d.PostgresDSN == "" {
			errs = append(errs, errors.New("directory.postgres_dsn is required when backend is postgres"))
		}
	case BackendSQLite:
		if d.SQLitePath == "" {
			errs = append(errs, errors.New("directory.sqlite_path is required when backend is sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("directory.backend %q is invalid; valid values: file, postgres, sqlite", d.Backend))
	}

	if t := cfg.Compose.Temperature; t != nil && (*t < 0 || *t > 2) {
		errs = append(errs, fmt.Errorf("compose.temperature %.2f is out of range [0, 2]", *t))
	}
	if cfg.Resilience.MaxFailures < 0 {
		errs = append(errs, errors.New("resilience.max_failures must not be negative"))
	}
	if cfg.Resilience.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience.reset_timeout must not be negative"))
	}

	return errors.Join(errs...)
}

// validateEntry checks an entry and its fallbacks. Unknown names only warn,
// since third-party factories may be registered at runtime.
func validateEntry(kind, path string, e ProviderEntry) []error {
	var errs []error
	warnUnknownProvider(kind, e.Name)
	if e.Name == "" && len(e.Fallbacks) > 0 {
		errs = append(errs, fmt.Errorf("%s: fallbacks require a primary provider name", path))
	}
	for i, fb := range e.Fallbacks {
		prefix := fmt.Sprintf("%s.fallbacks[%d]", path, i)
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if len(fb.Fallbacks) > 0 {
			errs = append(errs, fmt.Errorf("%s: nested fallbacks are not supported", prefix))
		}
		warnUnknownProvider(kind, fb.Name)
	}
	return errs
}

func warnUnknownProvider(kind, name string) {
	if name == "" || slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
