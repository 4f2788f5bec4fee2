package config

import (
	"slices"
	"testing"
)

func TestCompare(t *testing.T) {
	t.Parallel()

	temp := 0.5
	base := func() *Config {
		return &Config{
			Server:    ServerConfig{ListenAddr: ":8080", LogLevel: LogInfo},
			Providers: ProvidersConfig{LLM: ProviderEntry{Name: "openai", Options: map[string]any{"vendor": "x"}}},
			Mail:      MailConfig{Host: "smtp", From: "a@b"},
			Compose:   ComposeConfig{Temperature: &temp},
		}
	}

	tests := []struct {
		name     string
		mutate   func(*Config)
		logLevel bool
		restart  []string
	}{
		{"identical", func(*Config) {}, false, nil},
		{"log level only", func(c *Config) { c.Server.LogLevel = LogDebug }, true, nil},
		{"listen addr", func(c *Config) { c.Server.ListenAddr = ":9090" }, false, []string{"server"}},
		{"provider option", func(c *Config) { c.Providers.LLM.Options = map[string]any{"vendor": "y"} }, false, []string{"providers"}},
		{"fallback added", func(c *Config) {
			c.Providers.LLM.Fallbacks = []ProviderEntry{{Name: "ollama"}}
		}, false, []string{"providers"}},
		{"temperature", func(c *Config) { v := 0.9; c.Compose.Temperature = &v }, false, []string{"compose"}},
		{"mail and level", func(c *Config) {
			c.Mail.Host = "other"
			c.Server.LogLevel = LogWarn
		}, true, []string{"mail"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			next := base()
			tt.mutate(next)
			d := Compare(base(), next)
			if d.LogLevelChanged != tt.logLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tt.logLevel)
			}
			if !slices.Equal(d.RestartRequired, tt.restart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tt.restart)
			}
		})
	}
}
