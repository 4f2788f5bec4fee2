package config

import "reflect"

// Diff describes what changed between two configs. Only the log level can
// be applied to a running process; every other section needs a restart.
type Diff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections that changed but are
	// only read at startup.
	RestartRequired []string
}

// Compare returns the changes from old to new.
func Compare(old, new *Config) Diff {
	var d Diff
	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	sections := []struct {
		name    string
		changed bool
	}{
		{"server", oldServer != newServer},
		{"providers", !sameProviders(old.Providers, new.Providers)},
		{"mail", old.Mail != new.Mail},
		{"directory", old.Directory != new.Directory},
		{"compose", !sameCompose(old.Compose, new.Compose)},
		{"history", old.History != new.History},
		{"resilience", old.Resilience != new.Resilience},
		{"observability", old.Observability != new.Observability},
	}
	for _, s := range sections {
		if s.changed {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	return d
}

func sameCompose(a, b ComposeConfig) bool {
	if a.Signature != b.Signature || a.AssistantPrompt != b.AssistantPrompt {
		return false
	}
	if (a.Temperature == nil) != (b.Temperature == nil) {
		return false
	}
	return a.Temperature == nil || *a.Temperature == *b.Temperature
}

func sameProviders(a, b ProvidersConfig) bool {
	return sameEntry(a.LLM, b.LLM) && sameEntry(a.STT, b.STT) && sameEntry(a.TTS, b.TTS)
}

func sameEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if !reflect.DeepEqual(a.Options, b.Options) || len(a.Fallbacks) != len(b.Fallbacks) {
		return false
	}
	for i := range a.Fallbacks {
		if !sameEntry(a.Fallbacks[i], b.Fallbacks[i]) {
			return false
		}
	}
	return true
}
