package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config maps language ids to the servers that handle them.
type Config struct {
	Servers map[string]ServerConfig `yaml:"servers"`
}

// ServerConfig describes how to reach one language server: a command to
// spawn, or a websocket URL to dial.
type ServerConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
	Env     []string `yaml:"env"`
}

// DefaultConfig covers the common servers so the tool works with no config
// file at all, as long as the server binary is on PATH.
func DefaultConfig() *Config {
	return &Config{
		Servers: map[string]ServerConfig{
			"go":         {Command: "gopls", Args: []string{"serve"}},
			"python":     {Command: "pyright-langserver", Args: []string{"--stdio"}},
			"rust":       {Command: "rust-analyzer"},
			"typescript": {Command: "typescript-language-server", Args: []string{"--stdio"}},
			"javascript": {Command: "typescript-language-server", Args: []string{"--stdio"}},
		},
	}
}

// LoadConfig reads a YAML config file and merges it over the defaults.
// Languages in the file replace the built-in entry wholesale.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	for lang, sc := range loaded.Servers {
		cfg.Servers[lang] = sc
	}
	return cfg, nil
}

// ServerFor resolves the server entry for a language.
func (c *Config) ServerFor(languageID string) (ServerConfig, error) {
	sc, ok := c.Servers[languageID]
	if !ok {
		return ServerConfig{}, fmt.Errorf("no server configured for language %q", languageID)
	}
	if sc.Command == "" && sc.URL == "" {
		return ServerConfig{}, fmt.Errorf("server for %q has neither command nor url", languageID)
	}
	return sc, nil
}
