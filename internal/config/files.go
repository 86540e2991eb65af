package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"threadline/internal/infrastructure/logger"
)

// ModelEntry maps a public model name to a concrete backend model.
type ModelEntry struct {
	Name      string `yaml:"name"`
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens"`
}

// ModelCatalog is the parsed assistant model file.
type ModelCatalog struct {
	Default string       `yaml:"default"`
	Models  []ModelEntry `yaml:"models"`
}

// Lookup returns the entry registered under name.
func (c *ModelCatalog) Lookup(name string) (ModelEntry, bool) {
	if c == nil {
		return ModelEntry{}, false
	}
	for _, m := range c.Models {
		if strings.EqualFold(m.Name, name) {
			return m, true
		}
	}
	return ModelEntry{}, false
}

// RateLimitSeed is the parsed rate-limit seed file applied when the database has no profiles.
type RateLimitSeed struct {
	Profiles []struct {
		Name              string  `yaml:"name"`
		Algorithm         string  `yaml:"algorithm"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"profiles"`
	Assignments []struct {
		Profile     string `yaml:"profile"`
		Method      string `yaml:"method"`
		PathPattern string `yaml:"path"`
	} `yaml:"assignments"`
}

// LoadModelCatalog reads the assistant model catalog. A missing file yields an empty catalog.
func LoadModelCatalog(path string) (*ModelCatalog, error) {
	catalog := &ModelCatalog{}
	found, err := readYAML(path, catalog)
	if err != nil {
		return nil, fmt.Errorf("load model catalog: %w", err)
	}
	if !found {
		return catalog, nil
	}
	for i, m := range catalog.Models {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Model) == "" {
			return nil, fmt.Errorf("model catalog entry %d needs name and model", i)
		}
		if m.Provider == "" {
			catalog.Models[i].Provider = "openai"
		}
	}
	return catalog, nil
}

// LoadRateLimitSeed reads the rate-limit seed file. A missing file yields nil.
func LoadRateLimitSeed(path string) (*RateLimitSeed, error) {
	seed := &RateLimitSeed{}
	found, err := readYAML(path, seed)
	if err != nil {
		return nil, fmt.Errorf("load rate limit seed: %w", err)
	}
	if !found {
		return nil, nil
	}
	return seed, nil
}

func readYAML(path string, out any) (bool, error) {
	if strings.TrimSpace(path) == "" {
		return false, nil
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %q: %w", cleanPath, err)
	}
	log := logger.GetLogger()
	log.Info().Str("path", cleanPath).Msg("loading config file")
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parse %q: %w", cleanPath, err)
	}
	return true, nil
}
