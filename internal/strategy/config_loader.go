package strategy

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigEntry is one strategy block in strategies.yaml.
type ConfigEntry struct {
	Name    string         `yaml:"name"`
	Enabled bool           `yaml:"enabled"`
	Params  map[string]any `yaml:"params"`
}

// ConfigFile is the top-level strategies.yaml shape.
type ConfigFile struct {
	Strategies []ConfigEntry `yaml:"strategies"`
}

// StrategyStore is the slice of pkg/db the loader writes through.
type StrategyStore interface {
	UpsertStrategyInstance(name string, enabled bool, params string) error
	EnabledStrategies() (map[string]bool, error)
}

// LoadConfig parses strategies.yaml. Unknown strategy names are kept
// with a warning so operators see their typo instead of silently
// losing a block.
func LoadConfig(path string) (*ConfigFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read strategy config: %w", err)
	}
	var cfg ConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse strategy config: %w", err)
	}

	r := NewResolver(nil)
	for i, entry := range cfg.Strategies {
		canonical, known := r.Normalize(entry.Name)
		if !known {
			log.Printf("strategy config: unrecognized strategy %q kept as-is", entry.Name)
		}
		cfg.Strategies[i].Name = canonical
	}
	return &cfg, nil
}

// SyncConfigToDB mirrors the file into strategy_instances so the API
// and the resolver share one view of what is enabled.
func SyncConfigToDB(cfg *ConfigFile, store StrategyStore) error {
	for _, entry := range cfg.Strategies {
		params := "{}"
		if len(entry.Params) > 0 {
			b, err := json.Marshal(entry.Params)
			if err != nil {
				return fmt.Errorf("encode params for %s: %w", entry.Name, err)
			}
			params = string(b)
		}
		if err := store.UpsertStrategyInstance(entry.Name, entry.Enabled, params); err != nil {
			return err
		}
	}
	return nil
}
