package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EvoEngineYAMLConfig represents the complete evoengine.yaml file structure.
type EvoEngineYAMLConfig struct {
	Server    *ServerConfig      `yaml:"server"`
	Queue     *QueueConfig       `yaml:"queue"`
	Evolution *EvolutionDefaults `yaml:"evolution"`
	LLM       *LLMConfig         `yaml:"llm"`
	Retention *RetentionConfig   `yaml:"retention"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load evoengine.yaml from configDir (missing file is not fatal; built-in
//     defaults are used)
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge user-defined sections onto built-in defaults
//  5. Validate all configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := NewValidator(cfg).ValidateAll(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"default_generations", stats.DefaultGenerations,
		"default_population_size", stats.DefaultPopulationSize,
		"enricher_concurrency", stats.EnricherConcurrency,
		"dispatcher_worker_count", stats.DispatcherWorkerCount)

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	var yamlCfg EvoEngineYAMLConfig

	path := filepath.Join(configDir, "evoengine.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, NewLoadError(path, err)
		}
		slog.Warn("no evoengine.yaml found, using built-in defaults", "path", path)
	} else {
		data = ExpandEnv(data)
		if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
		}
	}

	server := DefaultServerConfig()
	if err := mergeSection(server, yamlCfg.Server); err != nil {
		return nil, fmt.Errorf("failed to merge server config: %w", err)
	}

	queue := DefaultQueueConfig()
	if err := mergeSection(queue, yamlCfg.Queue); err != nil {
		return nil, fmt.Errorf("failed to merge queue config: %w", err)
	}

	evolution := DefaultEvolutionDefaults()
	if err := mergeSection(evolution, yamlCfg.Evolution); err != nil {
		return nil, fmt.Errorf("failed to merge evolution config: %w", err)
	}

	llm := DefaultLLMConfig()
	if err := mergeSection(llm, yamlCfg.LLM); err != nil {
		return nil, fmt.Errorf("failed to merge llm config: %w", err)
	}

	retention := DefaultRetentionConfig()
	if err := mergeSection(retention, yamlCfg.Retention); err != nil {
		return nil, fmt.Errorf("failed to merge retention config: %w", err)
	}

	return &Config{
		configDir: configDir,
		Server:    server,
		Queue:     queue,
		Evolution: evolution,
		LLM:       llm,
		Retention: retention,
	}, nil
}
