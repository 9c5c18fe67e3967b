package config

// Config is the umbrella configuration object that encapsulates all
// sections loaded from YAML plus their built-in defaults. This is the
// primary object returned by Initialize() and used throughout the
// application.
type Config struct {
	configDir string // Configuration directory path (for reference)

	Server    *ServerConfig
	Queue     *QueueConfig
	Evolution *EvolutionDefaults
	LLM       *LLMConfig
	Retention *RetentionConfig
}

// Initialize is defined in loader.go

// ConfigStats contains statistics about loaded configuration, surfaced on
// the health endpoint.
type ConfigStats struct {
	DefaultGenerations    int
	DefaultPopulationSize int
	EnricherConcurrency   int
	DispatcherWorkerCount int
}

// Stats returns configuration statistics for logging/monitoring
func (c *Config) Stats() ConfigStats {
	return ConfigStats{
		DefaultGenerations:    c.Evolution.Generations,
		DefaultPopulationSize: c.Evolution.PopulationSize,
		EnricherConcurrency:   c.Evolution.EnricherConcurrency,
		DispatcherWorkerCount: c.Queue.WorkerCount,
	}
}

// ConfigDir returns the configuration directory path
func (c *Config) ConfigDir() string {
	return c.configDir
}
