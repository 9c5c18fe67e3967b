package config

import "time"

// QueueTransport selects how the dispatcher hands a claimed task to a
// worker: the external-facing HTTP surface, or an internal loopback gRPC
// listener for same-process delivery.
type QueueTransport string

const (
	QueueTransportHTTP QueueTransport = "http"
	QueueTransportGRPC QueueTransport = "grpc"
)

// IsValid reports whether the transport is a known value.
func (t QueueTransport) IsValid() bool {
	return t == QueueTransportHTTP || t == QueueTransportGRPC
}

// QueueConfig contains task queue dispatcher and orchestrator backoff
// configuration. These values control how tasks are polled, claimed, and
// dispatched, and how long the orchestrator waits between decision cycles.
type QueueConfig struct {
	// WorkerCount is the number of dispatcher goroutines per process.
	// Each dispatcher independently claims and delivers tasks.
	WorkerCount int `yaml:"worker_count"`

	// PollInterval is the base interval for checking for deliverable tasks.
	PollInterval time.Duration `yaml:"poll_interval"`

	// PollIntervalJitter is the random jitter added to PollInterval.
	PollIntervalJitter time.Duration `yaml:"poll_interval_jitter"`

	// PhaseTimeout is how long a phase may run before the orchestrator
	// resets it and re-enqueues a fresh worker task.
	PhaseTimeout time.Duration `yaml:"phase_timeout"`

	// MaxCheckAttempts caps orchestrator decision cycles per job.
	MaxCheckAttempts int `yaml:"max_check_attempts"`

	// BackoffBaseMillis, BackoffMultiplier, BackoffCapMillis, and
	// BackoffJitterMillis parametrize the orchestrator re-enqueue delay:
	// delay = min(BackoffBaseMillis * BackoffMultiplier^attempt, BackoffCapMillis) + jitter[0, BackoffJitterMillis).
	BackoffBaseMillis   float64 `yaml:"backoff_base_millis"`
	BackoffMultiplier   float64 `yaml:"backoff_multiplier"`
	BackoffCapMillis    float64 `yaml:"backoff_cap_millis"`
	BackoffJitterMillis float64 `yaml:"backoff_jitter_millis"`

	// OrphanDetectionInterval is how often to scan for jobs whose current
	// phase has timed out with no pending orchestrator task.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// GracefulShutdownTimeout bounds how long dispatch waits for in-flight
	// deliveries to finish during shutdown.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// Transport selects how dispatched tasks reach their handler.
	Transport QueueTransport `yaml:"transport"`

	// BaseURL is the HTTP base address the dispatcher posts to for
	// QueueTransportHTTP (typically this process's own loopback listener,
	// or a load balancer in front of a fleet of worker replicas).
	BaseURL string `yaml:"base_url"`

	// GRPCListenAddr is the loopback address the gRPC task delivery
	// listener binds when Transport is QueueTransportGRPC.
	GRPCListenAddr string `yaml:"grpc_listen_addr"`

	// DispatchTimeout bounds how long the dispatcher waits for a single
	// /orchestrate or /worker delivery to finish. It must comfortably
	// exceed the LLM call timeout, since a worker task blocks on an LLM
	// call for the whole HTTP round trip.
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// DispatchSharedSecretEnv names the environment variable holding the
	// shared secret the dispatcher attaches to outbound /orchestrate and
	// /worker requests, and that the server checks on receipt. Empty
	// disables the check, which is appropriate for a loopback-only,
	// single-replica deployment but not for scale-out across replicas.
	DispatchSharedSecretEnv string `yaml:"dispatch_shared_secret_env"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		WorkerCount:             5,
		PollInterval:            500 * time.Millisecond,
		PollIntervalJitter:      250 * time.Millisecond,
		PhaseTimeout:            5 * time.Minute,
		MaxCheckAttempts:        100,
		BackoffBaseMillis:       5000,
		BackoffMultiplier:       1.5,
		BackoffCapMillis:        60000,
		BackoffJitterMillis:     1000,
		OrphanDetectionInterval: 2 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
		Transport:               QueueTransportHTTP,
		BaseURL:                 "http://localhost:8080",
		GRPCListenAddr:          "127.0.0.1:9090",
		DispatchTimeout:         6 * time.Minute,
		DispatchSharedSecretEnv: "EVOENGINE_DISPATCH_SECRET",
	}
}
