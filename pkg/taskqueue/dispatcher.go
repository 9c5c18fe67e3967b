package taskqueue

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evoengine/evoengine/pkg/config"
)

// DispatchSecretHeader carries the shared dispatch secret on outbound
// /orchestrate and /worker requests. The receiving server checks it
// against the same environment variable when one is configured.
const DispatchSecretHeader = "X-Evoengine-Dispatch-Secret"

// Dispatcher runs a pool of goroutines that poll the queue for
// deliverable tasks and POST them to the configured HTTP endpoint. It
// supports an explicit pause/resume back-pressure signal: a paused
// dispatcher stops claiming new tasks but lets in-flight deliveries
// finish.
type Dispatcher struct {
	queue      *Queue
	cfg        *config.QueueConfig
	httpClient *http.Client
	secret     string

	paused atomic.Bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher builds a Dispatcher bound to queue and cfg. The HTTP
// client timeout is cfg.DispatchTimeout rather than a fixed value,
// since a /worker delivery blocks synchronously on the phase's LLM call
// for the entire round trip.
func NewDispatcher(queue *Queue, cfg *config.QueueConfig) *Dispatcher {
	var secret string
	if cfg.DispatchSharedSecretEnv != "" {
		secret = os.Getenv(cfg.DispatchSharedSecretEnv)
	}
	return &Dispatcher{
		queue:      queue,
		cfg:        cfg,
		secret:     secret,
		httpClient: &http.Client{Timeout: cfg.DispatchTimeout},
	}
}

// Pause stops the dispatcher pool from claiming new tasks.
func (d *Dispatcher) Pause() { d.paused.Store(true) }

// Resume re-enables claiming.
func (d *Dispatcher) Resume() { d.paused.Store(false) }

// Start launches cfg.WorkerCount poller goroutines.
func (d *Dispatcher) Start(ctx context.Context) {
	ctx, d.cancel = context.WithCancel(ctx)
	for i := 0; i < d.cfg.WorkerCount; i++ {
		d.wg.Add(1)
		go d.pollLoop(ctx, i)
	}
	slog.Info("task dispatcher started", "worker_count", d.cfg.WorkerCount, "transport", d.cfg.Transport)
}

// Stop signals every poller to exit and waits up to
// GracefulShutdownTimeout for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.GracefulShutdownTimeout):
		slog.Warn("task dispatcher shutdown timed out waiting for in-flight deliveries")
	}
}

func (d *Dispatcher) pollLoop(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		interval := d.cfg.PollInterval + time.Duration(rand.Int63n(int64(d.cfg.PollIntervalJitter)+1))
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}

		if d.paused.Load() {
			continue
		}

		task, err := d.queue.Claim(ctx)
		if err != nil {
			if err != ErrNoTask {
				slog.Error("task claim failed", "worker", id, "error", err)
			}
			continue
		}

		if err := d.deliver(ctx, task); err != nil {
			slog.Warn("task delivery failed, will retry on redelivery", "task_id", task.ID, "kind", task.Kind, "error", err)
			_ = d.queue.MarkFailed(ctx, task.ID, err.Error())
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, task *Task) error {
	path := "/worker"
	if task.Kind == KindOrchestrator {
		path = "/orchestrate"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.BaseURL+path, bytes.NewReader(task.Payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set(DispatchSecretHeader, d.secret)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transport error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
