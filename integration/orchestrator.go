package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/msgqueue"
	"github.com/zapa-ai/zapa/processor"
)

// DefaultWorkerCount is the processor pool size when none is configured.
const DefaultWorkerCount = 3

// Orchestrator owns platform startup and shutdown: bridge provisioning,
// the worker pool and the health monitor.
type Orchestrator struct {
	queue       *msgqueue.Queue
	process     processor.ProcessFunc
	bridgeSetup *BridgeSetup
	monitor     *Monitor
	workerCount int

	mu          sync.Mutex
	initialized bool
	running     int
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewOrchestrator(queue *msgqueue.Queue, process processor.ProcessFunc, bridgeSetup *BridgeSetup, monitor *Monitor, workerCount int) *Orchestrator {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}
	return &Orchestrator{
		queue:       queue,
		process:     process,
		bridgeSetup: bridgeSetup,
		monitor:     monitor,
		workerCount: workerCount,
	}
}

// Initialize brings the platform up: provisions the bridge, spawns the
// worker pool, starts the monitor and returns an initial health snapshot.
// Calling it on a running orchestrator is a no-op reported as
// "already_initialized".
func (o *Orchestrator) Initialize(ctx context.Context) (map[string]interface{}, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.initialized {
		return map[string]interface{}{"status": "already_initialized"}, nil
	}

	result := map[string]interface{}{"status": "initialized"}

	if o.bridgeSetup != nil {
		state, err := o.bridgeSetup.EnsureSystemSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("bridge provisioning failed: %w", err)
		}
		result["bridge_session"] = state
		result["webhook"] = o.bridgeSetup.Configure()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	pool := processor.New(o.queue, o.process)
	for i := 1; i <= o.workerCount; i++ {
		o.wg.Add(1)
		go func(id int) {
			defer o.wg.Done()
			pool.Run(runCtx, id)
		}(i)
	}
	o.running = o.workerCount
	result["workers"] = o.workerCount

	if o.monitor != nil {
		o.monitor.Start(runCtx)
		result["health"] = o.monitor.GetSystemHealth(ctx)
	}

	o.initialized = true
	logrus.WithField("workers", o.workerCount).Info("[ORCHESTRATOR] Platform initialized")
	return result, nil
}

// Shutdown stops the monitor and drains the worker pool. Safe to call when
// not initialized. The queue's store stays open so a Reinitialize can reuse
// it; the owning process closes it on exit.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutdownLocked()
}

func (o *Orchestrator) shutdownLocked() {
	if !o.initialized {
		return
	}

	if o.monitor != nil {
		o.monitor.Stop()
	}

	o.cancel()
	o.wg.Wait()
	o.running = 0
	o.cancel = nil

	o.initialized = false
	logrus.Info("[ORCHESTRATOR] Platform stopped")
}

// Reinitialize is a full stop-then-start cycle.
func (o *Orchestrator) Reinitialize(ctx context.Context) (map[string]interface{}, error) {
	o.mu.Lock()
	o.shutdownLocked()
	o.mu.Unlock()
	return o.Initialize(ctx)
}

// GetStatus reports orchestrator state, queue depth and the latest health
// snapshot without triggering new component checks.
func (o *Orchestrator) GetStatus(ctx context.Context) map[string]interface{} {
	o.mu.Lock()
	status := map[string]interface{}{
		"initialized": o.initialized,
		"workers": map[string]int{
			"configured": o.workerCount,
			"running":    o.running,
		},
	}
	o.mu.Unlock()

	if stats, err := o.queue.GetQueueStats(ctx); err == nil {
		status["queue"] = stats
	} else {
		status["queue_error"] = err.Error()
	}

	if o.monitor != nil {
		if last := o.monitor.LastHealth(); last != nil {
			status["health"] = last
			if bridgeCheck, ok := last.Components["bridge"]; ok {
				status["bridge"] = bridgeCheck
			}
		}
	}
	return status
}
