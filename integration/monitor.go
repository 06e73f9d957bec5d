package integration

import (
	"context"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/zapa-ai/zapa/infrastructure/valkey"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/msgqueue"
)

const (
	// DefaultMonitorInterval between health sweeps.
	DefaultMonitorInterval = 30 * time.Second
	// checkTimeout bounds each individual component check.
	checkTimeout = 5 * time.Second
	// reapThreshold: processing records older than this are returned to the
	// low lane, covering worker crashes between dequeue and acknowledge.
	reapThreshold = 10 * time.Minute

	// Queue health ceilings.
	maxFailedHealthy  = 100
	maxBacklogHealthy = 1000
)

// ComponentHealth is one component's verdict plus diagnostic details.
type ComponentHealth struct {
	Healthy bool                   `json:"healthy"`
	Details map[string]interface{} `json:"details"`
}

// SystemHealth aggregates every component; healthy iff all are.
type SystemHealth struct {
	Healthy    bool                       `json:"healthy"`
	Components map[string]ComponentHealth `json:"components"`
	CheckedAt  time.Time                  `json:"checked_at"`
}

// Monitor periodically checks the database, the queue store, the bridge and
// the queue itself, and reaps stranded processing records.
type Monitor struct {
	db           *gorm.DB
	valkeyClient *valkey.Client
	queue        *msgqueue.Queue
	bridgeSetup  *BridgeSetup
	interval     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	last   *SystemHealth
}

func NewMonitor(db *gorm.DB, valkeyClient *valkey.Client, queue *msgqueue.Queue, bridgeSetup *BridgeSetup, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}
	return &Monitor{
		db:           db,
		valkeyClient: valkeyClient,
		queue:        queue,
		bridgeSetup:  bridgeSetup,
		interval:     interval,
	}
}

// Start launches the periodic sweep. Idempotent while running.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				m.sweep(runCtx)
			}
		}
	}()
	logrus.WithField("interval", m.interval).Info("[MONITOR] Started")
}

// Stop halts the sweep and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		logrus.Info("[MONITOR] Stopped")
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	health := m.GetSystemHealth(ctx)
	if !health.Healthy {
		logrus.WithField("components", unhealthyNames(health)).Warn("[MONITOR] System degraded")
	}

	if n, err := m.queue.ReapProcessing(ctx, reapThreshold); err != nil {
		logrus.WithError(err).Error("[MONITOR] Reap failed")
	} else if n > 0 {
		logrus.WithField("count", n).Warn("[MONITOR] Requeued stranded records")
	}
}

// GetSystemHealth runs the four component checks concurrently and
// aggregates the verdicts.
func (m *Monitor) GetSystemHealth(ctx context.Context) *SystemHealth {
	health := &SystemHealth{
		Components: make(map[string]ComponentHealth, 4),
		CheckedAt:  time.Now().UTC(),
	}

	type result struct {
		name  string
		check ComponentHealth
	}
	results := make(chan result, 4)

	checks := map[string]func(context.Context) ComponentHealth{
		"database": m.checkDatabase,
		"store":    m.checkStore,
		"bridge":   m.checkBridge,
		"queue":    m.checkQueue,
	}

	var wg sync.WaitGroup
	for name, check := range checks {
		wg.Add(1)
		go func(name string, check func(context.Context) ComponentHealth) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			results <- result{name: name, check: check(checkCtx)}
		}(name, check)
	}
	wg.Wait()
	close(results)

	health.Healthy = true
	for r := range results {
		health.Components[r.name] = r.check
		if !r.check.Healthy {
			health.Healthy = false
		}
	}

	m.mu.Lock()
	m.last = health
	m.mu.Unlock()
	return health
}

// LastHealth returns the most recent snapshot, or nil before the first check.
func (m *Monitor) LastHealth() *SystemHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) checkDatabase(ctx context.Context) ComponentHealth {
	details := map[string]interface{}{}

	if err := m.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		details["error"] = err.Error()
		return ComponentHealth{Healthy: false, Details: details}
	}

	var users, messages int64
	if err := m.db.WithContext(ctx).Model(&models.User{}).Count(&users).Error; err == nil {
		details["users"] = humanize.Comma(users)
	}
	if err := m.db.WithContext(ctx).Model(&models.Message{}).Count(&messages).Error; err == nil {
		details["messages"] = humanize.Comma(messages)
	}
	return ComponentHealth{Healthy: true, Details: details}
}

func (m *Monitor) checkStore(ctx context.Context) ComponentHealth {
	details := map[string]interface{}{}

	if m.valkeyClient == nil {
		// In-process store: liveness is the queue's ping.
		if err := m.queue.Ping(ctx); err != nil {
			details["error"] = err.Error()
			return ComponentHealth{Healthy: false, Details: details}
		}
		details["backend"] = "memory"
		return ComponentHealth{Healthy: true, Details: details}
	}

	if err := m.valkeyClient.Ping(ctx); err != nil {
		details["error"] = err.Error()
		return ComponentHealth{Healthy: false, Details: details}
	}
	if mem, clients, err := m.valkeyClient.MemoryInfo(ctx); err == nil {
		details["used_memory"] = mem
		details["connected_clients"] = clients
	}
	return ComponentHealth{Healthy: true, Details: details}
}

func (m *Monitor) checkBridge(ctx context.Context) ComponentHealth {
	if m.bridgeSetup == nil {
		return ComponentHealth{Healthy: false, Details: map[string]interface{}{"error": "bridge not configured"}}
	}
	healthy, details := m.bridgeSetup.CheckBridgeHealth(ctx)
	return ComponentHealth{Healthy: healthy, Details: details}
}

func (m *Monitor) checkQueue(ctx context.Context) ComponentHealth {
	details := map[string]interface{}{}

	stats, err := m.queue.GetQueueStats(ctx)
	if err != nil {
		details["error"] = err.Error()
		return ComponentHealth{Healthy: false, Details: details}
	}

	details["stats"] = stats
	backlog := stats.Total - stats.Failed
	healthy := stats.Failed < maxFailedHealthy && backlog < maxBacklogHealthy
	if !healthy {
		details["failed"] = humanize.Comma(stats.Failed)
		details["backlog"] = humanize.Comma(backlog)
	}
	return ComponentHealth{Healthy: healthy, Details: details}
}

func unhealthyNames(h *SystemHealth) []string {
	var names []string
	for name, c := range h.Components {
		if !c.Healthy {
			names = append(names, name)
		}
	}
	return names
}
