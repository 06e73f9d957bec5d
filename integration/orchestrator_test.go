package integration

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapa-ai/zapa/msgqueue"
)

func testQueue() *msgqueue.Queue {
	return msgqueue.New(msgqueue.NewMemoryStore(), msgqueue.Config{
		KeyPrefix:  "test",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	})
}

func TestOrchestrator_InitializeIsIdempotent(t *testing.T) {
	q := testQueue()
	o := NewOrchestrator(q, func(ctx context.Context, userID uint, content string) error {
		return nil
	}, nil, nil, 2)
	defer o.Shutdown()

	first, err := o.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "initialized", first["status"])
	assert.Equal(t, 2, first["workers"])

	second, err := o.Initialize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": "already_initialized"}, second)

	status := o.GetStatus(context.Background())
	workers := status["workers"].(map[string]int)
	assert.Equal(t, 2, workers["running"])
}

func TestOrchestrator_WorkersDrainQueue(t *testing.T) {
	q := testQueue()
	ctx := context.Background()

	var handled int64
	o := NewOrchestrator(q, func(ctx context.Context, userID uint, content string) error {
		atomic.AddInt64(&handled, 1)
		return nil
	}, nil, nil, 2)
	defer o.Shutdown()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, uint(i+1), "hi", msgqueue.PriorityNormal, nil)
		require.NoError(t, err)
	}

	_, err := o.Initialize(ctx)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&handled) == 5
	}, 5*time.Second, 10*time.Millisecond)

	stats, err := q.GetQueueStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, stats.Total)
}

func TestOrchestrator_ShutdownStopsWorkers(t *testing.T) {
	q := testQueue()
	o := NewOrchestrator(q, func(ctx context.Context, userID uint, content string) error {
		return nil
	}, nil, nil, 1)

	_, err := o.Initialize(context.Background())
	require.NoError(t, err)
	o.Shutdown()

	status := o.GetStatus(context.Background())
	assert.Equal(t, false, status["initialized"])
	workers := status["workers"].(map[string]int)
	assert.Equal(t, 0, workers["running"])

	// Shutdown again is a no-op.
	o.Shutdown()
}

func TestMonitor_QueueHealthThresholds(t *testing.T) {
	q := testQueue()
	ctx := context.Background()
	m := NewMonitor(nil, nil, q, nil, time.Minute)

	check := m.checkQueue(ctx)
	assert.True(t, check.Healthy)

	// Push the failed lane past its ceiling.
	for i := 0; i < 100; i++ {
		msg, err := q.Enqueue(ctx, 1, "x", msgqueue.PriorityNormal, nil)
		require.NoError(t, err)
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		require.NotNil(t, got)
		got.RetryCount = msg.MaxRetries
		_, err = q.Retry(ctx, got, "boom")
		require.NoError(t, err)
	}

	check = m.checkQueue(ctx)
	assert.False(t, check.Healthy)
}

func TestMonitor_StoreCheckUsesQueuePing(t *testing.T) {
	m := NewMonitor(nil, nil, testQueue(), nil, time.Minute)

	check := m.checkStore(context.Background())
	assert.True(t, check.Healthy)
	assert.Equal(t, "memory", check.Details["backend"])
}

func TestMonitor_BridgeMissing(t *testing.T) {
	m := NewMonitor(nil, nil, testQueue(), nil, time.Minute)

	check := m.checkBridge(context.Background())
	assert.False(t, check.Healthy)
}
