package msgqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// Priority selects the lane a queued message waits in.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// DefaultDequeueOrder visits lanes highest first.
var DefaultDequeueOrder = []Priority{PriorityHigh, PriorityNormal, PriorityLow}

// QueuedMessage is the record that travels through the queue lanes.
type QueuedMessage struct {
	ID            string                 `json:"id"`
	UserID        uint                   `json:"user_id"`
	Content       string                 `json:"content"`
	Priority      Priority               `json:"priority"`
	RetryCount    int                    `json:"retry_count"`
	MaxRetries    int                    `json:"max_retries"`
	CreatedAt     time.Time              `json:"created_at"`
	LastAttemptAt *time.Time             `json:"last_attempt_at,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
}

// Config tunes the queue's retry and expiry policy.
type Config struct {
	KeyPrefix  string
	MaxRetries int
	// RetryDelay is the backoff base: the i-th retry sleeps delay*2^(i-1).
	RetryDelay time.Duration
	TTL        time.Duration
}

// DefaultConfig mirrors the production environment defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "zapa",
		MaxRetries: 3,
		RetryDelay: 60 * time.Second,
		TTL:        24 * time.Hour,
	}
}

// Stats is a point-in-time census of every lane.
type Stats struct {
	Queues     map[Priority]int64 `json:"queues"`
	Processing int64              `json:"processing"`
	Failed     int64              `json:"failed"`
	Total      int64              `json:"total"`
}

// Queue is a three-lane priority queue with a processing set and a
// dead-letter list, holding serialized QueuedMessage records.
type Queue struct {
	store Store
	cfg   Config

	// sleep is swappable in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store Store, cfg Config) *Queue {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "zapa"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &Queue{
		store: store,
		cfg:   cfg,
		sleep: sleepCtx,
	}
}

func (q *Queue) laneKey(p Priority) string { return fmt.Sprintf("%s:queue:%s", q.cfg.KeyPrefix, p) }
func (q *Queue) processingKey() string     { return q.cfg.KeyPrefix + ":queue:processing" }
func (q *Queue) failedKey() string         { return q.cfg.KeyPrefix + ":queue:failed" }

// Enqueue builds a record and pushes it onto the lane for priority,
// refreshing the lane's TTL.
func (q *Queue) Enqueue(ctx context.Context, userID uint, content string, priority Priority, metadata map[string]interface{}) (*QueuedMessage, error) {
	now := time.Now().UTC()
	msg := &QueuedMessage{
		ID:         fmt.Sprintf("%d:%d", userID, now.UnixMicro()),
		UserID:     userID,
		Content:    content,
		Priority:   priority,
		MaxRetries: q.cfg.MaxRetries,
		CreatedAt:  now,
		Metadata:   metadata,
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize queued message: %w", err)
	}

	key := q.laneKey(priority)
	if err := q.store.LPush(ctx, key, string(raw)); err != nil {
		return nil, fmt.Errorf("failed to enqueue message: %w", err)
	}
	if err := q.store.Expire(ctx, key, int64(q.cfg.TTL.Seconds())); err != nil {
		logrus.WithError(err).Warn("[QUEUE] Failed to refresh queue TTL")
	}

	logrus.WithFields(logrus.Fields{
		"id":       msg.ID,
		"priority": priority,
	}).Debug("[QUEUE] Message enqueued")
	return msg, nil
}

// Dequeue visits lanes in order and atomically moves the first available
// record into the processing set, stamped with the attempt time. Returns
// nil when every lane is empty.
func (q *Queue) Dequeue(ctx context.Context, priorities ...Priority) (*QueuedMessage, error) {
	if len(priorities) == 0 {
		priorities = DefaultDequeueOrder
	}

	for _, p := range priorities {
		raw, ok, err := q.store.RPopLPush(ctx, q.laneKey(p), q.processingKey())
		if err != nil {
			return nil, fmt.Errorf("failed to dequeue from %s: %w", p, err)
		}
		if !ok {
			continue
		}

		var msg QueuedMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			// A corrupt record would wedge the lane; drop it from processing.
			if _, remErr := q.store.LRem(ctx, q.processingKey(), raw); remErr != nil {
				logrus.WithError(remErr).Error("[QUEUE] Failed to drop corrupt record")
			}
			logrus.WithError(err).Error("[QUEUE] Dropped corrupt queued record")
			continue
		}

		now := time.Now().UTC()
		msg.LastAttemptAt = &now

		// Rewrite the processing copy so it carries the attempt timestamp.
		stamped, err := json.Marshal(&msg)
		if err == nil {
			if _, err := q.store.LRem(ctx, q.processingKey(), raw); err == nil {
				if err := q.store.LPush(ctx, q.processingKey(), string(stamped)); err != nil {
					logrus.WithError(err).Error("[QUEUE] Failed to restamp processing record")
				}
			}
		}
		return &msg, nil
	}
	return nil, nil
}

// Acknowledge removes the record with the given id from the processing set.
// Returns false when no such record is in flight.
func (q *Queue) Acknowledge(ctx context.Context, id string) (bool, error) {
	raw, found, err := q.findProcessing(ctx, id)
	if err != nil || !found {
		return false, err
	}
	if _, err := q.store.LRem(ctx, q.processingKey(), raw); err != nil {
		return false, fmt.Errorf("failed to acknowledge %s: %w", id, err)
	}
	logrus.WithField("id", id).Debug("[QUEUE] Message acknowledged")
	return true, nil
}

// Retry accounts a failed attempt. At the retry ceiling the record moves to
// the failed list and Retry returns false; otherwise it sleeps the
// exponential backoff and re-enters the low lane.
func (q *Queue) Retry(ctx context.Context, msg *QueuedMessage, errMsg string) (bool, error) {
	if raw, found, err := q.findProcessing(ctx, msg.ID); err != nil {
		return false, err
	} else if found {
		if _, err := q.store.LRem(ctx, q.processingKey(), raw); err != nil {
			return false, fmt.Errorf("failed to remove %s from processing: %w", msg.ID, err)
		}
	}

	msg.RetryCount++
	msg.Error = errMsg
	now := time.Now().UTC()
	msg.LastAttemptAt = &now

	raw, err := json.Marshal(msg)
	if err != nil {
		return false, fmt.Errorf("failed to serialize retry record: %w", err)
	}

	if msg.RetryCount >= msg.MaxRetries {
		if err := q.store.LPush(ctx, q.failedKey(), string(raw)); err != nil {
			return false, fmt.Errorf("failed to dead-letter %s: %w", msg.ID, err)
		}
		logrus.WithFields(logrus.Fields{
			"id":      msg.ID,
			"retries": msg.RetryCount,
			"error":   errMsg,
		}).Warn("[QUEUE] Message moved to failed")
		return false, nil
	}

	backoff := q.cfg.RetryDelay * (1 << (msg.RetryCount - 1))
	logrus.WithFields(logrus.Fields{
		"id":      msg.ID,
		"retry":   msg.RetryCount,
		"backoff": backoff,
	}).Info("[QUEUE] Retrying message")
	if err := q.sleep(ctx, backoff); err != nil {
		return false, err
	}

	if err := q.store.LPush(ctx, q.laneKey(PriorityLow), string(raw)); err != nil {
		return false, fmt.Errorf("failed to requeue %s: %w", msg.ID, err)
	}
	return true, nil
}

// GetQueueStats counts every lane.
func (q *Queue) GetQueueStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Queues: make(map[Priority]int64)}
	for _, p := range DefaultDequeueOrder {
		n, err := q.store.LLen(ctx, q.laneKey(p))
		if err != nil {
			return nil, fmt.Errorf("failed to count %s lane: %w", p, err)
		}
		stats.Queues[p] = n
		stats.Total += n
	}

	var err error
	if stats.Processing, err = q.store.LLen(ctx, q.processingKey()); err != nil {
		return nil, fmt.Errorf("failed to count processing: %w", err)
	}
	if stats.Failed, err = q.store.LLen(ctx, q.failedKey()); err != nil {
		return nil, fmt.Errorf("failed to count failed: %w", err)
	}
	stats.Total += stats.Processing + stats.Failed
	return stats, nil
}

// ClearFailed drops the dead-letter list, returning how many records it held.
func (q *Queue) ClearFailed(ctx context.Context) (int64, error) {
	n, err := q.store.LLen(ctx, q.failedKey())
	if err != nil {
		return 0, err
	}
	if err := q.store.Del(ctx, q.failedKey()); err != nil {
		return 0, err
	}
	logrus.WithField("count", n).Info("[QUEUE] Failed queue cleared")
	return n, nil
}

// RequeueFailed moves every dead-lettered record back to the normal lane
// with its retry accounting reset.
func (q *Queue) RequeueFailed(ctx context.Context) (int64, error) {
	raws, err := q.store.LRange(ctx, q.failedKey(), 0, -1)
	if err != nil {
		return 0, err
	}

	var moved int64
	for _, raw := range raws {
		var msg QueuedMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			logrus.WithError(err).Error("[QUEUE] Skipping corrupt failed record")
			continue
		}
		msg.RetryCount = 0
		msg.Error = ""

		reset, err := json.Marshal(&msg)
		if err != nil {
			continue
		}
		if err := q.store.LPush(ctx, q.laneKey(PriorityNormal), string(reset)); err != nil {
			return moved, fmt.Errorf("failed to requeue %s: %w", msg.ID, err)
		}
		moved++
	}

	if err := q.store.Del(ctx, q.failedKey()); err != nil {
		return moved, err
	}
	logrus.WithField("count", moved).Info("[QUEUE] Failed messages requeued")
	return moved, nil
}

// ReapProcessing moves records stranded in the processing set longer than
// olderThan back to the low lane. Covers worker crashes between dequeue and
// acknowledge.
func (q *Queue) ReapProcessing(ctx context.Context, olderThan time.Duration) (int64, error) {
	raws, err := q.store.LRange(ctx, q.processingKey(), 0, -1)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-olderThan)
	var reaped int64
	for _, raw := range raws {
		var msg QueuedMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		attempt := msg.CreatedAt
		if msg.LastAttemptAt != nil {
			attempt = *msg.LastAttemptAt
		}
		if attempt.After(cutoff) {
			continue
		}
		if _, err := q.store.LRem(ctx, q.processingKey(), raw); err != nil {
			return reaped, err
		}
		if err := q.store.LPush(ctx, q.laneKey(PriorityLow), raw); err != nil {
			return reaped, err
		}
		reaped++
	}
	if reaped > 0 {
		logrus.WithField("count", reaped).Warn("[QUEUE] Reaped stale processing records")
	}
	return reaped, nil
}

// Ping checks the backing store.
func (q *Queue) Ping(ctx context.Context) error {
	return q.store.Ping(ctx)
}

// Close releases the backing store connection.
func (q *Queue) Close() {
	q.store.Close()
}

func (q *Queue) findProcessing(ctx context.Context, id string) (string, bool, error) {
	raws, err := q.store.LRange(ctx, q.processingKey(), 0, -1)
	if err != nil {
		return "", false, fmt.Errorf("failed to scan processing: %w", err)
	}
	for _, raw := range raws {
		var msg QueuedMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			continue
		}
		if msg.ID == id {
			return raw, true, nil
		}
	}
	return "", false, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
