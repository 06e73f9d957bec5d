package processor

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/msgqueue"
)

const (
	// idleSleep paces the loop when every lane is empty.
	idleSleep = time.Second
	// errorSleep pauses the loop after a store-level failure so a broken
	// connection does not spin hot.
	errorSleep = 5 * time.Second
)

// ProcessFunc runs one conversational turn for a dequeued record. A non-nil
// error sends the record down the retry path.
type ProcessFunc func(ctx context.Context, userID uint, content string) error

// Processor is the worker loop between the queue and the agent service.
type Processor struct {
	queue   *msgqueue.Queue
	process ProcessFunc
}

func New(queue *msgqueue.Queue, process ProcessFunc) *Processor {
	return &Processor{queue: queue, process: process}
}

// Run loops until ctx is cancelled: dequeue, process, acknowledge or retry.
func (p *Processor) Run(ctx context.Context, workerID int) {
	log := logrus.WithField("worker", workerID)
	log.Info("[WORKER] Started")

	for {
		select {
		case <-ctx.Done():
			log.Info("[WORKER] Stopped")
			return
		default:
		}

		processed, err := p.ProcessSingle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("[WORKER] Stopped")
				return
			}
			log.WithError(err).Error("[WORKER] Loop error")
			sleep(ctx, errorSleep)
			continue
		}
		if !processed {
			sleep(ctx, idleSleep)
		}
	}
}

// ProcessSingle performs at most one dequeue-and-process cycle. Returns
// whether a record was handled. Used by Run and by manual triggers.
func (p *Processor) ProcessSingle(ctx context.Context) (bool, error) {
	msg, err := p.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if msg == nil {
		return false, nil
	}

	log := logrus.WithFields(logrus.Fields{
		"id":      msg.ID,
		"user_id": msg.UserID,
	})

	if procErr := p.process(ctx, msg.UserID, msg.Content); procErr != nil {
		log.WithError(procErr).Warn("[WORKER] Turn failed")
		again, err := p.queue.Retry(ctx, msg, procErr.Error())
		if err != nil {
			return true, err
		}
		if !again {
			log.Error("[WORKER] Message moved to failed queue")
		}
		return true, nil
	}

	ok, err := p.queue.Acknowledge(ctx, msg.ID)
	if err != nil {
		return true, err
	}
	if !ok {
		// Reaped or acknowledged elsewhere; at-least-once makes this benign.
		log.Warn("[WORKER] Record vanished from processing before acknowledge")
	}
	log.Info("[WORKER] Turn completed")
	return true, nil
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
