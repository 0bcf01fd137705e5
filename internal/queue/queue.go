package queue

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// DispatchTopic carries campaign ids whose send loop should run.
const DispatchTopic = "campaign_dispatch"

// Queue moves campaign dispatch triggers between the scheduler/controller
// side and whichever process runs the delivery worker.
type Queue interface {
	Publish(topic string, campaignID int) error
	Subscribe(topic string, handler func(campaignID int) error) error
}

// InMemoryQueue runs dispatch in-process; the default for single-binary
// deployments and tests.
type InMemoryQueue struct {
	mu       sync.Mutex
	handlers map[string][]func(campaignID int) error
}

func NewInMemoryQueue() *InMemoryQueue {
	return &InMemoryQueue{
		handlers: make(map[string][]func(campaignID int) error),
	}
}

type job struct {
	campaignID int
	retryCount int
	maxRetries int
}

// Publish hands the campaign id to all subscribers asynchronously.
func (q *InMemoryQueue) Publish(topic string, campaignID int) error {
	q.mu.Lock()
	handlers := q.handlers[topic]
	q.mu.Unlock()

	if len(handlers) == 0 {
		return fmt.Errorf("no subscribers for topic %s", topic)
	}

	j := job{campaignID: campaignID, maxRetries: 3}
	for _, handler := range handlers {
		go q.processJob(handler, j)
	}
	return nil
}

func (q *InMemoryQueue) processJob(handler func(campaignID int) error, j job) {
	for j.retryCount <= j.maxRetries {
		err := handler(j.campaignID)
		if err == nil {
			return // ACK
		}

		j.retryCount++
		log.Printf("dispatch job failed (attempt %d/%d) campaign=%d: %v\n", j.retryCount, j.maxRetries, j.campaignID, err)

		if j.retryCount > j.maxRetries {
			log.Printf("dispatch job permanently failed after %d attempts, campaign=%d\n", j.maxRetries, j.campaignID)
			return
		}

		// Exponential-ish backoff before retry
		time.Sleep(time.Duration(j.retryCount*500) * time.Millisecond)
	}
}

func (q *InMemoryQueue) Subscribe(topic string, handler func(campaignID int) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[topic] = append(q.handlers[topic], handler)
	return nil
}
