// README: Asynchronous persistence queue with retry and backoff. Detector
// loops enqueue writes here so storage latency never blocks tick processing.
package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tripguard/internal/config"
	"tripguard/internal/metrics"
)

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Persister executes queued writes in order with bounded retries. A job that
// exhausts its attempts is logged and dropped; every store write behind it is
// idempotent, so an operator can replay from the event log.
type Persister struct {
	jobs   chan job
	policy config.Policy
	log    *logrus.Entry
}

func NewPersister(pol config.Policy, log *logrus.Entry) *Persister {
	return &Persister{
		jobs:   make(chan job, 256),
		policy: pol,
		log:    log,
	}
}

// Enqueue queues one write. It blocks when the queue is full; callers sit on
// the session loop, which applies backpressure to tick intake rather than
// losing writes.
func (p *Persister) Enqueue(name string, fn func(ctx context.Context) error) {
	p.jobs <- job{name: name, fn: fn}
}

// Run drains the queue until ctx ends.
func (p *Persister) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-p.jobs:
			p.execute(ctx, j)
		}
	}
}

func (p *Persister) execute(ctx context.Context, j job) {
	for attempt := 0; attempt < p.policy.Session.PersistMaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.PersistRetries.Inc()
			backoff := p.policy.Session.PersistBaseBackoff * time.Duration(1<<(attempt-1))
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		err := j.fn(ctx)
		if err == nil {
			return
		}
		p.log.WithError(err).WithFields(logrus.Fields{
			"job":     j.name,
			"attempt": attempt + 1,
		}).Warn("persist attempt failed")
	}
	p.log.WithField("job", j.name).Error("persist job dropped after max attempts")
}
