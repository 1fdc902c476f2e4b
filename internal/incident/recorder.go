// Package incident is the observability side channel: durable incident
// records plus best-effort operator pages. Both run on bounded background
// queues so the request path never waits on them and never sees their
// errors.
package incident

import (
	"log"
	"sync"

	"github.com/VivianFuVivianFu/Luma-sub002/internal/guard"
)

const recorderQueueSize = 256

// Store persists incident rows.
type Store interface {
	InsertIncident(inc guard.Incident) error
}

// Recorder writes incidents from a background worker. Record never blocks;
// when the queue is full the incident is dropped and counted in the log.
type Recorder struct {
	store Store
	queue chan guard.Incident

	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewRecorder(store Store) *Recorder {
	r := &Recorder{
		store: store,
		queue: make(chan guard.Incident, recorderQueueSize),
	}
	r.wg.Add(1)
	go r.worker()
	return r
}

// Record enqueues an incident. Fire-and-forget: a full queue drops the
// incident rather than stalling a request.
func (r *Recorder) Record(inc guard.Incident) {
	select {
	case r.queue <- inc:
	default:
		log.Printf("incident queue full, dropped kind=%s model=%s route=%s", inc.Kind, inc.Model, inc.Route)
	}
}

// Close drains the queue and stops the worker. Call once, at shutdown,
// after the request path has stopped producing.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.queue)
	})
	r.wg.Wait()
}

func (r *Recorder) worker() {
	defer r.wg.Done()
	for inc := range r.queue {
		if err := r.store.InsertIncident(inc); err != nil {
			log.Printf("incident insert error (ignored): %v", err)
		}
	}
}
