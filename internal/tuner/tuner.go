// Package tuner is the closed feedback loop: it periodically reads recent
// quality judgments and nudges the routing threshold, at most once per
// rolling 24 hours.
package tuner

import (
	"log"
	"time"
)

// Tuning parameters. The threshold is the stored min_length_for_reasoning
// value; the router derives its score cut from it.
const (
	SampleLimit = 500

	lowWatermark  = 0.55
	highWatermark = 0.70

	Step    = 100
	Floor   = 350
	Ceiling = 900

	Cooldown = 24 * time.Hour
)

// Store is the slice of persistence the tuner needs.
type Store interface {
	RecentHelpfulness(limit int) ([]float64, error)
	Threshold() (value int, updatedAt time.Time, err error)
	UpdateThreshold(value int, now time.Time) error
}

// Tuner holds write authority over the threshold. Run exactly one instance;
// the 24h guard doubles as the idempotency mechanism if a second instance
// ever races it.
type Tuner struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Tuner {
	return &Tuner{store: store, now: time.Now}
}

// Tune runs one cycle: average recent judged helpfulness, compute the
// candidate threshold, and write it only when it differs from the current
// value and the cooldown has expired. Everything else is a no-op.
func (t *Tuner) Tune() error {
	values, err := t.store.RecentHelpfulness(SampleLimit)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	current, updatedAt, err := t.store.Threshold()
	if err != nil {
		return err
	}

	next := current
	switch {
	case avg < lowWatermark:
		next = max(Floor, current-Step)
	case avg > highWatermark:
		next = min(Ceiling, current+Step)
	}

	if next == current {
		return nil
	}

	now := t.now()
	if now.Sub(updatedAt) < Cooldown {
		log.Printf("auto-tune skipped (cooldown): candidate=%d current=%d avg=%.3f", next, current, avg)
		return nil
	}

	if err := t.store.UpdateThreshold(next, now); err != nil {
		return err
	}
	log.Printf("auto-tune set min_length_for_reasoning=%d (was %d) avg_helpfulness=%.3f samples=%d",
		next, current, avg, len(values))
	return nil
}
