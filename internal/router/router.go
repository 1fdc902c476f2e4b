// Package router decides which backend answers a message, from its
// complexity score and the set of currently available backends.
package router

import (
	"github.com/VivianFuVivianFu/Luma-sub002/internal/backend"
	"github.com/VivianFuVivianFu/Luma-sub002/internal/complexity"
)

// Decision routing reasons.
const (
	ReasonAboveThreshold     = "complexity-above-threshold"
	ReasonDefault            = "default"
	ReasonNoBackendAvailable = "no-backend-available"
)

// Decision is created once per request, consumed by the guarded invoker,
// and then discarded.
type Decision struct {
	BackendID            string
	Reason               string
	RequiresDeepAnalysis bool
}

// ThresholdSource exposes the current routing cut point. Reads are lock-free
// and may race with a concurrent tuner write; routing on a slightly stale
// threshold is accepted.
type ThresholdSource interface {
	ScoreCut() float64
}

// FixedThreshold is a ThresholdSource with a constant cut, used when the
// threshold store is unavailable and in tests.
type FixedThreshold float64

func (f FixedThreshold) ScoreCut() float64 { return float64(f) }

// DefaultScoreCut matches the stored default of 600 (min length / 1000).
const DefaultScoreCut = 0.6

// Policy maps scores to backends. Stateless apart from the threshold source;
// safe for unbounded concurrent use.
type Policy struct {
	thresholds ThresholdSource
}

func NewPolicy(thresholds ThresholdSource) *Policy {
	if thresholds == nil {
		thresholds = FixedThreshold(DefaultScoreCut)
	}
	return &Policy{thresholds: thresholds}
}

// Route picks a backend. First match wins:
//  1. score above threshold and the deep backend is up -> deep
//  2. default backend is up -> default
//  3. local responder, which needs no network and is always last
func (p *Policy) Route(score complexity.Score, caps map[string]bool) Decision {
	if score.Score > p.thresholds.ScoreCut() && caps[backend.IDDeep] {
		return Decision{
			BackendID:            backend.IDDeep,
			Reason:               ReasonAboveThreshold,
			RequiresDeepAnalysis: true,
		}
	}
	if caps[backend.IDDefault] {
		return Decision{BackendID: backend.IDDefault, Reason: ReasonDefault}
	}
	return Decision{BackendID: backend.IDLocal, Reason: ReasonNoBackendAvailable}
}
