// Package trend maintains rolling failure-rate history per segment key and
// classifies each window's rate as stable, spiking, or declining.
package trend

import (
	"sync"
)

// Signal classifies a segment's failure-rate trajectory.
type Signal string

const (
	SignalStable    Signal = "stable"
	SignalSpike     Signal = "spike_detected"
	SignalDeclining Signal = "declining"
)

// Valid reports whether s is one of the closed signal set.
func (s Signal) Valid() bool {
	switch s {
	case SignalStable, SignalSpike, SignalDeclining:
		return true
	}
	return false
}

// Options tune the spike and decline thresholds.
type Options struct {
	// HistorySize bounds the per-key ring of past window rates.
	HistorySize int
	// SpikeMultiplier is the relative jump over baseline required for a spike.
	SpikeMultiplier float64
	// MinAbsoluteDelta guards against relative spikes off near-zero baselines:
	// a 1%→4% jump is a 4x multiple but operationally insignificant.
	MinAbsoluteDelta float64
}

// Detector owns all trend history exclusively. Other components read signals
// through Classify; only the detector mutates the rings, once per window close.
type Detector struct {
	opts Options

	mu        sync.Mutex
	histories map[string]*ring
}

// NewDetector constructs a detector with bounded per-key history.
func NewDetector(opts Options) *Detector {
	if opts.HistorySize < 2 {
		opts.HistorySize = 2
	}
	return &Detector{
		opts:      opts,
		histories: make(map[string]*ring),
	}
}

// Classify returns the temporal signal for currentRate against the key's
// recorded history. The history holds prior windows only, so the baseline
// already excludes the current observation. Classify never mutates state.
func (d *Detector) Classify(key string, currentRate float64) Signal {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.histories[key]
	if h == nil || h.len() < 2 {
		return SignalStable
	}

	baseline := h.mean()
	switch {
	case currentRate >= baseline*d.opts.SpikeMultiplier && currentRate-baseline >= d.opts.MinAbsoluteDelta:
		return SignalSpike
	case currentRate <= baseline*0.5:
		return SignalDeclining
	default:
		return SignalStable
	}
}

// Commit appends the window's observed rate to the key's ring, evicting the
// oldest entry beyond the configured size. Call exactly once per key per
// window close, after all of the window's classifications are done.
func (d *Detector) Commit(key string, rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.histories[key]
	if h == nil {
		h = &ring{size: d.opts.HistorySize}
		d.histories[key] = h
	}
	h.push(rate)
}

// History returns a copy of the key's recorded rates, oldest first.
func (d *Detector) History(key string) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.histories[key]
	if h == nil {
		return nil
	}
	return h.snapshot()
}

// Baseline returns the mean of the key's recorded history and whether enough
// points exist for classification.
func (d *Detector) Baseline(key string) (float64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	h := d.histories[key]
	if h == nil || h.len() < 2 {
		return 0, false
	}
	return h.mean(), true
}

// ring is a fixed-capacity append-evict buffer of window rates.
type ring struct {
	rates []float64
	size  int
}

func (r *ring) push(rate float64) {
	r.rates = append(r.rates, rate)
	if len(r.rates) > r.size {
		r.rates = r.rates[len(r.rates)-r.size:]
	}
}

func (r *ring) len() int { return len(r.rates) }

func (r *ring) mean() float64 {
	if len(r.rates) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range r.rates {
		sum += v
	}
	return sum / float64(len(r.rates))
}

func (r *ring) snapshot() []float64 {
	out := make([]float64, len(r.rates))
	copy(out, r.rates)
	return out
}
