package metrics

import "time"

// Label keys understood by every Recorder
const (
	LabelNetwork = "network"
	LabelOutcome = "outcome"
)

// Recorder receives workflow counters and latencies
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// NoopRecorder discards everything
type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string)                    {}
func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
