package throughput

import "time"

type sample struct {
	at    time.Time
	bytes int64
}

// meter sums byte deltas over the last Window.
type meter struct {
	samples []sample
	last    time.Time
}

func (m *meter) add(at time.Time, delta int64) {
	// Clock jitter may report a time slightly before the previous sample.
	if at.Before(m.last) {
		at = m.last
	}
	m.last = at
	m.samples = append(m.samples, sample{at: at, bytes: delta})
	m.prune(at)
}

// prune drops samples that fell out of the window ending at now.
func (m *meter) prune(now time.Time) {
	cutoff := now.Add(-Window)
	i := 0
	for i < len(m.samples) && !m.samples[i].at.After(cutoff) {
		i++
	}
	if i > 0 {
		m.samples = append(m.samples[:0], m.samples[i:]...)
	}
}

// speed returns bytes per second over the window ending at now, never negative.
func (m *meter) speed(now time.Time) float64 {
	if now.Before(m.last) {
		now = m.last
	}
	cutoff := now.Add(-Window)
	var sum int64
	for _, s := range m.samples {
		if s.at.After(cutoff) {
			sum += s.bytes
		}
	}
	if sum <= 0 {
		return 0
	}
	return float64(sum) / Window.Seconds()
}
