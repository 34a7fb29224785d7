// Package history keeps the bounded window of recent readings used to
// compute rolling averages.
package history

import "codeberg.org/mutker/housemon/internal/errors"

// windowMinutes is the span the window covers: four hours.
const windowMinutes = 240

// Sample is one (temperature, humidity) pair held by the window.
type Sample struct {
	Temperature float64
	Humidity    float64
}

// Capacity returns the number of samples spanning the averaging window at
// the given polling delay: floor(240 / (delay/60)), never less than 1.
func Capacity(delaySeconds int) (int, error) {
	if delaySeconds <= 0 {
		return 0, errors.New().WithData(errors.ErrInvalidDelay, delaySeconds)
	}

	capacity := windowMinutes * 60 / delaySeconds
	if capacity < 1 {
		capacity = 1
	}

	return capacity, nil
}

// Window is a fixed-capacity FIFO ring of samples. It is not safe for
// concurrent use; the poll loop is its only owner.
type Window struct {
	samples []Sample
	head    int
	size    int
}

// NewWindow creates a window for the given polling delay.
func NewWindow(delaySeconds int) (*Window, error) {
	capacity, err := Capacity(delaySeconds)
	if err != nil {
		return nil, err
	}
	return NewWindowWithCapacity(capacity), nil
}

// NewWindowWithCapacity creates a window holding at most capacity samples.
// A capacity below 1 is raised to 1.
func NewWindowWithCapacity(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{samples: make([]Sample, capacity)}
}

// Push adds a sample, evicting the oldest one when the window is full, and
// returns the mean temperature and humidity over the samples now held.
func (w *Window) Push(temperature, humidity float64) (avgTemperature, avgHumidity float64) {
	tail := (w.head + w.size) % len(w.samples)
	w.samples[tail] = Sample{Temperature: temperature, Humidity: humidity}

	if w.size < len(w.samples) {
		w.size++
	} else {
		w.head = (w.head + 1) % len(w.samples)
	}

	return w.Averages()
}

// Averages returns the current means, or zeros for an empty window.
func (w *Window) Averages() (avgTemperature, avgHumidity float64) {
	if w.size == 0 {
		return 0, 0
	}

	var tempSum, humiditySum float64
	for i := 0; i < w.size; i++ {
		s := w.samples[(w.head+i)%len(w.samples)]
		tempSum += s.Temperature
		humiditySum += s.Humidity
	}

	n := float64(w.size)
	return tempSum / n, humiditySum / n
}

// Len returns the number of samples held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the maximum number of samples held.
func (w *Window) Cap() int {
	return len(w.samples)
}

// Samples returns the held samples, oldest first.
func (w *Window) Samples() []Sample {
	out := make([]Sample, w.size)
	for i := range out {
		out[i] = w.samples[(w.head+i)%len(w.samples)]
	}
	return out
}
