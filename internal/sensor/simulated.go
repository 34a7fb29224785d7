package sensor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// SimulatedConfig bounds the values produced by the simulated sensor.
type SimulatedConfig struct {
	MinTemp     float64
	MaxTemp     float64
	MinHumidity float64
	MaxHumidity float64
	// FailureRate is the probability in [0,1] that a read fails.
	FailureRate float64
}

// DefaultSimulatedConfig returns indoor-ish ranges.
func DefaultSimulatedConfig() SimulatedConfig {
	return SimulatedConfig{
		MinTemp:     18.0,
		MaxTemp:     26.0,
		MinHumidity: 30.0,
		MaxHumidity: 60.0,
	}
}

// Simulated produces a bounded random walk, for development without
// hardware.
type Simulated struct {
	cfg         SimulatedConfig
	rand        *rand.Rand
	temperature float64
	humidity    float64
	closed      bool
	mu          sync.Mutex
}

func NewSimulated(cfg SimulatedConfig) *Simulated {
	return newSimulatedWithSeed(cfg, time.Now().UnixNano())
}

func newSimulatedWithSeed(cfg SimulatedConfig, seed int64) *Simulated {
	if cfg.MaxTemp <= cfg.MinTemp || cfg.MaxHumidity <= cfg.MinHumidity {
		failure := cfg.FailureRate
		cfg = DefaultSimulatedConfig()
		cfg.FailureRate = failure
	}

	return &Simulated{
		cfg:         cfg,
		rand:        rand.New(rand.NewSource(seed)),
		temperature: (cfg.MinTemp + cfg.MaxTemp) / 2,
		humidity:    (cfg.MinHumidity + cfg.MaxHumidity) / 2,
	}
}

func (s *Simulated) Name() string {
	return "Simulated"
}

func (s *Simulated) Read(pin int) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Reading{}, readError(pin, fmt.Errorf("simulated sensor is closed"))
	}
	if s.cfg.FailureRate > 0 && s.rand.Float64() < s.cfg.FailureRate {
		return Reading{}, readError(pin, fmt.Errorf("simulated timeout"))
	}

	s.temperature = clamp(s.temperature+(s.rand.Float64()-0.5), s.cfg.MinTemp, s.cfg.MaxTemp)
	s.humidity = clamp(s.humidity+(s.rand.Float64()-0.5)*2, s.cfg.MinHumidity, s.cfg.MaxHumidity)

	return Reading{
		Timestamp:   time.Now(),
		Temperature: s.temperature,
		Humidity:    s.humidity,
	}, nil
}

func (s *Simulated) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

func clamp(value, minValue, maxValue float64) float64 {
	if value < minValue {
		return minValue
	}
	if value > maxValue {
		return maxValue
	}

	return value
}
