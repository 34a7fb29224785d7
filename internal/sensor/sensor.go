// Package sensor wraps the temperature/humidity hardware behind a small
// Source interface.
package sensor

import (
	"fmt"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
)

const (
	TypeDHT22     = "dht22"
	TypeBME280    = "bme280"
	TypeSimulated = "simulated"
)

// Reading is one raw sample from the sensor.
type Reading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature float64   `json:"temperature"` // Celsius
	Humidity    float64   `json:"humidity"`    // relative humidity, %
}

func (r Reading) String() string {
	return fmt.Sprintf("Temperature: %.2f°C, Humidity: %.2f%%", r.Temperature, r.Humidity)
}

// Source reads a sensor attached to pin. Failures are transient: callers
// skip the sample and try again on the next cycle.
type Source interface {
	Read(pin int) (Reading, error)
	Name() string
	Close() error
}

// Config selects and parameterizes a Source.
type Config struct {
	Type       string
	I2CBus     string
	I2CAddress uint16
	// Retries is the number of extra DHT22 read attempts per cycle.
	Retries    int
	Simulation SimulatedConfig
}

// New builds the Source named by cfg.Type.
func New(cfg Config) (Source, error) {
	switch cfg.Type {
	case TypeDHT22, "":
		return NewDHT22(cfg.Retries)
	case TypeBME280:
		return NewBME280(cfg.I2CBus, cfg.I2CAddress)
	case TypeSimulated:
		return NewSimulated(cfg.Simulation), nil
	default:
		return nil, errors.New().WithData(errors.ErrInvalidSensor, cfg.Type)
	}
}

func readError(pin int, err error) error {
	return errors.New().Wrap(errors.ErrSensorRead, fmt.Errorf("pin %d: %w", pin, err))
}

var (
	_ Source = (*DHT22)(nil)
	_ Source = (*BME280)(nil)
	_ Source = (*Simulated)(nil)
)
