package sensor

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/bmxx80"
	"periph.io/x/host/v3"
)

const DefaultBME280Address = 0x76

// BME280 reads a Bosch BME280 over I2C. The pin argument to Read is only
// used to label errors; the device is addressed on the bus.
type BME280 struct {
	device *bmxx80.Dev
	bus    i2c.BusCloser
	mu     sync.Mutex
}

// NewBME280 opens the named I2C bus ("" for the default bus) and connects
// to the device at address.
func NewBME280(busName string, address uint16) (*BME280, error) {
	errFactory := errors.New()

	if address == 0 {
		address = DefaultBME280Address
	}

	if _, err := host.Init(); err != nil {
		return nil, errFactory.Wrap(errors.ErrSensorInit,
			fmt.Errorf("failed to initialize periph.io drivers: %w", err))
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrSensorInit,
			fmt.Errorf("failed to open I2C bus '%s': %w", busName, err))
	}

	dev, err := bmxx80.NewI2C(bus, address, &bmxx80.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, errFactory.Wrap(errors.ErrSensorInit,
			fmt.Errorf("failed to initialize BME280 at address 0x%02X: %w", address, err))
	}

	return &BME280{device: dev, bus: bus}, nil
}

func (s *BME280) Name() string {
	return "BME280"
}

func (s *BME280) Read(pin int) (Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return Reading{}, readError(pin, fmt.Errorf("sensor closed"))
	}

	var env physic.Env
	if err := s.device.Sense(&env); err != nil {
		return Reading{}, readError(pin, err)
	}

	return Reading{
		Timestamp:   time.Now(),
		Temperature: env.Temperature.Celsius(),
		Humidity:    float64(env.Humidity) / float64(physic.PercentRH),
	}, nil
}

func (s *BME280) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error

	if s.device != nil {
		if err := s.device.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("failed to halt device: %w", err))
		}
		s.device = nil
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close I2C bus: %w", err))
		}
		s.bus = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
