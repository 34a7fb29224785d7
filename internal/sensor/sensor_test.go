package sensor

import (
	"testing"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
)

func framePulses(frame [5]byte) []pulse {
	// idle pull-up, response low/high, then 40 bits of low + high
	pulses := []pulse{
		{gpio.High, 20 * time.Microsecond},
		{gpio.Low, 80 * time.Microsecond},
		{gpio.High, 80 * time.Microsecond},
	}
	for _, b := range frame {
		for bit := 7; bit >= 0; bit-- {
			pulses = append(pulses, pulse{gpio.Low, 50 * time.Microsecond})
			width := 27 * time.Microsecond
			if b&(1<<bit) != 0 {
				width = 70 * time.Microsecond
			}
			pulses = append(pulses, pulse{gpio.High, width})
		}
	}
	return append(pulses, pulse{gpio.Low, 50 * time.Microsecond})
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name        string
		frame       [5]byte
		temperature float64
		humidity    float64
	}{
		// 65.2%RH, 35.1C: datasheet example
		{"positive", [5]byte{0x02, 0x8C, 0x01, 0x5F, 0xEE}, 35.1, 65.2},
		{"negative", [5]byte{0x01, 0xF4, 0x80, 0x65, 0xDA}, -10.1, 50.0},
		{"zero", [5]byte{0, 0, 0, 0, 0}, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := decodeFrame(tt.frame)
			require.NoError(t, err)
			assert.InDelta(t, tt.temperature, r.Temperature, 1e-9)
			assert.InDelta(t, tt.humidity, r.Humidity, 1e-9)
		})
	}
}

func TestDecodeFrameChecksum(t *testing.T) {
	_, err := decodeFrame([5]byte{0x02, 0x8C, 0x01, 0x5F, 0xEF})
	assert.ErrorContains(t, err, "checksum")
}

func TestDecodeFrameHumidityRange(t *testing.T) {
	// 0x03E9 = 100.1%
	_, err := decodeFrame([5]byte{0x03, 0xE9, 0x00, 0x00, 0xEC})
	assert.ErrorContains(t, err, "humidity")
}

func TestDecodePulses(t *testing.T) {
	r, err := decodePulses(framePulses([5]byte{0x02, 0x8C, 0x01, 0x5F, 0xEE}))
	require.NoError(t, err)
	assert.InDelta(t, 35.1, r.Temperature, 1e-9)
	assert.InDelta(t, 65.2, r.Humidity, 1e-9)
}

func TestDecodePulsesShortFrame(t *testing.T) {
	pulses := framePulses([5]byte{0x02, 0x8C, 0x01, 0x5F, 0xEE})
	_, err := decodePulses(pulses[:30])
	assert.ErrorContains(t, err, "short frame")
}

func TestSimulatedStaysInRange(t *testing.T) {
	cfg := DefaultSimulatedConfig()
	s := newSimulatedWithSeed(cfg, 42)

	for i := 0; i < 500; i++ {
		r, err := s.Read(4)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, r.Temperature, cfg.MinTemp)
		assert.LessOrEqual(t, r.Temperature, cfg.MaxTemp)
		assert.GreaterOrEqual(t, r.Humidity, cfg.MinHumidity)
		assert.LessOrEqual(t, r.Humidity, cfg.MaxHumidity)
	}
}

func TestSimulatedFailures(t *testing.T) {
	cfg := DefaultSimulatedConfig()
	cfg.FailureRate = 1
	s := newSimulatedWithSeed(cfg, 1)

	_, err := s.Read(17)
	require.Error(t, err)
	assert.True(t, errors.IsSensor(err))
	assert.Contains(t, err.Error(), "pin 17")
}

func TestSimulatedClosed(t *testing.T) {
	s := newSimulatedWithSeed(DefaultSimulatedConfig(), 1)
	require.NoError(t, s.Close())

	_, err := s.Read(4)
	assert.True(t, errors.IsSensor(err))
}

func TestSimulatedInvalidRangeFallsBack(t *testing.T) {
	s := newSimulatedWithSeed(SimulatedConfig{FailureRate: 0.5}, 1)
	assert.Equal(t, DefaultSimulatedConfig().MaxTemp, s.cfg.MaxTemp)
	assert.Equal(t, 0.5, s.cfg.FailureRate)
}

func TestNewUnknownType(t *testing.T) {
	_, err := New(Config{Type: "thermocouple"})
	require.Error(t, err)
	assert.True(t, errors.IsConfig(err))
}

func TestNewSimulated(t *testing.T) {
	src, err := New(Config{Type: TypeSimulated})
	require.NoError(t, err)
	assert.Equal(t, "Simulated", src.Name())
	assert.NoError(t, src.Close())
}

func TestReadingString(t *testing.T) {
	r := Reading{Temperature: 21.5, Humidity: 40}
	assert.Equal(t, "Temperature: 21.50°C, Humidity: 40.00%", r.String())
}

// fakeClock advances only when the DHT22 sleeps.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(d time.Duration) {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
}

func fakeDHT22(retries int) (*DHT22, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	d := newDHT22(retries)
	d.now = clock.Now
	d.sleep = clock.Sleep
	return d, clock
}

func TestDHT22RetriesUntilSuccess(t *testing.T) {
	d, clock := fakeDHT22(2)

	attempts := 0
	r, err := d.readRetry(4, func() (Reading, error) {
		attempts++
		if attempts < 3 {
			return Reading{}, errors.New().WithMessage(errors.ErrSensorRead, "checksum mismatch")
		}
		return Reading{Temperature: 21.5, Humidity: 45}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.InDelta(t, 21.5, r.Temperature, 1e-9)
	assert.Equal(t, clock.now, r.Timestamp)
	assert.Equal(t, []time.Duration{dhtMinInterval, dhtMinInterval}, clock.sleeps)
}

func TestDHT22RetriesExhausted(t *testing.T) {
	d, clock := fakeDHT22(1)

	attempts := 0
	_, err := d.readRetry(4, func() (Reading, error) {
		attempts++
		return Reading{}, errors.New().WithMessage(errors.ErrSensorRead, "no response")
	})
	require.Error(t, err)
	assert.True(t, errors.IsSensor(err))
	assert.Contains(t, err.Error(), "2 attempts")
	assert.Equal(t, 2, attempts)
	assert.Len(t, clock.sleeps, 1)
}

func TestDHT22HonoursMinInterval(t *testing.T) {
	d, clock := fakeDHT22(0)
	ok := func() (Reading, error) { return Reading{Temperature: 20, Humidity: 40}, nil }

	_, err := d.readRetry(4, ok)
	require.NoError(t, err)
	assert.Empty(t, clock.sleeps)

	clock.now = clock.now.Add(500 * time.Millisecond)
	_, err = d.readRetry(4, ok)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, clock.sleeps)
}

func TestDHT22NegativeRetries(t *testing.T) {
	d, _ := fakeDHT22(-3)
	assert.Equal(t, 0, d.retries)
}
