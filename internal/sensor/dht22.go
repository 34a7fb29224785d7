package sensor

import (
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/housemon/internal/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

const (
	dhtStartPulse   = 2 * time.Millisecond
	dhtCaptureLimit = 10 * time.Millisecond
	dhtMinInterval  = 2 * time.Second
	// High pulses longer than this encode a 1 bit (26-28us vs 70us).
	dhtBitThreshold = 48 * time.Microsecond
	dhtFrameBits    = 40
)

// pulse is one completed run of a constant line level.
type pulse struct {
	level gpio.Level
	width time.Duration
}

// DHT22 bit-bangs the single-wire DHT22/AM2302 protocol on a GPIO pin.
type DHT22 struct {
	mu       sync.Mutex
	pins     map[int]gpio.PinIO
	lastRead time.Time
	retries  int

	now   func() time.Time
	sleep func(time.Duration)
}

// DefaultDHT22Retries is the number of extra attempts after a failed read.
// Each retry waits out the sensor's 2 s minimum interval, so the loop is
// blocked for up to 2 s per retry.
const DefaultDHT22Retries = 2

// NewDHT22 initializes the periph.io host drivers. A failed read is
// retried up to retries times; a negative value means no retries.
func NewDHT22(retries int) (*DHT22, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.New().Wrap(errors.ErrSensorInit,
			fmt.Errorf("failed to initialize periph.io drivers: %w", err))
	}
	return newDHT22(retries), nil
}

func newDHT22(retries int) *DHT22 {
	return &DHT22{
		pins:    make(map[int]gpio.PinIO),
		retries: max(retries, 0),
		now:     time.Now,
		sleep:   time.Sleep,
	}
}

func (d *DHT22) Name() string {
	return "DHT22"
}

func (d *DHT22) Read(pin int) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.pin(pin)
	if err != nil {
		return Reading{}, readError(pin, err)
	}

	return d.readRetry(pin, func() (Reading, error) {
		pulses, err := capture(p)
		if err != nil {
			return Reading{}, err
		}
		return decodePulses(pulses)
	})
}

// readRetry calls attempt until it succeeds or retries are exhausted,
// keeping at least dhtMinInterval between consecutive attempts.
func (d *DHT22) readRetry(pin int, attempt func() (Reading, error)) (Reading, error) {
	var lastErr error

	for i := 0; i <= d.retries; i++ {
		if !d.lastRead.IsZero() {
			if wait := dhtMinInterval - d.now().Sub(d.lastRead); wait > 0 {
				d.sleep(wait)
			}
		}

		d.lastRead = d.now()
		r, err := attempt()
		if err == nil {
			r.Timestamp = d.now()
			return r, nil
		}
		lastErr = err
	}

	return Reading{}, readError(pin, fmt.Errorf("%d attempts: %w", d.retries+1, lastErr))
}

func (d *DHT22) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for n, p := range d.pins {
		if err := p.Halt(); err != nil {
			return fmt.Errorf("failed to halt GPIO%d: %w", n, err)
		}
	}
	d.pins = map[int]gpio.PinIO{}
	return nil
}

func (d *DHT22) pin(n int) (gpio.PinIO, error) {
	if p, ok := d.pins[n]; ok {
		return p, nil
	}
	p := gpioreg.ByName(fmt.Sprintf("GPIO%d", n))
	if p == nil {
		return nil, fmt.Errorf("no such pin GPIO%d", n)
	}
	d.pins[n] = p
	return p, nil
}

// capture sends the start signal and records the line levels the sensor
// answers with. Only completed runs are returned; the trailing idle level is
// dropped.
func capture(p gpio.PinIO) ([]pulse, error) {
	if err := p.Out(gpio.Low); err != nil {
		return nil, fmt.Errorf("failed to drive start pulse: %w", err)
	}
	time.Sleep(dhtStartPulse)

	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to release line: %w", err)
	}

	pulses := make([]pulse, 0, 2*dhtFrameBits+4)
	level := p.Read()
	start := time.Now()
	deadline := start.Add(dhtCaptureLimit)

	for now := start; now.Before(deadline); now = time.Now() {
		if l := p.Read(); l != level {
			pulses = append(pulses, pulse{level: level, width: now.Sub(start)})
			level = l
			start = now
		}
	}

	return pulses, nil
}

// decodePulses takes the last 40 high pulses as the data bits; anything
// before them is the sensor's response preamble.
func decodePulses(pulses []pulse) (Reading, error) {
	highs := make([]time.Duration, 0, len(pulses))
	for _, p := range pulses {
		if p.level == gpio.High {
			highs = append(highs, p.width)
		}
	}
	if len(highs) < dhtFrameBits {
		return Reading{}, fmt.Errorf("short frame: %d of %d bits", len(highs), dhtFrameBits)
	}

	var frame [5]byte
	for i, w := range highs[len(highs)-dhtFrameBits:] {
		frame[i/8] <<= 1
		if w > dhtBitThreshold {
			frame[i/8] |= 1
		}
	}

	return decodeFrame(frame)
}

func decodeFrame(frame [5]byte) (Reading, error) {
	sum := frame[0] + frame[1] + frame[2] + frame[3]
	if sum != frame[4] {
		return Reading{}, fmt.Errorf("checksum mismatch: got 0x%02X, want 0x%02X", frame[4], sum)
	}

	humidity := float64(uint16(frame[0])<<8|uint16(frame[1])) / 10
	temperature := float64(uint16(frame[2]&0x7F)<<8|uint16(frame[3])) / 10
	if frame[2]&0x80 != 0 {
		temperature = -temperature
	}

	if humidity > 100 {
		return Reading{}, fmt.Errorf("humidity out of range: %.1f%%", humidity)
	}

	return Reading{Temperature: temperature, Humidity: humidity}, nil
}
