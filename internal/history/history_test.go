package history

import (
	"testing"

	"codeberg.org/mutker/housemon/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapacity(t *testing.T) {
	tests := []struct {
		delay int
		want  int
	}{
		{1, 14400},
		{2, 7200},
		{7, 2057},
		{60, 240},
		{300, 48},
		{301, 47},
		{14400, 1},
		{14401, 1},
		{100000, 1},
	}

	for _, tt := range tests {
		got, err := Capacity(tt.delay)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "delay %d", tt.delay)
		assert.GreaterOrEqual(t, got, 1)
	}
}

func TestCapacityRejectsNonPositiveDelay(t *testing.T) {
	for _, delay := range []int{0, -1, -300} {
		_, err := Capacity(delay)
		require.Error(t, err)
		assert.True(t, errors.IsConfig(err))
		assert.Equal(t, errors.ErrInvalidDelay, errors.CodeOf(err))
	}

	_, err := NewWindow(0)
	assert.Error(t, err)
}

func TestPushAveragesHeldEntries(t *testing.T) {
	w := NewWindowWithCapacity(4)

	avgT, avgH := w.Push(20, 40)
	assert.InDelta(t, 20.0, avgT, 1e-9)
	assert.InDelta(t, 40.0, avgH, 1e-9)

	avgT, avgH = w.Push(22, 50)
	assert.InDelta(t, 21.0, avgT, 1e-9)
	assert.InDelta(t, 45.0, avgH, 1e-9)

	avgT, avgH = w.Push(24, 60)
	assert.InDelta(t, 22.0, avgT, 1e-9)
	assert.InDelta(t, 50.0, avgH, 1e-9)
	assert.Equal(t, 3, w.Len())
}

func TestPushTwoReadingsFromEmpty(t *testing.T) {
	w, err := NewWindow(300)
	require.NoError(t, err)

	w.Push(70.0, 35.5)
	avgT, avgH := w.Push(71.0, 36.5)

	assert.InDelta(t, 70.5, avgT, 1e-9)
	assert.InDelta(t, 36.0, avgH, 1e-9)
}

func TestPushEvictsOldest(t *testing.T) {
	w := NewWindowWithCapacity(3)
	w.Push(1, 10)
	w.Push(2, 20)
	w.Push(3, 30)

	avgT, avgH := w.Push(4, 40)

	assert.InDelta(t, 3.0, avgT, 1e-9)
	assert.InDelta(t, 30.0, avgH, 1e-9)
	assert.Equal(t, []Sample{{2, 20}, {3, 30}, {4, 40}}, w.Samples())
}

func TestWindowOfOneTracksLatest(t *testing.T) {
	w := NewWindowWithCapacity(1)
	for _, v := range []float64{5, -3, 12.25} {
		avgT, avgH := w.Push(v, v*2)
		assert.Equal(t, v, avgT)
		assert.Equal(t, v*2, avgH)
		assert.Equal(t, 1, w.Len())
	}
}

func TestSlidingWindowAtFiveMinuteDelay(t *testing.T) {
	w, err := NewWindow(300)
	require.NoError(t, err)
	require.Equal(t, 48, w.Cap())

	var avgT, avgH float64
	for i := 1; i <= 50; i++ {
		avgT, avgH = w.Push(float64(i), float64(100+i))
	}

	samples := w.Samples()
	require.Len(t, samples, 48)
	assert.Equal(t, 3.0, samples[0].Temperature)
	assert.Equal(t, 50.0, samples[47].Temperature)

	// mean of 3..50
	assert.InDelta(t, 26.5, avgT, 1e-9)
	assert.InDelta(t, 126.5, avgH, 1e-9)
}

func TestMeanMatchesAllPushesBelowCapacity(t *testing.T) {
	w := NewWindowWithCapacity(10)
	values := []float64{3.5, 7.25, -1, 0, 12.125, 8}

	sum := 0.0
	for i, v := range values {
		sum += v
		avgT, _ := w.Push(v, 0)
		assert.InDelta(t, sum/float64(i+1), avgT, 1e-9)
	}
}

func TestAveragesEmpty(t *testing.T) {
	avgT, avgH := NewWindowWithCapacity(2).Averages()
	assert.Zero(t, avgT)
	assert.Zero(t, avgH)
}
