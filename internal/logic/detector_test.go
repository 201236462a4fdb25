package logic

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/button-sensor/internal/gpio"
	"github.com/sweeney/button-sensor/internal/timer"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func newTestDetector(t *testing.T, pins ...int) (*Detector, *gpio.FakeSource, *timer.Fake) {
	t.Helper()
	src := gpio.NewFakeSource()
	tm := timer.NewFake()
	d := NewDetector(src, tm, Options{})
	require.NoError(t, d.Begin(pins))
	return d, src, tm
}

func TestNewDetectorDefaults(t *testing.T) {
	d := NewDetector(gpio.NewFakeSource(), timer.NewFake(), Options{})
	assert.Equal(t, DefaultDebounce, d.Options().Debounce)
	assert.Equal(t, DefaultLongPress, d.Options().LongPress)
	assert.Equal(t, StateStopped, d.State())
	assert.False(t, d.ToProcess())

	d = NewDetector(gpio.NewFakeSource(), timer.NewFake(), Options{Debounce: ms(50), LongPress: ms(700)})
	assert.Equal(t, ms(50), d.Options().Debounce)
	assert.Equal(t, ms(700), d.Options().LongPress)
}

func TestShortPress(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)
	assert.Equal(t, StateIdle, d.State())

	src.Emit(12, gpio.Low, 0)
	assert.Equal(t, StateArmed, d.State())
	assert.True(t, tm.Running())
	assert.Equal(t, DefaultLongPress, tm.Delay())
	assert.False(t, d.ToProcess())

	src.Emit(12, gpio.High, ms(300))
	require.True(t, d.ToProcess())
	assert.False(t, tm.Running(), "timer must be stopped on short press")

	pin, err := d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 12, pin)
	kind, err := d.Action()
	require.NoError(t, err)
	assert.Equal(t, ActionPressed, kind)

	a, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, Action{Pin: 12, Kind: ActionPressed, HeldFor: ms(300)}, a)

	require.NoError(t, d.Processed())
	assert.False(t, d.ToProcess())
	assert.Equal(t, StateIdle, d.State())
	assert.Equal(t, ActionCounts{Pressed: 1}, d.Counts())
}

func TestLongPress(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	require.True(t, tm.Fire())

	require.True(t, d.ToProcess())
	kind, err := d.Action()
	require.NoError(t, err)
	assert.Equal(t, ActionLongPressed, kind)
	a, _ := d.Pending()
	assert.Equal(t, DefaultLongPress, a.HeldFor)

	// Release of the still-held button does not re-resolve
	src.Emit(12, gpio.High, ms(1500))
	a, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, ActionLongPressed, a.Kind)
	assert.Equal(t, ActionCounts{LongPressed: 1}, d.Counts())

	require.NoError(t, d.Processed())
	assert.Equal(t, StateIdle, d.State())
}

func TestLongPressReleaseAfterProcessedIgnored(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	tm.Fire()
	require.NoError(t, d.Processed())

	// Button is still physically down; its release must not produce anything
	src.Emit(12, gpio.High, ms(1500))
	assert.False(t, d.ToProcess())
	assert.Equal(t, StateIdle, d.State())
}

func TestReleaseAtDebounceThresholdIsPress(t *testing.T) {
	d, src, _ := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, ms(1000))
	src.Emit(12, gpio.High, ms(1000)+DefaultDebounce)

	require.True(t, d.ToProcess())
	kind, _ := d.Action()
	assert.Equal(t, ActionPressed, kind)
}

func TestReleaseJustBeforeLongPressIsPress(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(999))

	require.True(t, d.ToProcess())
	kind, _ := d.Action()
	assert.Equal(t, ActionPressed, kind)
	assert.False(t, tm.Fire(), "stopped timer must not fire")
}

func TestSubDebounceReleaseProducesNoAction(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)

	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(50))
	assert.False(t, d.ToProcess())

	// Bounce does not resolve, unlock or restart the timer
	assert.Equal(t, StateArmed, d.State())
	assert.True(t, tm.Running())
	assert.Equal(t, 1, tm.Starts())

	// Timer expires with the pin released: sequence abandoned
	require.True(t, tm.Fire())
	assert.False(t, d.ToProcess())
	assert.Equal(t, StateIdle, d.State())
	assert.Equal(t, ActionCounts{Abandoned: 1}, d.Counts())

	// Ready for a new press on any pin
	src.Emit(13, gpio.Low, ms(2000))
	src.Emit(13, gpio.High, ms(2400))
	pin, err := d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 13, pin)
}

func TestBounceDoesNotRestartTiming(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	// Contact bounce on press
	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(5))
	src.Emit(12, gpio.Low, ms(10))
	assert.Equal(t, 1, tm.Starts(), "bounce must not re-arm the timer")

	// Real release measured from the first falling edge
	src.Emit(12, gpio.High, ms(250))
	require.True(t, d.ToProcess())
	a, _ := d.Pending()
	assert.Equal(t, ActionPressed, a.Kind)
	assert.Equal(t, ms(250), a.HeldFor)
}

func TestBounceThenHoldIsLongPress(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(20))
	src.Emit(12, gpio.Low, ms(30))

	// The timer armed at t=0 decides, not one armed at the last bounce
	require.True(t, tm.Fire())
	require.True(t, d.ToProcess())
	kind, _ := d.Action()
	assert.Equal(t, ActionLongPressed, kind)
	assert.Equal(t, 1, tm.Starts())
}

func TestOtherPinIgnoredWhileArmed(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)

	src.Emit(12, gpio.Low, 0)
	src.Emit(13, gpio.Low, ms(100))
	src.Emit(13, gpio.High, ms(400))
	assert.False(t, d.ToProcess())
	assert.Equal(t, 1, tm.Starts())

	src.Emit(12, gpio.High, ms(500))
	pin, err := d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 12, pin)
	require.NoError(t, d.Processed())

	// After consumption pin 13 starts a fresh sequence
	src.Emit(13, gpio.Low, ms(600))
	assert.Equal(t, StateArmed, d.State())
	src.Emit(13, gpio.High, ms(900))
	pin, err = d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 13, pin)
}

func TestEdgesIgnoredWhileResolved(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)

	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(300))
	require.True(t, d.ToProcess())

	src.Emit(13, gpio.Low, ms(400))
	src.Emit(13, gpio.High, ms(700))
	src.Emit(12, gpio.Low, ms(800))
	assert.False(t, tm.Fire(), "no sequence may be armed while resolved")

	a, ok := d.Pending()
	require.True(t, ok)
	assert.Equal(t, Action{Pin: 12, Kind: ActionPressed, HeldFor: ms(300)}, a)
	assert.Equal(t, 1, tm.Starts())
}

func TestReleaseWithoutPressIgnored(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.High, ms(100))
	assert.Equal(t, StateIdle, d.State())
	assert.Equal(t, 0, tm.Starts())
}

func TestProcessedWithoutActionIsNoop(t *testing.T) {
	d, src, _ := newTestDetector(t, 12)

	assert.ErrorIs(t, d.Processed(), ErrNoPendingAction)
	assert.Equal(t, StateIdle, d.State())

	// While armed, Processed must not unlock the sequence
	src.Emit(12, gpio.Low, 0)
	assert.ErrorIs(t, d.Processed(), ErrNoPendingAction)
	assert.Equal(t, StateArmed, d.State())

	src.Emit(12, gpio.High, ms(300))
	require.NoError(t, d.Processed())
	assert.ErrorIs(t, d.Processed(), ErrNoPendingAction, "second acknowledgement")
	assert.Equal(t, ActionCounts{Pressed: 1}, d.Counts())
}

func TestPollWithoutAction(t *testing.T) {
	d, _, _ := newTestDetector(t, 12)

	_, err := d.Pin()
	assert.ErrorIs(t, err, ErrNoPendingAction)
	_, err = d.Action()
	assert.ErrorIs(t, err, ErrNoPendingAction)
	_, ok := d.Pending()
	assert.False(t, ok)
}

func TestStaleExpiryIgnored(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)

	src.Emit(12, gpio.Low, 0)
	stale := tm.Callback()
	src.Emit(12, gpio.High, ms(300))
	require.NoError(t, d.Processed())

	src.Emit(13, gpio.Low, ms(900))
	// Expiry of the first sequence arrives late
	stale()
	assert.False(t, d.ToProcess())
	assert.Equal(t, StateArmed, d.State())

	require.True(t, tm.Fire())
	pin, err := d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 13, pin)
	kind, _ := d.Action()
	assert.Equal(t, ActionLongPressed, kind)
}

func TestStaleExpiryAfterPressIgnored(t *testing.T) {
	d, src, tm := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	stale := tm.Callback()
	src.Emit(12, gpio.High, ms(300))

	// Expiry racing with the stop must not overwrite the latched press
	stale()
	kind, err := d.Action()
	require.NoError(t, err)
	assert.Equal(t, ActionPressed, kind)
}

func TestBeginValidation(t *testing.T) {
	tooMany := make([]int, MaxButtons+1)
	for i := range tooMany {
		tooMany[i] = i
	}

	tt := []struct {
		name string
		pins []int
	}{
		{"empty", nil},
		{"duplicate", []int{12, 13, 12}},
		{"negative", []int{-1}},
		{"out of range", []int{12, gpio.MaxPin + 1}},
		{"too many", tooMany},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			src := gpio.NewFakeSource()
			d := NewDetector(src, timer.NewFake(), Options{})
			err := d.Begin(tc.pins)
			assert.ErrorIs(t, err, ErrInvalidPin)
			assert.Equal(t, StateStopped, d.State())
			for _, p := range tc.pins {
				assert.False(t, src.Watched(p), "pin %d must not be attached", p)
			}
		})
	}
}

func TestBeginTwice(t *testing.T) {
	d, _, _ := newTestDetector(t, 12)
	assert.ErrorIs(t, d.Begin([]int{13}), ErrAlreadyStarted)
	assert.Equal(t, StateIdle, d.State())
}

func TestBeginRollsBackOnWatchFailure(t *testing.T) {
	src := gpio.NewFakeSource()
	src.FailPin = 13
	d := NewDetector(src, timer.NewFake(), Options{})

	err := d.Begin([]int{12, 13, 14})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidPin)
	assert.False(t, src.Watched(12))
	assert.False(t, src.Watched(14))
	assert.Equal(t, StateStopped, d.State())

	// A later Begin is allowed
	src.FailPin = -1
	require.NoError(t, d.Begin([]int{12, 13}))
}

func TestEndWithoutBegin(t *testing.T) {
	d := NewDetector(gpio.NewFakeSource(), timer.NewFake(), Options{})
	assert.ErrorIs(t, d.End(), ErrNotStarted)
}

func TestEndDuringSequence(t *testing.T) {
	d, src, tm := newTestDetector(t, 12, 13)

	src.Emit(12, gpio.Low, 0)
	stale := tm.Callback()
	require.NoError(t, d.End())

	assert.False(t, tm.Running(), "timer must be stopped")
	assert.False(t, src.Watched(12))
	assert.False(t, src.Watched(13))
	assert.Equal(t, StateStopped, d.State())

	// Nothing reaches the detector any more
	assert.False(t, src.Emit(12, gpio.High, ms(300)))
	stale()
	assert.False(t, d.ToProcess())
	assert.ErrorIs(t, d.End(), ErrNotStarted)
}

func TestEndDropsPendingAction(t *testing.T) {
	d, src, _ := newTestDetector(t, 12)

	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(300))
	require.True(t, d.ToProcess())

	require.NoError(t, d.End())
	assert.False(t, d.ToProcess())
	assert.ErrorIs(t, d.Processed(), ErrNoPendingAction)
}

func TestRestartAfterEnd(t *testing.T) {
	d, src, _ := newTestDetector(t, 12)
	src.Emit(12, gpio.Low, 0)
	src.Emit(12, gpio.High, ms(300))
	require.NoError(t, d.End())

	require.NoError(t, d.Begin([]int{27}))
	assert.Equal(t, StateIdle, d.State())
	assert.Equal(t, ActionCounts{}, d.Counts(), "counters reset on Begin")

	src.Emit(27, gpio.Low, ms(1000))
	src.Emit(27, gpio.High, ms(1300))
	pin, err := d.Pin()
	require.NoError(t, err)
	assert.Equal(t, 27, pin)
}

func TestCustomThresholds(t *testing.T) {
	src := gpio.NewFakeSource()
	tm := timer.NewFake()
	d := NewDetector(src, tm, Options{Debounce: ms(30), LongPress: ms(500)})
	require.NoError(t, d.Begin([]int{5}))

	src.Emit(5, gpio.Low, 0)
	assert.Equal(t, ms(500), tm.Delay())
	src.Emit(5, gpio.High, ms(40))

	kind, err := d.Action()
	require.NoError(t, err)
	assert.Equal(t, ActionPressed, kind)
}

// TestSingleSlotInvariant feeds random edge streams and checks that a latched
// action is never overwritten before it is processed.
func TestSingleSlotInvariant(t *testing.T) {
	pins := []int{12, 13, 14, 27}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 50; run++ {
		d, src, tm := newTestDetector(t, pins...)
		now := time.Duration(0)
		consumed := 0

		var held Action
		holding := false
		for step := 0; step < 200; step++ {
			now += time.Duration(rng.Intn(400)) * time.Millisecond
			switch r := rng.Intn(10); {
			case r < 4:
				src.Emit(pins[rng.Intn(len(pins))], gpio.Low, now)
			case r < 8:
				src.Emit(pins[rng.Intn(len(pins))], gpio.High, now)
			case r < 9:
				tm.Fire()
			default:
				if d.ToProcess() {
					require.NoError(t, d.Processed())
					consumed++
					holding = false
				}
			}

			a, ok := d.Pending()
			if holding {
				require.True(t, ok, "run %d step %d: pending action lost", run, step)
				require.Equal(t, held, a, "run %d step %d: pending action overwritten", run, step)
			} else if ok {
				held = a
				holding = true
			}
		}

		c := d.Counts()
		latched := consumed
		if holding {
			latched++
		}
		assert.Equal(t, latched, c.Pressed+c.LongPressed, "run %d", run)
	}
}

func TestWithRealAlarm(t *testing.T) {
	src := gpio.NewFakeSource()
	d := NewDetector(src, timer.NewAlarm(), Options{Debounce: ms(5), LongPress: ms(30)})
	require.NoError(t, d.Begin([]int{12}))
	defer d.End()

	src.Emit(12, gpio.Low, 0)
	require.Eventually(t, d.ToProcess, time.Second, ms(5))

	kind, err := d.Action()
	require.NoError(t, err)
	assert.Equal(t, ActionLongPressed, kind)
}
