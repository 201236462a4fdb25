package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAlarmFires(t *testing.T) {
	a := NewAlarm()
	fired := make(chan struct{}, 1)
	a.Start(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
}

func TestAlarmStop(t *testing.T) {
	a := NewAlarm()
	var n atomic.Int32
	a.Start(20*time.Millisecond, func() { n.Add(1) })
	a.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), n.Load())

	// Stopping twice is harmless
	a.Stop()
}

func TestAlarmRestartCancelsPrevious(t *testing.T) {
	a := NewAlarm()
	var first, second atomic.Int32
	a.Start(20*time.Millisecond, func() { first.Add(1) })
	a.Start(30*time.Millisecond, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestFakeFire(t *testing.T) {
	f := NewFake()
	assert.False(t, f.Fire(), "idle fake must not fire")

	calls := 0
	f.Start(time.Second, func() { calls++ })
	assert.True(t, f.Running())
	assert.Equal(t, time.Second, f.Delay())

	assert.True(t, f.Fire())
	assert.False(t, f.Running())
	assert.False(t, f.Fire(), "fires once per start")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, f.Starts())
}

func TestFakeStop(t *testing.T) {
	f := NewFake()
	calls := 0
	f.Start(time.Second, func() { calls++ })
	f.Stop()

	assert.False(t, f.Fire())
	assert.Equal(t, 0, calls)
	assert.Equal(t, 1, f.Stops())

	// The stale callback is still reachable for race simulation
	f.Callback()()
	assert.Equal(t, 1, calls)
}
