package klock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeIRQ struct{ enabled bool }

func (f *fakeIRQ) Enabled() bool     { return f.enabled }
func (f *fakeIRQ) SetEnabled(v bool) { f.enabled = v }

func TestSpinlockSavesAndRestoresInterrupts(t *testing.T) {
	fake := &fakeIRQ{enabled: true}
	prev := SetIRQForTesting(fake)
	defer SetIRQForTesting(prev)

	var l Spinlock
	l.Lock()
	require.False(t, fake.enabled, "lock must disable interrupts")
	l.Unlock()
	require.True(t, fake.enabled, "unlock must restore prior state")
}

func TestSpinlockNestedDisabledStateStaysDisabled(t *testing.T) {
	fake := &fakeIRQ{enabled: false}
	prev := SetIRQForTesting(fake)
	defer SetIRQForTesting(prev)

	var l Spinlock
	l.Lock()
	l.Unlock()
	require.False(t, fake.enabled, "must not blindly re-enable interrupts")
}

func TestSpinlockWith(t *testing.T) {
	var l Spinlock
	ran := false
	l.With(func() { ran = true })
	require.True(t, ran)
	require.True(t, l.TryLock())
	l.Unlock()
}

type fakeThread struct {
	ready bool
}

func (f *fakeThread) MarkReady() { f.ready = true }

func TestCondvarNotifyOneFIFO(t *testing.T) {
	var waiting bool
	current := &fakeThread{}
	InstallSchedHooks(SchedHooks{
		Current:      func() ThreadRef { return current },
		MarkWaiting:  func() { waiting = true },
		YieldToSched: func() {},
	})
	var guard Spinlock
	guard.Lock()
	var cv Condvar
	a := &fakeThread{}
	b := &fakeThread{}
	current = a
	cv.Wait(&guard)
	require.True(t, waiting)
	require.Equal(t, 1, cv.Len())
	current = b
	cv.Wait(&guard)
	require.Equal(t, 2, cv.Len())
	guard.Unlock()

	cv.NotifyOne()
	require.True(t, a.ready)
	require.False(t, b.ready)
	require.Equal(t, 1, cv.Len())

	cv.NotifyAll()
	require.True(t, b.ready)
	require.Equal(t, 0, cv.Len())
}
