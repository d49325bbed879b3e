package sched

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"rvcore/internal/klock"
	"rvcore/internal/task"
)

func newTestHart(t *testing.T, id int) *Hart {
	t.Helper()
	h := NewHart(id)
	RegisterHart(h)
	return h
}

func TestSchedulePicksFIFO(t *testing.T) {
	Init()
	h := newTestHart(t, 100)

	a := task.NewThread(1, nil, 4096)
	b := task.NewThread(2, nil, 4096)
	h.Enqueue(a)
	h.Enqueue(b)

	require.Same(t, a, h.Schedule())
	require.Equal(t, task.Running, a.Status())
	require.Same(t, b, h.Schedule())
}

func TestRunHandsBatonToOneThreadAtATime(t *testing.T) {
	Init()
	h := newTestHart(t, 101)

	var order []int
	var mu chanRecorder
	a := task.NewThread(1, nil, 4096)
	a.HartID = h.ID
	b := task.NewThread(2, nil, 4096)
	b.HartID = h.ID

	Spawn(a, func() {
		mu.record(&order, 1)
		Yield(a)
		mu.record(&order, 3)
	})
	Spawn(b, func() {
		mu.record(&order, 2)
	})

	h.Enqueue(a)
	h.Enqueue(b)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() { h.Run(stop); close(done) }()

	require.Eventually(t, func() bool {
		mu.lock.Lock()
		defer mu.lock.Unlock()
		return len(order) == 3
	}, time.Second, time.Millisecond)

	close(stop)
	<-done

	mu.lock.Lock()
	defer mu.lock.Unlock()
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestCondvarWaitParksAndNotifyOneResumes(t *testing.T) {
	Init()
	h := newTestHart(t, 102)

	var guard klock.Spinlock
	var cv klock.Condvar
	var woke chanRecorder
	var order []int

	waiter := task.NewThread(1, nil, 4096)
	waiter.HartID = h.ID
	notifier := task.NewThread(2, nil, 4096)
	notifier.HartID = h.ID

	Spawn(waiter, func() {
		guard.Lock()
		cv.Wait(&guard)
		guard.Unlock()
		woke.record(&order, 1)
	})
	Spawn(notifier, func() {
		woke.record(&order, 0)
		guard.Lock()
		cv.NotifyOne()
		guard.Unlock()
	})

	h.Enqueue(waiter)
	h.Enqueue(notifier)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() { h.Run(stop); close(done) }()

	require.Eventually(t, func() bool {
		woke.lock.Lock()
		defer woke.lock.Unlock()
		return len(order) == 2
	}, time.Second, time.Millisecond)

	close(stop)
	<-done

	woke.lock.Lock()
	defer woke.lock.Unlock()
	require.Equal(t, []int{0, 1}, order)
}

// chanRecorder serializes appends to a shared order slice from multiple
// thread-body goroutines; tests read it only after joining every thread.
type chanRecorder struct {
	lock sync.Mutex
}

func (r *chanRecorder) record(order *[]int, v int) {
	r.lock.Lock()
	*order = append(*order, v)
	r.lock.Unlock()
}
