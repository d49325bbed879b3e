package timer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpireRunsInDeadlineOrder(t *testing.T) {
	q := New()
	var order []int
	q.Register(30, func() { order = append(order, 3) })
	q.Register(10, func() { order = append(order, 1) })
	q.Register(20, func() { order = append(order, 2) })

	n := q.Expire(25)
	require.Equal(t, 2, n)
	require.Equal(t, []int{1, 2}, order)

	d, ok := q.NextDeadline()
	require.True(t, ok)
	require.Equal(t, uint64(30), d)
}

func TestExpireTiesBreakFIFO(t *testing.T) {
	q := New()
	var order []int
	q.Register(5, func() { order = append(order, 1) })
	q.Register(5, func() { order = append(order, 2) })
	q.Expire(5)
	require.Equal(t, []int{1, 2}, order)
}

func TestNextDeadlineEmpty(t *testing.T) {
	q := New()
	_, ok := q.NextDeadline()
	require.False(t, ok)
}
