package kheap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocZeroesNothingButTracksUsage(t *testing.T) {
	h := New(make([]byte, 1<<16))
	b := h.Alloc(20, 8)
	require.NotNil(t, b)
	require.Len(t, b, 20)
	require.EqualValues(t, 32, h.UsedBytes(), "20 bytes rounds up to the 32-byte slab class")
}

func TestDeallocReusesSlabSlot(t *testing.T) {
	h := New(make([]byte, 1<<16))
	a := h.Alloc(10, 8)
	h.Dealloc(a, 10)
	require.EqualValues(t, 0, h.UsedBytes())
	b := h.Alloc(10, 8)
	require.NotNil(t, b)
}

func TestLargeAllocationRoundsToPages(t *testing.T) {
	h := New(make([]byte, 1<<20))
	b := h.Alloc(5000, 16)
	require.NotNil(t, b)
	require.EqualValues(t, 8192, h.UsedBytes())
}

func TestExhaustionReturnsNil(t *testing.T) {
	h := New(make([]byte, 64))
	first := h.Alloc(32, 8)
	require.NotNil(t, first)
	second := h.Alloc(2048, 8)
	require.Nil(t, second, "oversized request on a tiny arena must fail, not panic")
}

func TestExhaustedReportsWatermark(t *testing.T) {
	h := New(make([]byte, 16))
	require.False(t, h.Exhausted())
	h.Alloc(16, 8)
	require.True(t, h.Exhausted())
}
