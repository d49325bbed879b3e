package profile

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	gprofile "github.com/google/pprof/profile"
)

func fixedNow() time.Time { return time.Unix(1000, 0) }

func TestBuildProfileEncodesSamples(t *testing.T) {
	samples := []ProcessSample{
		{PID: 1, Comm: "init", Threads: 1, UserNanos: 500, SysNanos: 100},
		{PID: 7, Comm: "sh", Threads: 2, UserNanos: 10, SysNanos: 20},
	}
	p := BuildProfile(samples, fixedNow())
	require.Len(t, p.Sample, 2)
	require.Equal(t, []int64{500, 100}, p.Sample[0].Value)
	require.Equal(t, []string{"init"}, p.Sample[0].Label["comm"])
}

func TestDeviceReadProducesValidGzipProfile(t *testing.T) {
	d := &Device{
		Now: fixedNow,
		Collect: func() []ProcessSample {
			return []ProcessSample{{PID: 3, Comm: "worker", UserNanos: 42}}
		},
	}
	buf := make([]byte, 4096)
	n, err := d.Read(buf, 0)
	require.Zero(t, err)
	require.Greater(t, n, 0)

	got, perr := gprofile.Parse(bytes.NewReader(buf[:n]))
	require.NoError(t, perr)
	require.Len(t, got.Sample, 1)
	require.Equal(t, int64(42), got.Sample[0].Value[0])
}

func TestDeviceReadPastEndReturnsZero(t *testing.T) {
	d := &Device{Now: fixedNow}
	buf := make([]byte, 4096)
	n, _ := d.Read(buf, 0)
	more, err := d.Read(buf, int64(n)+1000)
	require.Zero(t, err)
	require.Zero(t, more)
}

func TestStatDeviceRendersCounters(t *testing.T) {
	d := &StatDevice{
		Sched: func() SchedCounters { return SchedCounters{Harts: 2, ReadyTotal: 5} },
		Collect: func() []ProcessSample {
			return []ProcessSample{{PID: 9, Comm: "idle", Threads: 1}}
		},
	}
	buf := make([]byte, 4096)
	n, err := d.Read(buf, 0)
	require.Zero(t, err)
	out := string(buf[:n])
	require.Contains(t, out, "harts 2")
	require.Contains(t, out, "pid 9 comm idle")
}
