// Package profile backs the two counter pseudo-files behind the DStat and
// DProf minor device numbers: a pprof-format profiling dump and a
// plain-text scheduler/allocator counter dump. Both are fd.Ops values
// exactly like internal/fd.Console — two fixed inodes, not a procfs;
// opening either always returns the same inode, regenerated fresh on
// every read from offset zero.
package profile

import (
	"bytes"
	"fmt"
	"time"

	gprofile "github.com/google/pprof/profile"

	"rvcore/internal/abi"
	"rvcore/internal/klock"
)

// ProcessSample is one process's accounting snapshot, the unit
// internal/syscall's dispatcher already tracks via task.Accnt.
type ProcessSample struct {
	PID       int64
	Comm      string
	Threads   int
	UserNanos int64
	SysNanos  int64
}

// BuildProfile assembles a pprof Profile with one sample per process and
// two value types, user and sys nanoseconds, mirroring the two counters
// task.Accnt already keeps (Userns/Sysns) rather than inventing a third.
// Every sample shares one synthetic "process" location/function: there is
// no call-stack sampler in this kernel, only cumulative per-process
// counters, so a single leaf frame is all the format needs to be valid.
func BuildProfile(samples []ProcessSample, now time.Time) *gprofile.Profile {
	fn := &gprofile.Function{ID: 1, Name: "process"}
	loc := &gprofile.Location{ID: 1, Line: []gprofile.Line{{Function: fn}}}

	p := &gprofile.Profile{
		SampleType: []*gprofile.ValueType{
			{Type: "user", Unit: "nanoseconds"},
			{Type: "sys", Unit: "nanoseconds"},
		},
		Function:  []*gprofile.Function{fn},
		Location:  []*gprofile.Location{loc},
		TimeNanos: now.UnixNano(),
	}
	for _, s := range samples {
		p.Sample = append(p.Sample, &gprofile.Sample{
			Location: []*gprofile.Location{loc},
			Value:    []int64{s.UserNanos, s.SysNanos},
			Label:    map[string][]string{"comm": {s.Comm}},
			NumLabel: map[string][]int64{"pid": {s.PID}, "threads": {int64(s.Threads)}},
		})
	}
	return p
}

// Device is the D_PROF inode: fd.Ops.Read serializes a fresh pprof
// profile (gzip-compressed protobuf, per (*gprofile.Profile).Write) on
// every read that starts at offset zero, caching the bytes for any
// follow-up reads the caller makes deeper into the same snapshot.
type Device struct {
	Collect func() []ProcessSample
	Now     func() time.Time

	lock klock.Spinlock
	data []byte
}

func (d *Device) regenerateLocked() abi.Err_t {
	now := time.Now()
	if d.Now != nil {
		now = d.Now()
	}
	var samples []ProcessSample
	if d.Collect != nil {
		samples = d.Collect()
	}
	var buf bytes.Buffer
	if err := BuildProfile(samples, now).Write(&buf); err != nil {
		return abi.EIO
	}
	d.data = buf.Bytes()
	return 0
}

func (d *Device) Read(dst []byte, offset int64) (int, abi.Err_t) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if offset == 0 {
		if err := d.regenerateLocked(); err != 0 {
			return 0, err
		}
	}
	if offset < 0 || offset >= int64(len(d.data)) {
		return 0, 0
	}
	return copy(dst, d.data[offset:]), 0
}

func (d *Device) Write(_ []byte, _ int64) (int, abi.Err_t) { return 0, abi.EACCES }
func (d *Device) Close() abi.Err_t                         { return 0 }
func (d *Device) Reopen() abi.Err_t                        { return 0 }

// StatDevice is the D_STAT inode: a plain-text counter dump, the cheap
// human-readable counterpart to Device's binary pprof output, for the
// same ProcessSample data plus whatever scheduler-wide counters Sched
// supplies.
type StatDevice struct {
	Collect func() []ProcessSample
	Sched   func() SchedCounters

	lock klock.Spinlock
	data []byte
}

// SchedCounters is the scheduler-wide snapshot StatDevice renders
// alongside per-process samples: ready-queue depth and hart count, the
// two numbers internal/sched already tracks per internal/sched.Hart.
type SchedCounters struct {
	Harts      int
	ReadyTotal int
}

func (d *StatDevice) regenerateLocked() {
	var buf bytes.Buffer
	if d.Sched != nil {
		sc := d.Sched()
		fmt.Fprintf(&buf, "harts %d\nready %d\n", sc.Harts, sc.ReadyTotal)
	}
	if d.Collect != nil {
		for _, s := range d.Collect() {
			fmt.Fprintf(&buf, "pid %d comm %s threads %d user_ns %d sys_ns %d\n",
				s.PID, s.Comm, s.Threads, s.UserNanos, s.SysNanos)
		}
	}
	d.data = buf.Bytes()
}

func (d *StatDevice) Read(dst []byte, offset int64) (int, abi.Err_t) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if offset == 0 {
		d.regenerateLocked()
	}
	if offset < 0 || offset >= int64(len(d.data)) {
		return 0, 0
	}
	return copy(dst, d.data[offset:]), 0
}

func (d *StatDevice) Write(_ []byte, _ int64) (int, abi.Err_t) { return 0, abi.EACCES }
func (d *StatDevice) Close() abi.Err_t                         { return 0 }
func (d *StatDevice) Reopen() abi.Err_t                        { return 0 }
