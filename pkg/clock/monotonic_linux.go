//go:build linux

package clock

import (
	"runtime"

	"golang.org/x/sys/unix"
)

func monotonicMicros() uint64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return fallbackMicros()
	}
	return uint64(ts.Sec)*1_000_000 + uint64(ts.Nsec)/1_000
}

// LockToCPU wires the calling goroutine to its OS thread and, when cpu is
// non-negative, restricts that thread to the given CPU. The step loop busy
// polls; keeping it on one core avoids migrations that show up as jitter in
// the step timing. Call Unlock when the loop returns.
func LockToCPU(cpu int) (unlock func(), err error) {
	runtime.LockOSThread()
	unlock = runtime.UnlockOSThread
	if cpu < 0 {
		return unlock, nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return unlock, err
	}
	return unlock, nil
}

// LockMemory pins current and future pages so the loop never page faults.
func LockMemory() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}
