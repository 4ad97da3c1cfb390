// Portable fallbacks for hosts without clock_gettime/sched_setaffinity.
//
// The sculpture itself runs on Linux; this file keeps the simulator and the
// planner CLI building on macOS.

//go:build !linux

package clock

import "runtime"

func monotonicMicros() uint64 {
	return fallbackMicros()
}

// LockToCPU wires the calling goroutine to its OS thread. CPU affinity is not
// available on this platform and cpu is ignored.
func LockToCPU(cpu int) (unlock func(), err error) {
	runtime.LockOSThread()
	return runtime.UnlockOSThread, nil
}

// LockMemory is a no-op on this platform.
func LockMemory() error {
	return nil
}
