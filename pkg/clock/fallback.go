package clock

import "time"

var origin = time.Now()

func fallbackMicros() uint64 {
	return uint64(time.Since(origin) / time.Microsecond)
}
