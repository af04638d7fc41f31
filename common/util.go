package common

import "time"

var processStart = time.Now()

// NanoTime returns monotonic nanoseconds since process start. Timing samples
// are durations and differences, the epoch does not matter.
func NanoTime() uint64 {
	return uint64(time.Since(processStart))
}
