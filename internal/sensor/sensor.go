// Package sensor provides IMU sample sources for the attitude loop.
package sensor

import "errors"

var (
	// ErrMalformed is returned for a sample line that cannot be parsed. The
	// source stays usable and the next Read continues with the following line.
	ErrMalformed = errors.New("malformed sample")

	// ErrClosed is returned by Read once the source has been closed.
	ErrClosed = errors.New("source closed")
)

// Sample is one accelerometer + gyroscope reading.
type Sample struct {
	Acc      [3]float64 // g
	Gyro     [3]float64 // deg/s
	Seq      uint64
	SysTicks int64 // Unix time (ns) at which the sample was read
}

// Source delivers IMU samples. A Source cannot be read by two goroutines at the
// same time, but Close may be called from another goroutine to unblock Read.
type Source interface {
	Read() (Sample, error)
	Close() error
	ID() string
}
