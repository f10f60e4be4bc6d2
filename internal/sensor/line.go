package sensor

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// LineSource reads one sample per text line, in the format printed by the IMU
// firmware:
//
//	Accel: ax, ay, az,gx, gy, gz,roll,pitch,yaw
//
// The label and any fields after the sixth are optional and ignored. Blank
// lines and lines starting with '#' are skipped.
type LineSource struct {
	id      string
	scanner *bufio.Scanner
	closer  io.Closer
	closed  atomic.Bool
	seq     uint64
}

// NewLineSource returns a LineSource reading from r. If r is an io.Closer, it is
// closed together with the source.
func NewLineSource(id string, r io.Reader) *LineSource {
	s := &LineSource{
		id:      id,
		scanner: bufio.NewScanner(r),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *LineSource) ID() string {
	return s.id
}

// Seq returns the sequence number the next sample will carry.
func (s *LineSource) Seq() uint64 {
	return s.seq
}

// Read returns the next sample. It returns io.EOF once the reader is exhausted.
func (s *LineSource) Read() (Sample, error) {
	if s.closed.Load() {
		return Sample{}, ErrClosed
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sample, err := ParseLine(line)
		if err != nil {
			return Sample{}, fmt.Errorf("%s: %w", s.id, err)
		}
		sample.Seq = s.seq
		sample.SysTicks = time.Now().UnixNano()
		s.seq++
		return sample, nil
	}

	if s.closed.Load() {
		return Sample{}, ErrClosed
	}
	if err := s.scanner.Err(); err != nil {
		return Sample{}, fmt.Errorf("%s: %w", s.id, err)
	}
	return Sample{}, io.EOF
}

// Close closes the underlying reader, if it can be closed. Closing twice is a no-op.
func (s *LineSource) Close() error {
	if s.closed.Swap(true) || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// ParseLine parses "[label:] ax, ay, az, gx, gy, gz[, ...]" into a sample with
// acc in g and gyro in deg/s. NaN and infinite fields are rejected. Seq and
// SysTicks are left zero.
func ParseLine(line string) (Sample, error) {
	var sample Sample

	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		line = line[idx+1:]
	}

	fields := strings.Split(line, ",")
	if len(fields) < 6 {
		return sample, fmt.Errorf("%w: want 6 fields, got %d", ErrMalformed, len(fields))
	}

	for i := 0; i < 6; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return Sample{}, fmt.Errorf("%w: field %d: %q", ErrMalformed, i, fields[i])
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Sample{}, fmt.Errorf("%w: field %d: %q is not finite", ErrMalformed, i, fields[i])
		}
		if i < 3 {
			sample.Acc[i] = v
		} else {
			sample.Gyro[i-3] = v
		}
	}
	return sample, nil
}
