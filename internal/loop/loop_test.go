package loop

import (
	"context"
	"errors"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knei-knurow/mahony"
	"github.com/knei-knurow/mahony/internal/sensor"
	"github.com/knei-knurow/mahony/pid"
)

type recordingSink struct {
	lock   sync.Mutex
	values map[string][]float64
	fail   error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{values: map[string][]float64{}}
}

func (s *recordingSink) Set(channel string, value float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.values[channel] = append(s.values[channel], value)
	return nil
}

func (s *recordingSink) Close() error {
	return nil
}

type sliceSource struct {
	samples []sensor.Sample
	errs    []error
	i       int
	closed  bool
}

func (s *sliceSource) Read() (sensor.Sample, error) {
	if s.closed {
		return sensor.Sample{}, sensor.ErrClosed
	}
	if s.i >= len(s.samples) {
		return sensor.Sample{}, io.EOF
	}
	i := s.i
	s.i++
	if s.errs != nil && s.errs[i] != nil {
		return sensor.Sample{}, s.errs[i]
	}
	return s.samples[i], nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func (s *sliceSource) ID() string {
	return "slice"
}

type failingSource struct{}

func (failingSource) Read() (sensor.Sample, error) { return sensor.Sample{}, errors.New("boom") }
func (failingSource) Close() error                 { return nil }
func (failingSource) ID() string                   { return "failing" }

func level(seq uint64) sensor.Sample {
	return sensor.Sample{Acc: [3]float64{0, 0, 1}, Seq: seq}
}

func TestParseAxis(t *testing.T) {
	for _, name := range []string{"roll", "pitch", "yaw", "gx", "gy", "gz"} {
		a, err := ParseAxis(name)
		require.NoError(t, err)
		assert.Equal(t, name, string(a))
	}

	_, err := ParseAxis("heading")
	assert.Error(t, err)
}

func TestAxisValue(t *testing.T) {
	att := Attitude{Roll: 1, Pitch: 2, Yaw: 3}
	s := sensor.Sample{Gyro: [3]float64{4, 5, 6}}

	tests := []struct {
		axis Axis
		want float64
	}{
		{AxisRoll, 1},
		{AxisPitch, 2},
		{AxisYaw, 3},
		{AxisGyroX, 4},
		{AxisGyroY, 5},
		{AxisGyroZ, 6},
		{Axis("bogus"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.axis), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.axis.Value(att, s))
		})
	}
}

func TestStep(t *testing.T) {
	sink := newRecordingSink()
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		&sliceSource{},
		sink,
		NewPositionalChannel("roll", AxisRoll, 10, pid.NewPositional(1, 0, 0, 100, 0)),
		NewIncrementalChannel("rate", AxisGyroZ, 0, pid.NewIncremental(1, 0.5, 0.25, 100)),
	)

	l.Step(level(7))

	assert.Equal(t, []float64{10}, sink.values["roll"])
	assert.Equal(t, []float64{0}, sink.values["rate"])

	snap := l.Snapshot()
	assert.Equal(t, uint64(7), snap.Seq)
	assert.Equal(t, uint64(1), snap.Samples)
	assert.Zero(t, snap.Errors)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, snap.Quaternion)
	assert.Equal(t, map[string]float64{"roll": 10, "rate": 0}, snap.Outputs)

	// A constant 10 deg/s yaw rate against a zero target
	s := level(8)
	s.Gyro[2] = 10
	l.Step(s)
	assert.InDelta(t, -17.5, sink.values["rate"][1], 1e-9)
	assert.Greater(t, l.Snapshot().Yaw, 0.0)
}

func TestSnapshotIsACopy(t *testing.T) {
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		&sliceSource{},
		newRecordingSink(),
		NewPositionalChannel("roll", AxisRoll, 1, pid.NewPositional(1, 0, 0, 100, 0)),
	)
	l.Step(level(0))

	snap := l.Snapshot()
	snap.Outputs["roll"] = 99
	assert.Equal(t, 1.0, l.Snapshot().Outputs["roll"])
}

func TestSinkErrorsAreCounted(t *testing.T) {
	sink := newRecordingSink()
	sink.fail = errors.New("unplugged")
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		&sliceSource{},
		sink,
		NewPositionalChannel("a", AxisRoll, 1, pid.NewPositional(1, 0, 0, 100, 0)),
		NewPositionalChannel("b", AxisPitch, 1, pid.NewPositional(1, 0, 0, 100, 0)),
	)

	l.Step(level(0))
	snap := l.Snapshot()
	assert.Equal(t, uint64(2), snap.Errors)
	assert.Equal(t, 1.0, snap.Outputs["a"])
}

func TestStepDropsNonFiniteSample(t *testing.T) {
	sink := newRecordingSink()
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		&sliceSource{},
		sink,
		NewPositionalChannel("hold", AxisGyroX, 0, pid.NewPositional(1, 0.5, 0.25, 100, 50)),
		NewIncrementalChannel("rate", AxisGyroX, 0, pid.NewIncremental(1, 0.5, 0.25, 100)),
	)

	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		s := level(0)
		s.Gyro[0] = bad
		l.Step(s)

		s = level(0)
		s.Acc[2] = bad
		l.Step(s)
	}

	snap := l.Snapshot()
	assert.Zero(t, snap.Samples)
	assert.Equal(t, uint64(6), snap.Errors)
	assert.Empty(t, sink.values)
	assert.Equal(t, [4]float64{1, 0, 0, 0}, snap.Quaternion)

	s := level(1)
	s.Gyro[0] = 2
	l.Step(s)
	assert.Equal(t, []float64{-3.5}, sink.values["hold"])
	assert.Equal(t, []float64{-3.5}, sink.values["rate"])
}

func TestRearm(t *testing.T) {
	newLoop := func(sink *recordingSink) *Loop {
		return New(
			mahony.New(mahony.DefaultSamplePeriod),
			&sliceSource{},
			sink,
			NewPositionalChannel("roll", AxisRoll, 0, pid.NewPositional(2, 0.1, 0.5, 1000, 300)),
			NewIncrementalChannel("rate", AxisGyroX, 0, pid.NewIncremental(1, 0.5, 0.25, 100)),
		)
	}

	tilted := sensor.Sample{Acc: [3]float64{0, 0.5, 0.866}, Gyro: [3]float64{3, 0, 0}}

	used := newLoop(newRecordingSink())
	for i := 0; i < 200; i++ {
		used.Step(tilted)
	}
	require.NotZero(t, used.Snapshot().Roll)
	used.Rearm()

	freshSink, usedSink := newRecordingSink(), newRecordingSink()
	fresh := newLoop(freshSink)
	used.sink = usedSink
	for i := 0; i < 50; i++ {
		fresh.Step(tilted)
		used.Step(tilted)
	}

	assert.Equal(t, freshSink.values, usedSink.values)
	assert.Equal(t, fresh.Snapshot().Quaternion, used.Snapshot().Quaternion)
}

func TestRunReplay(t *testing.T) {
	input := strings.Join([]string{
		"Accel: 0, 0, 1,0, 0, 0,0,0,0",
		"Accel: 0, 0, 1,0, 0, 0,0,0,0",
		"noise",
		"Accel: 0, 0, 1,0, 0, 0,0,0,0",
	}, "\n")
	sink := newRecordingSink()
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		sensor.NewLineSource("replay", strings.NewReader(input)),
		sink,
		NewPositionalChannel("roll", AxisRoll, 5, pid.NewPositional(1, 0, 0, 100, 0)),
	)

	require.NoError(t, l.Run(context.Background(), 0))

	snap := l.Snapshot()
	assert.Equal(t, uint64(3), snap.Samples)
	assert.Equal(t, uint64(1), snap.Errors)
	assert.Equal(t, uint64(2), snap.Seq)
	assert.Equal(t, []float64{5, 5, 5}, sink.values["roll"])
}

func TestRunSkipsNonFiniteLines(t *testing.T) {
	lines := []string{"Accel: 0, 0, 1,NaN, 0, 0"}
	for i := 0; i < 100; i++ {
		lines = append(lines, "Accel: 0, 0, 1,1, 0, 0,0,0,0")
	}
	sink := newRecordingSink()
	l := New(
		mahony.New(mahony.DefaultSamplePeriod),
		sensor.NewLineSource("replay", strings.NewReader(strings.Join(lines, "\n"))),
		sink,
		NewIncrementalChannel("rate", AxisGyroX, 0, pid.NewIncremental(1, 0.5, 0.25, 100)),
		NewPositionalChannel("hold", AxisGyroX, 0, pid.NewPositional(1, 0.5, 0.25, 100, 50)),
	)

	require.NoError(t, l.Run(context.Background(), 0))

	snap := l.Snapshot()
	assert.Equal(t, uint64(100), snap.Samples)
	assert.Equal(t, uint64(1), snap.Errors)
	require.Len(t, sink.values["rate"], 100)
	require.Len(t, sink.values["hold"], 100)
	for name, values := range sink.values {
		for i, v := range values {
			assert.Falsef(t, math.IsNaN(v) || math.IsInf(v, 0), "%s[%d] = %v", name, i, v)
		}
	}
	assert.Equal(t, -51.0, snap.Outputs["rate"])
	assert.Equal(t, -51.0, snap.Outputs["hold"])
}

func TestRunPaced(t *testing.T) {
	samples := make([]sensor.Sample, 5)
	for i := range samples {
		samples[i] = level(uint64(i))
	}
	l := New(mahony.New(mahony.DefaultSamplePeriod), &sliceSource{samples: samples}, newRecordingSink())

	start := time.Now()
	require.NoError(t, l.Run(context.Background(), 2*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, uint64(5), l.Snapshot().Samples)
}

func TestRunCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	l := New(mahony.New(mahony.DefaultSamplePeriod), sensor.NewLineSource("pipe", r), newRecordingSink())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, 0) }()

	_, err := w.Write([]byte("0,0,1,0,0,0\n"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return l.Snapshot().Samples == 1 }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunGivesUpOnPersistentErrors(t *testing.T) {
	l := New(mahony.New(mahony.DefaultSamplePeriod), failingSource{}, newRecordingSink())

	err := l.Run(context.Background(), 0)
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, uint64(MaxConsecutiveErrors), l.Snapshot().Errors)
}
