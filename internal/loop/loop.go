// Package loop runs the fixed-period estimate-then-control cycle: read a
// sample, update the attitude, run every PID channel and push the outputs.
package loop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/knei-knurow/mahony"
	"github.com/knei-knurow/mahony/internal/actuator"
	"github.com/knei-knurow/mahony/internal/sensor"
)

const (
	diagInterval = 10 * time.Second

	// Run gives up after this many source errors without a good sample in between
	MaxConsecutiveErrors = 100
)

// Snapshot is the state after the most recent step.
type Snapshot struct {
	Seq        uint64             `json:"seq"`
	Roll       float64            `json:"roll"`
	Pitch      float64            `json:"pitch"`
	Yaw        float64            `json:"yaw"`
	Quaternion [4]float64         `json:"quaternion"`
	Outputs    map[string]float64 `json:"outputs"`
	Samples    uint64             `json:"samples"`
	Errors     uint64             `json:"errors"`
}

// Loop owns an estimator and its channels. Only the goroutine calling Run (or
// Step) touches them; Snapshot and Rearm are safe from any goroutine.
type Loop struct {
	est      *mahony.Estimator
	source   sensor.Source
	sink     actuator.Sink
	channels []*Channel

	lock     sync.RWMutex
	snapshot Snapshot
	rearm    atomic.Bool
}

func New(est *mahony.Estimator, source sensor.Source, sink actuator.Sink, channels ...*Channel) *Loop {
	return &Loop{
		est:      est,
		source:   source,
		sink:     sink,
		channels: channels,
		snapshot: Snapshot{
			Quaternion: [4]float64{1, 0, 0, 0},
			Outputs:    map[string]float64{},
		},
	}
}

// Step feeds one sample through the estimator and every channel. A sample with
// a NaN or infinite reading is counted as an error and leaves the estimator,
// the controllers and the sink untouched.
func (l *Loop) Step(sample sensor.Sample) {
	if l.rearm.Swap(false) {
		l.est.Reset()
		for _, ch := range l.channels {
			ch.ctrl.Reset()
		}
		log.Infoln("estimator and controllers re-armed")
	}

	if !finiteSample(sample) {
		log.Debugf("dropping non-finite sample %d", sample.Seq)
		l.countError()
		return
	}

	roll, pitch, yaw := l.est.Update(
		sample.Acc[0], sample.Acc[1], sample.Acc[2],
		sample.Gyro[0], sample.Gyro[1], sample.Gyro[2],
	)
	att := Attitude{Roll: roll, Pitch: pitch, Yaw: yaw}

	var sinkErrors uint64
	outputs := make(map[string]float64, len(l.channels))
	for _, ch := range l.channels {
		out := ch.ctrl.Calc(ch.Target, ch.Axis.Value(att, sample))
		outputs[ch.Name] = out
		if err := l.sink.Set(ch.Name, out); err != nil {
			log.Warnln(err)
			sinkErrors++
		}
	}

	if log.IsLevelEnabled(log.DebugLevel) {
		log.WithFields(log.Fields{
			"seq":   sample.Seq,
			"roll":  roll,
			"pitch": pitch,
			"yaw":   yaw,
		}).Debugln("step")
	}

	w, x, y, z := l.est.Attitude()

	l.lock.Lock()
	defer l.lock.Unlock()
	l.snapshot.Seq = sample.Seq
	l.snapshot.Roll, l.snapshot.Pitch, l.snapshot.Yaw = roll, pitch, yaw
	l.snapshot.Quaternion = [4]float64{w, x, y, z}
	l.snapshot.Outputs = outputs
	l.snapshot.Samples++
	l.snapshot.Errors += sinkErrors
}

// Snapshot returns a copy of the state after the most recent step.
func (l *Loop) Snapshot() Snapshot {
	l.lock.RLock()
	defer l.lock.RUnlock()

	s := l.snapshot
	s.Outputs = make(map[string]float64, len(l.snapshot.Outputs))
	for k, v := range l.snapshot.Outputs {
		s.Outputs[k] = v
	}
	return s
}

// Rearm resets the estimator and every controller before the next step.
func (l *Loop) Rearm() {
	l.rearm.Store(true)
}

func finiteSample(s sensor.Sample) bool {
	for i := 0; i < 3; i++ {
		for _, v := range []float64{s.Acc[i], s.Gyro[i]} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func (l *Loop) countError() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.snapshot.Errors++
}

// Run reads and steps until ctx is cancelled or the source is exhausted. With
// a positive period one sample is read per tick, otherwise samples are
// processed as fast as the source delivers them. Run closes the source when
// ctx is cancelled so that a blocked Read returns.
//
// It returns nil at io.EOF and ctx.Err() on cancellation. Other source errors
// are logged and skipped, until MaxConsecutiveErrors of them occur in a row.
func (l *Loop) Run(ctx context.Context, period time.Duration) error {
	var tick <-chan time.Time
	if period > 0 {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		tick = ticker.C
	}

	stop := context.AfterFunc(ctx, func() { _ = l.source.Close() })
	defer stop()

	// diagnose variables
	diagLastCheck := time.Now()
	diagCounter := 0
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}

		sample, err := l.source.Read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				log.Infof("source %s exhausted", l.source.ID())
				return nil
			}
			if errors.Is(err, sensor.ErrClosed) {
				return err
			}

			l.countError()
			consecutiveErrors++
			if consecutiveErrors >= MaxConsecutiveErrors {
				return fmt.Errorf("source %s failed %d times in a row: %w", l.source.ID(), consecutiveErrors, err)
			}
			log.Debugf("source %s error: %v", l.source.ID(), err)
			continue
		}
		consecutiveErrors = 0

		l.Step(sample)

		diagCounter++
		if elapsed := time.Since(diagLastCheck); elapsed >= diagInterval {
			log.Infof("loop fps: %3.1f", float64(diagCounter)/elapsed.Seconds())
			diagLastCheck = time.Now()
			diagCounter = 0
		}
	}
}
