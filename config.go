package mahony

import (
	"math"

	"github.com/knei-knurow/mahony/internal/numeric"
)

// Reset returns the estimator to the identity attitude and clears the integral
// feedback. The gains, sample period and integral limit are kept.
func (e *Estimator) Reset() {
	e.SetAttitude(1, 0, 0, 0)
	e.SetIntegralFeedback(0, 0, 0)
}

// Gains returns the proportional and integral feedback gains.
func (e *Estimator) Gains() (kp, ki float64) {
	return e.kp, e.ki
}

// SetGains sets the feedback gains.
//
// A larger kp follows the accelerometer faster but lets more vibration through.
// ki only needs to be large enough to learn a constant gyro bias over several
// seconds; too large a value makes the attitude oscillate slowly. Negative
// values are ignored, the respective gain is not updated.
func (e *Estimator) SetGains(kp, ki float64) {
	if kp >= 0 {
		e.kp = kp
	}
	if ki >= 0 {
		e.ki = ki
	}
}

// SamplePeriod returns the nominal period (s) assumed by Update.
func (e *Estimator) SamplePeriod() float64 {
	return e.dt
}

// SetSamplePeriod sets the nominal period (s) assumed by Update.
//
// Non-positive values are ignored by this function.
func (e *Estimator) SetSamplePeriod(dt float64) {
	if dt > 0 {
		e.dt = dt
	}
}

// IntegralLimit returns the bound on each integral feedback component, 0 if unbounded.
func (e *Estimator) IntegralLimit() float64 {
	return e.integralLimit
}

// SetIntegralLimit bounds each integral feedback component to [-limit,limit] (rad/s).
// The estimator is unbounded by default. A non-positive, infinite or NaN limit
// removes the bound.
func (e *Estimator) SetIntegralLimit(limit float64) {
	if !(limit > 0) || math.IsInf(limit, 1) {
		e.integralLimit = 0
		return
	}
	e.integralLimit = limit
	for i := range e.integral {
		e.integral[i] = numeric.ClampSymmetric(e.integral[i], limit)
	}
}
