// Package mahony is a 6-axis (acc + gyro) attitude estimator.
package mahony

import (
	"math"

	"github.com/knei-knurow/mahony/internal/numeric"
)

const (
	// If an acc measurement has norm-squared less than or equal to this, it is treated as a zero vector (free fall or
	// sensor fault) and the gravity correction is skipped for that update.
	AccNormToleranceSquared = 1e-12 * 1e-12

	// If the integrated quaternion has norm-squared less than this, renormalisation is skipped for that update.
	QuatNormToleranceSquared = 1e-12 * 1e-12
)

// Defaults for a 200 Hz loop.
const (
	DefaultSamplePeriod = 0.005 // s
	DefaultKp           = 10.0
	DefaultKi           = 0.005
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// Estimator fuses accelerometer and gyroscope samples into an attitude estimate.
//
// Multiple estimators may coexist (one per IMU). An Estimator is not safe for
// concurrent use.
type Estimator struct {
	// Configuration variables
	kp            float64 // Proportional gain, speed at which the acc corrects the gyro integration
	ki            float64 // Integral gain, must stay small since it only estimates constant gyro bias
	dt            float64 // Nominal sample period (s)
	integralLimit float64 // Absolute bound on each integral component, 0 means unbounded

	// Internal variables
	q          [4]float64 // Attitude quaternion: Format is (w,x,y,z), must *always* be a unit quaternion (or within a few eps of it)!
	integral   [3]float64 // Integral feedback (rad/s): Format is (x,y,z)
	euler      [3]float64 // Euler angles (deg): Format is (roll,pitch,yaw), ZYX convention
	eulerValid bool       // Whether euler is up to date with q
}

// New returns an estimator at the identity attitude with zero integral
// feedback and the default gains. dt is the period (in seconds) at which
// Update will be called; non-positive values select DefaultSamplePeriod.
func New(dt float64) *Estimator {
	e := &Estimator{
		kp: DefaultKp,
		ki: DefaultKi,
		dt: DefaultSamplePeriod,
	}
	e.SetSamplePeriod(dt)
	e.Reset()
	return e
}

// Update updates the attitude estimate with a new sample taken one sample
// period after the previous one, and returns the resulting ZYX Euler angles in
// degrees.
//
// - acc: accelerometer reading in any self-consistent units (only the direction is used)
//
// - gyro: gyroscope reading in deg/s
//
// The caller must invoke Update at the configured sample period; the period is
// not measured. Yaw has no absolute reference and drifts over time, only relative
// yaw changes are meaningful.
func (e *Estimator) Update(ax, ay, az, gx, gy, gz float64) (roll, pitch, yaw float64) {
	return e.UpdateDt(e.dt, ax, ay, az, gx, gy, gz)
}

// UpdateDt is Update with an explicit time step (s) since the previous call.
// A non-positive dt leaves the estimate unchanged.
func (e *Estimator) UpdateDt(dt, ax, ay, az, gx, gy, gz float64) (roll, pitch, yaw float64) {
	if dt > 0 && finite(ax, ay, az, gx, gy, gz) {
		e.integrate(dt, ax, ay, az, gx*degToRad, gy*degToRad, gz*degToRad)
	}
	return e.Euler()
}

// integrate runs one filter step. Gyro rates are in rad/s.
func (e *Estimator) integrate(dt, ax, ay, az, gx, gy, gz float64) {
	q0, q1, q2, q3 := e.q[0], e.q[1], e.q[2], e.q[3]

	// Correct the gyro with the gravity direction, unless the acc vector has no direction at all
	if anorm := ax*ax + ay*ay + az*az; anorm > AccNormToleranceSquared {
		anorm = 1 / math.Sqrt(anorm)
		ax *= anorm
		ay *= anorm
		az *= anorm

		// Expected down: third row of the rotation matrix of q
		vx := 2 * (q1*q3 - q0*q2)
		vy := 2 * (q0*q1 + q2*q3)
		vz := q0*q0 - q1*q1 - q2*q2 + q3*q3

		// Rotation error between measured and expected down (|e| = sin of the angle between them)
		ex := ay*vz - az*vy
		ey := az*vx - ax*vz
		ez := ax*vy - ay*vx

		iscale := e.ki * dt
		e.integral[0] += iscale * ex
		e.integral[1] += iscale * ey
		e.integral[2] += iscale * ez
		if e.integralLimit > 0 {
			for i := range e.integral {
				e.integral[i] = numeric.ClampSymmetric(e.integral[i], e.integralLimit)
			}
		}

		gx += e.kp*ex + e.integral[0]
		gy += e.kp*ey + e.integral[1]
		gz += e.kp*ez + e.integral[2]
	}

	// Euler step of dq/dt = 0.5 * q ⊗ (0,w); q0..q3 still hold the previous attitude
	dscale := 0.5 * dt
	e.q[0] += dscale * (-q1*gx - q2*gy - q3*gz)
	e.q[1] += dscale * (q0*gx + q2*gz - q3*gy)
	e.q[2] += dscale * (q0*gy - q1*gz + q3*gx)
	e.q[3] += dscale * (q0*gz + q1*gy - q2*gx)

	// Renormalise the current attitude estimate
	if qscale := e.q[0]*e.q[0] + e.q[1]*e.q[1] + e.q[2]*e.q[2] + e.q[3]*e.q[3]; qscale >= QuatNormToleranceSquared {
		qscale = 1 / math.Sqrt(qscale)
		e.q[0] *= qscale
		e.q[1] *= qscale
		e.q[2] *= qscale
		e.q[3] *= qscale
	}

	e.eulerValid = false
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
