package mahony

import (
	"math"

	"github.com/knei-knurow/mahony/internal/numeric"
)

// Attitude returns the current attitude estimate as a unit quaternion.
func (e *Estimator) Attitude() (w, x, y, z float64) {
	return e.q[0], e.q[1], e.q[2], e.q[3]
}

// SetAttitude sets the current attitude estimate. The quaternion is normalised,
// and a quaternion too close to zero selects the identity attitude.
func (e *Estimator) SetAttitude(w, x, y, z float64) {
	qscale := w*w + x*x + y*y + z*z

	if qscale < QuatNormToleranceSquared || !finite(w, x, y, z) {
		e.q = [4]float64{1, 0, 0, 0}
	} else {
		qscale = 1 / math.Sqrt(qscale)
		e.q = [4]float64{qscale * w, qscale * x, qscale * y, qscale * z}
	}

	e.eulerValid = false
}

// SetAttitudeEuler sets the current attitude estimate from ZYX Euler angles in degrees.
func (e *Estimator) SetAttitudeEuler(roll, pitch, yaw float64) {
	// half angles, in radians
	hphi := 0.5 * roll * degToRad
	hth := 0.5 * pitch * degToRad
	hpsi := 0.5 * yaw * degToRad

	var (
		cphi, sphi = math.Cos(hphi), math.Sin(hphi)
		cth, sth   = math.Cos(hth), math.Sin(hth)
		cpsi, spsi = math.Cos(hpsi), math.Sin(hpsi)
	)

	e.SetAttitude(
		cpsi*cth*cphi+spsi*sth*sphi,
		cpsi*cth*sphi-spsi*sth*cphi,
		cpsi*sth*cphi+spsi*cth*sphi,
		spsi*cth*cphi-cpsi*sth*sphi,
	)
}

func (e *Estimator) updateEuler() {
	// Relies on q being a unit quaternion.
	//
	// The output ranges are:
	//   Roll:   phi  = euler[0] is in (-180,180]
	//   Pitch: theta = euler[1] is in [-90,90]
	//   Yaw:    psi  = euler[2] is in (-180,180]
	w, x, y, z := e.q[0], e.q[1], e.q[2], e.q[3]

	// Floating point error can push the sine just past 1, and asin would return NaN
	stheta := numeric.Clamp(2*(w*y-z*x), -1, 1)
	e.euler[1] = math.Asin(stheta) * radToDeg

	ysq := y * y
	e.euler[0] = math.Atan2(w*x+y*z, 0.5-(x*x+ysq)) * radToDeg
	e.euler[2] = math.Atan2(w*z+x*y, 0.5-(ysq+z*z)) * radToDeg

	e.eulerValid = true
}
