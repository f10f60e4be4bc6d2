package mahony

import "github.com/knei-knurow/mahony/internal/numeric"

// IntegralFeedback returns the integral feedback (rad/s), which converges to
// minus the gyroscope bias under steady conditions.
func (e *Estimator) IntegralFeedback() (ix, iy, iz float64) {
	return e.integral[0], e.integral[1], e.integral[2]
}

// SetIntegralFeedback sets the integral feedback to a particular vector value,
// e.g. one learnt in a previous run. The integral limit, if any, still applies.
func (e *Estimator) SetIntegralFeedback(ix, iy, iz float64) {
	e.integral = [3]float64{ix, iy, iz}
	if e.integralLimit > 0 {
		for i := range e.integral {
			e.integral[i] = numeric.ClampSymmetric(e.integral[i], e.integralLimit)
		}
	}
}
