// Package pid provides the two discrete PID forms used to close control loops:
// the positional form, whose output is the absolute actuator command, and the
// incremental form, which accumulates a per-call delta into a persisted output.
//
// Neither controller reads a clock. Calc is expected to be called once per
// control period, and the gains are tuned for that period.
package pid

import "github.com/knei-knurow/mahony/internal/numeric"

// Positional is a positional PID controller with integral anti-windup.
//
// Suited to angle, position or temperature loops where the output directly
// drives the actuator. Not safe for concurrent use.
type Positional struct {
	// Gains
	kp, ki, kd float64

	// Limits (absolute values)
	maxOutput   float64
	maxIntegral float64

	// Running state
	err      float64
	lastErr  float64
	integral float64 // Ki is already applied to every accumulated term
	output   float64
}

// NewPositional creates a positional controller with the given gains and limits.
func NewPositional(kp, ki, kd, maxOutput, maxIntegral float64) *Positional {
	p := new(Positional)
	p.Init(kp, ki, kd, maxOutput, maxIntegral)
	return p
}

// Init stores the gains and limits and clears the running state.
func (p *Positional) Init(kp, ki, kd, maxOutput, maxIntegral float64) {
	p.kp = kp
	p.ki = ki
	p.kd = kd
	p.maxOutput = maxOutput
	p.maxIntegral = maxIntegral
	p.Reset()
}

// Reset clears the error history, the integral and the output. Gains and
// limits are kept. Call it whenever the loop is re-engaged.
func (p *Positional) Reset() {
	p.err = 0
	p.lastErr = 0
	p.integral = 0
	p.output = 0
}

// Calc runs one controller step and returns the clamped output.
func (p *Positional) Calc(target, measured float64) float64 {
	p.err = target - measured

	// Gain first, then clamp the whole accumulator
	p.integral += p.ki * p.err
	p.integral = numeric.ClampSymmetric(p.integral, p.maxIntegral)

	p.output = p.kp*p.err + p.integral + p.kd*(p.err-p.lastErr)
	p.output = numeric.ClampSymmetric(p.output, p.maxOutput)

	p.lastErr = p.err

	return p.output
}

// Gains returns the proportional, integral and derivative gains.
func (p *Positional) Gains() (kp, ki, kd float64) {
	return p.kp, p.ki, p.kd
}

// Limits returns the output and integral limits.
func (p *Positional) Limits() (maxOutput, maxIntegral float64) {
	return p.maxOutput, p.maxIntegral
}

// Error returns the error of the most recent step.
func (p *Positional) Error() float64 { return p.err }

// LastError returns the error remembered for the next derivative term.
func (p *Positional) LastError() float64 { return p.lastErr }

// Integral returns the accumulated (and clamped) integral term.
func (p *Positional) Integral() float64 { return p.integral }

// Output returns the most recent output.
func (p *Positional) Output() float64 { return p.output }
