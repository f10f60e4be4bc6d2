package pid

import "github.com/knei-knurow/mahony/internal/numeric"

// Incremental is an incremental (velocity form) PID controller.
//
// Each step computes a delta that is added to the running output, so the
// output persists between calls and is the actuator command itself. Suited to
// speed loops, steppers and valves. Not safe for concurrent use.
type Incremental struct {
	kp, ki, kd float64
	maxOutput  float64

	err     float64 // e(k)
	lastErr float64 // e(k-1)
	prevErr float64 // e(k-2)
	output  float64
}

// NewIncremental creates an incremental controller with the given gains and output limit.
func NewIncremental(kp, ki, kd, maxOutput float64) *Incremental {
	p := new(Incremental)
	p.Init(kp, ki, kd, maxOutput)
	return p
}

// Init stores the gains and the output limit and clears the running state.
func (p *Incremental) Init(kp, ki, kd, maxOutput float64) {
	p.kp = kp
	p.ki = ki
	p.kd = kd
	p.maxOutput = maxOutput
	p.Reset()
}

// Reset clears the last three errors and the accumulated output.
func (p *Incremental) Reset() {
	p.err = 0
	p.lastErr = 0
	p.prevErr = 0
	p.output = 0
}

// Calc runs one controller step and returns the accumulated, clamped output.
func (p *Incremental) Calc(target, measured float64) float64 {
	p.err = target - measured

	delta := p.kp*(p.err-p.lastErr) +
		p.ki*p.err +
		p.kd*(p.err-2*p.lastErr+p.prevErr)

	p.output += delta
	p.output = numeric.ClampSymmetric(p.output, p.maxOutput)

	// prevErr must take the old lastErr
	p.prevErr = p.lastErr
	p.lastErr = p.err

	return p.output
}

// Gains returns the proportional, integral and derivative gains.
func (p *Incremental) Gains() (kp, ki, kd float64) {
	return p.kp, p.ki, p.kd
}

// MaxOutput returns the output limit.
func (p *Incremental) MaxOutput() float64 { return p.maxOutput }

// Error returns the error of the most recent step, e(k).
func (p *Incremental) Error() float64 { return p.err }

// LastError returns the error of the step before, e(k-1).
func (p *Incremental) LastError() float64 { return p.lastErr }

// PrevError returns the error two steps back, e(k-2).
func (p *Incremental) PrevError() float64 { return p.prevErr }

// Output returns the accumulated output.
func (p *Incremental) Output() float64 { return p.output }
