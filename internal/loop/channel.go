package loop

import "github.com/knei-knurow/mahony/pid"

// controller is what a Channel needs from either PID form.
type controller interface {
	Calc(target, measured float64) float64
	Reset()
	Output() float64
}

// Channel drives one named output from one axis towards a fixed target.
type Channel struct {
	Name   string
	Axis   Axis
	Target float64
	ctrl   controller
}

func NewPositionalChannel(name string, axis Axis, target float64, p *pid.Positional) *Channel {
	return &Channel{Name: name, Axis: axis, Target: target, ctrl: p}
}

func NewIncrementalChannel(name string, axis Axis, target float64, p *pid.Incremental) *Channel {
	return &Channel{Name: name, Axis: axis, Target: target, ctrl: p}
}

// Output returns the most recent controller output.
func (c *Channel) Output() float64 {
	return c.ctrl.Output()
}
