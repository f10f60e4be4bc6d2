package mahony

// Euler returns the ZYX Euler angles of the current attitude estimate in degrees.
func (e *Estimator) Euler() (roll, pitch, yaw float64) {
	if !e.eulerValid {
		e.updateEuler()
	}
	return e.euler[0], e.euler[1], e.euler[2]
}

// EulerRoll returns the ZYX Euler roll of the current attitude estimate (deg).
func (e *Estimator) EulerRoll() float64 {
	roll, _, _ := e.Euler()
	return roll
}

// EulerPitch returns the ZYX Euler pitch of the current attitude estimate (deg).
func (e *Estimator) EulerPitch() float64 {
	_, pitch, _ := e.Euler()
	return pitch
}

// EulerYaw returns the ZYX Euler yaw of the current attitude estimate (deg).
// Without a heading reference this is only meaningful relative to an earlier value.
func (e *Estimator) EulerYaw() float64 {
	_, _, yaw := e.Euler()
	return yaw
}
