package sensor

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/lsm6ds3tr"
)

// IMU reads an LSM6DS3TR directly over I2C. Every Read samples the output
// registers once, so the caller paces the sampling.
type IMU struct {
	id     string
	dev    *lsm6ds3tr.Device
	bus    io.Closer
	closed atomic.Bool
	seq    uint64
}

// OpenLSM6DS3TR opens the named I2C bus (the first available one if empty)
// and configures an LSM6DS3TR on it for +-8 g and +-1000 dps at 208 Hz.
func OpenLSM6DS3TR(id, busName string) (*IMU, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("cannot open i2c bus %q: %w", busName, err)
	}

	s, err := newIMU(id, bus, bus)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("cannot configure lsm6ds3tr on %s: %w", bus, err)
	}
	log.Infoln("reading samples from lsm6ds3tr on", bus)
	return s, nil
}

func newIMU(id string, bus drivers.I2C, closer io.Closer) (*IMU, error) {
	dev := lsm6ds3tr.New(bus)
	err := dev.Configure(lsm6ds3tr.Configuration{
		AccelRange:      lsm6ds3tr.ACCEL_8G,
		AccelSampleRate: lsm6ds3tr.ACCEL_SR_208,
		GyroRange:       lsm6ds3tr.GYRO_1000DPS,
		GyroSampleRate:  lsm6ds3tr.GYRO_SR_208,
	})
	if err != nil {
		return nil, err
	}
	return &IMU{id: id, dev: dev, bus: closer}, nil
}

func (s *IMU) ID() string {
	return s.id
}

// Read samples the accelerometer and gyroscope.
func (s *IMU) Read() (Sample, error) {
	if s.closed.Load() {
		return Sample{}, ErrClosed
	}

	ax, ay, az, err := s.dev.ReadAcceleration()
	if err != nil {
		return Sample{}, fmt.Errorf("%s: read acceleration: %w", s.id, err)
	}
	gx, gy, gz, err := s.dev.ReadRotation()
	if err != nil {
		return Sample{}, fmt.Errorf("%s: read rotation: %w", s.id, err)
	}

	// The driver reports micro-g and micro-degrees per second
	sample := Sample{
		Acc:      [3]float64{float64(ax) / 1e6, float64(ay) / 1e6, float64(az) / 1e6},
		Gyro:     [3]float64{float64(gx) / 1e6, float64(gy) / 1e6, float64(gz) / 1e6},
		Seq:      s.seq,
		SysTicks: time.Now().UnixNano(),
	}
	s.seq++
	return sample, nil
}

// Close releases the I2C bus. Closing twice is a no-op.
func (s *IMU) Close() error {
	if s.closed.Swap(true) || s.bus == nil {
		return nil
	}
	return s.bus.Close()
}
