package sensor

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"
	"tinygo.org/x/drivers/mpu6050"
)

// MPU6050 reads an InvenSense MPU6050 at its default I2C address. The driver
// scales readings for the power-on ranges, +-2 g and +-250 dps, so those are
// written explicitly when the device is opened.
type MPU6050 struct {
	id     string
	dev    mpu6050.Device
	bus    *txErrBus
	closer io.Closer
	closed atomic.Bool
	seq    uint64
}

// txErrBus keeps the first bus error since the last take. The mpu6050 driver
// drops the errors of its register reads.
type txErrBus struct {
	drivers.I2C
	err error
}

func (b *txErrBus) Tx(addr uint16, w, r []byte) error {
	err := b.I2C.Tx(addr, w, r)
	if err != nil && b.err == nil {
		b.err = err
	}
	return err
}

func (b *txErrBus) take() error {
	err := b.err
	b.err = nil
	return err
}

// OpenMPU6050 opens the named I2C bus (the first available one if empty),
// wakes the MPU6050 on it and sets the +-2 g and +-250 dps ranges.
func OpenMPU6050(id, busName string) (*MPU6050, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("cannot open i2c bus %q: %w", busName, err)
	}

	s, err := newMPU6050(id, bus, bus)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("cannot configure mpu6050 on %s: %w", bus, err)
	}
	log.Infoln("reading samples from mpu6050 on", bus)
	return s, nil
}

func newMPU6050(id string, bus drivers.I2C, closer io.Closer) (*MPU6050, error) {
	tx := &txErrBus{I2C: bus}
	dev := mpu6050.New(tx)

	if !dev.Connected() {
		if err := tx.take(); err != nil {
			return nil, err
		}
		return nil, errors.New("mpu6050 not found")
	}
	if err := dev.Configure(); err != nil {
		return nil, err
	}
	if err := dev.SetFullScaleAccelRange(mpu6050.AFS_RANGE_2G); err != nil {
		return nil, err
	}
	if err := dev.SetFullScaleGyroRange(mpu6050.FS_RANGE_250); err != nil {
		return nil, err
	}
	_ = tx.take()

	return &MPU6050{id: id, dev: dev, bus: tx, closer: closer}, nil
}

func (s *MPU6050) ID() string {
	return s.id
}

// Read samples the accelerometer and gyroscope.
func (s *MPU6050) Read() (Sample, error) {
	if s.closed.Load() {
		return Sample{}, ErrClosed
	}

	ax, ay, az := s.dev.ReadAcceleration()
	gx, gy, gz := s.dev.ReadRotation()
	if err := s.bus.take(); err != nil {
		return Sample{}, fmt.Errorf("%s: read: %w", s.id, err)
	}

	// micro-g and micro-degrees per second, as with the LSM6DS3TR
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
func (s *MPU6050) Close() error {
	if s.closed.Swap(true) || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
