package sensor

import (
	"bytes"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

// OpenSerial opens a serial port streaming sample lines. Pending input is
// discarded so the first sample read is a fresh one.
func OpenSerial(id, portName string, baud int) (*LineSource, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", portName, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Warnln(err)
	}
	log.Infof("reading samples from %s at %d baud", portName, baud)

	return NewLineSource(id, port), nil
}

// ListSerialPorts returns the serial ports present on the host.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("cannot list serial ports: %w", err)
	}
	return ports, nil
}

// ProbeSerial reports whether a port streams at least one parsable sample line
// within timeout.
func ProbeSerial(portName string, baud int, timeout time.Duration) bool {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		log.Debugf("probe %s: %v", portName, err)
		return false
	}
	defer func() { _ = port.Close() }()

	if err := port.SetReadTimeout(timeout / 10); err != nil {
		log.Debugf("probe %s: %v", portName, err)
		return false
	}

	var pending []byte
	buf := make([]byte, 256)
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		n, err := port.Read(buf)
		if err != nil {
			log.Debugf("probe %s: %v", portName, err)
			return false
		}
		pending = append(pending, buf[:n]...)

		for {
			idx := bytes.IndexByte(pending, '\n')
			if idx < 0 {
				break
			}
			line := bytes.TrimSpace(pending[:idx])
			pending = pending[idx+1:]
			if _, err := ParseLine(string(line)); err == nil {
				return true
			}
		}
	}
	return false
}
