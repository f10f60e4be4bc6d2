// Package actuator delivers controller outputs to the outside world.
package actuator

import (
	"fmt"
	"io"
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Sink receives one value per named channel on every loop step.
type Sink interface {
	Set(channel string, value float64) error
	Close() error
}

// LogSink logs every output at debug level.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (LogSink) Set(channel string, value float64) error {
	log.WithFields(log.Fields{
		"channel": channel,
		"value":   value,
	}).Debugln("output")
	return nil
}

func (LogSink) Close() error {
	return nil
}

// WriterSink writes "channel=value" lines, e.g. to a motor controller
// listening on a serial port.
type WriterSink struct {
	lock   sync.Mutex
	w      io.Writer
	closer io.Closer
}

// NewWriterSink returns a WriterSink writing to w. If w is an io.Closer, it is
// closed together with the sink.
func NewWriterSink(w io.Writer) *WriterSink {
	s := &WriterSink{w: w}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// NewStdoutSink returns a WriterSink on stdout, which is left open on Close.
func NewStdoutSink() *WriterSink {
	return &WriterSink{w: os.Stdout}
}

func (s *WriterSink) Set(channel string, value float64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.w == nil {
		return fmt.Errorf("set %s: sink closed", channel)
	}
	if _, err := fmt.Fprintf(s.w, "%s=%.3f\n", channel, value); err != nil {
		return fmt.Errorf("set %s: %w", channel, err)
	}
	return nil
}

func (s *WriterSink) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.w = nil
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}

// OpenSerialSink opens a serial port and returns a WriterSink over it.
func OpenSerialSink(portName string, baud int) (*WriterSink, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("cannot open %s: %w", portName, err)
	}
	log.Infof("writing outputs to %s at %d baud", portName, baud)
	return NewWriterSink(port), nil
}
