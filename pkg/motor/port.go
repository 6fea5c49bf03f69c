package motor

import (
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"go.bug.st/serial"
)

// Port is the part of a serial port the channel needs. Reads are expected
// to return (0, nil) when nothing arrived within the port's read timeout.
type Port interface {
	io.ReadWriteCloser

	// ResetInputBuffer discards bytes received but not yet read.
	ResetInputBuffer() error
}

// Open opens the serial device at path. Opening is retried briefly because
// USB serial adapters often appear a moment after the daemon starts.
func Open(path string, baudRate int, pollInterval time.Duration) (Port, error) {
	var port serial.Port
	op := func() error {
		p, err := serial.Open(path, &serial.Mode{BaudRate: baudRate})
		if err != nil {
			logrus.WithField("port", path).Debugf("failed to open serial port: %v", err)
			return err
		}
		port = p
		return nil
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	if err := port.SetReadTimeout(pollInterval); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"port":     path,
		"baudRate": baudRate,
	}).Info("serial port opened")

	return port, nil
}

// ListPorts returns the serial ports present on this machine.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
