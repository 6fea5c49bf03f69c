package motor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/motion"
)

const (
	DefaultAckTimeout   = 5 * time.Second
	DefaultPollInterval = 1 * time.Millisecond

	maxReadyPollInterval = 500 * time.Millisecond
)

var errNotReady = errors.New("device not ready")

// Channel exchanges commands with the motor firmware. The firmware handles
// one command at a time and echoes every byte it accepted, so a command is
// complete once as many bytes as were sent have come back.
type Channel struct {
	device       string
	port         Port
	ackTimeout   time.Duration
	pollInterval time.Duration

	// mu keeps a single command outstanding.
	mu *sync.Mutex
}

func NewChannel(device string, port Port, ackTimeout, pollInterval time.Duration) *Channel {
	if ackTimeout <= 0 {
		ackTimeout = DefaultAckTimeout
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Channel{
		device:       device,
		port:         port,
		ackTimeout:   ackTimeout,
		pollInterval: pollInterval,
		mu:           &sync.Mutex{},
	}
}

// WaitReady blocks until the firmware reports readiness. There is no
// timeout: the device is expected to come up eventually, and only ctx can
// abort the wait.
func (c *Channel) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logrus.WithField("device", c.device).Debug("waiting for device to become ready")

	buf := make([]byte, 1)
	op := func() error {
		n, err := c.port.Read(buf)
		if err != nil {
			logrus.WithField("device", c.device).Tracef("ready poll read failed: %v", err)
			return err
		}
		if n == 1 && buf[0] == ReadyByte {
			return nil
		}
		return errNotReady
	}

	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.pollInterval,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         maxReadyPollInterval,
		MaxElapsedTime:      0, // never give up
		Clock:               backoff.SystemClock,
	}

	err := backoff.Retry(op, backoff.WithContext(b, ctx))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if err != nil {
		return err
	}

	logrus.WithField("device", c.device).Info("device is ready")
	return nil
}

// Send writes cmd and waits until the device acknowledged all of it.
// Failures are returned as *ProtocolError.
func (c *Channel) Send(ctx context.Context, cmd string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger := logrus.WithFields(logrus.Fields{
		"device":  c.device,
		"command": cmd,
	})
	logger.Trace("sending command")

	// Once written, the command runs on the device whether or not anyone
	// waits for its echo.
	if err := ctx.Err(); err != nil {
		return &ProtocolError{Device: c.device, Command: cmd, Err: err}
	}

	// Stale bytes would be mistaken for this command's acknowledgment.
	if err := c.port.ResetInputBuffer(); err != nil {
		logger.Debugf("failed to reset input buffer: %v", err)
	}

	n, err := c.port.Write([]byte(cmd))
	if err != nil || n != len(cmd) {
		if err == nil {
			err = io.ErrShortWrite
		}
		logger.Debugf("write failed: %v", err)
		return &ProtocolError{Device: c.device, Command: cmd, Err: ErrEOF}
	}

	ack, err := c.awaitAck(ctx, len(cmd))
	if err != nil {
		return &ProtocolError{Device: c.device, Command: cmd, Acked: len(ack), Err: err}
	}

	if !bytes.Equal(ack, []byte(cmd)) {
		logger.WithField("ack", string(ack)).Warn("acknowledgment does not echo the command")
	}

	logger.Trace("command acknowledged")
	return nil
}

// awaitAck polls the port until want bytes arrived or the deadline passed.
func (c *Channel) awaitAck(ctx context.Context, want int) ([]byte, error) {
	buf := make([]byte, want)
	got := 0
	deadline := time.Now().Add(c.ackTimeout)

	for got < want {
		n, err := c.port.Read(buf[got:])
		got += n
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logrus.WithField("device", c.device).Debugf("read failed: %v", err)
			}
			return buf[:got], ErrEOF
		}
		if got >= want {
			break
		}
		if n > 0 {
			continue
		}
		if !time.Now().Before(deadline) {
			return buf[:got], ErrTimeout
		}

		select {
		case <-ctx.Done():
			return buf[:got], ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}

	return buf[:got], nil
}

// Enable enables the driver in dir.
func (c *Channel) Enable(ctx context.Context, dir motion.Direction) error {
	cmd, err := EnableCommand(dir)
	if err != nil {
		return err
	}
	return c.Send(ctx, cmd)
}

// Step executes one burst.
func (c *Channel) Step(ctx context.Context, b motion.Burst) error {
	cmd, err := StepCommand(b.Exponent)
	if err != nil {
		return err
	}
	return c.Send(ctx, cmd)
}

// Disable turns off the coil driver.
func (c *Channel) Disable(ctx context.Context) error {
	return c.Send(ctx, DisableCommand)
}

// Close closes the underlying port.
func (c *Channel) Close() error {
	return c.port.Close()
}
