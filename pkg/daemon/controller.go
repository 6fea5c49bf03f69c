package daemon

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/curtain/pkg/events"
	"github.com/charlie0129/curtain/pkg/motion"
	"github.com/charlie0129/curtain/pkg/types"
)

const shutdownDisableTimeout = 5 * time.Second

// Commander drives the motor of one device.
type Commander interface {
	WaitReady(ctx context.Context) error
	Enable(ctx context.Context, dir motion.Direction) error
	Step(ctx context.Context, b motion.Burst) error
	Disable(ctx context.Context) error
}

// PositionStore persists the absolute position of a device.
type PositionStore interface {
	Load(name string) int64
	Save(name string, heightSteps int64) error
}

// ControllerOptions holds the per-device tunables of a Controller.
type ControllerOptions struct {
	MaxBurst     int64
	Reverse      bool
	TickInterval time.Duration
	Hub          *events.Hub
}

// Controller reconciles the target position of one curtain with its current
// position. Only Tick talks to the motor; everything else may be called from
// any goroutine.
type Controller struct {
	name     string
	cmd      Commander
	store    PositionStore
	conv     motion.Converter
	maxBurst int64
	reverse  bool
	interval time.Duration
	hub      *events.Hub

	current   atomic.Int64
	target    atomic.Int64
	direction atomic.Int32
	ready     atomic.Bool

	// tickMu keeps ticks from overlapping.
	tickMu sync.Mutex
}

// NewController restores the last persisted position of name and starts with
// the target equal to it, so nothing moves until someone sets a new target.
func NewController(name string, cmd Commander, store PositionStore, conv motion.Converter, opts ControllerOptions) *Controller {
	if opts.MaxBurst <= 0 {
		opts.MaxBurst = motion.MaxBurstLimit
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 50 * time.Millisecond
	}

	c := &Controller{
		name:     name,
		cmd:      cmd,
		store:    store,
		conv:     conv,
		maxBurst: opts.MaxBurst,
		reverse:  opts.Reverse,
		interval: opts.TickInterval,
		hub:      opts.Hub,
	}

	height := store.Load(name)
	c.current.Store(height)
	c.target.Store(height)

	logrus.WithFields(logrus.Fields{
		"device":      name,
		"heightSteps": height,
		"totalSteps":  conv.TotalSteps(),
	}).Info("restored position")

	return c
}

func (c *Controller) Name() string {
	return c.name
}

// Run waits for the device to become ready and then ticks until ctx is
// cancelled. On exit the driver is disabled if it was left enabled.
func (c *Controller) Run(ctx context.Context) error {
	logger := logrus.WithField("device", c.name)

	if err := c.cmd.WaitReady(ctx); err != nil {
		return err
	}
	c.ready.Store(true)
	c.hub.Publish(events.DeviceReady, events.DeviceReadyEvent{Device: c.name, Ts: time.Now().Unix()})

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	logger.Debugf("control loop started with interval %s", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.release()
			logger.Debug("control loop stopped")
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			if err := c.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				logger.Errorf("tick failed, retrying on the next tick: %v", err)
			}
		}
	}
}

// release disables the driver on the way out.
func (c *Controller) release() {
	if c.Direction() == motion.DirectionUnknown {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownDisableTimeout)
	defer cancel()

	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	if err := c.cmd.Disable(ctx); err != nil {
		logrus.WithField("device", c.name).Errorf("failed to disable driver before exiting: %v", err)
		return
	}
	c.setDirection(motion.DirectionUnknown, 0)
}

// Tick runs one reconciliation step: it switches the driver direction when
// needed and executes all bursts planned for the delta observed at its start.
// Only acknowledged bursts move the current position. A motor error aborts
// the remaining bursts and is returned; persistence errors are only logged.
//
// Cancelling ctx aborts the tick between commands. A command already written
// is still awaited until acknowledged or timed out, because the firmware
// executes it either way.
func (c *Controller) Tick(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	wire := context.WithoutCancel(ctx)

	current := c.current.Load()
	delta := c.target.Load() - current
	dir := c.Direction()

	switch {
	case delta > 0 && dir != motion.DirectionBackward:
		if err := c.enable(wire, motion.DirectionBackward, delta); err != nil {
			return err
		}
	case delta < 0 && dir != motion.DirectionForward:
		if err := c.enable(wire, motion.DirectionForward, delta); err != nil {
			return err
		}
	case delta == 0 && dir != motion.DirectionUnknown:
		if err := c.cmd.Disable(wire); err != nil {
			return err
		}
		c.setDirection(motion.DirectionUnknown, 0)
		logrus.WithField("device", c.name).Debug("target reached, driver disabled")
		return nil
	}

	if delta == 0 {
		return nil
	}

	want := motion.DirectionBackward
	sign := int64(1)
	if delta < 0 {
		want = motion.DirectionForward
		sign = -1
	}

	for _, b := range motion.Plan(delta*sign, c.maxBurst, want) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.cmd.Step(wire, b); err != nil {
			return err
		}

		current += sign * b.Steps
		c.current.Store(current)

		if err := c.store.Save(c.name, current); err != nil {
			logrus.WithFields(logrus.Fields{
				"device":      c.name,
				"heightSteps": current,
			}).Errorf("position will not survive a restart: %v", err)
		}

		c.hub.Publish(events.MotionPosition, events.MotionPositionEvent{
			Device:       c.name,
			CurrentSteps: current,
			TargetSteps:  c.target.Load(),
			Percent:      c.conv.StepsToPercent(current),
			Ts:           time.Now().Unix(),
		})
	}

	return nil
}

// enable switches the driver to dir, mirrored for motors wired in reverse.
// The direction is only recorded once the device acknowledged it.
func (c *Controller) enable(ctx context.Context, dir motion.Direction, delta int64) error {
	wire := dir
	if c.reverse {
		wire = dir.Mirror()
	}

	if err := c.cmd.Enable(ctx, wire); err != nil {
		return err
	}
	c.setDirection(dir, delta)

	logrus.WithFields(logrus.Fields{
		"device":    c.name,
		"direction": dir,
		"wire":      wire,
	}).Debug("driver enabled")

	return nil
}

func (c *Controller) setDirection(dir motion.Direction, delta int64) {
	c.direction.Store(int32(dir))
	c.hub.Publish(events.MotionState, events.MotionStateEvent{
		Device:    c.name,
		Direction: dir.String(),
		State:     motion.StateOf(dir, delta).String(),
		Ts:        time.Now().Unix(),
	})
}

// Direction returns the direction the driver is currently enabled in.
func (c *Controller) Direction() motion.Direction {
	return motion.Direction(c.direction.Load())
}

func (c *Controller) CurrentSteps() int64 {
	return c.current.Load()
}

func (c *Controller) TargetSteps() int64 {
	return c.target.Load()
}

func (c *Controller) CurrentPercent() float64 {
	return c.conv.StepsToPercent(c.current.Load())
}

func (c *Controller) TargetPercent() float64 {
	return c.conv.StepsToPercent(c.target.Load())
}

// SetTargetPercent moves the target. The new value is picked up by the next
// tick; a tick already in progress finishes its bursts first.
func (c *Controller) SetTargetPercent(percent float64) error {
	steps, err := c.conv.PercentToSteps(percent)
	if err != nil {
		return err
	}
	c.target.Store(steps)

	logrus.WithFields(logrus.Fields{
		"device":      c.name,
		"percent":     percent,
		"targetSteps": steps,
	}).Info("target set")

	return nil
}

// SetTargetSteps moves the target to an absolute step count.
func (c *Controller) SetTargetSteps(steps int64) error {
	total := c.conv.TotalSteps()
	if steps < 0 || steps > total {
		return &motion.ValidationError{Field: "target_steps", Value: float64(steps), Min: 0, Max: float64(total)}
	}
	c.target.Store(steps)
	return nil
}

// Stop retargets the curtain to where it is now, which makes the next tick
// disable the driver.
func (c *Controller) Stop() {
	c.target.Store(c.current.Load())
	logrus.WithField("device", c.name).Info("stop requested")
}

func (c *Controller) MotionState() motion.MotionState {
	return motion.StateOf(c.Direction(), c.target.Load()-c.current.Load())
}

// Ready reports whether the readiness handshake completed.
func (c *Controller) Ready() bool {
	return c.ready.Load()
}

func (c *Controller) State() types.DeviceState {
	current := c.current.Load()
	target := c.target.Load()
	dir := c.Direction()
	currentPercent := c.conv.StepsToPercent(current)

	return types.DeviceState{
		Name:         c.name,
		CurrentPos:   int(math.Round(currentPercent)),
		TargetPos:    int(math.Round(c.conv.StepsToPercent(target))),
		CurrentExact: currentPercent,
		CurrentSteps: current,
		TargetSteps:  target,
		TotalSteps:   c.conv.TotalSteps(),
		Direction:    dir.String(),
		State:        motion.StateOf(dir, target-current).String(),
		Ready:        c.Ready(),
	}
}
